package analysis_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/analysis"
	"github.com/temirov/paperdigest/internal/llm"
	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/retry"
	"github.com/temirov/paperdigest/internal/settings"
)

type streamScript struct {
	chunks  []streamChunk
	failure error
}

type streamChunk struct {
	kind  llm.ChunkKind
	value string
}

type fakeClient struct {
	mutex          sync.Mutex
	complete       func(request llm.Request) (string, error)
	streamAttempts []streamScript
	requests       []llm.Request
	streamCalls    int
	inFlight       int
	maxInFlight    int
	delay          time.Duration
}

func (client *fakeClient) Complete(executionContext context.Context, request llm.Request) (string, error) {
	client.mutex.Lock()
	client.requests = append(client.requests, request)
	client.inFlight++
	if client.inFlight > client.maxInFlight {
		client.maxInFlight = client.inFlight
	}
	client.mutex.Unlock()

	if client.delay > 0 {
		time.Sleep(client.delay)
	}

	client.mutex.Lock()
	client.inFlight--
	client.mutex.Unlock()
	return client.complete(request)
}

func (client *fakeClient) Stream(_ context.Context, request llm.Request, handler llm.StreamHandler) error {
	client.mutex.Lock()
	client.requests = append(client.requests, request)
	attempt := client.streamCalls
	client.streamCalls++
	client.mutex.Unlock()

	script := client.streamAttempts[len(client.streamAttempts)-1]
	if attempt < len(client.streamAttempts) {
		script = client.streamAttempts[attempt]
	}
	for _, chunk := range script.chunks {
		if handlerError := handler(chunk.kind, chunk.value); handlerError != nil {
			return handlerError
		}
	}
	return script.failure
}

func (client *fakeClient) recordedRequests() []llm.Request {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	return append([]llm.Request(nil), client.requests...)
}

type stubReferences struct {
	store *papers.Store
	calls []string
}

func (references *stubReferences) FetchSingle(_ context.Context, identifier string) (papers.Paper, error) {
	references.calls = append(references.calls, identifier)
	return references.store.Load(identifier)
}

type countingRecorder struct {
	mutex    sync.Mutex
	outcomes map[string]int
}

func (recorder *countingRecorder) StageFinished(stage analysis.Stage, outcome analysis.Outcome) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.outcomes[string(stage)+"/"+string(outcome)]++
}

func testSettings() settings.Settings {
	current := settings.Default()
	current.FilterKeywords = []string{"VLA", "world model"}
	current.NegativeKeywords = []string{"Medical"}
	current.PresetQuestions = []string{"Q1?", "Q2?"}
	current.SystemPrompt = "system"
	current.ConcurrentPapers = 2
	current.MinRelevanceScoreForStage2 = 6
	return current
}

func noWaitPolicy() *retry.Policy {
	return &retry.Policy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2, Sleep: retry.NoSleep}
}

func newTestStore(testInstance *testing.T) *papers.Store {
	testInstance.Helper()
	store, storeError := papers.NewStore(testInstance.TempDir(), zap.NewNop())
	require.NoError(testInstance, storeError)
	return store.WithClock(func() time.Time { return time.Date(2025, time.October, 12, 9, 0, 0, 0, time.UTC) })
}

func newTestAnalyzer(store *papers.Store, client llm.Client, recorder analysis.Recorder) *analysis.Analyzer {
	return analysis.NewAnalyzer(analysis.Dependencies{
		Client:      client,
		Store:       store,
		References:  &stubReferences{store: store},
		Recorder:    recorder,
		RetryPolicy: noWaitPolicy(),
	})
}

func savedPaper(testInstance *testing.T, store *papers.Store, paper papers.Paper) papers.Paper {
	testInstance.Helper()
	require.NoError(testInstance, store.Save(paper))
	return paper
}

func TestStage1NegativeKeywordSkipsModel(testInstance *testing.T) {
	store := newTestStore(testInstance)
	client := &fakeClient{complete: func(llm.Request) (string, error) { return "", errors.New("unexpected call") }}
	recorder := &countingRecorder{outcomes: map[string]int{}}
	analyzer := newTestAnalyzer(store, client, recorder)
	paper := savedPaper(testInstance, store, papers.Paper{ID: "2510.00001", Title: "Robots", PreviewText: "A medical robot"})

	filtered, stageError := analyzer.Stage1(context.Background(), paper, testSettings())
	require.NoError(testInstance, stageError)
	require.Empty(testInstance, client.recordedRequests())
	require.False(testInstance, filtered.Relevant())
	require.True(testInstance, filtered.Analyzed())
	require.Equal(testInstance, 1.0, filtered.RelevanceScore)
	require.Equal(testInstance, []string{"❌ Medical"}, filtered.ExtractedKeywords)
	require.Equal(testInstance, "论文包含负面关键词「Medical」，自动标记为不相关", filtered.OneLineSummary)
	require.Equal(testInstance, 1, recorder.outcomes["stage1/negative_keyword"])

	stored, loadError := store.Load(paper.ID)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, filtered.ExtractedKeywords, stored.ExtractedKeywords)
	require.Equal(testInstance, "2025-10-12T09:00:00.000000", stored.UpdatedAt)
}

func TestStage1RecordsVerdict(testInstance *testing.T) {
	testCases := []struct {
		name             string
		answer           string
		expectedRelevant bool
		expectedScore    float64
		expectedKeywords []string
		expectedSummary  string
	}{
		{
			name:             "complete_verdict",
			answer:           `{"is_relevant": true, "relevance_score": 8, "extracted_keywords": ["VLA"], "one_line_summary": "总结"}`,
			expectedRelevant: true,
			expectedScore:    8,
			expectedKeywords: []string{"VLA"},
			expectedSummary:  "总结",
		},
		{
			name:             "string_score_and_missing_fields",
			answer:           "```json\n{\"is_relevant\": true, \"relevance_score\": \"7.5\"}\n```",
			expectedRelevant: true,
			expectedScore:    7.5,
			expectedKeywords: []string{},
		},
		{
			name:             "empty_object",
			answer:           `{}`,
			expectedKeywords: []string{},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			store := newTestStore(testInstance)
			client := &fakeClient{complete: func(llm.Request) (string, error) { return testCase.answer, nil }}
			analyzer := newTestAnalyzer(store, client, nil)
			paper := savedPaper(testInstance, store, papers.Paper{ID: "2510.00002", Title: "VLA policies", PreviewText: "preview"})

			filtered, stageError := analyzer.Stage1(context.Background(), paper, testSettings())
			require.NoError(testInstance, stageError)
			require.Equal(testInstance, testCase.expectedRelevant, filtered.Relevant())
			require.True(testInstance, filtered.Analyzed())
			require.Equal(testInstance, testCase.expectedScore, filtered.RelevanceScore)
			require.Equal(testInstance, testCase.expectedKeywords, filtered.ExtractedKeywords)
			require.Equal(testInstance, testCase.expectedSummary, filtered.OneLineSummary)

			requests := client.recordedRequests()
			require.Len(testInstance, requests, 1)
			require.True(testInstance, requests[0].JSONMode)
			require.Equal(testInstance, 500, requests[0].MaxTokens)
			require.Equal(testInstance, "deepseek-chat", requests[0].Model)
			require.Equal(testInstance, llm.SystemMessage("system"), requests[0].Messages[0])
			require.Contains(testInstance, requests[0].Messages[1].Content, "关键词：VLA, world model")
			require.Contains(testInstance, requests[0].Messages[1].Content, "论文标题：VLA policies\n论文预览：\npreview")
		})
	}
}

func TestStage1FailureLeavesPaperUnanalyzed(testInstance *testing.T) {
	store := newTestStore(testInstance)
	client := &fakeClient{complete: func(llm.Request) (string, error) { return "not json", nil }}
	recorder := &countingRecorder{outcomes: map[string]int{}}
	analyzer := newTestAnalyzer(store, client, recorder)
	paper := savedPaper(testInstance, store, papers.Paper{ID: "2510.00003", Title: "Robots"})

	filtered, stageError := analyzer.Stage1(context.Background(), paper, testSettings())
	require.Error(testInstance, stageError)
	require.False(testInstance, filtered.Analyzed())
	require.Len(testInstance, client.recordedRequests(), 3)
	require.Equal(testInstance, 1, recorder.outcomes["stage1/failed"])

	stored, loadError := store.Load(paper.ID)
	require.NoError(testInstance, loadError)
	require.Nil(testInstance, stored.IsRelevant)
}

func TestStage2AnswersSummaryAndPresetQuestions(testInstance *testing.T) {
	store := newTestStore(testInstance)
	client := &fakeClient{complete: func(request llm.Request) (string, error) {
		userMessage := request.Messages[len(request.Messages)-1].Content
		questionIndex := strings.LastIndex(userMessage, "Question: ")
		return "answer to " + userMessage[questionIndex+len("Question: "):], nil
	}}
	analyzer := newTestAnalyzer(store, client, nil)
	paper := savedPaper(testInstance, store, papers.Paper{
		ID:             "2510.00004",
		Title:          "World models",
		Abstract:       "abstract only",
		IsRelevant:     papers.BoolPointer(true),
		RelevanceScore: 8,
		IsStarred:      true,
	})

	analyzed, stageError := analyzer.Stage2(context.Background(), paper, testSettings())
	require.NoError(testInstance, stageError)
	require.True(testInstance, strings.HasPrefix(analyzed.DetailedSummary, "answer to 请用中文生成这篇论文的详细摘要"))
	require.Len(testInstance, analyzed.QAPairs, 2)
	require.Equal(testInstance, "Q1?", analyzed.QAPairs[0].Question)
	require.Equal(testInstance, "answer to Q2?", analyzed.QAPairs[1].Answer)
	require.Equal(testInstance, "2025-10-12T09:00:00.000000", analyzed.QAPairs[0].Timestamp)
	require.True(testInstance, analyzed.IsStarred)

	requests := client.recordedRequests()
	require.Len(testInstance, requests, 3)
	expectedPrefix := "Paper Title: World models\n\nPaper Content:\nabstract only\n\n\nQuestion: "
	for _, request := range requests {
		require.Len(testInstance, request.Messages, 2)
		require.Equal(testInstance, "system", request.Messages[0].Content)
		require.True(testInstance, strings.HasPrefix(request.Messages[1].Content, expectedPrefix))
		require.Equal(testInstance, 2000, request.MaxTokens)
		require.False(testInstance, request.JSONMode)
	}

	stored, loadError := store.Load(paper.ID)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, analyzed.DetailedSummary, stored.DetailedSummary)
	require.Len(testInstance, stored.QAPairs, 2)
}

func TestStage2SkipsIrrelevantAndDiscardsPartialResults(testInstance *testing.T) {
	store := newTestStore(testInstance)
	calls := 0
	client := &fakeClient{complete: func(request llm.Request) (string, error) {
		calls++
		if strings.HasSuffix(request.Messages[1].Content, "Q2?") {
			return "", errors.New("upstream unavailable")
		}
		return "fine", nil
	}}
	analyzer := newTestAnalyzer(store, client, nil)

	irrelevant := savedPaper(testInstance, store, papers.Paper{ID: "2510.00005", IsRelevant: papers.BoolPointer(false)})
	skipped, skipError := analyzer.Stage2(context.Background(), irrelevant, testSettings())
	require.NoError(testInstance, skipError)
	require.Empty(testInstance, skipped.DetailedSummary)
	require.Zero(testInstance, calls)

	relevant := savedPaper(testInstance, store, papers.Paper{ID: "2510.00006", IsRelevant: papers.BoolPointer(true), RelevanceScore: 9})
	_, stageError := analyzer.Stage2(context.Background(), relevant, testSettings())
	require.Error(testInstance, stageError)
	require.Equal(testInstance, 5, calls)

	stored, loadError := store.Load(relevant.ID)
	require.NoError(testInstance, loadError)
	require.Empty(testInstance, stored.DetailedSummary)
	require.Empty(testInstance, stored.QAPairs)
}

func TestProcessPapersBoundsConcurrency(testInstance *testing.T) {
	defer goleak.VerifyNone(testInstance)

	store := newTestStore(testInstance)
	client := &fakeClient{
		delay: 5 * time.Millisecond,
		complete: func(request llm.Request) (string, error) {
			if !request.JSONMode {
				return "deep answer", nil
			}
			prompt := request.Messages[1].Content
			switch {
			case strings.Contains(prompt, "High"):
				return `{"is_relevant": true, "relevance_score": 9}`, nil
			case strings.Contains(prompt, "Low"):
				return `{"is_relevant": true, "relevance_score": 3}`, nil
			default:
				return `{"is_relevant": false, "relevance_score": 1}`, nil
			}
		},
	}
	recorder := &countingRecorder{outcomes: map[string]int{}}
	analyzer := newTestAnalyzer(store, client, recorder)

	candidates := []papers.Paper{
		savedPaper(testInstance, store, papers.Paper{ID: "2510.10001", Title: "High A"}),
		savedPaper(testInstance, store, papers.Paper{ID: "2510.10002", Title: "High B"}),
		savedPaper(testInstance, store, papers.Paper{ID: "2510.10003", Title: "Low C"}),
		savedPaper(testInstance, store, papers.Paper{ID: "2510.10004", Title: "Other D"}),
		savedPaper(testInstance, store, papers.Paper{ID: "2510.10005", Title: "Medical E"}),
	}

	processed, processError := analyzer.ProcessPapers(context.Background(), candidates, testSettings(), false)
	require.NoError(testInstance, processError)
	require.Len(testInstance, processed, 5)
	require.LessOrEqual(testInstance, client.maxInFlight, 2)

	require.Equal(testInstance, "deep answer", processed[0].DetailedSummary)
	require.Equal(testInstance, "deep answer", processed[1].DetailedSummary)
	require.True(testInstance, processed[2].Relevant())
	require.Empty(testInstance, processed[2].DetailedSummary)
	require.False(testInstance, processed[3].Relevant())
	require.Equal(testInstance, []string{"❌ Medical"}, processed[4].ExtractedKeywords)

	require.Equal(testInstance, 3, recorder.outcomes["stage1/relevant"])
	require.Equal(testInstance, 1, recorder.outcomes["stage1/not_relevant"])
	require.Equal(testInstance, 1, recorder.outcomes["stage1/negative_keyword"])
	require.Equal(testInstance, 2, recorder.outcomes["stage2/completed"])
	require.Len(testInstance, client.recordedRequests(), 4+2*3)
}

func TestProcessPapersSkipFilter(testInstance *testing.T) {
	defer goleak.VerifyNone(testInstance)

	store := newTestStore(testInstance)
	client := &fakeClient{complete: func(request llm.Request) (string, error) {
		if request.JSONMode {
			return "", errors.New("unexpected relevance filter call")
		}
		return "deep", nil
	}}
	analyzer := newTestAnalyzer(store, client, nil)
	candidates := []papers.Paper{
		savedPaper(testInstance, store, papers.Paper{ID: "2510.20001", IsRelevant: papers.BoolPointer(true), RelevanceScore: 7}),
		savedPaper(testInstance, store, papers.Paper{ID: "2510.20002", IsRelevant: papers.BoolPointer(true), RelevanceScore: 2}),
	}

	processed, processError := analyzer.ProcessPapers(context.Background(), candidates, testSettings(), true)
	require.NoError(testInstance, processError)
	require.Equal(testInstance, "deep", processed[0].DetailedSummary)
	require.Equal(testInstance, "deep", processed[1].DetailedSummary)
}

func TestAnalyzePendingSelectsPapersWithoutSummary(testInstance *testing.T) {
	store := newTestStore(testInstance)
	client := &fakeClient{complete: func(llm.Request) (string, error) { return "deep", nil }}
	analyzer := newTestAnalyzer(store, client, nil)
	savedPaper(testInstance, store, papers.Paper{ID: "2510.30001", IsRelevant: papers.BoolPointer(true), RelevanceScore: 7})
	savedPaper(testInstance, store, papers.Paper{ID: "2510.30002", IsRelevant: papers.BoolPointer(true), RelevanceScore: 7, DetailedSummary: "done"})
	savedPaper(testInstance, store, papers.Paper{ID: "2510.30003", IsRelevant: papers.BoolPointer(true), RelevanceScore: 4})

	processed, pendingError := analyzer.AnalyzePending(context.Background(), testSettings())
	require.NoError(testInstance, pendingError)
	require.Len(testInstance, processed, 1)
	require.Equal(testInstance, "2510.30001", processed[0].ID)
	require.Len(testInstance, client.recordedRequests(), 3)
}

func TestRecheckNegativeKeywords(testInstance *testing.T) {
	store := newTestStore(testInstance)
	analyzer := newTestAnalyzer(store, &fakeClient{}, nil)
	savedPaper(testInstance, store, papers.Paper{ID: "2510.40001", Title: "Clinical robots", IsRelevant: papers.BoolPointer(true), RelevanceScore: 8, ExtractedKeywords: []string{"robotics"}})
	savedPaper(testInstance, store, papers.Paper{ID: "2510.40002", Title: "Clinical but low", IsRelevant: papers.BoolPointer(true), RelevanceScore: 4})
	savedPaper(testInstance, store, papers.Paper{ID: "2510.40003", Title: "Robots", IsRelevant: papers.BoolPointer(true), RelevanceScore: 9})

	current := testSettings()
	current.NegativeKeywords = []string{"survey", "clinical"}
	demoted, recheckError := analyzer.RecheckNegativeKeywords(context.Background(), current)
	require.NoError(testInstance, recheckError)
	require.Equal(testInstance, 1, demoted)

	updated, loadError := store.Load("2510.40001")
	require.NoError(testInstance, loadError)
	require.False(testInstance, updated.Relevant())
	require.Equal(testInstance, 1.0, updated.RelevanceScore)
	require.Equal(testInstance, []string{"❌ clinical", "robotics"}, updated.ExtractedKeywords)

	untouched, untouchedError := store.Load("2510.40002")
	require.NoError(testInstance, untouchedError)
	require.True(testInstance, untouched.Relevant())
}
