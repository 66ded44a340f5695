package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/paperdigest/internal/llm"
	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/retry"
	"github.com/temirov/paperdigest/internal/settings"
)

// Stage names an analysis step for logging and metrics.
type Stage string

// Analysis stages.
const (
	StageFilter   Stage = "stage1"
	StageDeep     Stage = "stage2"
	StageQuestion Stage = "question"
)

// Outcome names the result of an analysis step.
type Outcome string

// Analysis outcomes.
const (
	OutcomeRelevant        Outcome = "relevant"
	OutcomeNotRelevant     Outcome = "not_relevant"
	OutcomeNegativeKeyword Outcome = "negative_keyword"
	OutcomeCompleted       Outcome = "completed"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeFailed          Outcome = "failed"
)

const (
	stage1MaxTokensConstant       = 500
	negativeKeywordScoreConstant  = 1.0
	stage1FailedTemplateConstant  = "relevance filter failed for %s: %w"
	stage2FailedTemplateConstant  = "deep analysis failed for %s: %w"
	persistFailedTemplateConstant = "failed to save analysis of %s: %w"
	decodeFailedTemplateConstant  = "failed to decode relevance verdict: %w"
	codeFenceConstant             = "```"
	jsonFenceLanguageConstant     = "json"

	stage1RetryLogMessageConstant     = "Relevance filter failed, retrying"
	stage1FailedLogMessageConstant    = "Relevance filter failed"
	stage1NegativeLogMessageConstant  = "Negative keyword matched"
	stage1VerdictLogMessageConstant   = "Relevance verdict recorded"
	stage2RetryLogMessageConstant     = "Deep analysis question failed, retrying"
	stage2FailedLogMessageConstant    = "Deep analysis failed, nothing saved"
	stage2CompletedLogMessageConstant = "Deep analysis completed"
	processStartedLogMessageConstant  = "Filtering papers"
	processSelectedLogMessageConstant = "Selected papers for deep analysis"
	processSkippingStage1LogMessage   = "Skipping relevance filter"
	logFieldIdentifierConstant        = "id"
	logFieldKeywordConstant           = "keyword"
	logFieldRelevantConstant          = "is_relevant"
	logFieldScoreConstant             = "relevance_score"
	logFieldAttemptConstant           = "attempt"
	logFieldWaitConstant              = "wait"
	logFieldPapersConstant            = "papers"
	logFieldSelectedConstant          = "selected"
	logFieldBelowThresholdConstant    = "below_threshold"
	logFieldThresholdConstant         = "threshold"
	logFieldConcurrencyConstant       = "concurrency"
	logFieldQuestionsConstant         = "questions"
	attemptDisplayOffsetConstant      = 1
	relevanceFieldIsRelevantConstant  = "is_relevant"
	relevanceFieldScoreConstant       = "relevance_score"
	relevanceFieldKeywordsConstant    = "extracted_keywords"
	relevanceFieldSummaryConstant     = "one_line_summary"
	defaultReasoningModelConstant     = "deepseek-reasoner"
	defaultProcessConcurrencyConstant = 1
)

// Recorder observes analysis outcomes.
type Recorder interface {
	StageFinished(stage Stage, outcome Outcome)
}

// ReferenceFetcher loads or downloads a paper referenced from a question.
type ReferenceFetcher interface {
	FetchSingle(executionContext context.Context, identifier string) (papers.Paper, error)
}

// Dependencies wire the collaborators of an Analyzer.
type Dependencies struct {
	Client         llm.Client
	Store          *papers.Store
	References     ReferenceFetcher
	Logger         *zap.Logger
	Recorder       Recorder
	ReasoningModel string
	RetryPolicy    *retry.Policy
}

// Analyzer runs the two-stage analysis and answers questions about papers.
type Analyzer struct {
	client         llm.Client
	store          *papers.Store
	references     ReferenceFetcher
	logger         *zap.Logger
	recorder       Recorder
	reasoningModel string
	retryPolicy    retry.Policy
}

// NewAnalyzer constructs an Analyzer. Calls are retried three times with one and two second waits unless RetryPolicy overrides it.
func NewAnalyzer(dependencies Dependencies) *Analyzer {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retryPolicy := retry.DefaultPolicy()
	if dependencies.RetryPolicy != nil {
		retryPolicy = *dependencies.RetryPolicy
	}
	reasoningModel := strings.TrimSpace(dependencies.ReasoningModel)
	if len(reasoningModel) == 0 {
		reasoningModel = defaultReasoningModelConstant
	}
	return &Analyzer{
		client:         dependencies.Client,
		store:          dependencies.Store,
		references:     dependencies.References,
		logger:         logger,
		recorder:       dependencies.Recorder,
		reasoningModel: reasoningModel,
		retryPolicy:    retryPolicy,
	}
}

// Stage1 decides whether paper is relevant to the filter keywords.
// A negative keyword in the title or preview rejects the paper without calling the model.
// The verdict is saved only on success; on failure the returned paper keeps an unset verdict.
func (analyzer *Analyzer) Stage1(executionContext context.Context, paper papers.Paper, currentSettings settings.Settings) (papers.Paper, error) {
	if keyword, matched := MatchNegativeKeyword(paper, currentSettings.NegativeKeywords); matched {
		saved, persistError := analyzer.persist(paper, func(target *papers.Paper) {
			target.IsRelevant = papers.BoolPointer(false)
			target.RelevanceScore = negativeKeywordScoreConstant
			target.ExtractedKeywords = []string{negativeKeywordMarkerConstant + keyword}
			target.OneLineSummary = fmt.Sprintf(negativeKeywordSummaryTemplate, keyword)
		})
		if persistError != nil {
			analyzer.record(StageFilter, OutcomeFailed)
			return paper, persistError
		}
		analyzer.logger.Info(stage1NegativeLogMessageConstant, zap.String(logFieldIdentifierConstant, paper.ID), zap.String(logFieldKeywordConstant, keyword))
		analyzer.record(StageFilter, OutcomeNegativeKeyword)
		return saved, nil
	}

	request := llm.Request{
		Model: currentSettings.Model,
		Messages: []llm.Message{
			llm.SystemMessage(currentSettings.SystemPrompt),
			llm.UserMessage(Stage1Prompt(paper, currentSettings.FilterKeywords)),
		},
		Temperature: currentSettings.Temperature,
		MaxTokens:   stage1MaxTokensConstant,
		JSONMode:    true,
	}

	var verdict relevanceVerdict
	callError := retry.Do(executionContext, analyzer.policy(stage1RetryLogMessageConstant, paper.ID), func(attemptContext context.Context, _ int) error {
		answer, completeError := analyzer.client.Complete(attemptContext, request)
		if completeError != nil {
			return completeError
		}
		parsed, parseError := parseRelevanceVerdict(answer)
		if parseError != nil {
			return parseError
		}
		verdict = parsed
		return nil
	})
	if callError != nil {
		analyzer.logger.Warn(stage1FailedLogMessageConstant, zap.String(logFieldIdentifierConstant, paper.ID), zap.Error(callError))
		analyzer.record(StageFilter, OutcomeFailed)
		paper.IsRelevant = nil
		return paper, fmt.Errorf(stage1FailedTemplateConstant, paper.ID, callError)
	}

	saved, persistError := analyzer.persist(paper, func(target *papers.Paper) {
		target.IsRelevant = papers.BoolPointer(verdict.IsRelevant)
		target.RelevanceScore = verdict.RelevanceScore
		target.ExtractedKeywords = verdict.ExtractedKeywords
		target.OneLineSummary = verdict.OneLineSummary
	})
	if persistError != nil {
		analyzer.record(StageFilter, OutcomeFailed)
		return paper, persistError
	}

	analyzer.logger.Info(stage1VerdictLogMessageConstant,
		zap.String(logFieldIdentifierConstant, paper.ID),
		zap.Bool(logFieldRelevantConstant, verdict.IsRelevant),
		zap.Float64(logFieldScoreConstant, verdict.RelevanceScore),
	)
	if verdict.IsRelevant {
		analyzer.record(StageFilter, OutcomeRelevant)
	} else {
		analyzer.record(StageFilter, OutcomeNotRelevant)
	}
	return saved, nil
}

// Stage2 produces the detailed summary and answers every preset question for a relevant paper.
// All calls share the same system prompt and paper prefix. Nothing is saved unless every call succeeds.
func (analyzer *Analyzer) Stage2(executionContext context.Context, paper papers.Paper, currentSettings settings.Settings) (papers.Paper, error) {
	if !paper.Relevant() {
		analyzer.record(StageDeep, OutcomeSkipped)
		return paper, nil
	}

	prefix := PaperPrefix(paper)
	detailedSummary, summaryError := analyzer.askWithRetry(executionContext, paper.ID, prefix, detailedSummaryQuestionConstant, currentSettings)
	if summaryError != nil {
		return paper, analyzer.failStage2(paper.ID, summaryError)
	}

	answeredPairs := make([]papers.QAPair, 0, len(currentSettings.PresetQuestions))
	for _, question := range currentSettings.PresetQuestions {
		answer, answerError := analyzer.askWithRetry(executionContext, paper.ID, prefix, question, currentSettings)
		if answerError != nil {
			return paper, analyzer.failStage2(paper.ID, answerError)
		}
		answeredPairs = append(answeredPairs, papers.NewQAPair(question, answer, analyzer.store.Now()))
	}

	saved, persistError := analyzer.persist(paper, func(target *papers.Paper) {
		target.DetailedSummary = detailedSummary
		target.QAPairs = append(target.QAPairs, answeredPairs...)
	})
	if persistError != nil {
		analyzer.record(StageDeep, OutcomeFailed)
		return paper, persistError
	}
	analyzer.logger.Info(stage2CompletedLogMessageConstant,
		zap.String(logFieldIdentifierConstant, paper.ID),
		zap.Int(logFieldQuestionsConstant, len(answeredPairs)),
	)
	analyzer.record(StageDeep, OutcomeCompleted)
	return saved, nil
}

// ProcessPapers filters every paper and then runs deep analysis on relevant papers at or above the threshold.
// With skipFilter every paper goes straight to deep analysis. Both stages run at most
// concurrent_papers calls at a time. Per-paper failures are logged and never abort the batch.
func (analyzer *Analyzer) ProcessPapers(executionContext context.Context, candidates []papers.Paper, currentSettings settings.Settings, skipFilter bool) ([]papers.Paper, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	concurrency := currentSettings.ConcurrentPapers
	if concurrency <= 0 {
		concurrency = defaultProcessConcurrencyConstant
	}

	processed := make([]papers.Paper, len(candidates))
	copy(processed, candidates)

	selected := make([]int, 0, len(processed))
	if skipFilter {
		analyzer.logger.Info(processSkippingStage1LogMessage, zap.Int(logFieldPapersConstant, len(processed)))
		for paperIndex := range processed {
			selected = append(selected, paperIndex)
		}
	} else {
		analyzer.logger.Info(processStartedLogMessageConstant, zap.Int(logFieldPapersConstant, len(processed)), zap.Int(logFieldConcurrencyConstant, concurrency))
		if runError := analyzer.runBounded(executionContext, concurrency, len(processed), func(workerContext context.Context, paperIndex int) {
			filtered, _ := analyzer.Stage1(workerContext, processed[paperIndex].Clone(), currentSettings)
			processed[paperIndex] = filtered
		}); runError != nil {
			return processed, runError
		}

		belowThreshold := 0
		for paperIndex, paper := range processed {
			if !paper.Relevant() {
				continue
			}
			if paper.RelevanceScore >= currentSettings.MinRelevanceScoreForStage2 {
				selected = append(selected, paperIndex)
			} else {
				belowThreshold++
			}
		}
		analyzer.logger.Info(processSelectedLogMessageConstant,
			zap.Int(logFieldSelectedConstant, len(selected)),
			zap.Int(logFieldBelowThresholdConstant, belowThreshold),
			zap.Float64(logFieldThresholdConstant, currentSettings.MinRelevanceScoreForStage2),
		)
	}

	runError := analyzer.runBounded(executionContext, concurrency, len(selected), func(workerContext context.Context, selectionIndex int) {
		paperIndex := selected[selectionIndex]
		analyzed, _ := analyzer.Stage2(workerContext, processed[paperIndex].Clone(), currentSettings)
		processed[paperIndex] = analyzed
	})
	return processed, runError
}

func (analyzer *Analyzer) runBounded(executionContext context.Context, concurrency int, count int, work func(workerContext context.Context, index int)) error {
	group, groupContext := errgroup.WithContext(executionContext)
	group.SetLimit(concurrency)
	for index := 0; index < count; index++ {
		if groupContext.Err() != nil {
			break
		}
		workIndex := index
		group.Go(func() error {
			work(groupContext, workIndex)
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return waitError
	}
	return executionContext.Err()
}

func (analyzer *Analyzer) askWithRetry(executionContext context.Context, identifier string, prefix string, question string, currentSettings settings.Settings) (string, error) {
	request := llm.Request{
		Model: currentSettings.Model,
		Messages: []llm.Message{
			llm.SystemMessage(currentSettings.SystemPrompt),
			llm.UserMessage(QuestionMessage(prefix, question)),
		},
		Temperature: currentSettings.Temperature,
		MaxTokens:   currentSettings.MaxTokens,
	}
	var answer string
	callError := retry.Do(executionContext, analyzer.policy(stage2RetryLogMessageConstant, identifier), func(attemptContext context.Context, _ int) error {
		completed, completeError := analyzer.client.Complete(attemptContext, request)
		if completeError != nil {
			return completeError
		}
		answer = completed
		return nil
	})
	return answer, callError
}

func (analyzer *Analyzer) failStage2(identifier string, cause error) error {
	analyzer.logger.Warn(stage2FailedLogMessageConstant, zap.String(logFieldIdentifierConstant, identifier), zap.Error(cause))
	analyzer.record(StageDeep, OutcomeFailed)
	return fmt.Errorf(stage2FailedTemplateConstant, identifier, cause)
}

// persist applies mutate to the stored document so concurrent user actions are kept.
// A paper that was never stored is saved as given.
func (analyzer *Analyzer) persist(paper papers.Paper, mutate func(target *papers.Paper)) (papers.Paper, error) {
	timestamp := papers.FormatTimestamp(analyzer.store.Now())
	updated, updateError := analyzer.store.Update(paper.ID, func(stored *papers.Paper) error {
		mutate(stored)
		stored.UpdatedAt = timestamp
		return nil
	})
	if updateError == nil {
		return updated, nil
	}
	if !errors.Is(updateError, papers.ErrPaperNotFound) {
		return paper, fmt.Errorf(persistFailedTemplateConstant, paper.ID, updateError)
	}

	mutate(&paper)
	paper.UpdatedAt = timestamp
	if saveError := analyzer.store.Save(paper); saveError != nil {
		return paper, fmt.Errorf(persistFailedTemplateConstant, paper.ID, saveError)
	}
	return paper, nil
}

func (analyzer *Analyzer) policy(message string, identifier string) retry.Policy {
	policy := analyzer.retryPolicy
	policy.OnRetry = func(attempt int, wait time.Duration, failure error) {
		analyzer.logger.Warn(message,
			zap.String(logFieldIdentifierConstant, identifier),
			zap.Int(logFieldAttemptConstant, attempt+attemptDisplayOffsetConstant),
			zap.Duration(logFieldWaitConstant, wait),
			zap.Error(failure),
		)
	}
	return policy
}

func (analyzer *Analyzer) record(stage Stage, outcome Outcome) {
	if analyzer.recorder != nil {
		analyzer.recorder.StageFinished(stage, outcome)
	}
}

type relevanceVerdict struct {
	IsRelevant        bool
	RelevanceScore    float64
	ExtractedKeywords []string
	OneLineSummary    string
}

// parseRelevanceVerdict reads the model answer leniently: missing fields take zero values,
// scores may be numbers or numeric strings and a Markdown code fence is tolerated.
func parseRelevanceVerdict(answer string) (relevanceVerdict, error) {
	document := strings.TrimSpace(answer)
	if strings.HasPrefix(document, codeFenceConstant) {
		document = strings.TrimPrefix(document, codeFenceConstant)
		document = strings.TrimPrefix(document, jsonFenceLanguageConstant)
		document = strings.TrimSuffix(strings.TrimSpace(document), codeFenceConstant)
	}

	var fields map[string]any
	if decodeError := json.Unmarshal([]byte(document), &fields); decodeError != nil {
		return relevanceVerdict{}, fmt.Errorf(decodeFailedTemplateConstant, decodeError)
	}

	verdict := relevanceVerdict{ExtractedKeywords: []string{}}
	if relevant, ok := fields[relevanceFieldIsRelevantConstant].(bool); ok {
		verdict.IsRelevant = relevant
	}
	switch score := fields[relevanceFieldScoreConstant].(type) {
	case float64:
		verdict.RelevanceScore = score
	case string:
		parsed, parseError := strconv.ParseFloat(strings.TrimSpace(score), 64)
		if parseError != nil {
			return relevanceVerdict{}, fmt.Errorf(decodeFailedTemplateConstant, parseError)
		}
		verdict.RelevanceScore = parsed
	}
	if keywords, ok := fields[relevanceFieldKeywordsConstant].([]any); ok {
		for _, keyword := range keywords {
			if text, isText := keyword.(string); isText {
				verdict.ExtractedKeywords = append(verdict.ExtractedKeywords, text)
			}
		}
	}
	if summary, ok := fields[relevanceFieldSummaryConstant].(string); ok {
		verdict.OneLineSummary = summary
	}
	return verdict, nil
}
