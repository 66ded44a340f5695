package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/paperdigest/internal/llm"
	"github.com/temirov/paperdigest/internal/papers"
	"github.com/temirov/paperdigest/internal/retry"
	"github.com/temirov/paperdigest/internal/settings"
)

// Stream event types.
const (
	EventThinking = "thinking"
	EventContent  = "content"
	EventError    = "error"
)

const (
	questionRequiredMessageConstant   = "question must be provided"
	retryNoticeTemplateConstant       = "⚠️ Connection error, retrying in %ds...\n"
	failureNoticeTemplateConstant     = "❌ Failed after %d attempts: %v"
	questionFailedTemplateConstant    = "question about %s failed: %w"
	emptyAnswerMessageConstant        = "model returned an empty answer"
	questionRetryLogMessageConstant   = "Question failed, retrying"
	referenceFailedLogMessageConstant = "Failed to load referenced paper"
	referenceLoadedLogMessageConstant = "Referenced paper loaded"
	questionSavedLogMessageConstant   = "Question answered"
	logFieldReferenceConstant         = "reference"
	logFieldReasoningConstant         = "is_reasoning"
	logFieldReferencesConstant        = "references"
)

// ErrQuestionRequired indicates that a blank question was asked.
var ErrQuestionRequired = errors.New(questionRequiredMessageConstant)

// ErrEmptyAnswer indicates that the model produced neither an answer nor reasoning.
var ErrEmptyAnswer = errors.New(emptyAnswerMessageConstant)

// StreamEvent is one chunk of a streamed answer.
type StreamEvent struct {
	Type  string `json:"type"`
	Chunk string `json:"chunk"`
}

// EventEmitter delivers stream events to the caller. Returning an error aborts the current attempt.
type EventEmitter func(event StreamEvent) error

// QuestionRequest is a custom question about a paper.
// A question starting with "think:" uses the reasoning model. ParentQAID makes it a follow-up.
type QuestionRequest struct {
	Question   string
	ParentQAID *int
}

// Answer is the outcome of a custom question.
type Answer struct {
	Question    string
	Answer      string
	Thinking    string
	IsReasoning bool
	Paper       papers.Paper
}

type preparedQuestion struct {
	originalQuestion string
	model            string
	isReasoning      bool
	messages         []llm.Message
	referenceCount   int
}

// Ask answers a custom question without streaming and records the pair on the paper.
func (analyzer *Analyzer) Ask(executionContext context.Context, paper papers.Paper, request QuestionRequest, currentSettings settings.Settings) (Answer, error) {
	prepared, prepareError := analyzer.prepareQuestion(executionContext, paper, request, currentSettings)
	if prepareError != nil {
		return Answer{}, prepareError
	}

	completionRequest := analyzer.questionRequest(prepared, currentSettings)
	var answer string
	callError := retry.Do(executionContext, analyzer.policy(questionRetryLogMessageConstant, paper.ID), func(attemptContext context.Context, _ int) error {
		completed, completeError := analyzer.client.Complete(attemptContext, completionRequest)
		if completeError != nil {
			return completeError
		}
		answer = completed
		return nil
	})
	if callError != nil {
		analyzer.record(StageQuestion, OutcomeFailed)
		return Answer{}, fmt.Errorf(questionFailedTemplateConstant, paper.ID, callError)
	}

	return analyzer.recordAnswer(paper, request, prepared, answer, "")
}

// AskStream answers a custom question and emits thinking and content chunks as they arrive.
// Failed attempts are retried up to three times with an error event announcing each wait.
// The pair is recorded only when an attempt succeeds with a non-empty answer or reasoning.
func (analyzer *Analyzer) AskStream(executionContext context.Context, paper papers.Paper, request QuestionRequest, currentSettings settings.Settings, emit EventEmitter) (Answer, error) {
	prepared, prepareError := analyzer.prepareQuestion(executionContext, paper, request, currentSettings)
	if prepareError != nil {
		return Answer{}, prepareError
	}

	completionRequest := analyzer.questionRequest(prepared, currentSettings)
	var answerBuilder strings.Builder
	var thinkingBuilder strings.Builder

	policy := analyzer.retryPolicy
	policy.OnRetry = func(attempt int, wait time.Duration, failure error) {
		analyzer.logger.Warn(questionRetryLogMessageConstant,
			zap.String(logFieldIdentifierConstant, paper.ID),
			zap.Int(logFieldAttemptConstant, attempt+attemptDisplayOffsetConstant),
			zap.Duration(logFieldWaitConstant, wait),
			zap.Error(failure),
		)
		_ = emit(StreamEvent{Type: EventError, Chunk: fmt.Sprintf(retryNoticeTemplateConstant, int(wait/time.Second))})
	}

	var lastFailure error
	callError := retry.Do(executionContext, policy, func(attemptContext context.Context, _ int) error {
		answerBuilder.Reset()
		thinkingBuilder.Reset()
		streamError := analyzer.client.Stream(attemptContext, completionRequest, func(kind llm.ChunkKind, chunk string) error {
			switch kind {
			case llm.ChunkThinking:
				if !prepared.isReasoning {
					return nil
				}
				thinkingBuilder.WriteString(chunk)
				return emit(StreamEvent{Type: EventThinking, Chunk: chunk})
			default:
				answerBuilder.WriteString(chunk)
				return emit(StreamEvent{Type: EventContent, Chunk: chunk})
			}
		})
		lastFailure = streamError
		return streamError
	})
	if callError != nil {
		analyzer.record(StageQuestion, OutcomeFailed)
		if lastFailure != nil && executionContext.Err() == nil {
			_ = emit(StreamEvent{Type: EventError, Chunk: fmt.Sprintf(failureNoticeTemplateConstant, analyzer.retryAttempts(), lastFailure)})
		}
		return Answer{}, fmt.Errorf(questionFailedTemplateConstant, paper.ID, callError)
	}

	return analyzer.recordAnswer(paper, request, prepared, answerBuilder.String(), thinkingBuilder.String())
}

func (analyzer *Analyzer) recordAnswer(paper papers.Paper, request QuestionRequest, prepared preparedQuestion, answer string, thinking string) (Answer, error) {
	if len(answer) == 0 && len(thinking) == 0 {
		analyzer.record(StageQuestion, OutcomeFailed)
		return Answer{}, fmt.Errorf(questionFailedTemplateConstant, paper.ID, ErrEmptyAnswer)
	}

	pair := papers.NewQAPair(prepared.originalQuestion, answer, analyzer.store.Now())
	pair.IsReasoning = prepared.isReasoning
	if prepared.isReasoning && len(thinking) > 0 {
		recordedThinking := thinking
		pair.Thinking = &recordedThinking
	}
	if request.ParentQAID != nil {
		parentIdentifier := *request.ParentQAID
		pair.ParentQAID = &parentIdentifier
	}

	saved, persistError := analyzer.persist(paper, func(target *papers.Paper) {
		target.QAPairs = append(target.QAPairs, pair)
	})
	if persistError != nil {
		analyzer.record(StageQuestion, OutcomeFailed)
		return Answer{}, persistError
	}

	analyzer.logger.Info(questionSavedLogMessageConstant,
		zap.String(logFieldIdentifierConstant, paper.ID),
		zap.Bool(logFieldReasoningConstant, prepared.isReasoning),
		zap.Int(logFieldReferencesConstant, prepared.referenceCount),
	)
	analyzer.record(StageQuestion, OutcomeCompleted)
	return Answer{
		Question:    prepared.originalQuestion,
		Answer:      answer,
		Thinking:    thinking,
		IsReasoning: prepared.isReasoning,
		Paper:       saved,
	}, nil
}

// prepareQuestion resolves references and builds the message list.
// Follow-up history replays earlier questions and answers without their reasoning.
func (analyzer *Analyzer) prepareQuestion(executionContext context.Context, paper papers.Paper, request QuestionRequest, currentSettings settings.Settings) (preparedQuestion, error) {
	originalQuestion := strings.TrimSpace(request.Question)
	if len(originalQuestion) == 0 {
		return preparedQuestion{}, ErrQuestionRequired
	}
	question, isReasoning := ParseReasoningPrefix(originalQuestion)

	references := analyzer.resolveReferences(executionContext, question, currentSettings)
	prefix := PaperPrefix(paper)
	finalQuestion := question
	if len(references) > 0 {
		prefix = referenceContext(paper, references)
		finalQuestion = replaceReferences(question, references)
	}

	messages := []llm.Message{llm.SystemMessage(currentSettings.SystemPrompt)}
	for _, previousPair := range conversationHistory(paper.QAPairs, request.ParentQAID) {
		messages = append(messages,
			llm.UserMessage(fmt.Sprintf(historyQuestionTemplateConstant, previousPair.Question)),
			llm.AssistantMessage(previousPair.Answer),
		)
	}
	messages = append(messages, llm.UserMessage(QuestionMessage(prefix, finalQuestion)))

	model := currentSettings.Model
	if isReasoning {
		model = analyzer.reasoningModel
	}
	return preparedQuestion{
		originalQuestion: originalQuestion,
		model:            model,
		isReasoning:      isReasoning,
		messages:         messages,
		referenceCount:   len(references),
	}, nil
}

// resolveReferences fetches every bracketed identifier, filtering and analyzing it when needed.
// References that cannot be loaded are logged and left out.
func (analyzer *Analyzer) resolveReferences(executionContext context.Context, question string, currentSettings settings.Settings) []resolvedReference {
	identifiers := ExtractReferences(question)
	if len(identifiers) == 0 || analyzer.references == nil {
		return nil
	}

	resolved := make([]resolvedReference, 0, len(identifiers))
	for _, identifier := range identifiers {
		referencedPaper, fetchError := analyzer.references.FetchSingle(executionContext, identifier)
		if fetchError != nil {
			analyzer.logger.Warn(referenceFailedLogMessageConstant, zap.String(logFieldReferenceConstant, identifier), zap.Error(fetchError))
			continue
		}
		if !referencedPaper.Analyzed() {
			referencedPaper, _ = analyzer.Stage1(executionContext, referencedPaper, currentSettings)
		}
		if referencedPaper.Relevant() && !referencedPaper.HasDetailedSummary() {
			referencedPaper, _ = analyzer.Stage2(executionContext, referencedPaper, currentSettings)
		}
		analyzer.logger.Info(referenceLoadedLogMessageConstant, zap.String(logFieldReferenceConstant, identifier), zap.String(logFieldIdentifierConstant, referencedPaper.ID))
		resolved = append(resolved, resolvedReference{token: identifier, paper: referencedPaper})
	}
	return resolved
}

func (analyzer *Analyzer) questionRequest(prepared preparedQuestion, currentSettings settings.Settings) llm.Request {
	return llm.Request{
		Model:       prepared.model,
		Messages:    prepared.messages,
		Temperature: currentSettings.Temperature,
		MaxTokens:   currentSettings.MaxTokens,
	}
}

func (analyzer *Analyzer) retryAttempts() int {
	if analyzer.retryPolicy.MaxAttempts <= 0 {
		return retry.DefaultPolicy().MaxAttempts
	}
	return analyzer.retryPolicy.MaxAttempts
}
