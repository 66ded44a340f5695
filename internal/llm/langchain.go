package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the DeepSeek OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.deepseek.com"
	// DefaultModel answers regular questions.
	DefaultModel = "deepseek-chat"
	// DefaultReasoningModel answers questions prefixed with think:.
	DefaultReasoningModel = "deepseek-reasoner"

	defaultRequestTimeoutConstant = 5 * time.Minute
	apiKeyRequiredMessageConstant = "chat completion API key must be provided"
	clientCreateTemplateConstant  = "failed to create chat completion client: %w"
	completionTemplateConstant    = "chat completion failed: %w"
	streamTemplateConstant        = "chat completion stream failed: %w"

	completionLogMessageConstant = "Chat completion finished"
	logFieldModelConstant        = "model"
	logFieldMessagesConstant     = "messages"
	logFieldJSONModeConstant     = "json_mode"
	logFieldStreamConstant       = "stream"
	logFieldDurationConstant     = "duration"
)

// ErrAPIKeyRequired indicates that no API key was supplied.
var ErrAPIKeyRequired = errors.New(apiKeyRequiredMessageConstant)

// Observer is notified after every chat completion call.
type Observer interface {
	CompletionFinished(model string, streamed bool, duration time.Duration, err error)
}

// LangChainOptions configure a LangChainClient.
type LangChainOptions struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
	Observer       Observer
}

// LangChainClient talks to an OpenAI-compatible chat completion endpoint through langchaingo.
type LangChainClient struct {
	model    llms.Model
	logger   *zap.Logger
	observer Observer
	clock    func() time.Time
}

// NewLangChainClient builds a client for the configured endpoint.
func NewLangChainClient(options LangChainOptions) (*LangChainClient, error) {
	apiKey := strings.TrimSpace(options.APIKey)
	if len(apiKey) == 0 {
		return nil, ErrAPIKeyRequired
	}

	baseURL := strings.TrimSpace(options.BaseURL)
	if len(baseURL) == 0 {
		baseURL = DefaultBaseURL
	}
	defaultModel := strings.TrimSpace(options.Model)
	if len(defaultModel) == 0 {
		defaultModel = DefaultModel
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		requestTimeout := options.RequestTimeout
		if requestTimeout <= 0 {
			requestTimeout = defaultRequestTimeoutConstant
		}
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	model, createError := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
		openai.WithModel(defaultModel),
		openai.WithHTTPClient(httpClient),
	)
	if createError != nil {
		return nil, fmt.Errorf(clientCreateTemplateConstant, createError)
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LangChainClient{model: model, logger: logger, observer: options.Observer, clock: time.Now}, nil
}

// Complete returns the full answer for request.
func (client *LangChainClient) Complete(executionContext context.Context, request Request) (string, error) {
	startedAt := client.clock()
	response, generateError := client.model.GenerateContent(executionContext, convertMessages(request.Messages), callOptions(request)...)
	content, extractError := firstChoice(response, generateError)
	client.finish(request, false, startedAt, extractError)
	if extractError != nil {
		return "", fmt.Errorf(completionTemplateConstant, extractError)
	}
	return content, nil
}

// Stream delivers reasoning and answer chunks to handler as they arrive.
func (client *LangChainClient) Stream(executionContext context.Context, request Request, handler StreamHandler) error {
	options := callOptions(request)
	options = append(options,
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return handler(ChunkContent, string(chunk))
		}),
		llms.WithStreamingReasoningFunc(func(_ context.Context, reasoningChunk []byte, _ []byte) error {
			if len(reasoningChunk) == 0 {
				return nil
			}
			return handler(ChunkThinking, string(reasoningChunk))
		}),
	)

	startedAt := client.clock()
	response, generateError := client.model.GenerateContent(executionContext, convertMessages(request.Messages), options...)
	_, extractError := firstChoice(response, generateError)
	client.finish(request, true, startedAt, extractError)
	if extractError != nil {
		return fmt.Errorf(streamTemplateConstant, extractError)
	}
	return nil
}

func (client *LangChainClient) finish(request Request, streamed bool, startedAt time.Time, err error) {
	duration := client.clock().Sub(startedAt)
	if client.observer != nil {
		client.observer.CompletionFinished(request.Model, streamed, duration, err)
	}
	client.logger.Debug(completionLogMessageConstant,
		zap.String(logFieldModelConstant, request.Model),
		zap.Int(logFieldMessagesConstant, len(request.Messages)),
		zap.Bool(logFieldJSONModeConstant, request.JSONMode),
		zap.Bool(logFieldStreamConstant, streamed),
		zap.Duration(logFieldDurationConstant, duration),
		zap.Error(err),
	)
}

func callOptions(request Request) []llms.CallOption {
	options := []llms.CallOption{llms.WithTemperature(request.Temperature)}
	if model := strings.TrimSpace(request.Model); len(model) > 0 {
		options = append(options, llms.WithModel(model))
	}
	if request.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(request.MaxTokens))
	}
	if request.JSONMode {
		options = append(options, llms.WithJSONMode())
	}
	return options
}

func convertMessages(messages []Message) []llms.MessageContent {
	converted := make([]llms.MessageContent, 0, len(messages))
	for _, message := range messages {
		converted = append(converted, llms.TextParts(chatMessageType(message.Role), message.Content))
	}
	return converted
}

func chatMessageType(role Role) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func firstChoice(response *llms.ContentResponse, generateError error) (string, error) {
	if generateError != nil {
		return "", generateError
	}
	if response == nil || len(response.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return response.Choices[0].Content, nil
}
