package llm

import (
	"context"
	"errors"
)

// Role identifies the author of a chat message.
type Role string

// Chat roles understood by OpenAI-compatible endpoints.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChunkKind distinguishes reasoning output from answer output while streaming.
type ChunkKind string

// Stream chunk kinds.
const (
	ChunkThinking ChunkKind = "thinking"
	ChunkContent  ChunkKind = "content"
)

const emptyResponseMessageConstant = "chat completion returned no choices"

// ErrEmptyResponse indicates that the endpoint answered without any choice.
var ErrEmptyResponse = errors.New(emptyResponseMessageConstant)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Request describes a chat completion call. A blank Model selects the client default.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// StreamHandler receives chunks in arrival order. Returning an error aborts the stream.
type StreamHandler func(kind ChunkKind, chunk string) error

// Client performs chat completions.
type Client interface {
	Complete(executionContext context.Context, request Request) (string, error)
	Stream(executionContext context.Context, request Request, handler StreamHandler) error
}

// SystemMessage builds a system turn.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
