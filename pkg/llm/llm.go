// Package llm defines the language-model client interface used by the
// elicitation dialogue and the pipeline stages, plus provider implementations.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem carries instructions or context for the model.
	RoleSystem Role = "system"
	// RoleUser carries input from the human user or the coordinator.
	RoleUser Role = "user"
	// RoleAssistant carries a prior model reply.
	RoleAssistant Role = "assistant"
)

// Message is one entry in a completion request.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest asks a model for a completion.
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// CompletionResponse carries the model's free-form reply.
type CompletionResponse struct {
	Content    string
	StopReason string
}

// StreamChunk is one unit of streamed completion output. The pipeline runner
// scans every chunk for the terminal sentinel.
type StreamChunk struct {
	Error   error
	Content string
	Done    bool
}

// Client is the opaque model call: free text in, free text out. Structured
// output is a contract the caller parses, never a guarantee.
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// Stream generates a completion as a stream of chunks.
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)
}

// NewCompletionRequest creates a request with default generation parameters.
func NewCompletionRequest(messages []Message) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   2048,
		Temperature: 0.2,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// streamFromComplete adapts a synchronous completion into the chunk stream
// shape. Providers that do not expose native streaming use this: one content
// chunk followed by a done marker.
func streamFromComplete(ctx context.Context, c Client, in CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- StreamChunk{Error: err}
			return
		}
		ch <- StreamChunk{Content: resp.Content}
		ch <- StreamChunk{Done: true}
	}()
	return ch, nil
}
