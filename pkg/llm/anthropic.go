package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeClient wraps the Anthropic API client to implement the Client interface.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a new Claude client for the given model.
func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// splitSystem extracts system messages into a single system prompt and merges
// consecutive same-role messages so the remainder alternates user/assistant,
// which the Anthropic API requires.
func splitSystem(messages []Message) (systemPrompt string, alternating []Message, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var rest []Message
	for i := range messages {
		msg := &messages[i]
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		if n := len(rest); n > 0 && rest[n-1].Role == msg.Role {
			rest[n-1].Content += "\n\n" + msg.Content
			continue
		}
		rest = append(rest, *msg)
	}

	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	if rest[0].Role != RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", rest[0].Role)
	}
	if rest[len(rest)-1].Role != RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", rest[len(rest)-1].Role)
	}

	return strings.Join(systemParts, "\n\n"), rest, nil
}

// Complete implements the Client interface.
func (c *ClaudeClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	systemPrompt, alternating, err := splitSystem(in.Messages)
	if err != nil {
		return CompletionResponse{}, NewError(ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}
	params.Messages = messages

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, NewError(Classify(err), fmt.Sprintf("Claude API call failed: %v", err))
	}

	if resp == nil || len(resp.Content) == 0 {
		return CompletionResponse{}, NewError(ErrorTypeEmptyResponse, "received empty response from Claude API")
	}

	var text string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	return CompletionResponse{
		Content:    text,
		StopReason: string(resp.StopReason),
	}, nil
}

// Stream implements the Client interface.
func (c *ClaudeClient) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	return streamFromComplete(ctx, c, in)
}

// GetModelName returns the configured model name.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}
