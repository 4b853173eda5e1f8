package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient wraps the official OpenAI Go client to implement the Client
// interface via the Responses API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI client for the given model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements the Client interface.
func (o *OpenAIClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	// The Responses API takes a single input string; fold the conversation
	// into role-prefixed text the way the request builder laid it out.
	var inputText string
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case RoleSystem:
			inputText += fmt.Sprintf("System: %s\n\n", msg.Content)
		case RoleUser:
			inputText += msg.Content + "\n\n"
		case RoleAssistant:
			inputText += fmt.Sprintf("Assistant: %s\n\n", msg.Content)
		}
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText)},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, NewError(Classify(err), fmt.Sprintf("OpenAI Responses API failed: %v", err))
	}

	if resp == nil || resp.OutputText() == "" {
		return CompletionResponse{}, NewError(ErrorTypeEmptyResponse, "received empty response from OpenAI Responses API")
	}

	return CompletionResponse{
		Content:    resp.OutputText(),
		StopReason: "end_turn",
	}, nil
}

// Stream implements the Client interface.
func (o *OpenAIClient) Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error) {
	return streamFromComplete(ctx, o, in)
}

// GetModelName returns the configured model name.
func (o *OpenAIClient) GetModelName() string {
	return o.model
}
