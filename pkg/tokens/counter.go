// Package tokens provides tiktoken-based token counting for prompt budgets.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with a fixed encoding. All supported providers are
// approximated with the GPT-4 encoding, which is close enough for budget
// enforcement.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter using the GPT-4 encoding.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in the text. Falls back to a
// character-based estimate (4 chars per token) if the codec fails.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return len(text) / 4
	}
	count, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// WithinBudget reports whether the text fits the token limit.
func (c *Counter) WithinBudget(text string, limit int) bool {
	return c.Count(text) <= limit
}
