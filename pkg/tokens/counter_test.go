package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountGrowsWithText(t *testing.T) {
	counter, err := NewCounter()
	require.NoError(t, err)

	assert.Equal(t, 0, counter.Count(""))

	short := counter.Count("What industry are you targeting?")
	long := counter.Count(strings.Repeat("What industry are you targeting? ", 50))
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestNilCounterFallsBackToEstimate(t *testing.T) {
	var counter *Counter

	// Roughly four characters per token.
	assert.Equal(t, 10, counter.Count(strings.Repeat("a", 40)))
	assert.True(t, counter.WithinBudget("short prompt", 100))
	assert.False(t, counter.WithinBudget(strings.Repeat("a", 4000), 100))
}
