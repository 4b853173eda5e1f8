package elicit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/artifact"
	"advisor/pkg/llm"
)

func contractReply(t *testing.T, c map[string]any) llm.CompletionResponse {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	return llm.CompletionResponse{Content: string(data)}
}

func TestAdvanceFirstCallReturnsWelcome(t *testing.T) {
	bot := NewBot(llm.NewMockClient(nil, nil), nil, 3, 0)

	reply, complete := bot.Advance(context.Background(), "")
	assert.Equal(t, welcomeMessage, reply)
	assert.False(t, complete)
	assert.Equal(t, StageIndustry, bot.Stage())
	assert.Empty(t, bot.History(), "welcome turn does not consume the dialogue")
}

func TestAdvanceMergesParsedReply(t *testing.T) {
	mock := llm.NewMockClient([]llm.CompletionResponse{
		contractReply(t, map[string]any{
			"answer_complete":      true,
			"current_stage":        "INDUSTRY",
			"is_strategy_complete": false,
			"collected_info":       map[string]any{"industry": "Healthcare"},
			"next_message":         "What are your goals?",
		}),
	}, nil)
	bot := NewBot(mock, nil, 3, 0)

	reply, complete := bot.Advance(context.Background(), "We acquire healthcare companies")
	assert.Equal(t, "What are your goals?", reply)
	assert.False(t, complete)
	assert.Equal(t, StageGoals, bot.Stage())
	require.NotNil(t, bot.Record().Industry)
	assert.Equal(t, "Healthcare", *bot.Record().Industry)

	history := bot.History()
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestAdvanceKeywordFallbackAfterRetryExhaustion(t *testing.T) {
	// Three malformed replies in a row at the industry stage.
	mock := llm.NewMockClient([]llm.CompletionResponse{
		{Content: "I will not follow the format."},
		{Content: "Still free text, sorry."},
		{Content: "Nope."},
	}, nil)
	bot := NewBot(mock, nil, 3, 0)

	reply, complete := bot.Advance(context.Background(), "We're focused on the technology sector")

	assert.False(t, complete)
	assert.Equal(t, 3, mock.Calls(), "full retry budget consumed before fallback")
	require.NotNil(t, bot.Record().Industry)
	assert.Equal(t, "Technology", *bot.Record().Industry)
	assert.Equal(t, StageGoals, bot.Stage())
	assert.Contains(t, reply, "technology sector")
}

func TestAdvanceClarifiesWithoutMutatingState(t *testing.T) {
	mock := llm.NewMockClient([]llm.CompletionResponse{
		{Content: "garbage"}, {Content: "garbage"}, {Content: "garbage"},
	}, nil)
	bot := NewBot(mock, nil, 3, 0)

	// No industry keyword in the user text, so the fallback must not touch
	// stage or record.
	reply, complete := bot.Advance(context.Background(), "We want to buy something big")

	assert.Equal(t, clarificationMessage, reply)
	assert.False(t, complete)
	assert.Equal(t, StageIndustry, bot.Stage())
	assert.Nil(t, bot.Record().Industry)
}

func TestAdvanceTransportErrorsUseSameRetryPath(t *testing.T) {
	mock := llm.NewMockClient(nil, []error{
		llm.NewError(llm.ErrorTypeTransient, "connection reset"),
		llm.NewError(llm.ErrorTypeTransient, "connection reset"),
		llm.NewError(llm.ErrorTypeTransient, "connection reset"),
	})
	bot := NewBot(mock, nil, 3, 0)

	reply, complete := bot.Advance(context.Background(), "We're in the retail business")

	assert.False(t, complete)
	require.NotNil(t, bot.Record().Industry)
	assert.Equal(t, "Retail", *bot.Record().Industry)
	assert.Equal(t, StageGoals, bot.Stage())
	assert.Contains(t, reply, "retail")
}

func TestAdvanceCompletionAtRisks(t *testing.T) {
	replies := []llm.CompletionResponse{
		contractReply(t, map[string]any{
			"answer_complete": true, "current_stage": "INDUSTRY",
			"collected_info": map[string]any{"industry": "Finance"},
			"next_message":   "Goals?",
		}),
		contractReply(t, map[string]any{
			"answer_complete": true, "current_stage": "GOALS",
			"collected_info": map[string]any{"goals": "Consolidation"},
			"next_message":   "Budget?",
		}),
		contractReply(t, map[string]any{
			"answer_complete": true, "current_stage": "BUDGET",
			"collected_info": map[string]any{"budget": "$50M"},
			"next_message":   "Timeline?",
		}),
		contractReply(t, map[string]any{
			"answer_complete": true, "current_stage": "TIMELINE",
			"collected_info": map[string]any{"timeline": "12 months"},
			"next_message":   "Financial health?",
		}),
		contractReply(t, map[string]any{
			"answer_complete": true, "current_stage": "FINANCIAL_HEALTH",
			"collected_info": map[string]any{"financial_health": "Profitable"},
			"next_message":   "Market position?",
		}),
		contractReply(t, map[string]any{
			"answer_complete": true, "current_stage": "MARKET_POSITION",
			"collected_info": map[string]any{"market_position": "Top 5"},
			"next_message":   "Risk concerns?",
		}),
		contractReply(t, map[string]any{
			"answer_complete": true, "current_stage": "RISKS",
			"is_strategy_complete": true,
			"collected_info": map[string]any{
				"risks_concern": "Regulatory", "risks_details": "Antitrust review",
				"is_complete": true,
			},
			"next_message": "Strategy collected. Ready for analysis.",
		}),
	}
	bot := NewBot(llm.NewMockClient(replies, nil), nil, 3, 0)

	inputs := []string{
		"finance", "consolidation", "50M", "a year",
		"profitable", "top five", "regulatory risk",
	}
	var reply string
	var complete bool
	for _, input := range inputs {
		reply, complete = bot.Advance(context.Background(), input)
	}

	assert.True(t, complete)
	assert.Equal(t, StageCompletion, bot.Stage())
	assert.True(t, bot.Complete())
	assert.Equal(t, "Strategy collected. Ready for analysis.", reply)
}

func TestStageNeverMovesBackward(t *testing.T) {
	// Interleave parsed progress, malformed replies, and transport errors;
	// the observed stage sequence must be non-decreasing throughout.
	mock := llm.NewMockClient([]llm.CompletionResponse{
		contractReply(t, map[string]any{
			"answer_complete": true,
			"collected_info":  map[string]any{"industry": "Manufacturing"},
			"next_message":    "Goals?",
		}),
		{Content: "malformed"}, {Content: "malformed"}, {Content: "malformed"},
		contractReply(t, map[string]any{
			"answer_complete": true,
			"current_stage":   "GOALS",
			"collected_info":  map[string]any{"goals": "Vertical integration"},
			"next_message":    "Budget?",
		}),
	}, nil)
	bot := NewBot(mock, nil, 3, 0)

	prev := bot.Stage()
	for _, input := range []string{"manufacturing", "unparseable turn", "vertical integration"} {
		bot.Advance(context.Background(), input)
		assert.GreaterOrEqual(t, int(bot.Stage()), int(prev), "stage regressed after input %q", input)
		prev = bot.Stage()
	}
	assert.Equal(t, StageBudget, bot.Stage())
}

func TestSaveSnapshotWritesArtifact(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, artifact.EnsureLayout(root))

	tech := "Technology"
	record := StrategyRecord{Industry: &tech, IsComplete: true}

	path, err := record.SaveSnapshot(root)
	require.NoError(t, err)
	assert.Equal(t, artifact.Path(root, artifact.StrategyInfoFile), path)

	data, err := os.ReadFile(filepath.Join(root, artifact.StrategyInfoFile))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Technology", decoded["industry"])
	assert.Equal(t, true, decoded["is_complete"])
	assert.Nil(t, decoded["goals"])
}
