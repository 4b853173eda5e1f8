package elicit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"advisor/pkg/llm"
	"advisor/pkg/logx"
	"advisor/pkg/tokens"
)

const welcomeMessage = "Welcome! To begin our M&A strategy discussion, do you have a specific company in mind for acquisition, or are you targeting a particular market or sector?"

const clarificationMessage = "I'm having trouble processing that. Could you please provide key information clearly? For example, what industry are you targeting and what are your main goals?"

const systemPrompt = `You are an M&A strategy consultant bot. Your role is to guide the conversation to collect key M&A strategy information.

Format all responses as the following JSON structure:
{
    "answer_complete": true/false (if you have enough info for this stage),
    "current_stage": "STAGE_NAME",
    "is_strategy_complete": true/false (set to true ONLY when all necessary information has been collected),
    "collected_info": {
        "industry": "user's industry or null",
        "specific_company": "target company or null",
        "goals": "M&A goals or null",
        "budget": "budget info or null",
        "timeline": "timeline info or null",
        "financial_health": "financial health info of target or null",
        "market_position": "market position info of target or null",
        "risks_concern": "risk concerns or null",
        "risks_details": "risk details or null",
        "is_complete": false
    },
    "next_message": "your next message to user"
}

IMPORTANT: If you're missing crucial information, ask follow-up questions to obtain it.
Always provide a meaningful response even with incomplete data.

Set is_strategy_complete to true when:
1. You have collected sufficient information about the target industry/company
2. You have clear goals for the M&A
3. You have budget information
4. You understand the timeline
5. You have assessed risks and concerns

When is_strategy_complete is true:
1. Set collected_info.is_complete to true
2. Make next_message indicate completion and readiness for analysis
3. Set current_stage to COMPLETION`

// industryFallbacks is the full vocabulary of the keyword fallback: when the
// model breaks the output contract past the retry budget at the industry
// stage, a case-insensitive match against these keywords is the only way a
// field gets set without a parsed reply.
var industryFallbacks = []struct {
	Keyword  string
	Industry string
}{
	{"technology", "Technology"},
	{"healthcare", "Healthcare"},
	{"finance", "Finance"},
	{"education", "Education"},
	{"retail", "Retail"},
	{"manufacturing", "Manufacturing"},
}

// Bot drives the elicitation dialogue. Not safe for concurrent use; the
// dialogue has a single foreground caller.
type Bot struct {
	sessionID       string
	client          llm.Client
	logger          *logx.Logger
	counter         *tokens.Counter
	stage           Stage
	record          StrategyRecord
	history         []Turn
	maxRetries      int
	maxPromptTokens int
}

// NewBot creates a dialogue bot. A nil token counter disables the prompt
// budget; maxRetries/maxPromptTokens fall back to defaults when non-positive.
func NewBot(client llm.Client, counter *tokens.Counter, maxRetries, maxPromptTokens int) *Bot {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if maxPromptTokens <= 0 {
		maxPromptTokens = 6000
	}
	return &Bot{
		sessionID:       uuid.NewString(),
		client:          client,
		logger:          logx.NewLogger("elicit"),
		counter:         counter,
		stage:           StageIndustry,
		maxRetries:      maxRetries,
		maxPromptTokens: maxPromptTokens,
	}
}

// SessionID identifies this dialogue session in logs and journals.
func (b *Bot) SessionID() string {
	return b.sessionID
}

// Stage returns the current dialogue stage.
func (b *Bot) Stage() Stage {
	return b.stage
}

// Record returns a copy of the accumulated strategy record.
func (b *Bot) Record() StrategyRecord {
	return b.record
}

// History returns the recorded conversation turns.
func (b *Bot) History() []Turn {
	return b.history
}

// Complete reports whether the dialogue has collected the full strategy.
func (b *Bot) Complete() bool {
	return b.record.IsComplete
}

// Advance runs one dialogue turn: sends the user message to the model,
// parses the structured reply, and merges it into the record. Model and
// parse failures are retried up to the budget with unchanged state, then
// degraded to the keyword fallback (industry stage only) or a generic
// clarification. Failures never escape as errors; the dialogue always
// returns a usable prompt.
func (b *Bot) Advance(ctx context.Context, userMessage string) (string, bool) {
	if userMessage == "" {
		return welcomeMessage, false
	}

	b.appendTurn("user", userMessage)

	for attempt := 0; attempt < b.maxRetries; attempt++ {
		reply, err := b.callModel(ctx, userMessage)
		if err != nil {
			b.logger.Warn("Model call failed (attempt %d/%d): %v", attempt+1, b.maxRetries, err)
			continue
		}

		contract, ok := ParseContract(reply).Parsed()
		if !ok {
			b.logger.Warn("Malformed model reply (attempt %d/%d)", attempt+1, b.maxRetries)
			continue
		}

		return b.applyContract(contract), contract.IsStrategyComplete
	}

	return b.fallback(userMessage), false
}

// applyContract merges a well-formed reply into the dialogue state.
func (b *Bot) applyContract(c Contract) string {
	b.record.Merge(c.CollectedInfo)

	if c.AnswerComplete {
		b.stage = b.stage.Next()
	}
	// The completion flag implies a terminal stage; if the model declared
	// completion without marking the answer complete, still move forward.
	if c.IsStrategyComplete && !b.stage.Terminal() {
		b.stage = b.stage.Next()
	}

	b.record.IsComplete = c.IsStrategyComplete

	reply := c.NextMessage
	if reply == "" {
		reply = "Could you provide more details?"
	}
	b.appendTurn("assistant", reply)
	return reply
}

// fallback is the deterministic degradation path after retry exhaustion.
// Only the industry stage may mutate state here, and only via the keyword
// table; every other stage returns a clarification without touching the
// record.
func (b *Bot) fallback(userMessage string) string {
	if b.stage == StageIndustry && b.record.Industry == nil {
		lower := strings.ToLower(userMessage)
		for _, f := range industryFallbacks {
			if strings.Contains(lower, f.Keyword) {
				industry := f.Industry
				b.record.Industry = &industry
				b.stage = b.stage.Next()
				reply := fmt.Sprintf("I understand you're interested in the %s sector. What are your primary goals for this M&A strategy?", f.Keyword)
				b.appendTurn("assistant", reply)
				b.logger.Info("Keyword fallback matched %q; advancing to %s", f.Keyword, b.stage)
				return reply
			}
		}
	}

	b.appendTurn("assistant", clarificationMessage)
	return clarificationMessage
}

// callModel sends the turn to the model with the system prompt, as much
// recent history as the token budget allows, and the current turn context.
func (b *Bot) callModel(ctx context.Context, userMessage string) (string, error) {
	record, err := b.record.Serialize()
	if err != nil {
		return "", err
	}

	turnPrompt := fmt.Sprintf(`Current stage: %s
Current state: %s
User message: %s

Remember to respond only with a JSON object in the specified format, including the is_strategy_complete flag.
If you have trouble parsing the user's message, try to extract relevant information anyway and request clarification in your next_message.`,
		b.stage, record, userMessage)

	messages := []llm.Message{llm.NewSystemMessage(systemPrompt)}
	messages = append(messages, b.budgetedHistory(turnPrompt)...)
	messages = append(messages, llm.NewUserMessage(turnPrompt))

	resp, err := b.client.Complete(ctx, llm.NewCompletionRequest(messages))
	if err != nil {
		return "", fmt.Errorf("elicitation model call failed: %w", err)
	}
	return resp.Content, nil
}

// budgetedHistory returns the most recent prior turns that fit the prompt
// token budget alongside the system prompt and the current turn. The current
// user turn is already in history, so it is excluded.
func (b *Bot) budgetedHistory(turnPrompt string) []llm.Message {
	if len(b.history) <= 1 {
		return nil
	}
	prior := b.history[:len(b.history)-1]

	used := b.counter.Count(systemPrompt) + b.counter.Count(turnPrompt)
	start := len(prior)
	for i := len(prior) - 1; i >= 0; i-- {
		cost := b.counter.Count(prior[i].Text)
		if used+cost > b.maxPromptTokens {
			break
		}
		used += cost
		start = i
	}

	messages := make([]llm.Message, 0, len(prior)-start)
	for _, turn := range prior[start:] {
		if turn.Role == "assistant" {
			messages = append(messages, llm.NewAssistantMessage(turn.Text))
		} else {
			messages = append(messages, llm.NewUserMessage(turn.Text))
		}
	}
	return messages
}

func (b *Bot) appendTurn(role, text string) {
	b.history = append(b.history, Turn{Role: role, Text: text, Timestamp: time.Now().UTC()})
}
