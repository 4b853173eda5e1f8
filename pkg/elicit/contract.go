package elicit

import (
	"encoding/json"
	"strings"
)

// Contract is the structured reply the model is instructed to produce each
// turn.
type Contract struct {
	AnswerComplete     bool
	CurrentStage       string
	IsStrategyComplete bool
	CollectedInfo      StrategyRecord
	NextMessage        string
}

// ParseResult is the tagged outcome of parsing a model reply: either a
// well-formed Contract or the raw text that failed to parse.
type ParseResult struct {
	contract *Contract
	raw      string
}

// Parsed reports the contract when parsing succeeded.
func (r ParseResult) Parsed() (Contract, bool) {
	if r.contract == nil {
		return Contract{}, false
	}
	return *r.contract, true
}

// Raw returns the original model text, kept for the fallback path.
func (r ParseResult) Raw() string {
	return r.raw
}

// ParseContract extracts the first balanced {...} span from free-form model
// text and decodes it leniently: unknown keys are ignored, missing keys
// default to null/false, and scalar fields tolerate minor type drift. It
// never panics past its boundary; any failure yields a Malformed result.
func ParseContract(raw string) ParseResult {
	span, ok := balancedObject(raw)
	if !ok {
		return ParseResult{raw: raw}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &payload); err != nil {
		return ParseResult{raw: raw}
	}

	contract := Contract{
		AnswerComplete:     coerceBool(payload["answer_complete"]),
		CurrentStage:       coerceString(payload["current_stage"]),
		IsStrategyComplete: coerceBool(payload["is_strategy_complete"]),
		NextMessage:        coerceString(payload["next_message"]),
	}

	if rawInfo, ok := payload["collected_info"]; ok {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rawInfo, &fields); err == nil {
			contract.CollectedInfo = coerceRecord(fields)
		}
	}

	return ParseResult{contract: &contract, raw: raw}
}

// balancedObject returns the first balanced top-level {...} span, honoring
// string literals and escapes so braces inside values do not confuse the
// scan.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func coerceRecord(fields map[string]json.RawMessage) StrategyRecord {
	return StrategyRecord{
		Industry:        coerceNullableString(fields["industry"]),
		SpecificCompany: coerceNullableString(fields["specific_company"]),
		Goals:           coerceNullableString(fields["goals"]),
		Budget:          coerceNullableString(fields["budget"]),
		Timeline:        coerceNullableString(fields["timeline"]),
		FinancialHealth: coerceNullableString(fields["financial_health"]),
		MarketPosition:  coerceNullableString(fields["market_position"]),
		RisksConcern:    coerceNullableString(fields["risks_concern"]),
		RisksDetails:    coerceNullableString(fields["risks_details"]),
		IsComplete:      coerceBool(fields["is_complete"]),
	}
}

// coerceBool accepts a JSON bool or the strings "true"/"false"; anything
// else is false.
func coerceBool(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	return false
}

// coerceString accepts a JSON string; anything else is empty.
func coerceString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// coerceNullableString distinguishes absent/null from a present value, so
// the merge keeps earlier answers when the model returns null.
func coerceNullableString(raw json.RawMessage) *string {
	if raw == nil || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}
