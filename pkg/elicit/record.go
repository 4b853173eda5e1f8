package elicit

import (
	"encoding/json"
	"fmt"
	"time"

	"advisor/pkg/artifact"
)

// StrategyRecord accumulates the fields collected across the dialogue.
// Pointer fields distinguish "never answered" from an empty answer; a field
// set once is retained until a later turn supplies a non-null replacement.
type StrategyRecord struct {
	Industry        *string `json:"industry"`
	SpecificCompany *string `json:"specific_company"`
	Goals           *string `json:"goals"`
	Budget          *string `json:"budget"`
	Timeline        *string `json:"timeline"`
	FinancialHealth *string `json:"financial_health"`
	MarketPosition  *string `json:"market_position"`
	RisksConcern    *string `json:"risks_concern"`
	RisksDetails    *string `json:"risks_details"`
	IsComplete      bool    `json:"is_complete"`
}

// Merge applies every non-null field from a parsed reply onto the record
// (last-non-null-wins). The completion flag is owned by the caller and is not
// merged here.
func (r *StrategyRecord) Merge(in StrategyRecord) {
	fields := []struct {
		dst **string
		src *string
	}{
		{&r.Industry, in.Industry},
		{&r.SpecificCompany, in.SpecificCompany},
		{&r.Goals, in.Goals},
		{&r.Budget, in.Budget},
		{&r.Timeline, in.Timeline},
		{&r.FinancialHealth, in.FinancialHealth},
		{&r.MarketPosition, in.MarketPosition},
		{&r.RisksConcern, in.RisksConcern},
		{&r.RisksDetails, in.RisksDetails},
	}
	for _, f := range fields {
		if f.src != nil {
			*f.dst = f.src
		}
	}
}

// Serialize renders the record as indented JSON for embedding into prompts
// and for the snapshot artifact.
func (r *StrategyRecord) Serialize() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize strategy record: %w", err)
	}
	return string(data), nil
}

// SaveSnapshot persists the record as the strategy_info.json artifact under
// the output root. Written atomically so observers never see a partial file.
func (r *StrategyRecord) SaveSnapshot(root string) (string, error) {
	serialized, err := r.Serialize()
	if err != nil {
		return "", err
	}
	path := artifact.Path(root, artifact.StrategyInfoFile)
	if err := artifact.WriteFile(path, []byte(serialized)); err != nil {
		return "", err
	}
	return path, nil
}

// Turn is one utterance of the dialogue. The sequence is append-only; turns
// are never mutated after being recorded.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
