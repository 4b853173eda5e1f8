// Package elicit implements the strategy-elicitation dialogue: a forward-only
// stage machine that drives a consulting conversation, accumulates a strategy
// record from the model's structured replies, and degrades to a narrow keyword
// fallback when the model breaks its output contract.
package elicit

// Stage is one step of the elicitation dialogue. Progression is strictly
// forward through the fixed order below, one step at a time; Complete is
// absorbing.
type Stage int

const (
	StageIndustry Stage = iota
	StageGoals
	StageBudget
	StageTimeline
	StageFinancialHealth
	StageMarketPosition
	StageRisks
	StageCompletion
	StageComplete
)

// stageNames are the wire names used in the model contract.
var stageNames = map[Stage]string{
	StageIndustry:        "INDUSTRY",
	StageGoals:           "GOALS",
	StageBudget:          "BUDGET",
	StageTimeline:        "TIMELINE",
	StageFinancialHealth: "FINANCIAL_HEALTH",
	StageMarketPosition:  "MARKET_POSITION",
	StageRisks:           "RISKS",
	StageCompletion:      "COMPLETION",
	StageComplete:        "COMPLETE",
}

// stageProgression maps every stage to its single successor.
var stageProgression = map[Stage]Stage{
	StageIndustry:        StageGoals,
	StageGoals:           StageBudget,
	StageBudget:          StageTimeline,
	StageTimeline:        StageFinancialHealth,
	StageFinancialHealth: StageMarketPosition,
	StageMarketPosition:  StageRisks,
	StageRisks:           StageCompletion,
	StageCompletion:      StageComplete,
}

// String returns the stage's wire name.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "COMPLETE"
}

// Next returns the stage's successor. Complete is terminal and maps to
// itself.
func (s Stage) Next() Stage {
	if next, ok := stageProgression[s]; ok {
		return next
	}
	return StageComplete
}

// Terminal reports whether the dialogue has gathered everything it needs.
func (s Stage) Terminal() bool {
	return s == StageCompletion || s == StageComplete
}
