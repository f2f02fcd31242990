package prompt

import (
	"fmt"
	"strings"
)

// Approach selects the kind of help requested for a turn.
type Approach string

const (
	ApproachSolution Approach = "solution"
	ApproachReview   Approach = "review"
	ApproachDebug    Approach = "debug"
	ApproachOptimize Approach = "optimize"
	ApproachExplain  Approach = "explain"
	ApproachFollowUp Approach = "follow-up"
)

var instructions = map[Approach]string{
	ApproachSolution: "**Type of Help Needed:** solution\nProvide a complete, working solution. Start with a short summary of the approach, then give runnable code and point out edge cases.",
	ApproachReview:   "**Type of Help Needed:** review\nReview the code above. List concrete bugs, security problems and maintainability issues in order of severity, each with a suggested fix.",
	ApproachDebug:    "**Type of Help Needed:** debug\nIdentify the most likely root cause of the behaviour described, explain how it arises from the code, and propose a minimal fix plus a way to verify it.",
	ApproachOptimize: "**Type of Help Needed:** optimize\nFind the main performance or resource bottlenecks and propose optimizations, stating the expected impact and any trade-offs.",
	ApproachExplain:  "**Type of Help Needed:** explain\nExplain how the relevant code works, step by step, focusing on the non-obvious parts.",
	ApproachFollowUp: "Continue from our previous discussion and answer the follow-up question directly.",
}

// Approaches lists every supported approach in a stable order.
func Approaches() []Approach {
	return []Approach{ApproachSolution, ApproachReview, ApproachDebug, ApproachOptimize, ApproachExplain, ApproachFollowUp}
}

// ParseApproach validates s. Empty selects ApproachSolution; matching is
// case-insensitive and accepts "followup" / "follow_up".
func ParseApproach(s string) (Approach, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "":
		return ApproachSolution, nil
	case "followup", "follow_up":
		return ApproachFollowUp, nil
	}
	a := Approach(norm)
	if _, ok := instructions[a]; !ok {
		return "", fmt.Errorf("unknown approach %q", s)
	}
	return a, nil
}

// Instruction returns the suffix appended to the prompt for this approach.
func (a Approach) Instruction() string { return instructions[a] }
