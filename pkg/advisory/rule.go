package advisory

import (
	"context"
	"strings"
)

// RuleScope says what a rule condition is evaluated against.
type RuleScope string

const (
	// ScopeDay evaluates the condition once per usable day (input.day).
	ScopeDay RuleScope = "day"
	// ScopeWindow evaluates the condition once over the usable days of the
	// horizon (input.window).
	ScopeWindow RuleScope = "window"
)

// Condition is a pure predicate over a rule input. Implementations must not
// keep state between calls.
type Condition interface {
	Holds(ctx context.Context, input map[string]any) (bool, error)
	Source() string
}

// Consequence is the action template a firing rule produces.
type Consequence struct {
	Category   Category
	Severity   Severity
	MessageKey string
}

// Rule pairs a condition with a consequence and a crop filter.
type Rule struct {
	ID          string
	Scope       RuleScope
	Condition   Condition
	WithinDays  int // 0 means the whole window
	Crops       []string
	Stages      []string
	Consequence Consequence
}

// AppliesTo reports whether the crop filter admits c. Empty filters match all.
func (r Rule) AppliesTo(c CropContext) bool {
	return matchAny(r.Crops, c.Crop) && matchAny(r.Stages, c.GrowthStage)
}

func matchAny(filter []string, v string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, v) {
			return true
		}
	}
	return false
}

// RuleTable is an immutable, ordered set of rules. Order is registration
// order and is the last weather tie-break.
type RuleTable interface {
	ID() string // sha of the table source
	Rules() []Rule
}

// RuleTableProvider retrieves a RuleTable.
type RuleTableProvider interface {
	// GetRuleTable loads and compiles the table. Should return ErrRuleLoad on failure.
	GetRuleTable(ctx context.Context) (RuleTable, error)
}
