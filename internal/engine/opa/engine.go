// Package opa compiles weather rule conditions written as Rego expressions.
package opa

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// Condition is a prepared Rego query implementing advisory.Condition.
// A condition holds when the query is defined and every expression in it
// is true; an undefined result (for example a missing measurement) does not
// hold. Expressions may be joined with ";".
type Condition struct {
	source string
	query  rego.PreparedEvalQuery
}

var _ advisory.Condition = (*Condition)(nil)

// Engine compiles conditions.
type Engine struct{}

// NewEngine creates a new OPA condition engine
func NewEngine() *Engine {
	return &Engine{}
}

// Compile prepares expr for repeated evaluation.
func (e *Engine) Compile(ctx context.Context, expr string) (*Condition, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty condition", advisory.ErrRuleLoad)
	}

	query, err := rego.New(rego.Query(expr)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling condition %q: %v", advisory.ErrRuleLoad, expr, err)
	}

	return &Condition{source: expr, query: query}, nil
}

// Holds implements advisory.Condition.
func (c *Condition) Holds(ctx context.Context, input map[string]any) (bool, error) {
	resultSet, err := c.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("evaluating condition %q: %w", c.source, err)
	}
	if len(resultSet) == 0 {
		return false, nil
	}
	for _, expr := range resultSet[0].Expressions {
		if b, ok := expr.Value.(bool); !ok || !b {
			return false, nil
		}
	}
	return len(resultSet[0].Expressions) > 0, nil
}

// Source returns the Rego text the condition was compiled from.
func (c *Condition) Source() string {
	return c.source
}
