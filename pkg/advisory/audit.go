package advisory

import (
	"context"
	"time"
)

// AuditLogger records issued advisories and engine failures.
type AuditLogger interface {
	// LogAdvisory records the outcome of a successful evaluation.
	// ruleTableID identifies the rule table that produced weather actions.
	LogAdvisory(ctx context.Context, crop CropContext, result AdvisoryResult, ruleTableID string, evalDuration time.Duration) error

	// LogEngineError records a request that ended in an EngineError.
	LogEngineError(ctx context.Context, err error, crop CropContext, requestID string) error
}
