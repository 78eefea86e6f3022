package advisory

import (
	"errors"
	"fmt"
)

// Standard error types for advisory operations
var (
	ErrProviderUnavailable = errors.New("advisory: capability provider unavailable")
	ErrLowConfidence       = errors.New("advisory: result below confidence floor")
	ErrDataInsufficient    = errors.New("advisory: weather window has no usable days")
	ErrLocalizationMissing = errors.New("advisory: message has no translation")
	ErrNotFound            = errors.New("advisory: knowledge entry not found")
	ErrRuleLoad            = errors.New("advisory: rule table could not be loaded")
	ErrConfigLoad          = errors.New("advisory: configuration could not be loaded")
	ErrInvalidObservation  = errors.New("advisory: invalid observation")
	ErrNoInput             = errors.New("advisory: request carries no observations")
)

// ErrorCode is the machine-readable code carried by EngineError.
type ErrorCode string

const (
	CodeProviderUnavailable ErrorCode = "provider_unavailable"
	CodeLocalizationMissing ErrorCode = "localization_missing"
	CodeInvalidInput        ErrorCode = "invalid_input"
	CodeNoInput             ErrorCode = "no_input"
	CodeCancelled           ErrorCode = "cancelled"
	CodeInternal            ErrorCode = "internal"
)

// EngineError is the only error type the engine returns to callers.
// Message is already localized when a translation was available.
type EngineError struct {
	Code       ErrorCode
	MessageKey string
	Message    string
	Err        error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("advisory engine: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("advisory engine: %s", e.Code)
}

func (e *EngineError) Unwrap() error { return e.Err }

// AsEngineError extracts an EngineError from err, if any.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsWrappingError checks if err is wrapping the target error using errors.Is.
// This is a helper for testing error wrapping.
func IsWrappingError(err, target error) bool {
	return errors.Is(err, target)
}
