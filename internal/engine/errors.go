package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/xqcore/internal/qerr"
)

// EngineError is an error detected by the engine itself rather than by the
// query: a plan that cannot be run as given.
//
// EngineError includes structured fields for diagnostics.
type EngineError struct {
	// Code identifies the error category.
	Code EngineErrorCode

	// Message is a human-readable description.
	Message string

	// Plan names the affected plan.
	Plan string

	// Details contains additional context.
	Details map[string]string
}

// EngineErrorCode categorizes engine errors.
type EngineErrorCode string

const (
	// ErrCodeMissingExternal indicates an external variable has no value.
	ErrCodeMissingExternal EngineErrorCode = "MISSING_EXTERNAL"

	// ErrCodeUnknownExternal indicates a binding for an undeclared variable.
	ErrCodeUnknownExternal EngineErrorCode = "UNKNOWN_EXTERNAL"
)

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Plan != "" {
		return fmt.Sprintf("%s: %s (plan=%s)", e.Code, e.Message, e.Plan)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewMissingExternalError creates an EngineError for an unbound external.
func NewMissingExternalError(plan, name string) *EngineError {
	return &EngineError{
		Code:    ErrCodeMissingExternal,
		Message: fmt.Sprintf("no value for external variable $%s", name),
		Plan:    plan,
		Details: map[string]string{"variable": name},
	}
}

// NewUnknownExternalError creates an EngineError for a binding the plan
// does not declare.
func NewUnknownExternalError(plan, name string) *EngineError {
	return &EngineError{
		Code:    ErrCodeUnknownExternal,
		Message: fmt.Sprintf("plan declares no external variable $%s", name),
		Plan:    plan,
		Details: map[string]string{"variable": name},
	}
}

// IsQuotaError returns true if evaluation stopped on the step quota.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se) || qerr.Is(err, qerr.CodeQuota)
}

// IsInterrupted returns true if evaluation stopped because its context was
// cancelled or timed out.
func IsInterrupted(err error) bool {
	return qerr.Is(err, qerr.CodeInterrupted)
}

// Outcome classifies an evaluation result for metrics and logs: "ok", the
// query error code, or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if qe, ok := qerr.As(err); ok {
		return string(qe.Code)
	}
	return "error"
}
