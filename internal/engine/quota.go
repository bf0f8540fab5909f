package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/xqcore/internal/qerr"
)

// QuotaEnforcer counts evaluation steps and enforces a maximum. It
// implements expr.Quota; every iterator step of an evaluation calls Check.
//
// Each evaluation has its own QuotaEnforcer instance.
//
// CRITICAL DISTINCTION from cancellation:
//   - Cancellation: the caller's context is done (XQIN0001)
//   - Max-steps quota: the query itself ran too long (XQIN0002)
//
// Neither can be intercepted by try/catch in the query.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
// Returns StepsExceededError once the quota is exceeded.
func (q *QuotaEnforcer) Check() error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{Steps: q.current, Limit: q.maxSteps}
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when an evaluation exceeds the max steps
// quota. It unwraps to a query error with code XQIN0002.
type StepsExceededError struct {
	Steps int
	Limit int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("evaluation exceeded max steps quota: %d steps > %d limit", e.Steps, e.Limit)
}

// Unwrap exposes the query error code.
func (e *StepsExceededError) Unwrap() error {
	return qerr.New(qerr.CodeQuota, qerr.Info{}, "%s", e.Error())
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
