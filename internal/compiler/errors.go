package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/xqcore/internal/qerr"
)

// Validation error codes (E100-E199)
const (
	// Document errors (E100-E109)
	ErrCUE            = "E100" // CUE evaluation error
	ErrMissingField   = "E101" // required field is absent
	ErrFieldType      = "E102" // field has the wrong CUE kind
	ErrDuplicateName  = "E103" // duplicate external or parameter name
	ErrInvalidLiteral = "E104" // literal cannot be read as an item

	// Node errors (E110-E119)
	ErrUnknownNode      = "E110" // node has no recognized kind
	ErrAmbiguousNode    = "E111" // node has more than one kind
	ErrUnknownOperator  = "E112" // unknown arithmetic or comparison operator
	ErrInvalidStep      = "E113" // unparseable axis step
	ErrUnknownFunction  = "E114" // unknown function or wrong arity
	ErrUnknownType      = "E115" // unknown cast target type
	ErrInvalidCatchCode = "E116" // malformed catch pattern
)

// ValidationError is one problem found in a plan document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// CompileError is the first problem that stopped LoadPlan, with its source
// position.
type CompileError struct {
	Field   string
	Code    string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: [%s] %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Field, e.Code, e.Message)
}

// FormatCUEError converts a CUE error to a *CompileError at its first
// position. Errors without a position are returned unchanged.
func FormatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Code:    ErrCUE,
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// infoOf converts a CUE position to a query source location.
func infoOf(pos token.Pos) qerr.Info {
	if !pos.IsValid() {
		return qerr.Info{}
	}
	return qerr.Info{File: pos.Filename(), Line: pos.Line(), Column: pos.Column()}
}
