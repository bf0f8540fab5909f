package qerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error condition.
type Code string

// Static error codes.
const (
	// CodeUpdatingSlot: an updating expression appears where only
	// non-updating expressions are allowed.
	CodeUpdatingSlot Code = "XUST0001"

	// CodeUndefinedVar: a variable reference does not resolve.
	CodeUndefinedVar Code = "XPST0008"

	// CodeUnknownType: a cast names an unknown atomic type.
	CodeUnknownType Code = "XPST0051"

	// CodeAbstractType: a cast names an abstract type such as xs:anyAtomicType.
	CodeAbstractType Code = "XPST0080"

	// CodeNoContext: the focus is absent where . position() or last() is used.
	CodeNoContext Code = "XPDY0002"

	// CodeUnknownFunction: a call names a function that is not in the catalog.
	CodeUnknownFunction Code = "XPST0017"
)

// Dynamic error codes.
const (
	CodeType          Code = "XPTY0004"
	CodeEBV           Code = "FORG0006"
	CodeCast          Code = "FORG0001"
	CodeDivByZero     Code = "FOAR0001"
	CodeOverflow      Code = "FOAR0002"
	CodeDecOverflow   Code = "FOCA0003"
	CodeUser          Code = "FOER0000"
	CodeNoCollection  Code = "FODC0002"
	CodeNormalization Code = "FOCH0003"
	CodeFuncAtomize   Code = "FOTY0013"
	CodeInvalidValue  Code = "FOCA0002"
)

// Engine-level codes. These are not part of the err namespace and are
// never intercepted by try/catch.
const (
	CodeInterrupted Code = "XQIN0001"
	CodeQuota       Code = "XQIN0002"
)

// Static reports whether c aborts compilation.
func (c Code) Static() bool {
	s := string(c)
	return strings.HasPrefix(s, "XPST") || strings.HasPrefix(s, "XUST") || c == CodeNoContext
}

// Catchable reports whether c may be intercepted by try/catch.
func (c Code) Catchable() bool {
	return !c.Static() && !strings.HasPrefix(string(c), "XQIN")
}

// Info is the source position of an expression.
type Info struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// IsZero reports whether no position is known.
func (i Info) IsZero() bool {
	return i == Info{}
}

func (i Info) String() string {
	switch {
	case i.IsZero():
		return ""
	case i.File == "":
		return fmt.Sprintf("%d:%d", i.Line, i.Column)
	}
	return fmt.Sprintf("%s:%d:%d", i.File, i.Line, i.Column)
}

// QueryError is a static or dynamic query error.
type QueryError struct {
	// Code identifies the error condition.
	Code Code

	// Message is a human-readable description.
	Message string

	// Value is the offending value, if any. It is rendered with %v.
	Value any

	// Info locates the expression that raised the error.
	Info Info
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	var b strings.Builder
	if !e.Info.IsZero() {
		b.WriteString(e.Info.String())
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Value != nil {
		fmt.Fprintf(&b, " (%v)", e.Value)
	}
	return b.String()
}

// Static reports whether e aborts compilation.
func (e *QueryError) Static() bool {
	return e.Code.Static()
}

// At returns a copy of e located at info unless e already has a position.
func (e *QueryError) At(info Info) *QueryError {
	if !e.Info.IsZero() || info.IsZero() {
		return e
	}
	c := *e
	c.Info = info
	return &c
}

// New creates a QueryError.
func New(code Code, info Info, format string, args ...any) *QueryError {
	return &QueryError{Code: code, Message: fmt.Sprintf(format, args...), Info: info}
}

// WithValue creates a QueryError carrying the offending value.
func WithValue(code Code, info Info, v any, format string, args ...any) *QueryError {
	e := New(code, info, format, args...)
	e.Value = v
	return e
}

// As returns the QueryError in err's chain, if any.
func As(err error) (*QueryError, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// Is reports whether err is a QueryError with the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	qe, ok := As(err)
	return ok && qe.Code == code
}

// IsStatic reports whether err is a static query error.
func IsStatic(err error) bool {
	qe, ok := As(err)
	return ok && qe.Static()
}

// Locate attaches info to err if it is a QueryError without a position.
func Locate(err error, info Info) error {
	var qe *QueryError
	if errors.As(err, &qe) && qe.Info.IsZero() && !info.IsZero() {
		return qe.At(info)
	}
	return err
}

// Match reports whether err is catchable and its code matches one of the
// name patterns. Patterns are "*", "err:*", "*:CODE", "err:CODE" or "CODE".
func Match(err error, patterns []string) bool {
	qe, ok := As(err)
	if !ok || !qe.Code.Catchable() {
		return false
	}
	for _, p := range patterns {
		if matchPattern(p, qe.Code) {
			return true
		}
	}
	return false
}

func matchPattern(p string, code Code) bool {
	switch p {
	case "*", "err:*":
		return true
	}
	if local, ok := strings.CutPrefix(p, "*:"); ok {
		return local == string(code)
	}
	if local, ok := strings.CutPrefix(p, "err:"); ok {
		return local == string(code)
	}
	return p == string(code)
}
