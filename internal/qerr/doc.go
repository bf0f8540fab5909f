// Package qerr defines the structured errors raised while compiling and
// evaluating query expressions.
//
// Every error carries a code in the err namespace (XPTY0004, FOAR0001, ...).
// Codes in the XPST/XUST/XPDY0002 families are static: they abort compilation
// with the position of the offending expression. All other codes are dynamic
// and propagate through evaluation until a matching catch clause handles them.
// The XQIN codes report interruption and resource exhaustion and are never
// caught.
package qerr
