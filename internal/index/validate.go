package index

import (
	"fmt"
	"strings"
)

// ValidationResult reports whether storage may be asked about a descriptor.
type ValidationResult struct {
	// Eligible is true if the descriptor is well formed and can be served
	// by a value index.
	Eligible bool

	// Warnings lists the reasons a descriptor is not eligible.
	Warnings []string
}

// Validate checks a descriptor before it is offered to storage.
//
// Rules:
//  1. The collection is named and the path is non-empty
//  2. Path steps are names; an attribute step ("@name") may only come last
//  3. Ranges are non-empty and have no NaN bounds
//
// Validate is a pure function with no side effects.
func Validate(d Descriptor) ValidationResult {
	v := &validator{warnings: []string{}}
	v.validate(d)
	return ValidationResult{
		Eligible: len(v.warnings) == 0,
		Warnings: v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validate(d Descriptor) {
	if d == nil {
		v.addWarning("nil descriptor")
		return
	}
	coll, path := d.Target()
	v.validateTarget(coll, path)

	switch desc := d.(type) {
	case TokenMatch:
		// Any token may be matched.
	case NumericRange:
		if desc.Empty() {
			v.addWarning("numeric range %s is empty", desc)
		}
	case StringRange:
		if desc.Empty() {
			v.addWarning("string range %s is empty", desc)
		}
		if !desc.HasMin && !desc.HasMax {
			v.addWarning("string range on %s has no bounds", PathString(desc.Path))
		}
	default:
		v.addWarning("unknown descriptor type: %T", d)
	}
}

func (v *validator) validateTarget(coll string, path []string) {
	if strings.TrimSpace(coll) == "" {
		v.addWarning("descriptor has no collection")
	}
	if len(path) == 0 {
		v.addWarning("descriptor has an empty path")
	}
	for i, step := range path {
		name := strings.TrimPrefix(step, "@")
		if name == "" || strings.ContainsAny(name, "/*@[] ") {
			v.addWarning("invalid path step %q", step)
			continue
		}
		if strings.HasPrefix(step, "@") && i != len(path)-1 {
			v.addWarning("attribute step %q must be last", step)
		}
	}
}

// Key returns a stable identity for d, suitable for caching estimates.
func Key(d Descriptor) string {
	return fmt.Sprintf("%T:%s", d, d)
}
