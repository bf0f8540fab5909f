package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Plan     string   // Plan whose trace was checked
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Rules    []string // Rules fired for the plan, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (plan %s)\n", e.Type, e.Plan)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nRules fired:\n")
	for i, rule := range e.Rules {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, rule)
	}
	return buf.String()
}

func countRule(rules []string, rule string) int {
	n := 0
	for _, r := range rules {
		if r == rule {
			n++
		}
	}
	return n
}

// assertRewriteFired checks that the rule fired at least once.
func assertRewriteFired(rules []string, a Assertion) error {
	if countRule(rules, a.Rule) > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertRewriteFired,
		Plan:     a.Plan,
		Expected: fmt.Sprintf("rule %q fired", a.Rule),
		Actual:   "not found in trace",
		Rules:    rules,
	}
}

// assertRewriteAbsent checks that the rule never fired.
func assertRewriteAbsent(rules []string, a Assertion) error {
	n := countRule(rules, a.Rule)
	if n == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertRewriteAbsent,
		Plan:     a.Plan,
		Expected: fmt.Sprintf("rule %q never fired", a.Rule),
		Actual:   fmt.Sprintf("fired %d times", n),
		Rules:    rules,
	}
}

// assertRewriteOrder checks that the rules fired in the given order.
// They need not be consecutive; the first firing of each rule counts.
func assertRewriteOrder(rules []string, a Assertion) error {
	positions := make(map[string]int)
	for i, r := range rules {
		if _, ok := positions[r]; !ok {
			positions[r] = i + 1 // 1-indexed for readability
		}
	}

	for _, rule := range a.Rules {
		if positions[rule] == 0 {
			return &AssertionError{
				Type:     AssertRewriteOrder,
				Plan:     a.Plan,
				Expected: fmt.Sprintf("all rules fired: %v", a.Rules),
				Actual:   fmt.Sprintf("missing rule: %s", rule),
				Rules:    rules,
			}
		}
	}

	for i := 1; i < len(a.Rules); i++ {
		prev, curr := a.Rules[i-1], a.Rules[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertRewriteOrder,
				Plan:     a.Plan,
				Expected: fmt.Sprintf("rules in order: %v", a.Rules),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Rules: rules,
			}
		}
	}
	return nil
}

// assertRewriteCount checks that the rule fired exactly Count times.
func assertRewriteCount(rules []string, a Assertion) error {
	n := countRule(rules, a.Rule)
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRewriteCount,
		Plan:     a.Plan,
		Expected: fmt.Sprintf("rule %q fired %d times", a.Rule, a.Count),
		Actual:   fmt.Sprintf("fired %d times", n),
		Rules:    rules,
	}
}

// EvaluateAssertions evaluates all assertions against a result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		streamable, compiled := result.streamable[a.Plan]
		if !compiled {
			errs = append(errs, fmt.Sprintf("assertions[%d]: plan %s was never compiled", i, a.Plan))
			continue
		}
		rules := result.rulesOf(a.Plan)

		var err error
		switch a.Type {
		case AssertRewriteFired:
			err = assertRewriteFired(rules, a)
		case AssertRewriteAbsent:
			err = assertRewriteAbsent(rules, a)
		case AssertRewriteOrder:
			err = assertRewriteOrder(rules, a)
		case AssertRewriteCount:
			err = assertRewriteCount(rules, a)
		case AssertStreamable:
			if streamable != *a.Value {
				err = &AssertionError{
					Type:     AssertStreamable,
					Plan:     a.Plan,
					Expected: fmt.Sprintf("streamable = %t", *a.Value),
					Actual:   fmt.Sprintf("streamable = %t", streamable),
					Rules:    rules,
				}
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}
