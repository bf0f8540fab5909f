package harness

import (
	"context"
	"fmt"

	"github.com/roach88/xqcore/internal/engine"
	"github.com/roach88/xqcore/internal/testutil"
	"github.com/roach88/xqcore/internal/value"
)

// PropertyViolation is a property that failed for a compiled query.
type PropertyViolation struct {
	Property string
	Plan     string
	Detail   string
}

// Error implements the error interface.
func (v *PropertyViolation) Error() string {
	return fmt.Sprintf("property %s violated by plan %s: %s", v.Property, v.Plan, v.Detail)
}

// Property names.
const (
	PropertyFixpoint = "fixpoint"
	PropertyScanEq   = "scan_equivalence"
)

// checkProperties checks the properties every case must have and returns
// one message per violation.
func (h *Harness) checkProperties(ctx context.Context, c Case, q *engine.Query, bindings map[string]value.Seq, cr CaseResult) []string {
	var msgs []string
	if err := checkFixpoint(ctx, h.engine, q); err != nil {
		msgs = append(msgs, err.Error())
	}
	if h.scans != nil {
		if err := h.checkScanEquivalence(ctx, c, bindings, cr); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

// checkFixpoint verifies that one more optimization pass over the compiled
// tree fires no rule.
func checkFixpoint(ctx context.Context, eng *engine.Engine, q *engine.Query) error {
	fired, err := eng.Recheck(ctx, q)
	if err != nil {
		return &PropertyViolation{Property: PropertyFixpoint, Plan: q.Name, Detail: err.Error()}
	}
	if len(fired) > 0 {
		return &PropertyViolation{
			Property: PropertyFixpoint,
			Plan:     q.Name,
			Detail:   fmt.Sprintf("rule %q still fires on %s", fired[0].Rule, fired[0].Before),
		}
	}
	return nil
}

// checkScanEquivalence verifies that the case gives the same outcome when
// compiled without index negotiation.
func (h *Harness) checkScanEquivalence(ctx context.Context, c Case, bindings map[string]value.Seq, cr CaseResult) error {
	violation := func(format string, args ...any) error {
		return &PropertyViolation{Property: PropertyScanEq, Plan: c.Plan, Detail: fmt.Sprintf(format, args...)}
	}

	q, err := h.compile(ctx, h.scans, c.Plan, nil)
	if err != nil {
		if code := ErrorCode(err); code != cr.Error {
			return violation("scan compile: %s, indexed: %s", code, cr.Error)
		}
		return nil
	}
	res, err := h.scans.Evaluate(ctx, q, bindings)
	if err != nil {
		if code := ErrorCode(err); code != cr.Error {
			return violation("scan error %s, indexed: %q", code, cr.Error)
		}
		return nil
	}
	if cr.Error != "" {
		return violation("scan succeeded, indexed failed with %s", cr.Error)
	}
	if items := testutil.Strings(res.Value); !equalStrings(items, cr.Items) {
		return violation("scan gave %q, indexed %q", items, cr.Items)
	}
	return nil
}
