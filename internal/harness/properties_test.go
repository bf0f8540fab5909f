package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqcore/internal/engine"
	"github.com/roach88/xqcore/internal/store"
	"github.com/roach88/xqcore/internal/testutil"
)

func TestPropertyViolation_Error(t *testing.T) {
	v := &PropertyViolation{Property: PropertyFixpoint, Plan: "p", Detail: "rule \"x\" still fires"}
	assert.Equal(t, `property fixpoint violated by plan p: rule "x" still fires`, v.Error())
}

func TestCheckFixpoint_CompiledQuery(t *testing.T) {
	eng := engine.New()
	p := testutil.LoadPlan(t, `plan: twice: {
	externals: n: {type: "xs:integer", value: 4}
	query: arith: {op: "*", left: var: "n", right: arith: {op: "+", left: const: 1, right: const: 1}}
}`, "twice")

	q, err := eng.Compile(context.Background(), p)
	require.NoError(t, err)
	assert.NoError(t, checkFixpoint(context.Background(), eng, q))
}

// scanHarness returns a harness over a store holding two books, with the
// plans of src loaded.
func scanHarness(t *testing.T, src string) *Harness {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, seed(ctx, st, map[string][]string{
		"books": {"<book><price>5</price></book>", "<book><price>12</price></book>"},
	}))

	plans, err := loadPlanFiles([]string{writePlans(t, src)})
	require.NoError(t, err)

	h := &Harness{
		store:   st,
		engine:  engine.New(engine.WithCollections(st), engine.WithIndexes(st)),
		scans:   engine.New(engine.WithCollections(st)),
		plans:   plans,
		queries: make(map[string]*engine.Query),
	}
	return h
}

func TestCheckScanEquivalence(t *testing.T) {
	h := scanHarness(t, `plan: cheap: query: filter: {
	root: collection: "books"
	preds: [{cmp: {op: "<", left: step: "price", right: const: 10}}]
}`)
	ctx := context.Background()
	c := Case{Plan: "cheap"}

	assert.NoError(t, h.checkScanEquivalence(ctx, c, nil, CaseResult{Items: []string{"5"}}))

	err := h.checkScanEquivalence(ctx, c, nil, CaseResult{Items: []string{"12"}})
	require.Error(t, err)
	v, ok := err.(*PropertyViolation)
	require.True(t, ok)
	assert.Equal(t, PropertyScanEq, v.Property)
	assert.Equal(t, "cheap", v.Plan)
	assert.Contains(t, v.Detail, `scan gave ["5"], indexed ["12"]`)

	err = h.checkScanEquivalence(ctx, c, nil, CaseResult{Error: "FOAR0001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan succeeded, indexed failed with FOAR0001")
}

func TestCheckScanEquivalence_MatchingErrors(t *testing.T) {
	h := scanHarness(t, `plan: broken: query: arith: {op: "div", left: const: 1, right: const: 0}`)
	ctx := context.Background()
	c := Case{Plan: "broken"}

	assert.NoError(t, h.checkScanEquivalence(ctx, c, nil, CaseResult{Error: "FOAR0001"}))

	err := h.checkScanEquivalence(ctx, c, nil, CaseResult{Error: "XPTY0004"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan error FOAR0001")
}
