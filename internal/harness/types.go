package harness

// TraceEvent is one rewrite fired while compiling a plan.
type TraceEvent struct {
	Plan   string `json:"plan"`
	Seq    int    `json:"seq"`
	Rule   string `json:"rule"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// CaseResult is the observed outcome of one case.
type CaseResult struct {
	Name string `json:"name"`
	Plan string `json:"plan"`

	// Type is the static type of the compiled query.
	Type string `json:"type"`

	// Final is the optimized query text.
	Final string `json:"final"`

	// Items holds the string value of each result item.
	Items []string `json:"items"`

	// Error is the query error code, or the message of another failure.
	Error string `json:"error,omitempty"`

	Steps int `json:"steps"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	Scenario string `json:"scenario"`

	// Pass indicates overall test success.
	// True if every expectation, assertion and property holds.
	Pass bool `json:"pass"`

	// Trace contains the rewrites of every compiled plan, in the order
	// plans were first compiled.
	Trace []TraceEvent `json:"trace"`

	Cases []CaseResult `json:"cases"`

	// Errors contains failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	streamable map[string]bool
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario:   scenario,
		Pass:       true,
		Trace:      []TraceEvent{},
		Cases:      []CaseResult{},
		Errors:     []string{},
		streamable: make(map[string]bool),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// rulesOf returns the rules fired for plan, in order.
func (r *Result) rulesOf(plan string) []string {
	var rules []string
	for _, ev := range r.Trace {
		if ev.Plan == plan {
			rules = append(rules, ev.Rule)
		}
	}
	return rules
}
