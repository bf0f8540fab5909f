package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Plans lists CUE files holding the plans under "plan.<name>".
	// Paths are relative to the scenario file location.
	Plans []string `yaml:"plans"`

	// Records seeds the record store, by collection name. Records are
	// inserted in order, which is their document order.
	Records map[string][]string `yaml:"records,omitempty"`

	// NoIndexes disables index negotiation.
	NoIndexes bool `yaml:"no_indexes,omitempty"`

	// MaxSteps overrides the evaluation step quota.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Cases are evaluated in order.
	Cases []Case `yaml:"cases"`

	// Assertions validate the rewrite trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Case evaluates one plan.
type Case struct {
	// Name labels the case in failures. Defaults to the plan name.
	Name string `yaml:"name,omitempty"`

	// Plan names the plan to evaluate.
	Plan string `yaml:"plan"`

	// Bindings supplies external variables.
	Bindings map[string]any `yaml:"bindings,omitempty"`

	Expect Expect `yaml:"expect"`
}

// label returns the case name used in failure messages.
func (c Case) label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Plan
}

// Expect lists what a case must produce. Unset fields are not checked.
type Expect struct {
	// Items are the expected string values of the result, in order.
	Items []string `yaml:"items,omitempty"`

	// Empty requires the empty sequence.
	Empty bool `yaml:"empty,omitempty"`

	// Count is the expected number of result items.
	Count *int `yaml:"count,omitempty"`

	// Error is the expected query error code, e.g. FOAR0001.
	Error string `yaml:"error,omitempty"`

	// Type is the expected static result type, e.g. xs:integer*.
	Type string `yaml:"type,omitempty"`
}

// Assertion validates the rewrite trace of a plan.
type Assertion struct {
	// Type specifies the assertion type:
	// - "rewrite_fired": the rule fired
	// - "rewrite_absent": the rule never fired
	// - "rewrite_order": the rules fired in order
	// - "rewrite_count": the rule fired exactly Count times
	// - "streamable": the streamable hint equals Value
	Type string `yaml:"type"`

	Plan string `yaml:"plan"`

	// Rule is the rewrite rule name (fired, absent, count).
	Rule string `yaml:"rule,omitempty"`

	// Rules is the expected rule order (order).
	Rules []string `yaml:"rules,omitempty"`

	// Count is the expected number of firings (count).
	Count int `yaml:"count,omitempty"`

	// Value is the expected streamable hint (streamable).
	Value *bool `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertRewriteFired  = "rewrite_fired"
	AssertRewriteAbsent = "rewrite_absent"
	AssertRewriteOrder  = "rewrite_order"
	AssertRewriteCount  = "rewrite_count"
	AssertStreamable    = "streamable"
)

// LoadScenario reads and parses a scenario YAML file. Plan paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving plan paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data, basePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario parses scenario YAML, resolving plan paths against
// basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, p := range scenario.Plans {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Plans[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Plans) == 0 {
		return fmt.Errorf("plans list is required and must be non-empty")
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	for _, p := range s.Plans {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("plan file not found: %s", p)
		}
	}

	for i, c := range s.Cases {
		if c.Plan == "" {
			return fmt.Errorf("cases[%d]: plan is required", i)
		}
		e := c.Expect
		if e.Error != "" && (len(e.Items) > 0 || e.Empty || e.Count != nil) {
			return fmt.Errorf("cases[%d]: expect.error excludes items, empty and count", i)
		}
		if e.Empty && len(e.Items) > 0 {
			return fmt.Errorf("cases[%d]: expect.empty excludes items", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Plan == "" {
		return fmt.Errorf("assertions[%d]: plan is required", index)
	}

	switch a.Type {
	case AssertRewriteFired, AssertRewriteAbsent:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for %s", index, a.Type)
		}
	case AssertRewriteOrder:
		if len(a.Rules) == 0 {
			return fmt.Errorf("assertions[%d]: rules list is required for rewrite_order", index)
		}
	case AssertRewriteCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for rewrite_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for rewrite_count", index)
		}
	case AssertStreamable:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for streamable", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
