package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end transformer scenario.
// A scenario expands one source file, checks its instantiations and
// asserts on the resulting trace and ledger rows.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Source is the source text to expand.
	Source string `yaml:"source,omitempty"`

	// File is a source file to expand instead of Source.
	// Relative paths are resolved against the scenario file's directory.
	File string `yaml:"file,omitempty"`

	// Config is inline constguard.cue text. Empty means the defaults.
	Config string `yaml:"config,omitempty"`

	// Assertions validate the trace, the expanded output and the ledger.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the trace, the expanded output or the ledger.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Event type whose fields match Fields
	// - "trace_order": Idents appear in this order among expansion events
	// - "trace_count": exactly Count events of Event type
	// - "output_contains": the expanded source contains Text
	// - "output_excludes": the expanded source does not contain Text
	// - "final_state": query a ledger table and verify expected values
	Type string `yaml:"type"`

	// Event is the trace event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Fields are the expected event fields (trace_contains).
	// Subset match - only specified fields are validated.
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// Idents is the expected expansion order (trace_order).
	Idents []string `yaml:"idents,omitempty"`

	// Count is the expected number of events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Text is the expected substring (output_contains, output_excludes).
	Text string `yaml:"text,omitempty"`

	// Table is the ledger table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state).
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertOutputContains = "output_contains"
	AssertOutputExcludes = "output_excludes"
	AssertFinalState     = "final_state"
)

// Trace event types.
const (
	EventExpansion = "expansion"
	EventRejection = "rejection"
	EventInstance  = "instance"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve the source file relative to the scenario BEFORE validation
	if scenario.File != "" && !filepath.IsAbs(scenario.File) {
		scenario.File = filepath.Join(filepath.Dir(path), scenario.File)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes a scenario without validating file references.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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

	switch {
	case s.Source == "" && s.File == "":
		return fmt.Errorf("one of source or file is required")
	case s.Source != "" && s.File != "":
		return fmt.Errorf("source and file are mutually exclusive")
	}

	if s.File != "" {
		if _, err := os.Stat(s.File); os.IsNotExist(err) {
			return fmt.Errorf("source file not found: %s", s.File)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
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

	switch a.Type {
	case AssertTraceContains:
		if !validEvent(a.Event) {
			return fmt.Errorf("assertions[%d]: event must be one of expansion, rejection, instance for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Idents) == 0 {
			return fmt.Errorf("assertions[%d]: idents list is required for trace_order", index)
		}
	case AssertTraceCount:
		if !validEvent(a.Event) {
			return fmt.Errorf("assertions[%d]: event must be one of expansion, rejection, instance for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertOutputContains, AssertOutputExcludes:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func validEvent(e string) bool {
	switch e {
	case EventExpansion, EventRejection, EventInstance:
		return true
	}
	return false
}
