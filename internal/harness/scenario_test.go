package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/instantiation_check.yaml")
	require.NoError(t, err)

	assert.Equal(t, "instantiation_check", s.Name)
	assert.Contains(t, s.Source, "fn f<const N: usize>() {}\n")
	require.Len(t, s.Assertions, 6)
	assert.Equal(t, AssertTraceContains, s.Assertions[0].Type)
	assert.Equal(t, EventExpansion, s.Assertions[0].Event)
	assert.Equal(t, "f", s.Assertions[0].Fields["ident"])
	assert.Equal(t, 1, s.Assertions[0].Fields["line"])
}

func TestLoadScenario_ResolvesFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/from_file.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "src", "ring.rs"), s.File)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: typo
description: "unknown field"
source: "fn f() {}"
assertion:
  - type: trace_count
    event: expansion
    count: 0
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does_not_exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario(t *testing.T) {
	count := Assertion{Type: AssertTraceCount, Event: EventExpansion}
	tests := []struct {
		name     string
		scenario Scenario
		wantErr  string
	}{
		{
			name:     "missing name",
			scenario: Scenario{Description: "d", Source: "s", Assertions: []Assertion{count}},
			wantErr:  "name is required",
		},
		{
			name:     "missing description",
			scenario: Scenario{Name: "n", Source: "s", Assertions: []Assertion{count}},
			wantErr:  "description is required",
		},
		{
			name:     "no source",
			scenario: Scenario{Name: "n", Description: "d", Assertions: []Assertion{count}},
			wantErr:  "one of source or file is required",
		},
		{
			name:     "source and file",
			scenario: Scenario{Name: "n", Description: "d", Source: "s", File: "x.rs", Assertions: []Assertion{count}},
			wantErr:  "mutually exclusive",
		},
		{
			name:     "file not found",
			scenario: Scenario{Name: "n", Description: "d", File: "testdata/src/nope.rs", Assertions: []Assertion{count}},
			wantErr:  "source file not found",
		},
		{
			name:     "no assertions",
			scenario: Scenario{Name: "n", Description: "d", Source: "s"},
			wantErr:  "assertions list is required",
		},
		{
			name: "unknown assertion type",
			scenario: Scenario{Name: "n", Description: "d", Source: "s",
				Assertions: []Assertion{{Type: "trace_everything"}}},
			wantErr: `unknown assertion type "trace_everything"`,
		},
		{
			name: "bad event",
			scenario: Scenario{Name: "n", Description: "d", Source: "s",
				Assertions: []Assertion{{Type: AssertTraceContains, Event: "invocation"}}},
			wantErr: "event must be one of",
		},
		{
			name: "trace_order without idents",
			scenario: Scenario{Name: "n", Description: "d", Source: "s",
				Assertions: []Assertion{{Type: AssertTraceOrder}}},
			wantErr: "idents list is required",
		},
		{
			name: "negative count",
			scenario: Scenario{Name: "n", Description: "d", Source: "s",
				Assertions: []Assertion{{Type: AssertTraceCount, Event: EventInstance, Count: -1}}},
			wantErr: "count must be non-negative",
		},
		{
			name: "output without text",
			scenario: Scenario{Name: "n", Description: "d", Source: "s",
				Assertions: []Assertion{{Type: AssertOutputExcludes}}},
			wantErr: "text is required for output_excludes",
		},
		{
			name: "final_state without expect",
			scenario: Scenario{Name: "n", Description: "d", Source: "s",
				Assertions: []Assertion{{Type: AssertFinalState, Table: "runs"}}},
			wantErr: "expect is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateScenario(&tt.scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_Inline(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: inline
description: "parsed without touching the filesystem"
config: |
  suffix: "_check"
source: |
  #[guard(N > 0)]
  fn f<const N: usize>() {}
assertions:
  - type: output_contains
    text: "_f_check"
`))
	require.NoError(t, err)
	assert.Equal(t, "suffix: \"_check\"\n", s.Config)
	assert.NoError(t, validateScenario(s))
}
