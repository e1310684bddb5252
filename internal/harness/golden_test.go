package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_InstantiationCheck(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/instantiation_check.yaml")
	require.NoError(t, err)

	// To regenerate:
	//   go test ./internal/harness -run TestRunWithGolden_InstantiationCheck -update
	require.NoError(t, RunWithGolden(t, s))
}

func TestSnapshot_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/trait_and_stacked.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_OmitsEmptyFields(t *testing.T) {
	result := NewResult()
	result.Output = "fn f() {}"
	result.AddTrace(TraceEvent{Type: EventRejection, Line: 2, Code: "E202", Message: "m"})

	got, err := Snapshot("s", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"output":"fn f() {}","scenario_name":"s","trace":[{"code":"E202","line":2,"message":"m","seq":1,"type":"rejection"}]}`,
		string(got))
}
