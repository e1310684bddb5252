package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFailingInstance(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", guardedSource)

	out, _, err := execute(t, "check", src)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ "+src+":")
	assert.Contains(t, out, "E301: guard evaluated to false (f ::< 0 >)")
	assert.Contains(t, out, "Check Summary: 1 passed, 1 failed, 2 instantiation(s)")
}

func TestCheckAllPass(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", cleanSource)

	out, _, err := execute(t, "check", "-v", src)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+src+":")
	assert.Contains(t, out, "small ::< 3 >")
	assert.Contains(t, out, "✓ All instantiations satisfy their guards")
}

func TestCheckRejectedGuardFails(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", rejectedSource)

	_, errOut, err := execute(t, "check", src)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, errOut, "E202")
}

func TestCheckJSON(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", guardedSource)

	out, _, err := execute(t, "--format", "json", "check", src)
	require.Error(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   CheckResult `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E301", resp.Error.Code)

	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Instances, 2)

	byText := map[string]InstanceReport{}
	for _, in := range resp.Data.Instances {
		byText[in.Text] = in
	}
	ok := byText["f ::< 1 >"]
	assert.True(t, ok.Passed)
	assert.Equal(t, "1", ok.Args["N"])
	bad := byText["f ::< 0 >"]
	assert.False(t, bad.Passed)
	require.NotNil(t, bad.Diagnostic)
	assert.Equal(t, "E301", bad.Diagnostic.Code)
	assert.Equal(t, 6, bad.Line)
}

func TestCheckResultFailure(t *testing.T) {
	assert.NoError(t, CheckResult{Passed: 3}.failure())
	assert.Error(t, CheckResult{Failed: 1}.failure())
	assert.Error(t, CheckResult{Rejected: 1}.failure())
}
