package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "constguard.cue", `
attributes: ["requires"]
suffix: "_check"
ledger: ".constguard/ledger.db"
`)

	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+path+" valid")
	assert.Contains(t, out, "attributes:  requires")
	assert.Contains(t, out, "guard fn:    _<ident>_check")
	assert.Contains(t, out, "ledger:      .constguard/ledger.db")
}

func TestValidateUsesConfigFlag(t *testing.T) {
	out, _, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
	assert.Contains(t, out, "witness:     const_guards::Guard")
}

func TestValidateInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "constguard.cue", "witness: \"not a path!\"\n")

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ "+path+" invalid")
	assert.Contains(t, out, "witness")
}

func TestValidateUnknownField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "constguard.cue", "colour: \"red\"\n")

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, ErrCodeConfig, resp.Data.Errors[0].Code)
}

func TestValidateRequiresConstraint(t *testing.T) {
	path := writeFile(t, t.TempDir(), "constguard.cue", "requires: \">= 99.0\"\n")

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "requires")
}

func TestValidateMissingFile(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "constguard.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateJSONConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "constguard.cue", "step_limit: 500\n")

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Valid)
	require.NotNil(t, resp.Data.Config)
	assert.Equal(t, 500, resp.Data.Config.StepLimit)
	assert.Equal(t, "guard evaluated to false", resp.Data.Config.Message)
}
