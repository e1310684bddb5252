package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/constguard/internal/store"
)

func TestExpandStdout(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", guardedSource)

	out, _, err := execute(t, "expand", src)
	require.NoError(t, err)
	assert.NotContains(t, out, "#[guard")
	assert.Contains(t, out, "where const_guards :: Guard <")
	assert.Contains(t, out, "> : const_guards :: Protect")
	assert.Contains(t, out, "f::<0>();", "text outside guarded items is untouched")
}

func TestExpandMultipleFilesHeaders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rs", cleanSource)
	writeFile(t, dir, "nested/b.rs", guardedSource)
	writeFile(t, dir, "notes.txt", "ignored")

	out, _, err := execute(t, "expand", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "==> "+filepath.Join(dir, "a.rs")+" <==")
	assert.Contains(t, out, "==> "+filepath.Join(dir, "nested", "b.rs")+" <==")
	assert.NotContains(t, out, "ignored")
}

func TestExpandOutputFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "lib.rs", cleanSource)
	dst := filepath.Join(dir, "out.rs")

	out, _, err := execute(t, "expand", src, "-o", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 guard(s) expanded in 1 file(s)")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), "const_guards :: Protect")

	orig, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, cleanSource, string(orig))
}

func TestExpandInPlace(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", cleanSource)

	_, _, err := execute(t, "expand", "--in-place", src)
	require.NoError(t, err)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "#[guard")
}

func TestExpandOutputAndInPlaceExclusive(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", cleanSource)

	_, _, err := execute(t, "expand", "--in-place", "-o", "x.rs", src)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExpandOutputNeedsOneFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rs", cleanSource)
	writeFile(t, dir, "b.rs", cleanSource)

	_, _, err := execute(t, "expand", dir, "-o", filepath.Join(t.TempDir(), "out.rs"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExpandRejected(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", rejectedSource)

	out, errOut, err := execute(t, "expand", src)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "#[guard(N >)]", "rejected item is emitted as written")
	assert.Contains(t, errOut, src+":1:")
	assert.Contains(t, errOut, "E202")
	assert.Contains(t, errOut, "0 guard(s) expanded, 1 rejected")
}

func TestExpandLexError(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", "fn f() { \"unterminated }\n")

	_, errOut, err := execute(t, "expand", src)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, errOut, "E101")
}

func TestExpandMissingPath(t *testing.T) {
	_, _, err := execute(t, "expand", filepath.Join(t.TempDir(), "missing.rs"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExpandNoSourceFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "# nothing")

	_, _, err := execute(t, "expand", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestExpandJSON(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", guardedSource)

	out, _, err := execute(t, "--format", "json", "expand", src)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ExpandResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Expanded)
	assert.Equal(t, 0, resp.Data.Rejected)
	require.Len(t, resp.Data.Files, 1)

	f := resp.Data.Files[0]
	assert.True(t, f.Changed)
	require.Len(t, f.Expansions, 1)
	e := f.Expansions[0]
	assert.Equal(t, "f", e.Ident)
	assert.Equal(t, "fn", e.Kind)
	assert.Equal(t, "item", e.Context)
	assert.Equal(t, int64(1), e.Line)
	assert.Equal(t, "N > 0", e.Guard)
	assert.Len(t, e.ID, 64)
}

func TestExpandJSONRejected(t *testing.T) {
	src := writeFile(t, t.TempDir(), "lib.rs", rejectedSource)

	out, _, err := execute(t, "--format", "json", "expand", src)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E202", resp.Error.Code)
}

func TestExpandRecordsRun(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "lib.rs", guardedSource+rejectedSource)
	ledger := filepath.Join(dir, ".constguard", "ledger.db")

	cmd, out, _ := bareCommand()
	opts := &ExpandOptions{
		RootOptions: &RootOptions{Format: "json", Config: emptyConfig(t)},
		Ledger:      ledger,
		RunIDs:      NewFixedGenerator("run-1"),
	}
	err := runExpand(opts, []string{src}, cmd)
	require.Error(t, err, "one guard is rejected")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)

	st, err := store.Open(ledger)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(commandContext(cmd), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "expand", run.Command)
	assert.Equal(t, int64(1), run.Files)
	assert.Equal(t, int64(1), run.Expanded)
	assert.Equal(t, int64(1), run.Rejected)

	exps, err := st.ReadExpansions(commandContext(cmd), "run-1")
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.False(t, exps[0].Rejected())
	assert.True(t, exps[1].Rejected())
	assert.Equal(t, "E202", exps[1].Code)
}

func TestExpandLedgerCacheReused(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "lib.rs", cleanSource)
	ledger := filepath.Join(dir, "ledger.db")

	first, _, err := execute(t, "expand", "--ledger", ledger, src)
	require.NoError(t, err)
	second, _, err := execute(t, "expand", "--ledger", ledger, src)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	st, err := store.Open(ledger)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ReadRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(1), runs[0].Seq)
	assert.Equal(t, int64(2), runs[1].Seq)
	assert.Equal(t, runs[0].OptionsHash, runs[1].OptionsHash)
}
