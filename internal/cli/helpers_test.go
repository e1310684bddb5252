package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const guardedSource = `#[guard(N > 0)]
fn f<const N: usize>() {}

fn main() {
    f::<1>();
    f::<0>();
}
`

const cleanSource = `#[guard(N > 0 && N < 8)]
fn small<const N: usize>() {}

fn main() {
    small::<3>();
}
`

const rejectedSource = `#[guard(N >)]
fn broken<const N: usize>() {}
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// emptyConfig writes an empty constguard.cue so tests never pick up a
// config discovered from the working directory.
func emptyConfig(t *testing.T) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "constguard.cue", "")
}

// execute runs the root command with args and the empty config.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	outBuf, errBuf := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(append([]string{"--config", emptyConfig(t)}, args...))
	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// bareCommand is a command for calling run functions directly.
func bareCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	outBuf, errBuf := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	return cmd, outBuf, errBuf
}
