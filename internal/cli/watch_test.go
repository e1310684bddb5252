package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/constguard/internal/expand"
	"github.com/roach88/constguard/internal/store"
)

func TestWithin(t *testing.T) {
	assert.True(t, within("src", "src"))
	assert.True(t, within("src", "src/build"))
	assert.False(t, within("src", "build"))
	assert.False(t, within("src", "../src-out"))
	assert.False(t, within("src/a", "src"))
}

func newTestWatcher(t *testing.T, root string) (*watcher, string) {
	t.Helper()
	cmd, _, _ := bareCommand()
	out := t.TempDir()
	return &watcher{
		root:      root,
		outDir:    out,
		expander:  expand.New(expand.DefaultConfig()),
		formatter: newFormatter(&RootOptions{Format: "text"}, cmd),
	}, out
}

func TestWatcherOutPath(t *testing.T) {
	w := &watcher{root: "src", outDir: "build"}
	got, err := w.outPath(filepath.Join("src", "nested", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("build", "nested", "lib.rs"), got)
}

func TestWatcherPass(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "nested/lib.rs", cleanSource)
	w, out := newTestWatcher(t, root)

	files, err := expand.LoadFiles([]string{root})
	require.NoError(t, err)
	require.NoError(t, w.pass(context.Background(), "watch", files))

	data, err := os.ReadFile(filepath.Join(out, "nested", "lib.rs"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "#[guard")

	orig, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, cleanSource, string(orig))
}

func TestWatcherPassRecordsRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib.rs", cleanSource)
	w, _ := newTestWatcher(t, root)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	w.st = st
	w.runIDs = NewFixedGenerator("watch-1")

	files, err := expand.LoadFiles([]string{root})
	require.NoError(t, err)
	require.NoError(t, w.pass(context.Background(), "watch", files))

	run, err := st.ReadRun(context.Background(), "watch-1")
	require.NoError(t, err)
	assert.Equal(t, "watch", run.Command)
	assert.Equal(t, int64(1), run.Expanded)
}

func TestWatcherHandleIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	notes := writeFile(t, root, "notes.txt", "hello")
	w, out := newTestWatcher(t, root)

	w.handle(context.Background(), nil, fsnotify.Event{Name: notes, Op: fsnotify.Write})
	w.handle(context.Background(), nil, fsnotify.Event{Name: notes, Op: fsnotify.Remove})

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWatcherHandleWrite(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "lib.rs", cleanSource)
	w, out := newTestWatcher(t, root)

	w.handle(context.Background(), nil, fsnotify.Event{Name: src, Op: fsnotify.Write})

	data, err := os.ReadFile(filepath.Join(out, "lib.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "const_guards :: Protect")
}

func TestWatchRejectsOutDirInside(t *testing.T) {
	root := t.TempDir()
	_, _, err := execute(t, "watch", root, "--out-dir", filepath.Join(root, "build"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWatchReexpandsOnWrite(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "lib.rs", cleanSource)
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cmd, _, _ := bareCommand()
	cmd.SetContext(ctx)
	opts := &WatchOptions{
		RootOptions: &RootOptions{Format: "text", Config: emptyConfig(t)},
		OutDir:      out,
	}

	done := make(chan error, 1)
	go func() { done <- runWatch(opts, root, cmd) }()

	dst := filepath.Join(out, "lib.rs")
	require.Eventually(t, func() bool {
		_, err := os.Stat(dst)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	updated := strings.Replace(cleanSource, "N < 8", "N < 16", 1)
	// The watcher may still be registering directories; keep writing until
	// the change shows up.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(src, []byte(updated), 0644); err != nil {
			return false
		}
		data, err := os.ReadFile(dst)
		return err == nil && strings.Contains(string(data), "N < 16")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
