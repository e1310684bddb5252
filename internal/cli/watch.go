package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/constguard/internal/expand"
	"github.com/roach88/constguard/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	OutDir string
	Ledger string
	RunIDs RunIDGenerator
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-expand sources as they change",
		Long: `Expand every source file below dir into --out-dir, then keep watching
dir and re-expand each file when it is written or created. Runs until
interrupted.

Examples:
  constguard watch src --out-dir build/src
  constguard watch src --out-dir build/src --ledger .constguard/ledger.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OutDir, "out-dir", "", "directory for expanded files (required)")
	_ = cmd.MarkFlagRequired("out-dir")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "record each pass in this ledger and reuse cached output")

	return cmd
}

// watcher re-expands files from root into outDir.
type watcher struct {
	root      string
	outDir    string
	expander  *expand.Expander
	st        *store.Store
	runIDs    RunIDGenerator
	formatter *OutputFormatter
}

func runWatch(opts *WatchOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return formatter.Fail(ErrCodeNotFound, fmt.Sprintf("not a directory: %s", dir), err)
	}
	if within(dir, opts.OutDir) {
		return formatter.Fail(ErrCodeUsage, "--out-dir must be outside the watched directory", nil)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "invalid configuration", err)
	}

	w := &watcher{root: dir, outDir: opts.OutDir, runIDs: opts.RunIDs, formatter: formatter}
	var xopts []expand.ExpanderOption
	if ledger := ledgerPath(opts.Ledger, cfg.Ledger); ledger != "" {
		if w.st, err = openLedger(ledger, false); err != nil {
			return formatter.Fail(ErrCodeLedger, "failed to open ledger", err)
		}
		defer w.st.Close()
		xopts = append(xopts, expand.WithCache(w.st))
	}
	w.expander = expand.New(cfg.Expand(), xopts...)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	files, err := expand.LoadFiles([]string{dir})
	if err != nil {
		return formatter.Fail(ErrCodeScanError, "failed to load sources", err)
	}
	if err := w.pass(ctx, "watch", files); err != nil {
		return formatter.Fail(ErrCodeGeneric, "initial expansion failed", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return formatter.Fail(ErrCodeGeneric, "failed to start watcher", err)
	}
	defer fsw.Close()
	if err := addTree(fsw, dir); err != nil {
		return formatter.Fail(ErrCodeScanError, "failed to watch directory", err)
	}

	slog.Info("watching", "dir", dir, "out_dir", opts.OutDir)
	return w.loop(ctx, fsw)
}

// within reports whether path is dir or lies below it. Writing output
// inside the watched tree would retrigger the watcher.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// addTree watches dir and every directory below it; fsnotify is not
// recursive.
func addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("watch stopped")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

func (w *watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := addTree(fsw, ev.Name); err != nil {
				slog.Warn("failed to watch directory", "dir", ev.Name, "error", err)
			}
		}
		return
	}
	if !expand.IsSource(ev.Name) {
		return
	}
	src, err := os.ReadFile(ev.Name)
	if err != nil {
		slog.Warn("failed to read source", "path", ev.Name, "error", err)
		return
	}
	if err := w.pass(ctx, "watch", []expand.File{{Path: ev.Name, Src: src}}); err != nil {
		slog.Warn("expansion failed", "path", ev.Name, "error", err)
	}
}

// pass expands files, writes them under outDir, and reports diagnostics.
func (w *watcher) pass(ctx context.Context, command string, files []expand.File) error {
	results, err := w.expander.ExpandFiles(ctx, files)
	if err != nil {
		return err
	}
	errw := w.formatter.GetErrWriter()
	for _, r := range results {
		for _, d := range r.Diagnostics {
			printDiagnostic(errw, r.Path, d)
		}
		out, err := w.outPath(r.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(out, r.Output, 0644); err != nil {
			return err
		}
		w.formatter.VerboseLog("Expanded %s -> %s", r.Path, out)
	}
	if w.st != nil {
		if _, err := recordRun(ctx, w.st, w.runIDs, command, w.expander, results); err != nil {
			return err
		}
	}
	return nil
}

// outPath maps a source below root to the same relative path below outDir.
func (w *watcher) outPath(path string) (string, error) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(w.outDir, rel), nil
}
