package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/expand"
	"github.com/roach88/constguard/internal/ir"
	"github.com/roach88/constguard/internal/store"
)

// ExpandOptions holds flags for the expand command.
type ExpandOptions struct {
	*RootOptions
	Output  string // output file path (single input only)
	InPlace bool
	Ledger  string

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs RunIDGenerator
}

// FileSummary is the JSON report for one expanded file.
type FileSummary struct {
	Path        string             `json:"path"`
	Changed     bool               `json:"changed"`
	Output      string             `json:"output,omitempty"`
	Expansions  []ir.Expansion     `json:"expansions"`
	Diagnostics []*diag.Diagnostic `json:"diagnostics,omitempty"`
}

// ExpandResult holds the expand command's JSON payload.
type ExpandResult struct {
	Files    []FileSummary `json:"files"`
	Expanded int           `json:"expanded"`
	Rejected int           `json:"rejected"`
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpandOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expand <path>...",
		Short: "Expand guard attributes in source files",
		Long: `Expand every #[guard(...)] attribute in the given source files and
directories. Each guarded declaration gains a parameter-constraint clause
that fails compilation for instantiations violating the guard; all other
text is left untouched.

Rejected guards are reported as diagnostics and leave their item as written.

Exit codes:
  0 - All guards expanded
  1 - One or more guards were rejected
  2 - Command error (invalid paths, bad config, etc.)

Examples:
  constguard expand src/lib.rs
  constguard expand src/lib.rs -o build/lib.rs
  constguard expand src --in-place --ledger .constguard/ledger.db
  constguard expand src --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (single input file only)")
	cmd.Flags().BoolVar(&opts.InPlace, "in-place", false, "rewrite the input files")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "record expansions in this ledger and reuse cached output")

	return cmd
}

// expansionRun is the shared front half of expand and check: load config and
// files, expand them, optionally against a ledger.
type expansionRun struct {
	expander *expand.Expander
	results  []*expand.FileResult
	run      *ir.Run
}

func expandPaths(ctx context.Context, opts *RootOptions, formatter *OutputFormatter, paths []string, ledger, command string, gen RunIDGenerator) (*expansionRun, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, formatter.Fail(ErrCodeConfig, "invalid configuration", err)
	}

	files, err := expand.LoadFiles(paths)
	if err != nil {
		return nil, formatter.Fail(ErrCodeNotFound, "failed to load sources", err)
	}
	if len(files) == 0 {
		return nil, formatter.Fail(ErrCodeNoFiles, fmt.Sprintf("no source files found in %v", paths), nil)
	}
	formatter.VerboseLog("Found %d source file(s)", len(files))

	ledger = ledgerPath(ledger, cfg.Ledger)
	var st *store.Store
	var xopts []expand.ExpanderOption
	if ledger != "" {
		if st, err = openLedger(ledger, false); err != nil {
			return nil, formatter.Fail(ErrCodeLedger, "failed to open ledger", err)
		}
		defer st.Close()
		xopts = append(xopts, expand.WithCache(st))
	}

	out := &expansionRun{expander: expand.New(cfg.Expand(), xopts...)}
	if out.results, err = out.expander.ExpandFiles(ctx, files); err != nil {
		return nil, formatter.Fail(ErrCodeGeneric, "expansion interrupted", err)
	}

	if st != nil {
		run, err := recordRun(ctx, st, gen, command, out.expander, out.results)
		if err != nil {
			return nil, formatter.Fail(ErrCodeLedger, "failed to record run", err)
		}
		out.run = &run
		formatter.VerboseLog("Recorded run %s (seq %d) in %s", run.ID, run.Seq, ledger)
	}
	return out, nil
}

func runExpand(opts *ExpandOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.InPlace && opts.Output != "" {
		return formatter.Fail(ErrCodeUsage, "--output and --in-place are mutually exclusive", nil)
	}

	er, err := expandPaths(commandContext(cmd), opts.RootOptions, formatter, paths, opts.Ledger, "expand", opts.RunIDs)
	if err != nil {
		return err
	}
	if opts.Output != "" && len(er.results) != 1 {
		return formatter.Fail(ErrCodeUsage, fmt.Sprintf("--output needs exactly one input file, got %d", len(er.results)), nil)
	}

	result := ExpandResult{Files: make([]FileSummary, 0, len(er.results))}
	for _, r := range er.results {
		summary := FileSummary{
			Path:        r.Path,
			Changed:     r.Changed(),
			Expansions:  make([]ir.Expansion, 0, len(r.Expansions)),
			Diagnostics: r.Diagnostics,
		}
		for _, e := range r.Expansions {
			summary.Expansions = append(summary.Expansions, e.Record(r.Path))
			if e.Diagnostic == nil {
				result.Expanded++
			}
		}
		// A file that does not lex is one rejection without an expansion.
		result.Rejected += len(r.Diagnostics)
		if opts.Output == "" && !opts.InPlace {
			summary.Output = string(r.Output)
		}
		result.Files = append(result.Files, summary)

		if err := writeExpansion(opts, r); err != nil {
			return formatter.Fail(ErrCodeWriteFailed, fmt.Sprintf("writing %s", r.Path), err)
		}
	}

	if formatter.Format == "json" {
		return outputExpandJSON(formatter, result, er.run)
	}
	return outputExpandText(formatter, opts, result, er.results)
}

// writeExpansion writes r to --output, or back to its source with
// --in-place when it changed.
func writeExpansion(opts *ExpandOptions, r *expand.FileResult) error {
	switch {
	case opts.Output != "":
		return os.WriteFile(opts.Output, r.Output, 0644)
	case opts.InPlace && r.Changed():
		info, err := os.Stat(r.Path)
		if err != nil {
			return err
		}
		return os.WriteFile(r.Path, r.Output, info.Mode().Perm())
	}
	return nil
}

func outputExpandJSON(formatter *OutputFormatter, result ExpandResult, run *ir.Run) error {
	response := CLIResponse{Status: "ok", Data: result}
	if run != nil {
		response.RunID = run.ID
	}
	if result.Rejected > 0 {
		response.Status = "error"
		response.Error = rejectionError(result)
	}
	if err := formatter.Response(response); err != nil {
		return err
	}
	if result.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d guard(s) rejected", result.Rejected))
	}
	return nil
}

// rejectionError reports the first rejection; all of them are in Data.
func rejectionError(result ExpandResult) *CLIError {
	for _, f := range result.Files {
		if len(f.Diagnostics) > 0 {
			d := f.Diagnostics[0]
			return &CLIError{
				Code:    d.Code,
				Message: fmt.Sprintf("%d guard(s) rejected", result.Rejected),
				Details: fmt.Sprintf("%s:%s", f.Path, d.Error()),
			}
		}
	}
	return &CLIError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%d guard(s) rejected", result.Rejected)}
}

func outputExpandText(formatter *OutputFormatter, opts *ExpandOptions, result ExpandResult, results []*expand.FileResult) error {
	w := formatter.Writer
	errw := formatter.GetErrWriter()

	if opts.Output == "" && !opts.InPlace {
		writeSources(w, results)
	}

	for _, r := range results {
		for _, d := range r.Diagnostics {
			printDiagnostic(errw, r.Path, d)
		}
		if opts.InPlace && r.Changed() {
			formatter.VerboseLog("Rewrote %s", r.Path)
		}
	}
	if opts.Output != "" {
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	if result.Rejected > 0 {
		fmt.Fprintf(errw, "✗ %d guard(s) expanded, %d rejected\n", result.Expanded, result.Rejected)
		return NewExitError(ExitFailure, fmt.Sprintf("%d guard(s) rejected", result.Rejected))
	}
	if opts.Output != "" || opts.InPlace {
		fmt.Fprintf(w, "✓ %d guard(s) expanded in %d file(s)\n", result.Expanded, len(results))
	}
	return nil
}

// writeSources prints expanded files, with a header per file when there
// is more than one.
func writeSources(w io.Writer, results []*expand.FileResult) {
	for i, r := range results {
		if len(results) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "==> %s <==\n", r.Path)
		}
		w.Write(r.Output)
	}
}

// commandContext returns the command's context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
