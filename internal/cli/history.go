package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/constguard/internal/config"
	"github.com/roach88/constguard/internal/ir"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Ledger string
	Limit  int
	Run    string
}

// HistoryResult holds the history command's JSON payload. Runs is set
// when listing runs, Run and Expansions when showing one run.
type HistoryResult struct {
	Runs       []ir.Run       `json:"runs,omitempty"`
	Run        *ir.Run        `json:"run,omitempty"`
	Expansions []ir.Expansion `json:"expansions,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs recorded in a ledger",
		Long: `List the runs recorded in an expansion ledger, most recent last, or
show every expansion one run recorded.

Examples:
  constguard history --ledger .constguard/ledger.db
  constguard history --ledger .constguard/ledger.db --limit 5
  constguard history --ledger .constguard/ledger.db --run 0192...
  constguard history --ledger .constguard/ledger.db --run latest --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to the ledger (default: from "+config.FileName+")")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list (0 lists all)")
	cmd.Flags().StringVar(&opts.Run, "run", "", `show the expansions of one run ("latest" for the most recent)`)

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "invalid configuration", err)
	}
	path := ledgerPath(opts.Ledger, cfg.Ledger)
	if path == "" {
		return formatter.Fail(ErrCodeUsage, "no ledger: pass --ledger or set ledger in "+config.FileName, nil)
	}
	st, err := openLedger(path, true)
	if err != nil {
		return formatter.Fail(ErrCodeLedger, "failed to open ledger", err)
	}
	defer st.Close()

	if opts.Run == "" {
		runs, err := st.ReadRuns(ctx, opts.Limit)
		if err != nil {
			return formatter.Fail(ErrCodeLedger, "failed to read runs", err)
		}
		if formatter.Format == "json" {
			return formatter.Response(CLIResponse{Status: "ok", Data: HistoryResult{Runs: runs}})
		}
		return outputRunsText(formatter, runs)
	}

	var run ir.Run
	if opts.Run == "latest" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, opts.Run)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.Fail(ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.Run), nil)
	}
	if err != nil {
		return formatter.Fail(ErrCodeLedger, "failed to read run", err)
	}
	exps, err := st.ReadExpansions(ctx, run.ID)
	if err != nil {
		return formatter.Fail(ErrCodeLedger, "failed to read expansions", err)
	}

	if formatter.Format == "json" {
		return formatter.Response(CLIResponse{
			Status: "ok",
			Data:   HistoryResult{Run: &run, Expansions: exps},
			RunID:  run.ID,
		})
	}
	return outputRunText(formatter, run, exps)
}

func outputRunsText(formatter *OutputFormatter, runs []ir.Run) error {
	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN\tCOMMAND\tFILES\tEXPANDED\tREJECTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n", r.Seq, r.ID, r.Command, r.Files, r.Expanded, r.Rejected)
	}
	return tw.Flush()
}

func outputRunText(formatter *OutputFormatter, run ir.Run, exps []ir.Expansion) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Run %s (seq %d)\n", run.ID, run.Seq)
	fmt.Fprintf(w, "  command:  %s\n", run.Command)
	fmt.Fprintf(w, "  version:  %s\n", run.ToolVersion)
	fmt.Fprintf(w, "  options:  %s\n", run.OptionsHash)
	fmt.Fprintf(w, "  files:    %d\n", run.Files)
	fmt.Fprintf(w, "  expanded: %d, rejected: %d\n", run.Expanded, run.Rejected)
	fmt.Fprintln(w)

	for _, e := range exps {
		if e.Rejected() {
			fmt.Fprintf(w, "✗ %s:%d [%s] %s\n", e.Path, e.Line, e.Guard, e.Message)
			continue
		}
		fmt.Fprintf(w, "✓ %s:%d %s %s [%s]\n", e.Path, e.Line, e.Kind, e.Ident, e.Guard)
		formatter.VerboseLog("  %s", e.Output)
	}
	return nil
}
