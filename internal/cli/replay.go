package cli

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/constguard/internal/config"
	"github.com/roach88/constguard/internal/expand"
	"github.com/roach88/constguard/internal/ir"
	"github.com/roach88/constguard/internal/token"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Ledger string
	Run    string // optional - specific run only
}

// ReplayMismatch describes one expansion that did not reproduce.
type ReplayMismatch struct {
	Path     string `json:"path"`
	Line     int64  `json:"line"`
	Field    string `json:"field"` // "id", "output", "code", "input"
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string           `json:"run_id"`
	Seq           int64            `json:"seq"`
	Command       string           `json:"command"`
	Expansions    int              `json:"expansions"`
	Deterministic bool             `json:"deterministic"`
	Mismatches    []ReplayMismatch `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-expand ledger records and verify determinism",
		Long: `Re-expand every expansion recorded in the ledger with the options its
run recorded, twice, and verify that each reproduces the recorded
expansion ID, output, and rejection code exactly.

Exit codes:
  0 - Every run is deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (ledger not found, etc.)

Examples:
  constguard replay --ledger .constguard/ledger.db
  constguard replay --ledger .constguard/ledger.db --run latest
  constguard replay --ledger .constguard/ledger.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to the ledger (default: from "+config.FileName+")")
	cmd.Flags().StringVar(&opts.Run, "run", "", `replay one run only ("latest" for the most recent)`)

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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

	var runs []ir.Run
	switch opts.Run {
	case "":
		runs, err = st.ReadRuns(ctx, 0)
	case "latest":
		var run ir.Run
		run, err = st.LatestRun(ctx)
		runs = []ir.Run{run}
	default:
		var run ir.Run
		run, err = st.ReadRun(ctx, opts.Run)
		runs = []ir.Run{run}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.Fail(ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.Run), nil)
	}
	if err != nil {
		return formatter.Fail(ErrCodeLedger, "failed to read runs", err)
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runs)),
		TotalRuns:        len(runs),
		AllDeterministic: true,
	}
	for _, run := range runs {
		exps, err := st.ReadExpansions(ctx, run.ID)
		if err != nil {
			return formatter.Fail(ErrCodeLedger, fmt.Sprintf("failed to read run %s", run.ID), err)
		}
		rr := replayRun(run, exps)
		if !rr.Deterministic {
			result.AllDeterministic = false
		}
		result.Runs = append(result.Runs, rr)
	}

	if formatter.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// replayRun re-expands every record of run twice with the run's options.
func replayRun(run ir.Run, exps []ir.Expansion) ReplayRunResult {
	rr := ReplayRunResult{
		RunID:         run.ID,
		Seq:           run.Seq,
		Command:       run.Command,
		Expansions:    len(exps),
		Deterministic: true,
	}

	xcfg := expand.DefaultConfig()
	xcfg.Emit = expand.EmitOptions(run.Options)
	x := expand.New(xcfg)

	if hash, err := ir.OptionsHash(x.OptionMap()); err != nil || hash != run.OptionsHash {
		rr.Mismatches = append(rr.Mismatches, ReplayMismatch{Field: "options_hash", Recorded: run.OptionsHash, Replayed: hash})
	}

	for _, e := range exps {
		first := replayExpansion(x, e)
		second := replayExpansion(x, e)
		rr.Mismatches = append(rr.Mismatches, compareReplay(e, first)...)
		if first != second {
			rr.Mismatches = append(rr.Mismatches, ReplayMismatch{
				Path: e.Path, Line: e.Line, Field: "output",
				Recorded: first.Output, Replayed: second.Output,
			})
		}
	}
	rr.Deterministic = len(rr.Mismatches) == 0
	return rr
}

// replayed is the reproducible part of one re-expansion.
type replayed struct {
	ID     string
	Output string
	Code   string
	Err    string
}

func replayExpansion(x *expand.Expander, e ir.Expansion) replayed {
	ctx, err := expand.ParseContext(e.Context)
	if err != nil {
		return replayed{Err: err.Error()}
	}
	item, err := token.Lex(e.Input)
	if err != nil {
		return replayed{Err: err.Error()}
	}
	attr, err := token.Lex(e.Guard)
	if err != nil {
		return replayed{Err: err.Error()}
	}

	var out replayed
	if id, err := ir.ExpansionID(x.Key(ctx, item, attr)); err == nil {
		out.ID = id
	}
	res := x.ExpandIn(ctx, item, attr)
	if res.Diagnostic != nil {
		out.Code = res.Diagnostic.Code
		return out
	}
	out.Output = res.Output.String()
	return out
}

func compareReplay(e ir.Expansion, got replayed) []ReplayMismatch {
	var out []ReplayMismatch
	add := func(field, recorded, replayed string) {
		out = append(out, ReplayMismatch{Path: e.Path, Line: e.Line, Field: field, Recorded: recorded, Replayed: replayed})
	}
	if got.Err != "" {
		add("input", e.Input, got.Err)
		return out
	}
	if got.ID != e.ID {
		add("id", e.ID, got.ID)
	}
	if got.Code != e.Code {
		add("code", e.Code, got.Code)
	}
	if got.Output != e.Output {
		add("output", e.Output, got.Output)
	}
	return out
}

func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeDeterminism,
			Message: "determinism verification failed",
		}
	}
	if err := formatter.Response(response); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Run %d: %s (%s)\n", status, run.Seq, run.RunID, run.Command)
		fmt.Fprintf(w, "  Expansions: %d\n", run.Expansions)
		for _, m := range run.Mismatches {
			fmt.Fprintf(w, "  %s:%d %s differs\n", m.Path, m.Line, m.Field)
			if formatter.Verbose {
				fmt.Fprintf(w, "    recorded: %s\n", m.Recorded)
				fmt.Fprintf(w, "    replayed: %s\n", m.Replayed)
			}
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All runs verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
