package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/expand"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Ledger string
	RunIDs RunIDGenerator
}

// InstanceReport is the JSON report for one checked instantiation.
type InstanceReport struct {
	Path       string            `json:"path"`
	Line       int               `json:"line"`
	Column     int               `json:"column"`
	Ident      string            `json:"ident"`
	Text       string            `json:"text"`
	Args       map[string]string `json:"args"`
	Passed     bool              `json:"passed"`
	Diagnostic *diag.Diagnostic  `json:"diagnostic,omitempty"`
}

// CheckResult holds the check command's JSON payload.
type CheckResult struct {
	Instances []InstanceReport `json:"instances"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Rejected  int              `json:"rejected"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <path>...",
		Short: "Check concrete instantiations against their guards",
		Long: `Expand the given sources, then evaluate the guard of every guarded
declaration for each concrete instantiation found in them, the way the
compiler would when it monomorphizes the item.

Instantiations whose arguments still depend on outer generic parameters
are skipped.

Exit codes:
  0 - All instantiations satisfy their guards
  1 - A guard failed, could not be evaluated, or was rejected
  2 - Command error (invalid paths, bad config, etc.)

Examples:
  constguard check src
  constguard check src/lib.rs src/main.rs --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "record expansions in this ledger and reuse cached output")

	return cmd
}

func runCheck(opts *CheckOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	er, err := expandPaths(commandContext(cmd), opts.RootOptions, formatter, paths, opts.Ledger, "check", opts.RunIDs)
	if err != nil {
		return err
	}

	result := CheckResult{Instances: []InstanceReport{}}
	for _, r := range er.results {
		result.Rejected += len(r.Diagnostics)
	}
	for _, in := range er.expander.Check(er.results...) {
		result.Instances = append(result.Instances, InstanceReport{
			Path:       in.Path,
			Line:       in.Pos.Line,
			Column:     in.Pos.Col,
			Ident:      in.Ident,
			Text:       in.Text,
			Args:       in.Args,
			Passed:     in.Passed,
			Diagnostic: in.Diagnostic,
		})
		if in.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.Format == "json" {
		return outputCheckJSON(formatter, result)
	}
	return outputCheckText(formatter, result, er.results)
}

func (r CheckResult) failure() error {
	if r.Failed == 0 && r.Rejected == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d instantiation(s) failed, %d guard(s) rejected", r.Failed, r.Rejected))
}

func outputCheckJSON(formatter *OutputFormatter, result CheckResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if err := result.failure(); err != nil {
		response.Status = "error"
		response.Error = &CLIError{Code: diag.CodeGuardFailed, Message: err.Error()}
		for _, in := range result.Instances {
			if in.Diagnostic != nil {
				response.Error.Code = in.Diagnostic.Code
				break
			}
		}
	}
	if err := formatter.Response(response); err != nil {
		return err
	}
	return result.failure()
}

func outputCheckText(formatter *OutputFormatter, result CheckResult, results []*expand.FileResult) error {
	w := formatter.Writer

	for _, r := range results {
		for _, d := range r.Diagnostics {
			printDiagnostic(formatter.GetErrWriter(), r.Path, d)
		}
	}

	for _, in := range result.Instances {
		if in.Passed {
			if formatter.Verbose {
				fmt.Fprintf(w, "✓ %s:%d:%d %s\n", in.Path, in.Line, in.Column, in.Text)
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s:%s\n", in.Path, in.Diagnostic.Error())
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Check Summary: %d passed, %d failed, %d instantiation(s)\n", result.Passed, result.Failed, len(result.Instances))
	if err := result.failure(); err != nil {
		return err
	}
	fmt.Fprintln(w, "✓ All instantiations satisfy their guards")
	return nil
}
