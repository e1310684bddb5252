package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/constguard/internal/config"
)

// ValidationError is one configuration problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Path   string            `json:"path,omitempty"`
	Config *config.Config    `json:"config,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [" + config.FileName + "]",
		Short: "Validate the configuration file",
		Long: `Validate a constguard.cue file against the configuration schema and
print the effective configuration, defaults included.

Without an argument the file named by --config is used, or the one found
by searching the working directory and its parents.

Exit codes:
  0 - Configuration is valid
  1 - Configuration is invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if path == "" {
		found, ok := config.Discover(".")
		if !ok {
			formatter.VerboseLog("No %s found; showing defaults", config.FileName)
			return outputValidateSuccess(formatter, ValidationResult{Valid: true, Config: config.Default()})
		}
		path = found
	}
	formatter.VerboseLog("Validating %s", path)

	cfg, err := config.Load(path)
	var cerr *config.Error
	switch {
	case errors.As(err, &cerr):
		verr := ValidationError{Field: cerr.Field, Message: cerr.Message, Code: ErrCodeConfig}
		if cerr.Pos.IsValid() {
			verr.Line, verr.Column = cerr.Pos.Line(), cerr.Pos.Column()
		}
		return outputValidationErrors(formatter, ValidationResult{Path: path, Errors: []ValidationError{verr}})
	case err != nil:
		return formatter.Fail(ErrCodeNotFound, fmt.Sprintf("cannot read %s", path), err)
	}

	return outputValidateSuccess(formatter, ValidationResult{Valid: true, Path: path, Config: cfg})
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Response(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	c := result.Config
	if result.Path != "" {
		fmt.Fprintf(w, "✓ %s valid\n", result.Path)
	} else {
		fmt.Fprintln(w, "✓ Using defaults")
	}
	fmt.Fprintf(w, "  attributes:  %s\n", strings.Join(c.Attributes, ", "))
	fmt.Fprintf(w, "  witness:     %s\n", c.Witness)
	fmt.Fprintf(w, "  capability:  %s\n", c.Capability)
	fmt.Fprintf(w, "  guard fn:    %s<ident>%s\n", c.Prefix, c.Suffix)
	fmt.Fprintf(w, "  message:     %q\n", c.Message)
	fmt.Fprintf(w, "  step limit:  %d\n", c.StepLimit)
	if c.Concurrency > 0 {
		fmt.Fprintf(w, "  concurrency: %d\n", c.Concurrency)
	}
	if c.Requires != "" {
		fmt.Fprintf(w, "  requires:    %s\n", c.Requires)
	}
	if c.Ledger != "" {
		fmt.Fprintf(w, "  ledger:      %s\n", c.Ledger)
	}
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		first := result.Errors[0]
		if err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: fmt.Sprintf("%s: %s", first.Field, first.Message)},
		}); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "✗ %s invalid\n", result.Path)
		for _, e := range result.Errors {
			if e.Line > 0 {
				fmt.Fprintf(w, "  %s:%d:%d: %s: %s\n", result.Path, e.Line, e.Column, e.Field, e.Message)
			} else {
				fmt.Fprintf(w, "  %s: %s\n", e.Field, e.Message)
			}
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d configuration error(s)", len(result.Errors)))
}
