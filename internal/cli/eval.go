package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/constguard/internal/consteval"
	"github.com/roach88/constguard/internal/decl"
	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/expand"
	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/token"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Item  string
	Guard string
	Trait bool
}

// EvalResult holds the eval command's JSON payload.
type EvalResult struct {
	Ident      string            `json:"ident"`
	Kind       string            `json:"kind"`
	Params     []string          `json:"params"`
	Output     string            `json:"output"`
	Args       map[string]string `json:"args,omitempty"`
	Evaluated  bool              `json:"evaluated"`
	Passed     bool              `json:"passed,omitempty"`
	Diagnostic *diag.Diagnostic  `json:"diagnostic,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval --item <declaration> --guard <guard> [NAME=VALUE...]",
		Short: "Apply one guard and optionally evaluate it",
		Long: `Apply a single guard to a single declaration and print the emitted
declaration. With NAME=VALUE arguments, the guard is also evaluated for
that instantiation.

Exit codes:
  0 - Guard emitted (and passed, when evaluated)
  1 - Guard rejected, failed, or could not be evaluated
  2 - Command error (invalid flags, bad config, etc.)

Examples:
  constguard eval --item 'fn f<const N: usize>() {}' --guard 'N > 0'
  constguard eval --item 'fn f<const N: usize>() {}' --guard 'N > 0' N=0
  constguard eval --trait --item 'type Out<const N: usize>: Copy;' --guard 'N < 8'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Item, "item", "", "declaration to guard (required)")
	_ = cmd.MarkFlagRequired("item")
	cmd.Flags().StringVar(&opts.Guard, "guard", "", "guard attribute argument (required)")
	_ = cmd.MarkFlagRequired("guard")
	cmd.Flags().BoolVar(&opts.Trait, "trait", false, "expand in trait context")

	return cmd
}

func runEval(opts *EvalOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	bindings, err := parseBindings(args)
	if err != nil {
		return formatter.Fail(ErrCodeUsage, "invalid argument", err)
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "invalid configuration", err)
	}

	item, err := token.Lex(opts.Item)
	if err != nil {
		return outputEvalRejected(formatter, diag.FromLex(err))
	}
	attr, err := token.Lex(opts.Guard)
	if err != nil {
		return outputEvalRejected(formatter, diag.FromLex(err))
	}

	ctx := decl.ContextItem
	if opts.Trait {
		ctx = decl.ContextTrait
	}
	x := expand.New(cfg.Expand())
	res := x.ExpandIn(ctx, item, attr)
	if res.Diagnostic != nil {
		return outputEvalRejected(formatter, res.Diagnostic)
	}

	result := EvalResult{
		Ident:  res.Decl.Ident,
		Kind:   res.Decl.Kind.String(),
		Output: res.Output.String(),
	}
	for _, p := range res.Params.Params {
		result.Params = append(result.Params, p.Ident)
	}

	if len(bindings) > 0 {
		result.Evaluated = true
		result.Args = map[string]string{}
		bound := map[string]token.Stream{}
		for name, text := range bindings {
			s, err := token.Lex(text)
			if err != nil {
				return formatter.Fail(ErrCodeUsage, fmt.Sprintf("invalid value for %s", name), err)
			}
			bound[name] = s
			result.Args[name] = s.String()
		}
		ev := consteval.New(
			consteval.WithStepLimit(x.Config().StepLimit),
			consteval.WithMessage(x.Config().Emit.Message),
		)
		instance := instanceText(result.Ident, res.Params.Params, result.Args)
		outcome, err := ev.EvalGuard(res.Guard, res.Params.Params, bound)
		switch {
		case err != nil:
			result.Diagnostic = diag.NotEvaluable(token.Pos{}, "%s: %v", instance, err)
		case !outcome.Passed:
			result.Diagnostic = diag.GuardFailed(token.Pos{}, outcome.Message, instance)
		default:
			result.Passed = true
		}
	}

	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if result.Diagnostic != nil {
			response.Status = "error"
			response.Error = &CLIError{Code: result.Diagnostic.Code, Message: result.Diagnostic.Message, Details: result.Diagnostic.Detail}
		}
		if err := formatter.Response(response); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, result.Output)
		if result.Evaluated {
			if result.Passed {
				fmt.Fprintf(formatter.Writer, "✓ guard holds for %s\n", instanceText(result.Ident, res.Params.Params, result.Args))
			} else {
				fmt.Fprintf(formatter.Writer, "✗ %s\n", result.Diagnostic.Error())
			}
		}
	}

	if result.Diagnostic != nil {
		return NewExitError(ExitFailure, result.Diagnostic.Error())
	}
	return nil
}

func outputEvalRejected(formatter *OutputFormatter, d *diag.Diagnostic) error {
	_ = formatter.Error(d.Code, d.Error(), nil)
	return WrapExitError(ExitFailure, "guard rejected", d)
}

// parseBindings parses NAME=VALUE arguments.
func parseBindings(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%q: want NAME=VALUE", a)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%q: %s bound twice", a, name)
		}
		out[name] = value
	}
	return out, nil
}

// instanceText renders `ident::<args>` in parameter order, for messages.
func instanceText(ident string, params []generics.Param, args map[string]string) string {
	var parts []string
	for _, p := range params {
		if v, ok := args[p.Ident]; ok {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		names := make([]string, 0, len(args))
		for k := range args {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			parts = append(parts, args[k])
		}
	}
	return fmt.Sprintf("%s ::< %s >", ident, strings.Join(parts, " , "))
}
