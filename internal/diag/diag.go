// Package diag defines the diagnostics produced by the guard transformer.
//
// Every failure the pipeline can report is a *Diagnostic carrying a stable
// code and a fixed message. The fixed messages are part of the external
// interface: they surface verbatim as compile errors in the guarded crate,
// so they must never be reworded.
package diag

import (
	"errors"
	"fmt"

	"github.com/roach88/constguard/internal/token"
)

// Diagnostic codes (E100-E399).
const (
	// Token layer (E100-E199)
	CodeLex = "E101" // source text does not lex

	// Transformation (E200-E299)
	CodeUnsupportedDeclaration = "E201" // declaration kind cannot carry a where clause
	CodeInvalidGuard           = "E202" // guard argument is neither variant
	CodeAmbiguousParameter     = "E203" // same identifier, different parameter kinds

	// Evaluation (E300-E399)
	CodeGuardFailed  = "E301" // guard evaluated to false or panicked
	CodeNotEvaluable = "E302" // guard uses constructs the evaluator cannot run

	CodeGeneric = "E001"
)

// Fixed diagnostic messages.
const (
	MsgUnsupportedDeclaration = "guarded items need to support parameter-constraint clauses"
	MsgInvalidGuard           = "guard must be an expression or parameter-prefixed block"
	MsgGuardFailed            = "guard evaluated to false"
	MsgAmbiguousParameter     = "guard parameters are ambiguous"
	MsgLex                    = "invalid token"
	MsgNotEvaluable           = "guard cannot be evaluated for this instantiation"
)

// Diagnostic is a terminal, user-visible failure of one guard application.
type Diagnostic struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	Pos     token.Pos `json:"pos"`
}

func (d *Diagnostic) Error() string {
	msg := d.Message
	if d.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", d.Message, d.Detail)
	}
	if d.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", d.Pos, d.Code, msg)
	}
	return fmt.Sprintf("%s: %s", d.Code, msg)
}

// Unsupported reports a declaration the decomposer cannot handle.
func Unsupported(pos token.Pos, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Code:    CodeUnsupportedDeclaration,
		Message: MsgUnsupportedDeclaration,
		Detail:  fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// InvalidGuard reports a guard argument that parses as neither variant.
func InvalidGuard(pos token.Pos, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Code:    CodeInvalidGuard,
		Message: MsgInvalidGuard,
		Detail:  fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// Ambiguous reports a merged parameter identifier declared with two kinds.
func Ambiguous(pos token.Pos, ident, first, second string) *Diagnostic {
	return &Diagnostic{
		Code:    CodeAmbiguousParameter,
		Message: MsgAmbiguousParameter,
		Detail:  fmt.Sprintf("guard parameter `%s` is declared as both a %s and a %s parameter", ident, first, second),
		Pos:     pos,
	}
}

// GuardFailed reports a guard that evaluated to false for an instantiation.
// message is either the default message or a custom panic message.
func GuardFailed(pos token.Pos, message, instance string) *Diagnostic {
	return &Diagnostic{
		Code:    CodeGuardFailed,
		Message: message,
		Detail:  instance,
		Pos:     pos,
	}
}

// NotEvaluable reports a guard the evaluator cannot run for an
// instantiation.
func NotEvaluable(pos token.Pos, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Code:    CodeNotEvaluable,
		Message: MsgNotEvaluable,
		Detail:  fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// FromLex converts a lexer error into a diagnostic. Other errors are
// wrapped with the generic code.
func FromLex(err error) *Diagnostic {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d
	}
	var syn *token.SyntaxError
	if errors.As(err, &syn) {
		return &Diagnostic{Code: CodeLex, Message: MsgLex, Detail: syn.Message, Pos: syn.Pos}
	}
	return &Diagnostic{Code: CodeGeneric, Message: err.Error()}
}

// As extracts a *Diagnostic from err.
func As(err error) (*Diagnostic, bool) {
	var d *Diagnostic
	ok := errors.As(err, &d)
	return d, ok
}
