// Package guard parses the argument of a guard attribute.
//
// A guard is either a boolean expression over the declaration's parameters
// or a poly-block: a brace block, optionally prefixed by its own generic
// parameter list, whose value is the guard. The variant is decided by the
// first token alone (see Classify) before any parsing is attempted.
package guard

import (
	"errors"
	"fmt"

	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/token"
)

// Variant is the syntactic form of a guard.
type Variant int

const (
	Expression Variant = iota
	PolyBlock
)

func (v Variant) String() string {
	switch v {
	case Expression:
		return "expression"
	case PolyBlock:
		return "poly-block"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Classify picks the variant from the first tree: `<` or a brace group
// selects PolyBlock, anything else Expression.
func Classify(s token.Stream) Variant {
	if len(s) == 0 {
		return Expression
	}
	first := s[0]
	if first.IsPunct("<") || first.IsGroup(token.Brace) {
		return PolyBlock
	}
	return Expression
}

// Spec is a parsed guard.
type Spec struct {
	Variant Variant

	// Expr is set for Expression guards.
	Expr Expr

	// Generics, HasGenerics and Block are set for PolyBlock guards.
	// HasGenerics distinguishes `<> { }` from `{ }`.
	Generics    []generics.Param
	HasGenerics bool
	Block       *Block

	// Tokens is the raw guard argument; body is the expression or block
	// portion of it.
	Tokens token.Stream
	body   token.Stream
}

// Value returns the guard value as it is embedded in the synthesized
// function: the expression wrapped in parentheses, or the block itself.
func (spec *Spec) Value() token.Stream {
	if spec.Variant == PolyBlock {
		return spec.body
	}
	return token.NewBuilder().Group(token.Paren, spec.body).Build()
}

// Body returns the guard's value expression: the parsed expression, or the
// block.
func (spec *Spec) Body() Expr {
	if spec.Variant == PolyBlock {
		return spec.Block
	}
	return spec.Expr
}

// Parse parses a guard argument. Failures are E202 diagnostics.
func Parse(s token.Stream) (*Spec, error) {
	if len(s) == 0 {
		return nil, diag.InvalidGuard(token.Pos{}, "empty guard")
	}
	spec := &Spec{Variant: Classify(s), Tokens: s}

	var err error
	switch spec.Variant {
	case PolyBlock:
		err = spec.parsePolyBlock(s)
	default:
		spec.body = s
		spec.Expr, err = ParseExpr(s)
	}
	if err != nil {
		return nil, invalid(err)
	}
	return spec, nil
}

func (spec *Spec) parsePolyBlock(s token.Stream) error {
	c := token.NewCursor(s)
	if c.PeekPunct("<") {
		params, err := generics.ParseParams(c)
		if err != nil {
			return err
		}
		spec.Generics = params
		spec.HasGenerics = true
	}
	t, ok := c.Peek()
	if !ok || !t.IsGroup(token.Brace) {
		return &token.SyntaxError{Pos: c.Pos(), Message: "expected `{` after guard parameters"}
	}
	c.Next()
	if !c.EOF() {
		return &token.SyntaxError{Pos: c.Pos(), Message: fmt.Sprintf("unexpected `%s` after guard block", c.Rest())}
	}
	b, err := ParseBlock(t)
	if err != nil {
		return err
	}
	spec.Block = b
	spec.body = token.Stream{t}
	return nil
}

func invalid(err error) error {
	var syn *token.SyntaxError
	if errors.As(err, &syn) {
		return diag.InvalidGuard(syn.Pos, "%s", syn.Message)
	}
	return diag.InvalidGuard(token.Pos{}, "%s", err.Error())
}
