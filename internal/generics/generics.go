// Package generics models generic parameter lists and where clauses.
//
// A Param is identified by its identifier; equality and ordering are by
// identifier text only. Lifetime parameters are parsed because declarations
// carry them, but they are never forwarded into a merged guard parameter set.
package generics

import (
	"fmt"

	"github.com/roach88/constguard/internal/token"
)

// Kind is the kind of a generic parameter.
type Kind int

const (
	Type Kind = iota
	Const
	Lifetime
)

func (k Kind) String() string {
	switch k {
	case Type:
		return "type"
	case Const:
		return "const"
	case Lifetime:
		return "lifetime"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Param is one generic parameter.
type Param struct {
	Kind    Kind
	Ident   string
	Attrs   token.Stream // outer attributes on the parameter
	Bounds  token.Stream // bounds (type, lifetime) or the value type (const)
	Default token.Stream // default after `=`, if any
	Span    token.Span
}

// Forwardable reports whether the parameter may be passed to a synthesized
// guard function, i.e. it is a type or const parameter.
func (p Param) Forwardable() bool {
	return p.Kind == Type || p.Kind == Const
}

// Decl renders the parameter as it appears in a parameter list, without its
// default.
func (p Param) Decl() token.Stream {
	b := token.NewBuilder().Stream(p.Attrs)
	if p.Kind == Const {
		b.Ident("const")
	}
	if p.Kind == Lifetime {
		b.Tree(token.Tree{Kind: token.Lifetime, Text: p.Ident})
	} else {
		b.Ident(p.Ident)
	}
	if len(p.Bounds) > 0 {
		b.Punct(":").Stream(p.Bounds)
	}
	return b.Build()
}

// Arg renders the parameter as a generic argument: its identifier.
func (p Param) Arg() token.Tree {
	if p.Kind == Lifetime {
		return token.Tree{Kind: token.Lifetime, Text: p.Ident}
	}
	return token.Tree{Kind: token.Ident, Text: p.Ident}
}

func (p Param) String() string {
	return p.Decl().String()
}

// Idents returns the identifiers of params, in order.
func Idents(params []Param) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.Ident
	}
	return out
}

// WhereClause is a `where` clause. Predicates excludes the keyword itself
// and includes any trailing comma.
type WhereClause struct {
	Predicates token.Stream
	Span       token.Span
}

// Empty reports whether the clause has no predicates (a bare `where`).
func (w *WhereClause) Empty() bool {
	return w == nil || len(w.Predicates) == 0
}

// TrailingComma reports whether the last predicate is followed by a comma.
func (w *WhereClause) TrailingComma() bool {
	if w.Empty() {
		return false
	}
	return w.Predicates[len(w.Predicates)-1].IsPunct(",")
}

// Tokens renders the clause including the `where` keyword.
func (w *WhereClause) Tokens() token.Stream {
	if w == nil {
		return nil
	}
	return token.NewBuilder().Ident("where").Stream(w.Predicates).Build()
}
