package generics

import (
	"fmt"

	"github.com/roach88/constguard/internal/token"
)

// Collect consumes trees until stop reports true at angle-bracket depth
// zero, or the input ends. Groups are atomic, so only `<` and `>` need
// tracking.
func Collect(c *token.Cursor, stop func(c *token.Cursor) bool) token.Stream {
	start := c.Index()
	depth := 0
	for !c.EOF() {
		if depth == 0 && stop(c) {
			break
		}
		depth += c.AngleDelta()
		if depth < 0 {
			depth = 0
		}
		c.Next()
	}
	return c.Slice(start, c.Index())
}

// ParseParams parses a `<...>` generic parameter list starting at the
// cursor, consuming through the matching `>`.
func ParseParams(c *token.Cursor) ([]Param, error) {
	open := c.Pos()
	if !c.EatPunct("<") {
		return nil, &token.SyntaxError{Pos: open, Message: "expected `<`"}
	}

	start := c.Index()
	depth := 1
	for {
		if c.EOF() {
			return nil, &token.SyntaxError{Pos: open, Message: "unclosed generic parameter list"}
		}
		depth += c.AngleDelta()
		if depth == 0 {
			break
		}
		c.Next()
	}
	inner := c.Slice(start, c.Index())
	c.Next() // closing `>`

	var params []Param
	for _, seg := range splitTopLevel(inner, ",") {
		if len(seg) == 0 {
			continue
		}
		p, err := parseParam(seg)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

// ParseParamList parses a complete stream holding exactly one `<...>` list.
func ParseParamList(s token.Stream) ([]Param, error) {
	c := token.NewCursor(s)
	params, err := ParseParams(c)
	if err != nil {
		return nil, err
	}
	if !c.EOF() {
		return nil, &token.SyntaxError{Pos: c.Pos(), Message: "unexpected tokens after generic parameter list"}
	}
	return params, nil
}

// ParseWhere parses a where clause starting at the `where` keyword. The
// clause ends where stop reports true at angle depth zero.
func ParseWhere(c *token.Cursor, stop func(c *token.Cursor) bool) *WhereClause {
	kw, _ := c.Peek()
	if !c.EatIdent("where") {
		return nil
	}
	preds := Collect(c, stop)
	span := kw.Span
	if len(preds) > 0 {
		span.End = preds[len(preds)-1].Span.End
	}
	return &WhereClause{Predicates: preds, Span: span}
}

func parseParam(seg token.Stream) (Param, error) {
	c := token.NewCursor(seg)
	p := Param{Span: seg.Span()}

	attrStart := c.Index()
	for c.PeekPunct("#") {
		if t, ok := c.PeekAt(1); !ok || !t.IsGroup(token.Bracket) {
			break
		}
		c.Next()
		c.Next()
	}
	p.Attrs = c.Slice(attrStart, c.Index())

	t, ok := c.Peek()
	if !ok {
		return p, &token.SyntaxError{Pos: seg.Pos(), Message: "expected generic parameter"}
	}

	switch {
	case t.Kind == token.Lifetime:
		c.Next()
		p.Kind = Lifetime
		p.Ident = t.Text
		if c.EatPunct(":") {
			p.Bounds = c.Rest()
		}
		return p, nil

	case t.IsIdent("const"):
		c.Next()
		name, ok := c.Peek()
		if !ok || name.Kind != token.Ident {
			return p, &token.SyntaxError{Pos: c.Pos(), Message: "expected const parameter name"}
		}
		c.Next()
		if !c.EatPunct(":") {
			return p, &token.SyntaxError{Pos: c.Pos(), Message: fmt.Sprintf("const parameter `%s` needs a type", name.Text)}
		}
		p.Kind = Const
		p.Ident = name.Text
		p.Bounds = Collect(c, isDefault)
		if len(p.Bounds) == 0 {
			return p, &token.SyntaxError{Pos: c.Pos(), Message: fmt.Sprintf("const parameter `%s` needs a type", name.Text)}
		}

	case t.Kind == token.Ident:
		c.Next()
		p.Kind = Type
		p.Ident = t.Text
		if c.EatPunct(":") {
			p.Bounds = Collect(c, isDefault)
		}

	default:
		return p, &token.SyntaxError{Pos: t.Pos(), Message: fmt.Sprintf("expected generic parameter, found `%s`", t)}
	}

	if c.EatPunct("=") {
		p.Default = c.Rest()
		if len(p.Default) == 0 {
			return p, &token.SyntaxError{Pos: c.Pos(), Message: fmt.Sprintf("missing default for `%s`", p.Ident)}
		}
		c.Seek(len(seg))
	}
	if !c.EOF() {
		return p, &token.SyntaxError{Pos: c.Pos(), Message: fmt.Sprintf("unexpected `%s` in generic parameter `%s`", c.Rest(), p.Ident)}
	}
	return p, nil
}

func isDefault(c *token.Cursor) bool {
	return c.PeekPunct("=") && !c.PeekPunct("==")
}

// splitTopLevel splits s at sep puncts that are not nested in angle brackets.
func splitTopLevel(s token.Stream, sep string) []token.Stream {
	var out []token.Stream
	depth, start := 0, 0
	for i := range s {
		depth += token.AngleDelta(s, i)
		if depth == 0 && s[i].IsPunct(sep) {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

// SplitArgs splits a generic argument list (the inside of `<...>`) at
// top-level commas, dropping a trailing empty segment.
func SplitArgs(s token.Stream) []token.Stream {
	parts := splitTopLevel(s, ",")
	if n := len(parts); n > 0 && len(parts[n-1]) == 0 {
		parts = parts[:n-1]
	}
	return parts
}
