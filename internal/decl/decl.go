// Package decl decomposes a guarded declaration into the record the
// emitter works on: identifier, generic parameters, and the head and tail
// token spans around the declaration's where clause.
//
// Each supported declaration kind has its own adapter. Adapters are
// registered per keyword in two registries, one for top-level items and one
// for trait items. A declaration is first tried as a top-level item; when
// its shape is only valid inside a trait (a bodiless fn, an associated type
// with bounds) it is re-attempted as a trait item before failing.
//
// Invariant: Head ++ Where ++ Tail reproduces the input declaration. No
// token is dropped or reordered.
package decl

import (
	"errors"
	"fmt"

	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/token"
)

// Kind is the kind of a guarded declaration.
type Kind int

const (
	Fn Kind = iota
	Struct
	Enum
	TraitMethod
	TraitType
)

func (k Kind) String() string {
	switch k {
	case Fn:
		return "fn"
	case Struct:
		return "struct"
	case Enum:
		return "enum"
	case TraitMethod:
		return "trait method"
	case TraitType:
		return "trait type"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Context says where a declaration appears.
type Context int

const (
	// ContextItem is any item position outside a trait body.
	ContextItem Context = iota
	// ContextTrait is a trait body; only trait-item adapters apply.
	ContextTrait
)

// Declaration is a guarded declaration split around its where clause.
type Declaration struct {
	Kind     Kind
	Ident    string
	Generics []generics.Param
	Where    *generics.WhereClause // nil when the declaration has none
	Head     token.Stream
	Tail     token.Stream
	Span     token.Span
}

// Tokens reassembles the declaration.
func (d *Declaration) Tokens() token.Stream {
	return token.Concat(d.Head, d.Where.Tokens(), d.Tail)
}

// prefix is the leading attributes and visibility common to every kind.
type prefix struct {
	attrs token.Stream
	vis   token.Stream
}

// adapter parses one declaration kind. The cursor is positioned after the
// prefix; adapters slice head and tail from the start of the stream.
type adapter func(c *token.Cursor, p prefix) (*Declaration, error)

// errNotItem signals that a shape is valid only as a trait item.
var errNotItem = errors.New("not a top-level item")

var itemAdapters = map[string]adapter{
	"fn":     parseFn,
	"struct": parseStruct,
	"enum":   parseEnum,
	"type":   parseTypeItem,
}

var traitAdapters = map[string]adapter{
	"fn":   parseTraitMethod,
	"type": parseTraitType,
}

// unsupported names declaration keywords that can never carry a guard.
var unsupported = map[string]string{
	"impl":        "implementations",
	"trait":       "trait declarations",
	"union":       "unions",
	"mod":         "modules",
	"use":         "use declarations",
	"static":      "static items",
	"const":       "constant items",
	"crate":       "extern crate declarations",
	"macro_rules": "macro definitions",
	"auto":        "trait declarations",
}

// fnQualifiers may precede `fn`.
var fnQualifiers = map[string]bool{
	"default": true,
	"const":   true,
	"async":   true,
	"unsafe":  true,
	"extern":  true,
	"safe":    true,
}

// Decompose parses a declaration in item position.
func Decompose(s token.Stream) (*Declaration, error) {
	return DecomposeIn(ContextItem, s)
}

// DecomposeIn parses a declaration appearing in ctx.
func DecomposeIn(ctx Context, s token.Stream) (*Declaration, error) {
	if len(s) == 0 {
		return nil, diag.Unsupported(token.Pos{}, "expected a declaration")
	}
	c := token.NewCursor(s)
	p := parsePrefix(c)
	afterPrefix := c.Index()

	kw, kwPos, err := keyword(c)
	if err != nil {
		return nil, err
	}

	if ctx == ContextItem {
		if a, ok := itemAdapters[kw]; ok {
			d, err := a(c, p)
			if !errors.Is(err, errNotItem) {
				return finish(d, s, err)
			}
			c.Seek(afterPrefix)
		}
	}

	a, ok := traitAdapters[kw]
	if !ok {
		return nil, diag.Unsupported(kwPos, "%s cannot be guarded", describe(kw, ctx))
	}
	if len(p.vis) > 0 {
		return nil, diag.Unsupported(p.vis.Pos(), "visibility qualifiers are not permitted on trait items")
	}
	d, err := a(c, p)
	return finish(d, s, err)
}

func finish(d *Declaration, s token.Stream, err error) (*Declaration, error) {
	if err != nil {
		var syn *token.SyntaxError
		if errors.As(err, &syn) {
			return nil, diag.Unsupported(syn.Pos, "%s", syn.Message)
		}
		return nil, err
	}
	d.Span = s.Span()
	return d, nil
}

func describe(kw string, ctx Context) string {
	if what, ok := unsupported[kw]; ok {
		return what
	}
	switch {
	case kw == "struct" || kw == "enum":
		return kw + " declarations inside traits"
	case kw == "type" && ctx == ContextItem:
		return "type aliases"
	case kw == "":
		return "empty declarations"
	}
	return fmt.Sprintf("items starting with `%s`", kw)
}

func parsePrefix(c *token.Cursor) prefix {
	var p prefix
	start := c.Index()
	for c.PeekPunct("#") {
		t, ok := c.PeekAt(1)
		if !ok || !t.IsGroup(token.Bracket) {
			break
		}
		c.Next()
		c.Next()
	}
	p.attrs = c.Slice(start, c.Index())

	start = c.Index()
	if c.EatIdent("pub") && c.PeekGroup(token.Paren) {
		c.Next()
	}
	p.vis = c.Slice(start, c.Index())
	return p
}

// keyword finds the declaration keyword after optional fn qualifiers
// without consuming anything.
func keyword(c *token.Cursor) (string, token.Pos, error) {
	sawConst := false
	for i := 0; ; i++ {
		t, ok := c.PeekAt(i)
		if !ok {
			return "", c.Pos(), diag.Unsupported(c.Pos(), "expected a declaration keyword")
		}
		if t.Kind != token.Ident {
			return "", t.Pos(), diag.Unsupported(t.Pos(), "expected a declaration keyword, found `%s`", t)
		}
		if t.Text == "union" {
			if next, ok := c.PeekAt(i + 1); ok && next.Kind == token.Ident {
				return "union", t.Pos(), nil
			}
		}
		if !fnQualifiers[t.Text] {
			if sawConst && t.Text != "fn" {
				return "const", t.Pos(), nil
			}
			return t.Text, t.Pos(), nil
		}
		if t.Text == "const" {
			sawConst = true
		}
		if t.Text == "extern" {
			if next, ok := c.PeekAt(i + 1); ok && next.Kind == token.Literal {
				i++
			}
		}
	}
}

func expectIdent(c *token.Cursor, after string) (token.Tree, error) {
	t, ok := c.Peek()
	if !ok || t.Kind != token.Ident {
		return t, &token.SyntaxError{Pos: c.Pos(), Message: fmt.Sprintf("expected identifier after `%s`", after)}
	}
	c.Next()
	return t, nil
}

func parseOptionalGenerics(c *token.Cursor) ([]generics.Param, error) {
	if !c.PeekPunct("<") {
		return nil, nil
	}
	return generics.ParseParams(c)
}

func expectEnd(c *token.Cursor) error {
	if !c.EOF() {
		return &token.SyntaxError{Pos: c.Pos(), Message: fmt.Sprintf("unexpected `%s` after declaration", c.Rest())}
	}
	return nil
}

func atBraceOrSemi(c *token.Cursor) bool {
	return c.PeekGroup(token.Brace) || c.PeekPunct(";")
}

func atSemi(c *token.Cursor) bool {
	return c.PeekPunct(";")
}

func atBrace(c *token.Cursor) bool {
	return c.PeekGroup(token.Brace)
}
