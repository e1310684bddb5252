package decl

import (
	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/token"
)

// fnShape is a parsed fn signature shared by free functions and trait methods.
type fnShape struct {
	ident    string
	generics []generics.Param
	headEnd  int
	where    *generics.WhereClause
	tail     token.Stream
	bodiless bool
}

func parseFnShape(c *token.Cursor) (*fnShape, error) {
	for {
		t, ok := c.Peek()
		if !ok || t.Kind != token.Ident || !fnQualifiers[t.Text] {
			break
		}
		c.Next()
		if t.Text == "extern" {
			if lit, ok := c.Peek(); ok && lit.Kind == token.Literal {
				c.Next()
			}
		}
	}
	if !c.EatIdent("fn") {
		return nil, &token.SyntaxError{Pos: c.Pos(), Message: "expected `fn`"}
	}
	name, err := expectIdent(c, "fn")
	if err != nil {
		return nil, err
	}
	f := &fnShape{ident: name.Text}
	if f.generics, err = parseOptionalGenerics(c); err != nil {
		return nil, err
	}
	if !c.PeekGroup(token.Paren) {
		return nil, &token.SyntaxError{Pos: c.Pos(), Message: "expected parameter list for `" + f.ident + "`"}
	}
	c.Next()
	if c.EatPunct("->") {
		ret := generics.Collect(c, func(c *token.Cursor) bool {
			return c.PeekIdent("where") || atBraceOrSemi(c)
		})
		if len(ret) == 0 {
			return nil, &token.SyntaxError{Pos: c.Pos(), Message: "expected return type after `->`"}
		}
	}
	f.headEnd = c.Index()
	f.where = generics.ParseWhere(c, atBraceOrSemi)

	tailStart := c.Index()
	switch {
	case c.PeekGroup(token.Brace):
		c.Next()
	case c.EatPunct(";"):
		f.bodiless = true
	default:
		return nil, &token.SyntaxError{Pos: c.Pos(), Message: "expected body or `;` after signature of `" + f.ident + "`"}
	}
	f.tail = c.Slice(tailStart, c.Index())
	if err := expectEnd(c); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *fnShape) declaration(c *token.Cursor, kind Kind) *Declaration {
	return &Declaration{
		Kind:     kind,
		Ident:    f.ident,
		Generics: f.generics,
		Where:    f.where,
		Head:     c.Slice(0, f.headEnd),
		Tail:     f.tail,
	}
}

func parseFn(c *token.Cursor, _ prefix) (*Declaration, error) {
	f, err := parseFnShape(c)
	if err != nil {
		return nil, err
	}
	if f.bodiless {
		return nil, errNotItem
	}
	return f.declaration(c, Fn), nil
}

func parseTraitMethod(c *token.Cursor, _ prefix) (*Declaration, error) {
	f, err := parseFnShape(c)
	if err != nil {
		return nil, err
	}
	return f.declaration(c, TraitMethod), nil
}

func parseStruct(c *token.Cursor, _ prefix) (*Declaration, error) {
	c.Next() // struct
	name, err := expectIdent(c, "struct")
	if err != nil {
		return nil, err
	}
	d := &Declaration{Kind: Struct, Ident: name.Text}
	if d.Generics, err = parseOptionalGenerics(c); err != nil {
		return nil, err
	}

	var headEnd, tailStart int
	switch {
	case c.PeekGroup(token.Paren):
		// Tuple struct: the where clause follows the fields.
		c.Next()
		headEnd = c.Index()
		d.Where = generics.ParseWhere(c, atSemi)
		tailStart = c.Index()
		if !c.EatPunct(";") {
			return nil, &token.SyntaxError{Pos: c.Pos(), Message: "expected `;` after tuple struct `" + d.Ident + "`"}
		}

	default:
		headEnd = c.Index()
		d.Where = generics.ParseWhere(c, atBraceOrSemi)
		tailStart = c.Index()
		switch {
		case c.PeekGroup(token.Brace):
			c.Next()
		case c.EatPunct(";"):
		default:
			return nil, &token.SyntaxError{Pos: c.Pos(), Message: "expected fields or `;` for struct `" + d.Ident + "`"}
		}
	}
	if err := expectEnd(c); err != nil {
		return nil, err
	}
	d.Head = c.Slice(0, headEnd)
	d.Tail = c.Slice(tailStart, c.Index())
	return d, nil
}

func parseEnum(c *token.Cursor, _ prefix) (*Declaration, error) {
	c.Next() // enum
	name, err := expectIdent(c, "enum")
	if err != nil {
		return nil, err
	}
	d := &Declaration{Kind: Enum, Ident: name.Text}
	if d.Generics, err = parseOptionalGenerics(c); err != nil {
		return nil, err
	}
	headEnd := c.Index()
	d.Where = generics.ParseWhere(c, atBrace)
	tailStart := c.Index()
	if !c.PeekGroup(token.Brace) {
		return nil, &token.SyntaxError{Pos: c.Pos(), Message: "expected variants for enum `" + d.Ident + "`"}
	}
	c.Next()
	if err := expectEnd(c); err != nil {
		return nil, err
	}
	d.Head = c.Slice(0, headEnd)
	d.Tail = c.Slice(tailStart, c.Index())
	return d, nil
}

// typeShape is a parsed `type` declaration:
//
//	type Name<G>: Bounds where P = Default where P;
type typeShape struct {
	ident      string
	generics   []generics.Param
	hasBounds  bool
	hasDefault bool
	where      *generics.WhereClause
	whereStart int // index of `where`, or of the final `;` when absent
	whereEnd   int
}

func parseTypeShape(c *token.Cursor) (*typeShape, error) {
	c.Next() // type
	name, err := expectIdent(c, "type")
	if err != nil {
		return nil, err
	}
	t := &typeShape{ident: name.Text}
	if t.generics, err = parseOptionalGenerics(c); err != nil {
		return nil, err
	}
	atEqOrSemi := func(c *token.Cursor) bool {
		return (c.PeekPunct("=") && !c.PeekPunct("==")) || atSemi(c)
	}
	if c.EatPunct(":") {
		t.hasBounds = true
		generics.Collect(c, func(c *token.Cursor) bool {
			return c.PeekIdent("where") || atEqOrSemi(c)
		})
	}
	if c.PeekIdent("where") {
		t.whereStart = c.Index()
		t.where = generics.ParseWhere(c, atEqOrSemi)
		t.whereEnd = c.Index()
	}
	if c.PeekPunct("=") && !c.PeekPunct("==") {
		c.Next()
		t.hasDefault = true
		ty := generics.Collect(c, func(c *token.Cursor) bool {
			return c.PeekIdent("where") || atSemi(c)
		})
		if len(ty) == 0 {
			return nil, &token.SyntaxError{Pos: c.Pos(), Message: "expected type after `=`"}
		}
		if c.PeekIdent("where") {
			if t.where != nil {
				return nil, &token.SyntaxError{Pos: c.Pos(), Message: "`" + t.ident + "` has more than one where clause"}
			}
			t.whereStart = c.Index()
			t.where = generics.ParseWhere(c, atSemi)
			t.whereEnd = c.Index()
		}
	}
	if t.where == nil {
		t.whereStart = c.Index()
		t.whereEnd = c.Index()
	}
	if !c.EatPunct(";") {
		return nil, &token.SyntaxError{Pos: c.Pos(), Message: "expected `;` after type `" + t.ident + "`"}
	}
	if err := expectEnd(c); err != nil {
		return nil, err
	}
	return t, nil
}

// parseTypeItem rejects type aliases; any other `type` shape is an
// associated type and is handed to the trait adapter.
func parseTypeItem(c *token.Cursor, _ prefix) (*Declaration, error) {
	start := c.Index()
	t, err := parseTypeShape(c)
	if err != nil {
		return nil, err
	}
	if t.hasDefault && !t.hasBounds {
		c.Seek(start)
		return nil, diag.Unsupported(c.Pos(), "type aliases cannot be guarded")
	}
	return nil, errNotItem
}

func parseTraitType(c *token.Cursor, _ prefix) (*Declaration, error) {
	t, err := parseTypeShape(c)
	if err != nil {
		return nil, err
	}
	return &Declaration{
		Kind:     TraitType,
		Ident:    t.ident,
		Generics: t.generics,
		Where:    t.where,
		Head:     c.Slice(0, t.whereStart),
		Tail:     c.Slice(t.whereEnd, c.Index()),
	}, nil
}
