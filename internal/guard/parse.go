package guard

import (
	"fmt"

	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/token"
)

// Binding powers, lowest first. Comparisons are non-associative.
const (
	bpLowest = iota
	bpAssign
	bpOr
	bpAnd
	bpCompare
	bpBitOr
	bpBitXor
	bpBitAnd
	bpShift
	bpSum
	bpProduct
	bpCast
	bpPrefix
)

var infix = map[string]int{
	"||": bpOr,
	"&&": bpAnd,
	"==": bpCompare,
	"!=": bpCompare,
	"<":  bpCompare,
	">":  bpCompare,
	"<=": bpCompare,
	">=": bpCompare,
	"|":  bpBitOr,
	"^":  bpBitXor,
	"&":  bpBitAnd,
	"<<": bpShift,
	">>": bpShift,
	"+":  bpSum,
	"-":  bpSum,
	"*":  bpProduct,
	"/":  bpProduct,
	"%":  bpProduct,
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"^=": true, "&=": true, "|=": true, "<<=": true, ">>=": true,
}

// opaqueKeywords introduce constructs parsed only as far as their body.
var opaqueKeywords = map[string]bool{
	"match": true,
	"loop":  true,
	"while": true,
	"for":   true,
}

// itemKeywords introduce nested items that are skipped as a whole.
var itemKeywords = map[string]bool{
	"struct": true,
	"enum":   true,
	"impl":   true,
	"trait":  true,
	"type":   true,
	"use":    true,
	"mod":    true,
	"static": true,
	"extern": true,
}

// parser is a Pratt parser over one token stream. Nested groups get their
// own parser.
type parser struct {
	c *token.Cursor

	// noStruct is set while parsing an `if` condition, where `x {` starts
	// the block rather than a struct literal.
	noStruct bool
}

func newParser(s token.Stream) *parser {
	return &parser{c: token.NewCursor(s)}
}

func groupParser(g token.Tree) *parser {
	return &parser{c: token.NewCursorAt(g.Stream, g.Span.End)}
}

func (p *parser) errorf(pos token.Pos, format string, args ...any) error {
	return &token.SyntaxError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// ParseExpr parses s as exactly one expression.
func ParseExpr(s token.Stream) (Expr, error) {
	p := newParser(s)
	e, err := p.expr(bpLowest)
	if err != nil {
		return nil, err
	}
	if !p.c.EOF() {
		return nil, p.errorf(p.c.Pos(), "unexpected `%s` after expression", p.c.Rest())
	}
	return e, nil
}

// ParseBlock parses a brace group as a block.
func ParseBlock(g token.Tree) (*Block, error) {
	if !g.IsGroup(token.Brace) {
		return nil, &token.SyntaxError{Pos: g.Pos(), Message: "expected block"}
	}
	return groupParser(g).block(g.Pos())
}

// ParseItem parses a module-level `fn` or `const` item so guards can call
// and reference it.
func ParseItem(s token.Stream) (Stmt, error) {
	p := newParser(s)
	p.skipAttrs()
	if p.c.EatIdent("pub") {
		if p.c.PeekGroup(token.Paren) {
			p.c.Next()
		}
	}
	var item Stmt
	var err error
	switch {
	case p.atFnItem():
		item, err = p.fnItem()
	case p.atConstItem():
		item, err = p.constItem()
	default:
		return nil, p.errorf(p.c.Pos(), "expected `fn` or `const` item")
	}
	if err != nil {
		return nil, err
	}
	if !p.c.EOF() {
		return nil, p.errorf(p.c.Pos(), "unexpected `%s` after item", p.c.Rest())
	}
	return item, nil
}

func (p *parser) expr(minBP int) (Expr, error) {
	lhs, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for !p.c.EOF() {
		pos := p.c.Pos()

		if p.c.PeekIdent("as") {
			if bpCast <= minBP {
				break
			}
			p.c.Next()
			ty := p.castType()
			if len(ty) == 0 {
				return nil, p.errorf(p.c.Pos(), "expected type after `as`")
			}
			lhs = &Cast{X: lhs, Type: ty, At: pos}
			continue
		}

		op := p.c.PeekOp()
		if op == "" {
			break
		}
		if assignOps[op] {
			if bpAssign <= minBP {
				break
			}
			p.c.EatPunct(op)
			rhs, err := p.expr(bpAssign - 1)
			if err != nil {
				return nil, err
			}
			lhs = &Assign{Op: op, Target: lhs, Value: rhs, At: pos}
			continue
		}
		bp, ok := infix[op]
		if !ok || bp <= minBP {
			break
		}
		if bp == bpCompare {
			if b, ok := lhs.(*Binary); ok && infix[b.Op] == bpCompare && minBP < bpCompare {
				return nil, p.errorf(pos, "comparison operators cannot be chained")
			}
		}
		p.c.EatPunct(op)
		rhs, err := p.expr(bp)
		if err != nil {
			return nil, err
		}
		lhs = &Binary{Op: op, X: lhs, Y: rhs, At: pos}
	}
	return lhs, nil
}

// castType collects the target type of `as`: a path with optional generic
// arguments, or a reference/pointer/array/tuple type.
func (p *parser) castType() token.Stream {
	start := p.c.Index()
	for p.c.PeekPunct("&") || p.c.PeekPunct("*") {
		p.c.Next()
		p.c.EatIdent("mut")
		p.c.EatIdent("const")
	}
	if t, ok := p.c.Peek(); ok && (t.IsGroup(token.Bracket) || t.IsGroup(token.Paren)) {
		p.c.Next()
		return p.c.Slice(start, p.c.Index())
	}
	for {
		p.c.EatPunct("::")
		t, ok := p.c.Peek()
		if !ok || t.Kind != token.Ident {
			break
		}
		p.c.Next()
		if p.c.PeekPunct("<") {
			p.skipAngles()
		}
		if !p.c.PeekPunct("::") {
			break
		}
	}
	return p.c.Slice(start, p.c.Index())
}

// skipAngles consumes a balanced `<...>` run.
func (p *parser) skipAngles() token.Stream {
	p.c.Next()
	start := p.c.Index()
	depth := 1
	for !p.c.EOF() {
		depth += p.c.AngleDelta()
		if depth == 0 {
			inner := p.c.Slice(start, p.c.Index())
			p.c.Next()
			return inner
		}
		p.c.Next()
	}
	return p.c.Slice(start, p.c.Index())
}

func (p *parser) prefix() (Expr, error) {
	pos := p.c.Pos()
	t, ok := p.c.Peek()
	if !ok {
		return nil, p.errorf(pos, "expected expression")
	}

	switch t.Kind {
	case token.Literal:
		p.c.Next()
		return p.postfix(&Lit{Kind: t.Lit, Text: t.Text, At: pos})

	case token.Group:
		p.c.Next()
		e, err := p.group(t)
		if err != nil {
			return nil, err
		}
		return p.postfix(e)

	case token.Punct:
		return p.unary(pos)

	case token.Lifetime:
		return p.labeled(t)
	}

	switch t.Text {
	case "true", "false":
		p.c.Next()
		return p.postfix(&BoolLit{Value: t.Text == "true", At: pos})
	case "if":
		return p.ifExpr()
	case "return":
		p.c.Next()
		r := &Return{At: pos}
		if !p.c.EOF() && !p.c.PeekPunct(";") {
			x, err := p.expr(bpLowest)
			if err != nil {
				return nil, err
			}
			r.X = x
		}
		return r, nil
	case "unsafe", "const":
		if g, ok := p.c.PeekAt(1); ok && g.IsGroup(token.Brace) {
			p.c.Next()
			p.c.Next()
			b, err := ParseBlock(g)
			if err != nil {
				return nil, err
			}
			return p.postfix(b)
		}
	case "move", "async":
		return nil, p.errorf(pos, "closures are not supported in guards")
	case "let":
		return nil, p.errorf(pos, "`let` is only allowed as a statement")
	case "break", "continue":
		return nil, p.errorf(pos, "`%s` outside of a loop", t.Text)
	}
	if opaqueKeywords[t.Text] {
		return p.opaque()
	}

	start := p.c.Index()
	path, err := p.path()
	if err != nil {
		return nil, err
	}
	if p.c.PeekOp() == "!" {
		if g, ok := p.c.PeekAt(1); ok && g.Kind == token.Group {
			p.c.Next()
			p.c.Next()
			return p.postfix(macro(path, g))
		}
	}
	if !p.noStruct && p.c.PeekGroup(token.Brace) {
		p.c.Next()
		lit := &Opaque{Keyword: "struct", Tokens: p.c.Slice(start, p.c.Index()), At: pos}
		return p.postfix(lit)
	}
	return p.postfix(path)
}

// labeled parses `'label: loop {...}` and the other labeled loop forms,
// and labeled blocks `'label: {...}`.
func (p *parser) labeled(label token.Tree) (Expr, error) {
	pos := p.c.Pos()
	colon, ok := p.c.PeekAt(1)
	if !ok || !colon.IsPunct(":") || colon.Spacing == token.Joint {
		return nil, p.errorf(pos, "expected `:` after label `%s`", label.Text)
	}
	p.c.Next()
	p.c.Next()
	t, ok := p.c.Peek()
	switch {
	case ok && t.IsGroup(token.Brace):
		p.c.Next()
		return &Opaque{Keyword: "block", Label: label.Text, Tokens: token.Stream{t}, At: pos}, nil
	case ok && t.Kind == token.Ident && opaqueKeywords[t.Text] && t.Text != "match":
		e, err := p.opaque()
		if err != nil {
			return nil, err
		}
		o := e.(*Opaque)
		o.Label, o.At = label.Text, pos
		return o, nil
	}
	return nil, p.errorf(p.c.Pos(), "expected loop or block after label `%s`", label.Text)
}

func (p *parser) unary(pos token.Pos) (Expr, error) {
	op := p.c.PeekOp()
	switch op {
	case "-", "!", "*":
		p.c.EatPunct(op)
		x, err := p.expr(bpPrefix)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, X: x, At: pos}, nil
	case "&", "&&":
		p.c.EatPunct(op)
		ref := "&"
		if p.c.EatIdent("mut") {
			ref = "&mut"
		}
		x, err := p.expr(bpPrefix)
		if err != nil {
			return nil, err
		}
		if op == "&&" {
			x = &Unary{Op: ref, X: x, At: pos}
			ref = "&"
		}
		return &Unary{Op: ref, X: x, At: pos}, nil
	case "|", "||":
		return nil, p.errorf(pos, "closures are not supported in guards")
	case "::":
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		return p.postfix(path)
	}
	return nil, p.errorf(pos, "expected expression, found `%s`", op)
}

func (p *parser) group(g token.Tree) (Expr, error) {
	pos := g.Pos()
	switch g.Delim {
	case token.Brace:
		return ParseBlock(g)

	case token.Paren:
		if len(g.Stream) == 0 {
			return &Tuple{At: pos}, nil
		}
		elems, trailing, err := commaList(g.Stream)
		if err != nil {
			return nil, err
		}
		if len(elems) == 1 && !trailing {
			return &Paren{X: elems[0], At: pos}, nil
		}
		return &Tuple{Elems: elems, At: pos}, nil

	case token.Bracket:
		gp := groupParser(g)
		if gp.c.EOF() {
			return &Array{At: pos}, nil
		}
		first, err := gp.expr(bpLowest)
		if err != nil {
			return nil, err
		}
		if gp.c.EatPunct(";") {
			n, err := gp.expr(bpLowest)
			if err != nil {
				return nil, err
			}
			if !gp.c.EOF() {
				return nil, gp.errorf(gp.c.Pos(), "unexpected `%s` in array length", gp.c.Rest())
			}
			return &Array{Elems: []Expr{first}, Len: n, At: pos}, nil
		}
		elems, _, err := commaList(g.Stream)
		if err != nil {
			return nil, err
		}
		return &Array{Elems: elems, At: pos}, nil
	}
	return nil, p.errorf(pos, "unexpected group")
}

// commaList parses comma-separated expressions, reporting a trailing comma.
func commaList(s token.Stream) ([]Expr, bool, error) {
	p := newParser(s)
	var out []Expr
	trailing := false
	for !p.c.EOF() {
		e, err := p.expr(bpLowest)
		if err != nil {
			return nil, false, err
		}
		out = append(out, e)
		trailing = false
		if p.c.EOF() {
			break
		}
		if !p.c.EatPunct(",") {
			return nil, false, p.errorf(p.c.Pos(), "expected `,`, found `%s`", p.c.Rest()[0])
		}
		trailing = true
	}
	return out, trailing, nil
}

func (p *parser) postfix(e Expr) (Expr, error) {
	for {
		pos := p.c.Pos()
		t, ok := p.c.Peek()
		if !ok {
			return e, nil
		}
		switch {
		case t.IsGroup(token.Paren):
			p.c.Next()
			args, _, err := commaList(t.Stream)
			if err != nil {
				return nil, err
			}
			e = &Call{Fun: e, Args: args, At: pos}

		case t.IsGroup(token.Bracket):
			p.c.Next()
			idx, err := groupParser(t).exprAll()
			if err != nil {
				return nil, err
			}
			e = &Index{X: e, Index: idx, At: pos}

		case t.IsPunct(".") && p.c.PeekOp() == ".":
			p.c.Next()
			name, ok := p.c.Peek()
			if !ok || (name.Kind != token.Ident && !(name.Kind == token.Literal && name.Lit == token.LitInt)) {
				return nil, p.errorf(p.c.Pos(), "expected field or method name after `.`")
			}
			p.c.Next()
			if name.Kind == token.Literal {
				e = &Field{X: e, Name: name.Text, At: pos}
				continue
			}
			var turbofish []token.Stream
			if p.c.PeekPunct("::") {
				if next, ok := p.c.PeekAt(2); ok && next.IsPunct("<") {
					p.c.EatPunct("::")
					turbofish = generics.SplitArgs(p.skipAngles())
				}
			}
			if args, ok := p.c.Peek(); ok && args.IsGroup(token.Paren) {
				p.c.Next()
				list, _, err := commaList(args.Stream)
				if err != nil {
					return nil, err
				}
				e = &MethodCall{Recv: e, Name: name.Text, Turbofish: turbofish, Args: list, At: pos}
				continue
			}
			if turbofish != nil {
				return nil, p.errorf(p.c.Pos(), "expected arguments for method `%s`", name.Text)
			}
			e = &Field{X: e, Name: name.Text, At: pos}

		case t.IsPunct("?"):
			return nil, p.errorf(pos, "the `?` operator is not supported in guards")

		default:
			return e, nil
		}
	}
}

func (p *parser) exprAll() (Expr, error) {
	e, err := p.expr(bpLowest)
	if err != nil {
		return nil, err
	}
	if !p.c.EOF() {
		return nil, p.errorf(p.c.Pos(), "unexpected `%s`", p.c.Rest())
	}
	return e, nil
}

func (p *parser) path() (*Path, error) {
	pos := p.c.Pos()
	path := &Path{At: pos}
	p.c.EatPunct("::")
	for {
		t, ok := p.c.Peek()
		if !ok || t.Kind != token.Ident {
			return nil, p.errorf(p.c.Pos(), "expected expression")
		}
		p.c.Next()
		seg := PathSegment{Name: t.Text}
		if p.c.PeekPunct("::") {
			if next, ok := p.c.PeekAt(2); ok && next.IsPunct("<") {
				p.c.EatPunct("::")
				seg.Args = generics.SplitArgs(p.skipAngles())
			}
		}
		path.Segments = append(path.Segments, seg)
		if !p.c.PeekPunct("::") {
			return path, nil
		}
		p.c.EatPunct("::")
	}
}

func macro(path *Path, g token.Tree) *Macro {
	name := ""
	for i, seg := range path.Segments {
		if i > 0 {
			name += "::"
		}
		name += seg.Name
	}
	m := &Macro{Path: name, Raw: g.Stream, At: path.At}
	if exprs, _, err := commaList(g.Stream); err == nil {
		m.Exprs = exprs
	}
	return m
}

func (p *parser) ifExpr() (Expr, error) {
	pos := p.c.Pos()
	p.c.Next() // if
	if p.c.PeekIdent("let") {
		return nil, p.errorf(p.c.Pos(), "`if let` is not supported in guards")
	}
	outer := p.noStruct
	p.noStruct = true
	cond, err := p.expr(bpLowest)
	p.noStruct = outer
	if err != nil {
		return nil, err
	}
	then, ok := p.c.Peek()
	if !ok || !then.IsGroup(token.Brace) {
		return nil, p.errorf(p.c.Pos(), "expected `{` after `if` condition")
	}
	p.c.Next()
	thenBlock, err := ParseBlock(then)
	if err != nil {
		return nil, err
	}
	e := &If{Cond: cond, Then: thenBlock, At: pos}
	if !p.c.EatIdent("else") {
		return e, nil
	}
	if p.c.PeekIdent("if") {
		e.Else, err = p.ifExpr()
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	els, ok := p.c.Peek()
	if !ok || !els.IsGroup(token.Brace) {
		return nil, p.errorf(p.c.Pos(), "expected `{` or `if` after `else`")
	}
	p.c.Next()
	if e.Else, err = ParseBlock(els); err != nil {
		return nil, err
	}
	return e, nil
}

// opaque consumes a loop or match through its brace body.
func (p *parser) opaque() (Expr, error) {
	pos := p.c.Pos()
	start := p.c.Index()
	kw := p.c.Next().Text
	for !p.c.EOF() {
		t := p.c.Next()
		if t.IsGroup(token.Brace) {
			return &Opaque{Keyword: kw, Tokens: p.c.Slice(start, p.c.Index()), At: pos}, nil
		}
	}
	return nil, p.errorf(pos, "expected `{` after `%s`", kw)
}

func (p *parser) block(pos token.Pos) (*Block, error) {
	b := &Block{At: pos}
	for !p.c.EOF() {
		if p.c.EatPunct(";") {
			continue
		}
		p.skipAttrs()

		switch {
		case p.c.PeekIdent("let"):
			s, err := p.let()
			if err != nil {
				return nil, err
			}
			b.Stmts = append(b.Stmts, s)
			continue
		case p.atFnItem():
			s, err := p.fnItem()
			if err != nil {
				return nil, err
			}
			b.Stmts = append(b.Stmts, s)
			continue
		case p.atConstItem():
			s, err := p.constItem()
			if err != nil {
				return nil, err
			}
			b.Stmts = append(b.Stmts, s)
			continue
		case p.atItem():
			b.Stmts = append(b.Stmts, p.item())
			continue
		}

		e, err := p.expr(bpLowest)
		if err != nil {
			return nil, err
		}
		switch {
		case p.c.EatPunct(";"):
			b.Stmts = append(b.Stmts, &ExprStmt{X: e, Semi: true})
		case p.c.EOF():
			b.Tail = e
		case blockLike(e):
			b.Stmts = append(b.Stmts, &ExprStmt{X: e})
		default:
			return nil, p.errorf(p.c.Pos(), "expected `;`, found `%s`", p.c.Rest()[0])
		}
	}
	return b, nil
}

func blockLike(e Expr) bool {
	switch e.(type) {
	case *Block, *If, *Opaque:
		return true
	}
	return false
}

func (p *parser) skipAttrs() {
	for p.c.PeekPunct("#") {
		if g, ok := p.c.PeekAt(1); !ok || !g.IsGroup(token.Bracket) {
			return
		}
		p.c.Next()
		p.c.Next()
	}
}

func (p *parser) atFnItem() bool {
	for i := 0; ; i++ {
		t, ok := p.c.PeekAt(i)
		if !ok || t.Kind != token.Ident {
			return false
		}
		switch t.Text {
		case "fn":
			return true
		case "const", "unsafe", "pub":
			continue
		}
		return false
	}
}

func (p *parser) atConstItem() bool {
	if !p.c.PeekIdent("const") {
		return false
	}
	t, ok := p.c.PeekAt(1)
	return ok && t.Kind == token.Ident && t.Text != "fn"
}

// atItem reports whether a nested item other than fn or const starts
// here, after any `pub`, `pub(...)` or `unsafe` qualifiers.
func (p *parser) atItem() bool {
	for i := 0; ; i++ {
		t, ok := p.c.PeekAt(i)
		if !ok {
			return false
		}
		if t.IsGroup(token.Paren) && i > 0 {
			continue
		}
		if t.Kind != token.Ident {
			return false
		}
		switch {
		case t.Text == "pub" || t.Text == "unsafe":
			continue
		case itemKeywords[t.Text]:
			return true
		case t.Text == "union":
			next, ok := p.c.PeekAt(i + 1)
			return ok && next.Kind == token.Ident
		case t.Text == "macro_rules":
			next, ok := p.c.PeekAt(i + 1)
			return ok && next.IsPunct("!")
		}
		return false
	}
}

// item skips a nested item through its terminating `;` or its brace
// body. Brace groups inside generic arguments do not end the item.
func (p *parser) item() *Item {
	pos := p.c.Pos()
	start := p.c.Index()
	kw := ""
	depth := 0
	for !p.c.EOF() {
		depth += p.c.AngleDelta()
		t := p.c.Next()
		if kw == "" && t.Kind == token.Ident && t.Text != "pub" && t.Text != "unsafe" {
			kw = t.Text
		}
		if t.IsPunct(";") || (depth <= 0 && t.IsGroup(token.Brace)) {
			break
		}
	}
	return &Item{Keyword: kw, Tokens: p.c.Slice(start, p.c.Index()), At: pos}
}

func (p *parser) let() (*Let, error) {
	pos := p.c.Pos()
	p.c.Next() // let
	s := &Let{At: pos}
	if p.c.EatIdent("mut") {
		s.Mut = true
	}
	if t, ok := p.c.Peek(); ok && t.Kind == token.Ident {
		if next, ok := p.c.PeekAt(1); !ok || next.IsPunct(":") || next.IsPunct("=") || next.IsPunct(";") {
			p.c.Next()
			s.Name = t.Text
		}
	}
	if s.Name == "" {
		s.Pattern = generics.Collect(p.c, func(c *token.Cursor) bool {
			return (c.PeekPunct(":") && !c.PeekPunct("::")) || (c.PeekPunct("=") && !c.PeekPunct("==")) || c.PeekPunct(";")
		})
		if len(s.Pattern) == 0 {
			return nil, p.errorf(p.c.Pos(), "expected pattern after `let`")
		}
	}
	if p.c.EatPunct(":") {
		s.Type = generics.Collect(p.c, func(c *token.Cursor) bool {
			return (c.PeekPunct("=") && !c.PeekPunct("==")) || c.PeekPunct(";")
		})
	}
	if p.c.EatPunct("=") {
		init, err := p.expr(bpLowest)
		if err != nil {
			return nil, err
		}
		s.Init = init
		if p.c.EatIdent("else") {
			return nil, p.errorf(p.c.Pos(), "`let ... else` is not supported in guards")
		}
	}
	if !p.c.EatPunct(";") {
		return nil, p.errorf(p.c.Pos(), "expected `;` after `let`")
	}
	return s, nil
}

func (p *parser) constItem() (*ConstItem, error) {
	pos := p.c.Pos()
	p.c.Next() // const
	name := p.c.Next()
	if !p.c.EatPunct(":") {
		return nil, p.errorf(p.c.Pos(), "missing type for `const` item `%s`", name.Text)
	}
	ty := generics.Collect(p.c, func(c *token.Cursor) bool {
		return c.PeekPunct("=") && !c.PeekPunct("==")
	})
	if !p.c.EatPunct("=") {
		return nil, p.errorf(p.c.Pos(), "expected `=` in `const` item `%s`", name.Text)
	}
	v, err := p.expr(bpLowest)
	if err != nil {
		return nil, err
	}
	if !p.c.EatPunct(";") {
		return nil, p.errorf(p.c.Pos(), "expected `;` after `const` item `%s`", name.Text)
	}
	return &ConstItem{Name: name.Text, Type: ty, Value: v, At: pos}, nil
}

func (p *parser) fnItem() (*FnItem, error) {
	pos := p.c.Pos()
	f := &FnItem{At: pos}
	for !p.c.PeekIdent("fn") {
		if p.c.Next().Text == "const" {
			f.Const = true
		}
	}
	p.c.Next() // fn
	name, ok := p.c.Peek()
	if !ok || name.Kind != token.Ident {
		return nil, p.errorf(p.c.Pos(), "expected identifier after `fn`")
	}
	p.c.Next()
	f.Name = name.Text

	if p.c.PeekPunct("<") {
		params, err := generics.ParseParams(p.c)
		if err != nil {
			return nil, err
		}
		f.Generics = params
	}
	args, ok := p.c.Peek()
	if !ok || !args.IsGroup(token.Paren) {
		return nil, p.errorf(p.c.Pos(), "expected parameter list for `%s`", f.Name)
	}
	p.c.Next()
	for _, seg := range generics.SplitArgs(args.Stream) {
		c := token.NewCursor(seg)
		c.EatIdent("mut")
		id, ok := c.Peek()
		if !ok || (id.Kind != token.Ident) {
			return nil, p.errorf(seg.Pos(), "unsupported parameter pattern in `%s`", f.Name)
		}
		c.Next()
		if !c.EatPunct(":") {
			return nil, p.errorf(c.Pos(), "missing type for parameter `%s`", id.Text)
		}
		f.Params = append(f.Params, FnParam{Name: id.Text, Type: c.Rest()})
	}
	if p.c.EatPunct("->") {
		f.Result = generics.Collect(p.c, func(c *token.Cursor) bool {
			return c.PeekIdent("where") || c.PeekGroup(token.Brace)
		})
	}
	generics.ParseWhere(p.c, func(c *token.Cursor) bool { return c.PeekGroup(token.Brace) })
	body, ok := p.c.Peek()
	if !ok || !body.IsGroup(token.Brace) {
		return nil, p.errorf(p.c.Pos(), "expected body for `%s`", f.Name)
	}
	p.c.Next()
	b, err := ParseBlock(body)
	if err != nil {
		return nil, err
	}
	f.Body = b
	return f, nil
}
