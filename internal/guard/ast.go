package guard

import (
	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/token"
)

// Node is any guard syntax node.
type Node interface {
	Pos() token.Pos
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement inside a block.
type Stmt interface {
	Node
	stmtNode()
}

// Lit is an integer, float, char, string or byte literal.
type Lit struct {
	Kind token.LitKind
	Text string
	At   token.Pos
}

// BoolLit is `true` or `false`.
type BoolLit struct {
	Value bool
	At    token.Pos
}

// PathSegment is one `::`-separated segment, with turbofish arguments.
type PathSegment struct {
	Name string
	Args []token.Stream
}

// Path is a value path such as `N`, `usize::MAX` or `size_of::<T>`.
type Path struct {
	Segments []PathSegment
	At       token.Pos
}

// Ident returns the path's name when it is a single plain segment.
func (p *Path) Ident() (string, bool) {
	if len(p.Segments) != 1 || len(p.Segments[0].Args) > 0 {
		return "", false
	}
	return p.Segments[0].Name, true
}

// Unary is a prefix operator: `-`, `!`, `*`, `&` or `&mut`.
type Unary struct {
	Op string
	X  Expr
	At token.Pos
}

// Binary is an infix operator.
type Binary struct {
	Op string
	X  Expr
	Y  Expr
	At token.Pos
}

// Assign is `=` or a compound assignment such as `+=`.
type Assign struct {
	Op     string
	Target Expr
	Value  Expr
	At     token.Pos
}

// Cast is `x as T`.
type Cast struct {
	X    Expr
	Type token.Stream
	At   token.Pos
}

// Call is `f(args)`.
type Call struct {
	Fun  Expr
	Args []Expr
	At   token.Pos
}

// MethodCall is `recv.name::<T>(args)`.
type MethodCall struct {
	Recv      Expr
	Name      string
	Turbofish []token.Stream
	Args      []Expr
	At        token.Pos
}

// Field is `x.name` or a tuple index `x.0`.
type Field struct {
	X    Expr
	Name string
	At   token.Pos
}

// Index is `x[i]`.
type Index struct {
	X     Expr
	Index Expr
	At    token.Pos
}

// Paren is a parenthesized expression.
type Paren struct {
	X  Expr
	At token.Pos
}

// Tuple is `()` or `(a, b, ...)`.
type Tuple struct {
	Elems []Expr
	At    token.Pos
}

// Array is `[a, b]` or, when Len is set, `[elem; len]`.
type Array struct {
	Elems []Expr
	Len   Expr
	At    token.Pos
}

// Block is `{ stmts; tail }`. Tail is nil when the block evaluates to ().
type Block struct {
	Stmts []Stmt
	Tail  Expr
	At    token.Pos
}

// If is `if cond { } else ...`. Else is a *Block, an *If, or nil.
type If struct {
	Cond Expr
	Then *Block
	Else Expr
	At   token.Pos
}

// Return is `return` with an optional value.
type Return struct {
	X  Expr
	At token.Pos
}

// Macro is a macro invocation. Exprs holds the comma-separated arguments
// when they parse as expressions, which is the case for the panicking
// macros; Raw always holds the argument tokens.
type Macro struct {
	Path  string
	Raw   token.Stream
	Exprs []Expr
	At    token.Pos
}

// Opaque is syntactically valid but carries constructs the evaluator does
// not interpret: loops, match, labeled blocks and struct literals. Keyword
// is the introducing keyword, "block" or "struct". Label is set for
// labeled loops and blocks and is not part of Tokens.
type Opaque struct {
	Keyword string
	Label   string
	Tokens  token.Stream
	At      token.Pos
}

func (*Lit) exprNode()        {}
func (*BoolLit) exprNode()    {}
func (*Path) exprNode()       {}
func (*Unary) exprNode()      {}
func (*Binary) exprNode()     {}
func (*Assign) exprNode()     {}
func (*Cast) exprNode()       {}
func (*Call) exprNode()       {}
func (*MethodCall) exprNode() {}
func (*Field) exprNode()      {}
func (*Index) exprNode()      {}
func (*Paren) exprNode()      {}
func (*Tuple) exprNode()      {}
func (*Array) exprNode()      {}
func (*Block) exprNode()      {}
func (*If) exprNode()         {}
func (*Return) exprNode()     {}
func (*Macro) exprNode()      {}
func (*Opaque) exprNode()     {}

func (e *Lit) Pos() token.Pos        { return e.At }
func (e *BoolLit) Pos() token.Pos    { return e.At }
func (e *Path) Pos() token.Pos       { return e.At }
func (e *Unary) Pos() token.Pos      { return e.At }
func (e *Binary) Pos() token.Pos     { return e.At }
func (e *Assign) Pos() token.Pos     { return e.At }
func (e *Cast) Pos() token.Pos       { return e.At }
func (e *Call) Pos() token.Pos       { return e.At }
func (e *MethodCall) Pos() token.Pos { return e.At }
func (e *Field) Pos() token.Pos      { return e.At }
func (e *Index) Pos() token.Pos      { return e.At }
func (e *Paren) Pos() token.Pos      { return e.At }
func (e *Tuple) Pos() token.Pos      { return e.At }
func (e *Array) Pos() token.Pos      { return e.At }
func (e *Block) Pos() token.Pos      { return e.At }
func (e *If) Pos() token.Pos         { return e.At }
func (e *Return) Pos() token.Pos     { return e.At }
func (e *Macro) Pos() token.Pos      { return e.At }
func (e *Opaque) Pos() token.Pos     { return e.At }

// Let is `let name: T = init;`. Pattern holds the raw pattern when it is
// not a single identifier; Name is empty then.
type Let struct {
	Name    string
	Mut     bool
	Pattern token.Stream
	Type    token.Stream
	Init    Expr
	At      token.Pos
}

// ConstItem is a nested `const NAME: T = value;`.
type ConstItem struct {
	Name  string
	Type  token.Stream
	Value Expr
	At    token.Pos
}

// FnParam is one runtime parameter of a nested fn.
type FnParam struct {
	Name string
	Type token.Stream
}

// FnItem is a nested fn definition.
type FnItem struct {
	Name     string
	Const    bool
	Generics []generics.Param
	Params   []FnParam
	Result   token.Stream
	Body     *Block
	At       token.Pos
}

// Item is a nested item the evaluator does not interpret, such as a
// struct, impl or use declaration.
type Item struct {
	Keyword string
	Tokens  token.Stream
	At      token.Pos
}

// ExprStmt is an expression statement; Semi records a trailing `;`.
type ExprStmt struct {
	X    Expr
	Semi bool
}

func (*Let) stmtNode()       {}
func (*ConstItem) stmtNode() {}
func (*FnItem) stmtNode()    {}
func (*Item) stmtNode()      {}
func (*ExprStmt) stmtNode()  {}

func (s *Let) Pos() token.Pos       { return s.At }
func (s *ConstItem) Pos() token.Pos { return s.At }
func (s *FnItem) Pos() token.Pos    { return s.At }
func (s *Item) Pos() token.Pos      { return s.At }
func (s *ExprStmt) Pos() token.Pos  { return s.X.Pos() }
