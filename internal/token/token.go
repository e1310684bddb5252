// Package token provides the token-tree representation of host-language
// source consumed and produced by the guard transformer.
//
// Source text is lexed into a Stream of Trees. Delimited regions ( (), {},
// [] ) become a single Group tree holding their contents, so parsers above
// this layer see balanced input and can treat bodies as atomic.
//
// Punctuation is kept one character per tree, each marked Joint when the
// next character is also punctuation. Multi-character operators (::, ->,
// ==, >=, ...) are recovered by the Cursor; generic brackets are never
// confused with shift operators because `>>` stays two trees.
package token

import "fmt"

// Kind classifies a Tree.
type Kind int

const (
	Ident Kind = iota
	Lifetime
	Literal
	Punct
	Group
)

func (k Kind) String() string {
	switch k {
	case Ident:
		return "ident"
	case Lifetime:
		return "lifetime"
	case Literal:
		return "literal"
	case Punct:
		return "punct"
	case Group:
		return "group"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Delimiter is the bracket pair enclosing a Group.
type Delimiter int

const (
	Paren Delimiter = iota
	Brace
	Bracket
	NoDelim
)

// Open returns the opening character of the delimiter.
func (d Delimiter) Open() string {
	switch d {
	case Paren:
		return "("
	case Brace:
		return "{"
	case Bracket:
		return "["
	}
	return ""
}

// Close returns the closing character of the delimiter.
func (d Delimiter) Close() string {
	switch d {
	case Paren:
		return ")"
	case Brace:
		return "}"
	case Bracket:
		return "]"
	}
	return ""
}

// Spacing records whether a punct is immediately followed by another punct.
type Spacing int

const (
	Alone Spacing = iota
	Joint
)

// LitKind classifies a Literal tree.
type LitKind int

const (
	LitInt LitKind = iota
	LitFloat
	LitChar
	LitStr
	LitByte
	LitByteStr
)

// Pos is a source position. Line and Col are 1-based; Offset is a byte offset.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Col    int `json:"col"`
}

// IsValid reports whether the position refers to real source text.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Span is a half-open byte range of source text.
type Span struct {
	Start Pos `json:"start"`
	End   Pos `json:"end"`
}

// Tree is a single token tree.
type Tree struct {
	Kind    Kind
	Text    string // ident/lifetime/literal/punct text; empty for groups
	Spacing Spacing
	Lit     LitKind
	Delim   Delimiter
	Stream  Stream // group contents
	Span    Span
}

// Stream is an ordered sequence of token trees.
type Stream []Tree

// IsIdent reports whether t is the identifier name.
func (t Tree) IsIdent(name string) bool {
	return t.Kind == Ident && t.Text == name
}

// IsPunct reports whether t is the single punctuation character ch.
func (t Tree) IsPunct(ch string) bool {
	return t.Kind == Punct && t.Text == ch
}

// IsGroup reports whether t is a group with delimiter d.
func (t Tree) IsGroup(d Delimiter) bool {
	return t.Kind == Group && t.Delim == d
}

// Pos returns the start position of the tree.
func (t Tree) Pos() Pos {
	return t.Span.Start
}

// Clone returns a deep copy of s. Group contents are copied so callers may
// rewrite the result without aliasing the original.
func (s Stream) Clone() Stream {
	if s == nil {
		return nil
	}
	out := make(Stream, len(s))
	for i, t := range s {
		out[i] = t
		if t.Kind == Group {
			out[i].Stream = t.Stream.Clone()
		}
	}
	return out
}

// Span returns the source range covered by the whole stream.
func (s Stream) Span() Span {
	if len(s) == 0 {
		return Span{}
	}
	return Span{Start: s[0].Span.Start, End: s[len(s)-1].Span.End}
}

// Pos returns the start position of the first tree, or the zero Pos.
func (s Stream) Pos() Pos {
	if len(s) == 0 {
		return Pos{}
	}
	return s[0].Span.Start
}

// Concat joins streams into a new stream.
func Concat(parts ...Stream) Stream {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(Stream, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
