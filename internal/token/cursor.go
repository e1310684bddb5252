package token

// Cursor walks a Stream for recursive-descent parsing. Groups are atomic:
// parsers descend into them with a fresh Cursor over the group's Stream.
type Cursor struct {
	s   Stream
	i   int
	end Pos // position reported at EOF
}

// NewCursor returns a cursor positioned at the start of s.
func NewCursor(s Stream) *Cursor {
	c := &Cursor{s: s}
	if len(s) > 0 {
		c.end = s[len(s)-1].Span.End
	}
	return c
}

// NewCursorAt is like NewCursor but reports end as the EOF position, which
// is useful for group contents whose closing delimiter is the natural end.
func NewCursorAt(s Stream, end Pos) *Cursor {
	return &Cursor{s: s, end: end}
}

// operators lists multi-character operators, longest first.
var operators = []string{
	"<<=", ">>=", "...", "..=",
	"::", "->", "=>", "==", "!=", "<=", ">=", "&&", "||",
	"+=", "-=", "*=", "/=", "%=", "^=", "&=", "|=", "<<", ">>", "..",
}

// EOF reports whether all trees have been consumed.
func (c *Cursor) EOF() bool {
	return c.i >= len(c.s)
}

// Index returns the index of the next tree.
func (c *Cursor) Index() int {
	return c.i
}

// Seek repositions the cursor.
func (c *Cursor) Seek(i int) {
	c.i = i
}

// Peek returns the next tree without consuming it.
func (c *Cursor) Peek() (Tree, bool) {
	return c.PeekAt(0)
}

// PeekAt returns the tree n positions ahead.
func (c *Cursor) PeekAt(n int) (Tree, bool) {
	if c.i+n >= len(c.s) || c.i+n < 0 {
		return Tree{}, false
	}
	return c.s[c.i+n], true
}

// Next consumes and returns the next tree. At EOF it returns the zero Tree.
func (c *Cursor) Next() Tree {
	if c.EOF() {
		return Tree{}
	}
	t := c.s[c.i]
	c.i++
	return t
}

// Pos returns the position of the next tree, or the end position at EOF.
func (c *Cursor) Pos() Pos {
	if t, ok := c.Peek(); ok {
		return t.Span.Start
	}
	return c.end
}

// Slice returns the trees between two indices.
func (c *Cursor) Slice(from, to int) Stream {
	return c.s[from:to]
}

// Rest returns the unconsumed trees.
func (c *Cursor) Rest() Stream {
	return c.s[c.i:]
}

// PeekIdent reports whether the next tree is the identifier name.
func (c *Cursor) PeekIdent(name string) bool {
	t, ok := c.Peek()
	return ok && t.IsIdent(name)
}

// EatIdent consumes the identifier name if it is next.
func (c *Cursor) EatIdent(name string) bool {
	if c.PeekIdent(name) {
		c.i++
		return true
	}
	return false
}

// PeekGroup reports whether the next tree is a group with delimiter d.
func (c *Cursor) PeekGroup(d Delimiter) bool {
	t, ok := c.Peek()
	return ok && t.IsGroup(d)
}

// PeekPunct reports whether the operator op starts at the cursor. Every
// character of op but the last must be Joint with its successor.
func (c *Cursor) PeekPunct(op string) bool {
	for k := 0; k < len(op); k++ {
		t, ok := c.PeekAt(k)
		if !ok || t.Kind != Punct || t.Text != op[k:k+1] {
			return false
		}
		if k < len(op)-1 && t.Spacing != Joint {
			return false
		}
	}
	return true
}

// EatPunct consumes op if it is next.
func (c *Cursor) EatPunct(op string) bool {
	if c.PeekPunct(op) {
		c.i += len(op)
		return true
	}
	return false
}

// PeekOp returns the longest operator starting at the cursor, or "" when the
// next tree is not punctuation.
func (c *Cursor) PeekOp() string {
	t, ok := c.Peek()
	if !ok || t.Kind != Punct {
		return ""
	}
	for _, op := range operators {
		if c.PeekPunct(op) {
			return op
		}
	}
	return t.Text
}

// AngleDelta classifies s[i] for angle-bracket depth tracking: +1 for `<`,
// -1 for a `>` that is not the tail of `->` or `=>`, 0 otherwise.
func AngleDelta(s Stream, i int) int {
	t := s[i]
	if t.Kind != Punct {
		return 0
	}
	switch t.Text {
	case "<":
		return 1
	case ">":
		if i > 0 {
			prev := s[i-1]
			if prev.Kind == Punct && prev.Spacing == Joint && (prev.Text == "-" || prev.Text == "=") {
				return 0
			}
		}
		return -1
	}
	return 0
}

// AngleDelta classifies the next tree; see the package-level AngleDelta.
func (c *Cursor) AngleDelta() int {
	if c.EOF() {
		return 0
	}
	return AngleDelta(c.s, c.i)
}
