package token

import (
	"fmt"
	"strings"
)

// String renders the stream as source text.
//
// Output is deterministic: trees are separated by one space, except that a
// Joint punct is glued to a following punct. Groups render as (x), [x] and
// { x }. The result re-lexes to an equivalent stream.
func (s Stream) String() string {
	var b strings.Builder
	writeStream(&b, s)
	return b.String()
}

// String renders a single tree.
func (t Tree) String() string {
	var b strings.Builder
	writeTree(&b, t)
	return b.String()
}

func writeStream(b *strings.Builder, s Stream) {
	for i, t := range s {
		if i > 0 && !glued(s[i-1], t) {
			b.WriteByte(' ')
		}
		writeTree(b, t)
	}
}

func glued(prev, cur Tree) bool {
	return prev.Kind == Punct && prev.Spacing == Joint && cur.Kind == Punct
}

func writeTree(b *strings.Builder, t Tree) {
	if t.Kind != Group {
		b.WriteString(t.Text)
		return
	}
	switch t.Delim {
	case Brace:
		if len(t.Stream) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{ ")
		writeStream(b, t.Stream)
		b.WriteString(" }")
	case NoDelim:
		writeStream(b, t.Stream)
	default:
		b.WriteString(t.Delim.Open())
		writeStream(b, t.Stream)
		b.WriteString(t.Delim.Close())
	}
}

// QuoteStr renders s as a host-language string literal.
func QuoteStr(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0:
			b.WriteString(`\0`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u{%x}`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
