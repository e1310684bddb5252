package token

import "strings"

// Builder assembles synthesized streams, in the spirit of a quasi-quoter.
// Synthesized trees carry no span.
type Builder struct {
	out Stream
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Ident appends one identifier tree per name.
func (b *Builder) Ident(names ...string) *Builder {
	for _, n := range names {
		b.out = append(b.out, Tree{Kind: Ident, Text: n})
	}
	return b
}

// Punct appends the operator op, one tree per character. All characters but
// the last are Joint.
func (b *Builder) Punct(op string) *Builder {
	for i, r := range op {
		t := Tree{Kind: Punct, Text: string(r)}
		if i < len(op)-1 {
			t.Spacing = Joint
		}
		b.out = append(b.out, t)
	}
	return b
}

// Path appends a `::`-separated path such as `const_guards::Guard`.
func (b *Builder) Path(path string) *Builder {
	for i, seg := range strings.Split(path, "::") {
		if i > 0 {
			b.Punct("::")
		}
		b.Ident(seg)
	}
	return b
}

// Str appends a string literal with the given contents.
func (b *Builder) Str(s string) *Builder {
	b.out = append(b.out, Tree{Kind: Literal, Lit: LitStr, Text: QuoteStr(s)})
	return b
}

// Group appends a delimited group around inner.
func (b *Builder) Group(d Delimiter, inner Stream) *Builder {
	b.out = append(b.out, Tree{Kind: Group, Delim: d, Stream: inner})
	return b
}

// Tree appends trees verbatim.
func (b *Builder) Tree(t ...Tree) *Builder {
	b.out = append(b.out, t...)
	return b
}

// Stream appends a stream verbatim.
func (b *Builder) Stream(s Stream) *Builder {
	b.out = append(b.out, s...)
	return b
}

// Build returns the assembled stream.
func (b *Builder) Build() Stream {
	return b.out
}
