package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintRoundTrip(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"fn f<const N: usize>() {}", "fn f < const N : usize > () {}"},
		{"a::<T>()", "a ::< T > ()"},
		{"x -> y", "x -> y"},
		{"{ N > 0 }", "{ N > 0 }"},
		{"[T; N]", "[T ; N]"},
		{"where T: Eq,", "where T : Eq ,"},
		{"&'a T", "& 'a T"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			s, err := Lex(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())

			again, err := Lex(s.String())
			require.NoError(t, err)
			assert.Equal(t, tt.want, again.String(), "printing is a fixed point")
		})
	}
}

func TestPrintJointOnlyGluesPunct(t *testing.T) {
	// `>` is joint with `;` in the source but must not glue to an identifier
	// spliced in after it.
	s := MustLex("struct A<T>;")
	head := Concat(s[:5], NewBuilder().Ident("where").Build())
	assert.Equal(t, "struct A < T > where", head.String())
}

func TestBuilder(t *testing.T) {
	s := NewBuilder().
		Path("const_guards::Guard").
		Punct("<").
		Group(Brace, NewBuilder().Ident("true").Build()).
		Punct(">").
		Punct(":").
		Path("const_guards::Protect").
		Build()

	assert.Equal(t, "const_guards :: Guard < { true } > : const_guards :: Protect", s.String())
}

func TestQuoteStr(t *testing.T) {
	assert.Equal(t, `"guard evaluated to false"`, QuoteStr("guard evaluated to false"))
	assert.Equal(t, `"a\"b\\c\n"`, QuoteStr("a\"b\\c\n"))
	assert.Equal(t, `"\u{1}"`, QuoteStr("\x01"))
}

func TestCursorOperators(t *testing.T) {
	c := NewCursor(MustLex("a >= b :: c ->d"))
	c.Next()
	assert.Equal(t, ">=", c.PeekOp())
	assert.True(t, c.EatPunct(">="))
	c.Next()
	assert.True(t, c.PeekPunct("::"))
	assert.False(t, c.PeekPunct(":::"))
	c.EatPunct("::")
	assert.True(t, c.EatIdent("c"))
	assert.Equal(t, "->", c.PeekOp())
}

func TestAngleDelta(t *testing.T) {
	s := MustLex("Fn(A) -> B<C>")
	var depth []int
	for i := range s {
		depth = append(depth, AngleDelta(s, i))
	}
	assert.Equal(t, []int{0, 0, 0, 0, 0, 1, 0, -1}, depth)
}
