package generics

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/constguard/internal/token"
)

func parse(t *testing.T, src string) []Param {
	t.Helper()
	params, err := ParseParamList(token.MustLex(src))
	require.NoError(t, err)
	return params
}

func TestParseParamsKinds(t *testing.T) {
	params := parse(t, "<'a, T: Into<U> + 'a = u8, const N: usize = 3, #[cfg(x)] M>")
	require.Len(t, params, 4)

	type view struct {
		Kind    Kind
		Ident   string
		Bounds  string
		Default string
		Attrs   string
	}
	got := make([]view, len(params))
	for i, p := range params {
		got[i] = view{p.Kind, p.Ident, p.Bounds.String(), p.Default.String(), p.Attrs.String()}
	}
	want := []view{
		{Lifetime, "'a", "", "", ""},
		{Type, "T", "Into < U > + 'a", "u8", ""},
		{Const, "N", "usize", "3", ""},
		{Type, "M", "", "", "# [cfg (x)]"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestParseParamsTrailingCommaAndEmpty(t *testing.T) {
	assert.Len(t, parse(t, "<T, const N: usize,>"), 2)
	assert.Empty(t, parse(t, "<>"))
}

func TestParseParamsNestedAngles(t *testing.T) {
	params := parse(t, "<F: Fn(u8) -> Vec<u8>, G>")
	require.Len(t, params, 2)
	assert.Equal(t, "Fn (u8) -> Vec < u8 >", params[0].Bounds.String())
	assert.Equal(t, "G", params[1].Ident)
}

func TestParseParamsErrors(t *testing.T) {
	tests := []struct {
		src string
		msg string
	}{
		{"<const N>", "needs a type"},
		{"<const: usize>", "expected const parameter name"},
		{"<T = >", "missing default"},
		{"<T, 3>", "expected generic parameter"},
		{"<T", "unclosed generic parameter list"},
		{"T>", "expected `<`"},
		{"<T> x", "unexpected tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := ParseParamList(token.MustLex(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParamDeclOmitsDefault(t *testing.T) {
	params := parse(t, "<T: Copy = u8, const N: usize = 3, 'a: 'b>")
	assert.Equal(t, "T : Copy", params[0].Decl().String())
	assert.Equal(t, "const N : usize", params[1].Decl().String())
	assert.Equal(t, "'a : 'b", params[2].Decl().String())
	assert.True(t, params[0].Forwardable())
	assert.True(t, params[1].Forwardable())
	assert.False(t, params[2].Forwardable())
}

func TestParseWhere(t *testing.T) {
	stopAtBrace := func(c *token.Cursor) bool { return c.PeekGroup(token.Brace) }

	c := token.NewCursor(token.MustLex("where T: Into<u8>, U: Eq, { body }"))
	w := ParseWhere(c, stopAtBrace)
	require.NotNil(t, w)
	assert.Equal(t, "T : Into < u8 >, U : Eq ,", w.Predicates.String())
	assert.True(t, w.TrailingComma())
	assert.False(t, w.Empty())
	assert.True(t, c.PeekGroup(token.Brace))

	c = token.NewCursor(token.MustLex("where { body }"))
	w = ParseWhere(c, stopAtBrace)
	require.NotNil(t, w)
	assert.True(t, w.Empty())
	assert.False(t, w.TrailingComma())

	c = token.NewCursor(token.MustLex("{ body }"))
	assert.Nil(t, ParseWhere(c, stopAtBrace))
}

func TestSplitArgs(t *testing.T) {
	parts := SplitArgs(token.MustLex("u8, Vec<A, B>, { N + 1 },"))
	require.Len(t, parts, 3)
	assert.Equal(t, "Vec < A , B >", parts[1].String())
}
