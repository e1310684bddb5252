package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/constguard/internal/decl"
	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/guard"
	"github.com/roach88/constguard/internal/token"
)

func params(t *testing.T, src string) []generics.Param {
	t.Helper()
	ps, err := generics.ParseParamList(token.MustLex(src))
	require.NoError(t, err)
	return ps
}

func TestCanonicalizeSortsAndDedups(t *testing.T) {
	set, err := Canonicalize(params(t, "<T, const N: usize>"), params(t, "<const N: usize, const M: usize>"))
	require.NoError(t, err)
	assert.Equal(t, []string{"M", "N", "T"}, set.Idents())
	assert.True(t, set.Canonical)
}

func TestCanonicalizeDropsLifetimes(t *testing.T) {
	set, err := Canonicalize(params(t, "<'a, T: 'a, 'b>"), params(t, "<const A: u8>"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "T"}, generics.Idents(set.Params))
}

func TestCanonicalizeFirstWins(t *testing.T) {
	set, err := Canonicalize(params(t, "<T: Copy>"), params(t, "<T>"))
	require.NoError(t, err)
	require.Len(t, set.Params, 1)
	assert.Equal(t, "Copy", set.Params[0].Bounds.String())
}

func TestCanonicalizeIsOrderIndependent(t *testing.T) {
	a, err := Canonicalize(params(t, "<const N: usize, T, U>"), params(t, "<const K: bool>"))
	require.NoError(t, err)
	b, err := Canonicalize(params(t, "<U, T, const N: usize>"), params(t, "<const K: bool>"))
	require.NoError(t, err)
	assert.Equal(t, a.Idents(), b.Idents())
}

func TestCanonicalizeCaseSensitive(t *testing.T) {
	set, err := Canonicalize(params(t, "<a, B, A, b>"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "a", "b"}, set.Idents())
}

func TestCanonicalizeAmbiguousKinds(t *testing.T) {
	_, err := Canonicalize(params(t, "<N>"), params(t, "<const N: usize>"))
	require.Error(t, err)
	d, ok := diag.As(err)
	require.True(t, ok)
	assert.Equal(t, diag.CodeAmbiguousParameter, d.Code)
	assert.Contains(t, d.Detail, "`N` is declared as both a type and a const parameter")
}

func TestForGuard(t *testing.T) {
	d, err := decl.Decompose(token.MustLex("fn head<'a, T, const N: usize>(a: &'a [T; N]) -> &'a T { &a[0] }"))
	require.NoError(t, err)

	t.Run("expression keeps declaration order", func(t *testing.T) {
		spec, err := guard.Parse(token.MustLex("N > 0"))
		require.NoError(t, err)
		set, err := ForGuard(d, spec)
		require.NoError(t, err)
		assert.False(t, set.Canonical)
		assert.Equal(t, []string{"'a", "T", "N"}, generics.Idents(set.Params))
		assert.Equal(t, []string{"T", "N"}, set.Idents())
	})

	t.Run("bare block keeps declaration order", func(t *testing.T) {
		spec, err := guard.Parse(token.MustLex("{ N > 0 }"))
		require.NoError(t, err)
		set, err := ForGuard(d, spec)
		require.NoError(t, err)
		assert.Equal(t, []string{"T", "N"}, set.Idents())
	})

	t.Run("block with params merges", func(t *testing.T) {
		spec, err := guard.Parse(token.MustLex("<const N: usize, const M: usize> { N > M }"))
		require.NoError(t, err)
		set, err := ForGuard(d, spec)
		require.NoError(t, err)
		assert.Equal(t, []string{"M", "N", "T"}, set.Idents())
		p, ok := set.Lookup("M")
		require.True(t, ok)
		assert.Equal(t, generics.Const, p.Kind)
	})
}
