package token

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shape reduces a stream to kind:text pairs for comparison.
func shape(s Stream) []string {
	out := make([]string, 0, len(s))
	for _, t := range s {
		switch t.Kind {
		case Group:
			out = append(out, "group:"+t.Delim.Open())
		default:
			out = append(out, t.Kind.String()+":"+t.Text)
		}
	}
	return out
}

func TestLexFunctionDeclaration(t *testing.T) {
	s, err := Lex("fn f<const N: usize>() {}")
	require.NoError(t, err)

	want := []string{
		"ident:fn", "ident:f", "punct:<", "ident:const", "ident:N",
		"punct::", "ident:usize", "punct:>", "group:(", "group:{",
	}
	if diff := cmp.Diff(want, shape(s)); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestLexSpacing(t *testing.T) {
	s, err := Lex("a::<T> -> b")
	require.NoError(t, err)
	require.Len(t, s, 9)

	assert.Equal(t, Joint, s[1].Spacing, "first colon of :: is joint")
	assert.Equal(t, Joint, s[2].Spacing, "second colon touches <")
	assert.Equal(t, Alone, s[3].Spacing)
	assert.Equal(t, Alone, s[5].Spacing)
	assert.Equal(t, Joint, s[6].Spacing, "- of -> is joint")
	assert.Equal(t, Alone, s[7].Spacing)
}

func TestLexTupleIndex(t *testing.T) {
	s, err := Lex("x.0.1 == 2.5 && r.1..3")
	require.NoError(t, err)

	want := []string{
		"ident:x", "punct:.", "literal:0", "punct:.", "literal:1",
		"punct:=", "punct:=", "literal:2.5", "punct:&", "punct:&",
		"ident:r", "punct:.", "literal:1", "punct:.", "punct:.", "literal:3",
	}
	if diff := cmp.Diff(want, shape(s)); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, LitInt, s[2].Lit)
	assert.Equal(t, LitInt, s[4].Lit)
	assert.Equal(t, LitFloat, s[7].Lit)
}

func TestLexLifetimesAndChars(t *testing.T) {
	s, err := Lex(`'a 'b' '\n' 'static '_'`)
	require.NoError(t, err)

	want := []string{"lifetime:'a", "literal:'b'", `literal:'\n'`, "lifetime:'static", "literal:'_'"}
	if diff := cmp.Diff(want, shape(s)); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, LitChar, s[1].Lit)
}

func TestLexNumbers(t *testing.T) {
	s, err := Lex("0x1Fu8 1.5 1..2 3.max(4) 1e10 7usize")
	require.NoError(t, err)

	want := []string{
		"literal:0x1Fu8", "literal:1.5",
		"literal:1", "punct:.", "punct:.", "literal:2",
		"literal:3", "punct:.", "ident:max", "group:(",
		"literal:1e10", "literal:7usize",
	}
	if diff := cmp.Diff(want, shape(s)); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, LitFloat, s[1].Lit)
	assert.Equal(t, LitInt, s[11].Lit)
}

func TestLexStrings(t *testing.T) {
	s, err := Lex(`"a \"b\"" r#"raw "x""# b"bytes" b'c'`)
	require.NoError(t, err)
	require.Len(t, s, 4)

	assert.Equal(t, LitStr, s[0].Lit)
	assert.Equal(t, `r#"raw "x""#`, s[1].Text)
	assert.Equal(t, LitByteStr, s[2].Lit)
	assert.Equal(t, LitByte, s[3].Lit)
}

func TestLexSkipsCommentsAndKeepsDocs(t *testing.T) {
	src := "// plain\n/* block /* nested */ */\n/// documented\nfn f() {}"
	s, err := Lex(src)
	require.NoError(t, err)

	want := []string{"punct:#", "group:[", "ident:fn", "ident:f", "group:(", "group:{"}
	if diff := cmp.Diff(want, shape(s)); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, `doc = " documented"`, s[1].Stream.String())
}

func TestLexNormalizesIdentifiers(t *testing.T) {
	s, err := Lex("cafe\u0301")
	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, "caf\u00e9", s[0].Text)
}

func TestLexGroupsNest(t *testing.T) {
	s, err := Lex("f(a, [b; 2], { c })")
	require.NoError(t, err)
	require.Len(t, s, 2)

	args := s[1]
	require.True(t, args.IsGroup(Paren))
	require.Len(t, args.Stream, 5)
	assert.True(t, args.Stream[2].IsGroup(Bracket))
	assert.True(t, args.Stream[4].IsGroup(Brace))
}

func TestLexPositions(t *testing.T) {
	s, err := Lex("fn\n  f")
	require.NoError(t, err)
	require.Len(t, s, 2)

	assert.Equal(t, Pos{Offset: 5, Line: 2, Col: 3}, s[1].Pos())
	assert.Equal(t, 6, s[1].Span.End.Offset)
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"unclosed", "fn f( {", "unclosed delimiter `{`"},
		{"mismatched", "( ]", "mismatched closing delimiter"},
		{"stray close", "a }", "unexpected closing delimiter"},
		{"string", `"abc`, "unterminated string literal"},
		{"comment", "/* open", "unterminated block comment"},
		{"character", "€", "unexpected character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lex(tt.src)
			require.Error(t, err)
			var syn *SyntaxError
			require.ErrorAs(t, err, &syn)
			assert.Contains(t, syn.Message, tt.msg)
		})
	}
}
