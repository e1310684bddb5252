package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/constguard/internal/diag"
)

const checkSrc = `#[guard(N > 0)]
fn f<const N: usize>() {}

#[guard({ assert!(N < 8, "buffer too large"); true })]
struct Buf<const N: usize>([u8; N]);

#[guard(<const N: usize> { is_small(N) })]
fn g<T, const N: usize>(_: T) {}

const fn is_small(n: usize) -> bool {
    n < LIMIT
}

const LIMIT: usize = 4;

fn main() {
    f::<3>();
    f::<0>();
    let b: Buf<16> = todo!();
    g::<u8, 2>(0);
    g::<u8, { 2 + 3 }>(0);
}

fn outer<const M: usize>() {
    f::<M>();
    f::<{ M + 1 }>();
    g::<_, 1>(0);
}
`

func check(t *testing.T, srcs ...string) []Instance {
	t.Helper()
	x := New(DefaultConfig())
	var results []*FileResult
	for i, src := range srcs {
		res := x.ExpandSource(string(rune('a'+i))+".rs", []byte(src))
		require.Empty(t, res.Diagnostics)
		results = append(results, res)
	}
	return x.Check(results...)
}

func TestCheckInstantiations(t *testing.T) {
	insts := check(t, checkSrc)

	type row struct {
		text    string
		line    int
		passed  bool
		message string
	}
	var got []row
	for _, in := range insts {
		r := row{text: in.Text, line: in.Pos.Line, passed: in.Passed}
		if in.Diagnostic != nil {
			r.message = in.Diagnostic.Message
		}
		got = append(got, r)
	}
	assert.Equal(t, []row{
		{"f ::< 3 >", 17, true, ""},
		{"f ::< 0 >", 18, false, "guard evaluated to false"},
		{"Buf < 16 >", 19, false, "buffer too large"},
		{"g ::< u8 , 2 >", 20, true, ""},
		{"g ::< u8 , { 2 + 3 } >", 21, false, "guard evaluated to false"},
	}, got)
}

func TestCheckDiagnostics(t *testing.T) {
	insts := check(t, checkSrc)
	require.Len(t, insts, 5)

	failed := insts[1].Diagnostic
	require.NotNil(t, failed)
	assert.Equal(t, diag.CodeGuardFailed, failed.Code)
	assert.Equal(t, "f ::< 0 >", failed.Detail)
	assert.Equal(t, 5, failed.Pos.Col)
	assert.Equal(t, map[string]string{"N": "0"}, insts[1].Args)
	assert.Equal(t, map[string]string{"T": "u8", "N": "{ 2 + 3 }"}, insts[4].Args)
}

func TestCheckAcrossFiles(t *testing.T) {
	lib := "#[guard(fits(N))]\npub struct Ring<const N: usize>;\n\npub const fn fits(n: usize) -> bool { n.is_power_of_two() }\n"
	use := "fn main() {\n    let _a = Ring::<8>;\n    let _b = Ring::<6>;\n}\n"
	insts := check(t, lib, use)

	require.Len(t, insts, 2)
	assert.Equal(t, "b.rs", insts[0].Path)
	assert.True(t, insts[0].Passed)
	assert.False(t, insts[1].Passed)
	assert.Equal(t, 3, insts[1].Pos.Line)
}

func TestCheckDefaultsAndLifetimes(t *testing.T) {
	src := `#[guard(N >= 2)]
struct Win<'a, const N: usize = 2>(&'a [u8; N]);

fn main() {
    let _x: Win<'static> = todo!();
    let _y: Win<'static, 1> = todo!();
}
`
	insts := check(t, src)
	require.Len(t, insts, 2)
	assert.True(t, insts[0].Passed)
	assert.Equal(t, map[string]string{"N": "2"}, insts[0].Args)
	assert.False(t, insts[1].Passed)
}

func TestCheckNotEvaluable(t *testing.T) {
	src := `#[guard(N > missing)]
fn f<const N: usize>() {}

fn main() {
    f::<1>();
}
`
	insts := check(t, src)
	require.Len(t, insts, 1)
	d := insts[0].Diagnostic
	require.NotNil(t, d)
	assert.Equal(t, diag.CodeNotEvaluable, d.Code)
	assert.Contains(t, d.Detail, "cannot find value `missing` in this scope")
	assert.False(t, insts[0].Passed)
}

func TestCheckNoGuards(t *testing.T) {
	assert.Empty(t, check(t, "fn main() { f::<1>(); }\n"))
}

func TestConcreteArgs(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"3", true},
		{"-3", true},
		{"true", true},
		{"{ 1 + 2 }", true},
		{"'x'", true},
		{"N", false},
		{"_", false},
		{"N + 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			insts := check(t, "#[guard(true)]\nfn f<const N: i64>() {}\nfn main() { f::<"+tt.src+">(); }\n")
			assert.Equal(t, tt.want, len(insts) == 1)
		})
	}
}

const scopedSrc = `#[guard(N > 0)]
fn f<const N: usize>() {}

mod inner {
    #[guard(N < 4)]
    pub struct f<const N: usize>;

    fn local() {
        let _s: f<2> = f;
        super::f::<0>();
    }
}

fn main() {
    f::<5>();
    let _t = inner::f::<9>;
}
`

func TestCheckResolvesByModuleAndPosition(t *testing.T) {
	insts := check(t, scopedSrc)

	type row struct {
		text   string
		line   int
		passed bool
		code   string
	}
	var got []row
	for _, in := range insts {
		r := row{text: in.Text, line: in.Pos.Line, passed: in.Passed}
		if in.Diagnostic != nil {
			r.code = in.Diagnostic.Code
		}
		got = append(got, r)
	}
	assert.Equal(t, []row{
		{"f < 2 >", 9, true, ""},
		{"f ::< 0 >", 10, false, diag.CodeGuardFailed},
		{"f ::< 5 >", 15, true, ""},
		{"f ::< 9 >", 16, false, diag.CodeGuardFailed},
	}, got)
}

func TestCheckStackedGuardsAreOneDeclaration(t *testing.T) {
	src := "#[guard(N > 0)]\n#[guard(N < 8)]\nfn h<const N: usize>() {}\nfn main() { h::<3>(); h::<9>(); }\n"
	insts := check(t, src)

	require.Len(t, insts, 4)
	for _, in := range insts {
		if in.Diagnostic != nil {
			assert.Equal(t, diag.CodeGuardFailed, in.Diagnostic.Code)
		}
	}
	assert.True(t, insts[0].Passed)
	assert.True(t, insts[1].Passed)
	assert.Equal(t, 1, count(insts, func(in Instance) bool { return !in.Passed }))
}

func TestCheckAmbiguousUse(t *testing.T) {
	a := "#[guard(N > 0)]\npub fn f<const N: usize>() {}\n"
	b := "#[guard(N > 100)]\npub fn f<const N: usize>() {}\n"
	use := "fn main() {\n    f::<5>();\n}\n"
	insts := check(t, a, b, use)

	require.Len(t, insts, 1)
	d := insts[0].Diagnostic
	require.NotNil(t, d)
	assert.Equal(t, diag.CodeNotEvaluable, d.Code)
	assert.Contains(t, d.Detail, "matches 2 guarded declarations")
	assert.Equal(t, 2, d.Pos.Line)
	assert.False(t, insts[0].Passed)
}

func count(insts []Instance, fn func(Instance) bool) int {
	n := 0
	for _, in := range insts {
		if fn(in) {
			n++
		}
	}
	return n
}
