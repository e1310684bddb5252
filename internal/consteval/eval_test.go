package consteval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/guard"
	"github.com/roach88/constguard/internal/token"
)

func bindArgs(kv ...string) map[string]token.Stream {
	out := map[string]token.Stream{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = token.MustLex(kv[i+1])
	}
	return out
}

func evalGuard(t *testing.T, ev *Evaluator, params, src string, kv ...string) (Outcome, error) {
	t.Helper()
	ps, err := generics.ParseParamList(token.MustLex(params))
	require.NoError(t, err)
	spec, err := guard.Parse(token.MustLex(src))
	require.NoError(t, err)
	return ev.EvalGuard(spec, ps, bindArgs(kv...))
}

func expr(t *testing.T, src string) (Value, error) {
	t.Helper()
	e, err := guard.ParseExpr(token.MustLex(src))
	require.NoError(t, err)
	return New().EvalExpr(e, nil)
}

func item(t *testing.T, src string) guard.Stmt {
	t.Helper()
	it, err := guard.ParseItem(token.MustLex(src))
	require.NoError(t, err)
	return it
}

func TestEvalGuardOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		params  string
		guard   string
		args    []string
		passed  bool
		message string
	}{
		{"positive passes", "<const N: usize>", "N > 0", []string{"N", "1"}, true, ""},
		{"zero fails", "<const N: usize>", "N > 0", []string{"N", "0"}, false, "guard evaluated to false"},
		{"custom panic", "<const N: usize>",
			`{ if N == 0 { panic!("need >=1") } else { true } }`, []string{"N", "0"}, false, "need >=1"},
		{"custom panic not reached", "<const N: usize>",
			`{ if N == 0 { panic!("need >=1") } else { true } }`, []string{"N", "3"}, true, ""},
		{"return false", "<const N: usize>", "{ if N > 4 { return false; } true }", []string{"N", "5"}, false, "guard evaluated to false"},
		{"size_of type param", "<T, const N: usize>",
			"core::mem::size_of::<T>() * N <= 16", []string{"T", "u32", "N", "4"}, true, ""},
		{"size_of array", "<const N: usize>",
			"size_of::<[u16; N]>() == 2 * N", []string{"N", "3"}, true, ""},
		{"bool param", "<const B: bool>", "!B", []string{"B", "false"}, true, ""},
		{"negative arg", "<const K: i32>", "K < 0 && K.abs() == 7", []string{"K", "-7"}, true, ""},
		{"braced arg", "<const N: usize>", "N == 6", []string{"N", "{ 2 * 3 }"}, true, ""},
		{"associated const", "<const N: u8>", "N < u8::MAX", []string{"N", "255"}, false, "guard evaluated to false"},
		{"associated const of type param", "<T, const N: u32>", "N <= T::BITS", []string{"T", "u16", "N", "16"}, true, ""},
		{"lifetimes ignored", "<'a, const N: usize>", "N != 0", []string{"N", "2"}, true, ""},
		{"char param", "<const C: char>", "C >= 'a' && C <= 'z'", []string{"C", "'q'"}, true, ""},
	}
	ev := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := evalGuard(t, ev, tt.params, tt.guard, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.passed, out.Passed)
			assert.Equal(t, tt.message, out.Message)
		})
	}
}

func TestEvalGuardWithMessage(t *testing.T) {
	out, err := evalGuard(t, New(WithMessage("bad N")), "<const N: usize>", "N > 0", "N", "0")
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Equal(t, "bad N", out.Message)
}

func TestEvalGuardLoops(t *testing.T) {
	t.Run("while", func(t *testing.T) {
		out, err := evalGuard(t, New(), "<const N: usize>",
			"{ let mut i = 0; let mut acc = 0; while i < N { acc += i; i += 1; } acc == 6 }", "N", "4")
		require.NoError(t, err)
		assert.True(t, out.Passed)
	})

	t.Run("inclusive range", func(t *testing.T) {
		out, err := evalGuard(t, New(), "<const N: u32>",
			"{ let mut s = 0u32; for k in 1..=N { s += k; } s == 10 }", "N", "4")
		require.NoError(t, err)
		assert.True(t, out.Passed)
	})

	t.Run("exclusive range", func(t *testing.T) {
		out, err := evalGuard(t, New(), "<const N: usize>",
			"{ let mut n = 0; for _i in 0..N { n += 1; } n == N }", "N", "5")
		require.NoError(t, err)
		assert.True(t, out.Passed)
	})

	t.Run("step limit", func(t *testing.T) {
		_, err := evalGuard(t, New(WithStepLimit(1000)), "<const N: usize>",
			"{ let mut i = 0; while true { i += 1; } i == N }", "N", "1")
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Contains(t, e.Message, "step limit of 1000")
	})
}

func TestEvalGuardItems(t *testing.T) {
	ev := New(WithItems(
		item(t, "const fn double(x: usize) -> usize { x * 2 }"),
		item(t, "pub const LIMIT: usize = 16;"),
		item(t, "fn runtime() -> bool { true }"),
		item(t, "const fn width<T>() -> usize { core::mem::size_of::<T>() }"),
	))

	out, err := evalGuard(t, ev, "<const N: usize>", "double(N) == 8 && N <= LIMIT", "N", "4")
	require.NoError(t, err)
	assert.True(t, out.Passed)

	out, err = evalGuard(t, ev, "<const N: usize>", "width::<u64>() == N", "N", "8")
	require.NoError(t, err)
	assert.True(t, out.Passed)

	_, err = evalGuard(t, ev, "<const N: usize>", "runtime()", "N", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot call non-const fn `runtime`")
}

func TestEvalGuardNestedFn(t *testing.T) {
	src := `{
		const fn is_even(x: usize) -> bool { x % 2 == 0 }
		is_even(N)
	}`
	out, err := evalGuard(t, New(), "<const N: usize>", src, "N", "4")
	require.NoError(t, err)
	assert.True(t, out.Passed)

	_, err = evalGuard(t, New(), "<const N: usize>", "{ const fn peek() -> usize { N } peek() == N }", "N", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot find value `N` in this scope")
}

func TestEvalGuardPanics(t *testing.T) {
	tests := []struct {
		name    string
		guard   string
		message string
	}{
		{"assert", "{ assert!(N % 2 == 0); true }", "assertion failed: N % 2 == 0"},
		{"assert with message", `{ assert!(N < 3, "N = {}", N); true }`, "N = 5"},
		{"positional and named", `{ panic!("N is {0}, limit {max}", N, max = 4) }`, "N is 5, limit 4"},
		{"captured", `{ panic!("too big: {N:?}") }`, "too big: 5"},
		{"escaped braces", `{ panic!("{{N}} = {}", N) }`, "{N} = 5"},
		{"explicit", "{ panic!() }", "explicit panic"},
		{"unreachable", "{ unreachable!() }", "internal error: entered unreachable code"},
		{"assert_eq", "{ assert_eq!(N, 4); true }", "assertion `left == right` failed\n  left: 5\n right: 4"},
		{"overflow", "{ let x: u8 = 251; x + (N as u8) > 0 }", "attempt to add with overflow"},
		{"divide by zero", "{ let z = N - 5; 10 / z == 0 }", "attempt to divide by zero"},
		{"index", "{ let a = [1, 2, 3]; a[N] == 0 }", "index out of bounds: the length is 3 but the index is 5"},
		{"subtract", "{ let x = 3usize; x - N == 0 }", "attempt to subtract with overflow"},
	}
	ev := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := evalGuard(t, ev, "<const N: usize>", tt.guard, "N", "5")
			require.NoError(t, err)
			assert.False(t, out.Passed)
			assert.Equal(t, tt.message, out.Message)
		})
	}
}

func TestEvalGuardErrors(t *testing.T) {
	tests := []struct {
		name   string
		params string
		guard  string
		args   []string
		want   string
	}{
		{"unbound name", "<const N: usize>", "M > 0", []string{"N", "1"}, "cannot find value `M` in this scope"},
		{"type as value", "<T>", "T > 0", []string{"T", "u8"}, "expected value, found type parameter `T`"},
		{"non-bool result", "<const N: usize>", "N + 1", []string{"N", "1"}, "expected `bool`, found `usize`"},
		{"missing argument", "<const N: usize, const M: usize>", "N > M", []string{"N", "1"}, "`M` is not bound"},
		{"mismatched ints", "<const N: u8>", "N == 1u16", []string{"N", "1"}, "expected `u8`, found `u16`"},
		{"arg out of range", "<const N: u8>", "N > 0", []string{"N", "256"}, "literal out of range for `u8`"},
		{"match", "<const N: usize>", "{ match N { 0 => false, _ => true } }", []string{"N", "1"}, "`match` expressions are not evaluated"},
		{"immutable assign", "<const N: usize>", "{ let x = 1; x = 2; x == N }", []string{"N", "1"}, "cannot assign twice to immutable variable `x`"},
		{"float", "<const N: usize>", "1.5 > 0.5", []string{"N", "1"}, "floating-point"},
		{"struct literal", "<const N: usize>", "S { a: N }.a > 0", []string{"N", "1"}, "struct literals are not evaluated"},
		{"labeled loop", "<const N: usize>", "'l: loop { break 'l true }", []string{"N", "1"}, "`loop` expressions are not evaluated"},
		{"labeled block", "<const N: usize>", "'b: { true }", []string{"N", "1"}, "labeled blocks are not evaluated"},
		{"nested item", "<const N: usize>", "{ struct X; impl X { const Y: bool = true; } X::Y }", []string{"N", "1"}, "`struct` items are not evaluated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evalGuard(t, New(), tt.params, tt.guard, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEvalExpr(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"-7 / 2", "-3"},
		{"-7 % 2", "-1"},
		{"300u32 as u8", "44"},
		{"-1i8 as u8", "255"},
		{"1u8 << 7", "128"},
		{"-16i32 >> 2", "-4"},
		{"0xff & 0b1010", "10"},
		{"u8::MAX.count_ones()", "8"},
		{"16usize.is_power_of_two()", "true"},
		{"5u32.next_power_of_two()", "8"},
		{"3u32.pow(4)", "81"},
		{"10u8.saturating_sub(20)", "0"},
		{"250u8.wrapping_add(10)", "4"},
		{"1u32.leading_zeros()", "31"},
		{"1024u64.ilog2()", "10"},
		{"7i8.min(-2)", "-2"},
		{"[1, 2, 3].len()", "3"},
		{"[0u8; 4]", "[0, 0, 0, 0]"},
		{"(1, true).1", "true"},
		{"'a' as u32", "97"},
		{"65u8 as char", "'A'"},
		{`"héllo".len()`, "6"},
		{"matches!(5, 1 | 2 | 4..=8)", "true"},
		{"matches!(3, 1 | 2 | 4..=8)", "false"},
		{"matches!('x', 'a'..='z')", "true"},
		{"if 1 > 2 { 1 } else if 2 > 1 { 2 } else { 3 }", "2"},
		{"{ let (a); 1 }", ""},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := expr(t, tt.src)
			if tt.want == "" {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestEvalExprPanics(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"255u8 + 1", "attempt to add with overflow"},
		{"i8::MIN / -1", "attempt to divide with overflow"},
		{"5 % 0", "attempt to calculate the remainder with a divisor of zero"},
		{"1u8 << 8", "attempt to shift left with overflow"},
		{"i32::MIN.abs()", "attempt to negate with overflow"},
		{"2u8.pow(8)", "attempt to multiply with overflow"},
		{"0u32.ilog2()", "argument of integer logarithm must be positive"},
		{"[1, 2][2]", "index out of bounds: the length is 2 but the index is 2"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := expr(t, tt.src)
			var p *Panic
			require.ErrorAs(t, err, &p)
			assert.Equal(t, tt.want, p.Message)
		})
	}
}

func TestModuleConstCycle(t *testing.T) {
	ev := New(WithItems(
		item(t, "const A: usize = B + 1;"),
		item(t, "const B: usize = A + 1;"),
	))
	_, err := evalGuard(t, ev, "<const N: usize>", "N < A", "N", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected when evaluating `A`")
}

func TestIntTypeWrap(t *testing.T) {
	i8t, _ := LookupIntType("i8")
	v, _, err := parseIntLit("200")
	require.NoError(t, err)
	assert.Equal(t, "-56", i8t.Wrap(v).String())
	assert.Equal(t, "-128", i8t.Min().String())
	assert.Equal(t, "127", i8t.Max().String())

	_, _, err = parseIntLit("256u8")
	require.Error(t, err)

	x, typ, err := parseIntLit("0x_ff_u16")
	require.NoError(t, err)
	assert.Equal(t, "255", x.String())
	assert.Equal(t, "u16", typ.Name)
}
