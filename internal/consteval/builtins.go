package consteval

import (
	"fmt"
	"math/big"
	"math/bits"
	"strconv"
	"strings"

	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/guard"
	"github.com/roach88/constguard/internal/token"
)

var opVerb = map[string]string{
	"+": "add",
	"-": "subtract",
	"*": "multiply",
	"/": "divide",
	"%": "calculate the remainder",
}

// unify gives two integer operands a common type. An untyped literal
// adopts the type of the other side.
func unify(x, y Value, pos token.Pos) (Value, error) {
	switch {
	case x.IntType == y.IntType:
		return y, nil
	case y.IntType.Untyped():
		if !x.IntType.Contains(y.Int) {
			return Value{}, errorf(pos, "literal out of range for `%s`", x.IntType)
		}
		return IntValue(y.Int, x.IntType), nil
	case x.IntType.Untyped():
		return y, nil
	}
	return Value{}, errorf(pos, "mismatched types: expected `%s`, found `%s`", x.IntType, y.IntType)
}

func apply(op string, x, y Value, pos token.Pos) (Value, error) {
	switch {
	case x.Kind == Int && y.Kind == Int:
		if op == "<<" || op == ">>" {
			return shift(op, x, y, pos)
		}
		y2, err := unify(x, y, pos)
		if err != nil {
			return Value{}, err
		}
		x2, err := unify(y2, x, pos)
		if err != nil {
			return Value{}, err
		}
		return intOp(op, x2, y2, pos)
	case x.Kind == Bool && y.Kind == Bool:
		return boolOp(op, x.Bool, y.Bool, pos)
	case x.Kind == Char && y.Kind == Char:
		if v, ok := compare(op, int64(x.Char)-int64(y.Char)); ok {
			return v, nil
		}
	case x.Kind == Str && y.Kind == Str:
		if v, ok := compare(op, int64(strings.Compare(x.Str, y.Str))); ok {
			return v, nil
		}
	case x.Kind == y.Kind && (x.Kind == Tuple || x.Kind == Array || x.Kind == Unit):
		switch op {
		case "==":
			return BoolValue(x.Equal(y)), nil
		case "!=":
			return BoolValue(!x.Equal(y)), nil
		}
	default:
		if _, ok := compare(op, 0); ok || opVerb[op] != "" {
			return Value{}, errorf(pos, "mismatched types: expected `%s`, found `%s`", x.TypeOf(), y.TypeOf())
		}
	}
	return Value{}, errorf(pos, "cannot apply binary operator `%s` to type `%s`", op, x.TypeOf())
}

func compare(op string, c int64) (Value, bool) {
	switch op {
	case "==":
		return BoolValue(c == 0), true
	case "!=":
		return BoolValue(c != 0), true
	case "<":
		return BoolValue(c < 0), true
	case "<=":
		return BoolValue(c <= 0), true
	case ">":
		return BoolValue(c > 0), true
	case ">=":
		return BoolValue(c >= 0), true
	}
	return Value{}, false
}

func boolOp(op string, x, y bool, pos token.Pos) (Value, error) {
	switch op {
	case "&", "&&":
		return BoolValue(x && y), nil
	case "|", "||":
		return BoolValue(x || y), nil
	case "^":
		return BoolValue(x != y), nil
	}
	var c int64
	switch {
	case x && !y:
		c = 1
	case !x && y:
		c = -1
	}
	if v, ok := compare(op, c); ok {
		return v, nil
	}
	return Value{}, errorf(pos, "cannot apply binary operator `%s` to type `bool`", op)
}

func intOp(op string, x, y Value, pos token.Pos) (Value, error) {
	if v, ok := compare(op, int64(x.Int.Cmp(y.Int))); ok {
		return v, nil
	}
	t := x.IntType
	r := new(big.Int)
	switch op {
	case "+":
		r.Add(x.Int, y.Int)
	case "-":
		r.Sub(x.Int, y.Int)
	case "*":
		r.Mul(x.Int, y.Int)
	case "/", "%":
		if y.Int.Sign() == 0 {
			if op == "/" {
				return Value{}, &Panic{Message: "attempt to divide by zero", Pos: pos}
			}
			return Value{}, &Panic{Message: "attempt to calculate the remainder with a divisor of zero", Pos: pos}
		}
		if op == "/" {
			r.Quo(x.Int, y.Int)
		} else {
			r.Rem(x.Int, y.Int)
		}
		if !t.Contains(r) || (op == "%" && t.Signed && x.Int.Cmp(t.Min()) == 0 && y.Int.Cmp(big.NewInt(-1)) == 0) {
			return Value{}, &Panic{Message: "attempt to " + opVerb[op] + " with overflow", Pos: pos}
		}
		return IntValue(r, t), nil
	case "&":
		r.And(x.Int, y.Int)
	case "|":
		r.Or(x.Int, y.Int)
	case "^":
		r.Xor(x.Int, y.Int)
	default:
		return Value{}, errorf(pos, "cannot apply binary operator `%s` to type `%s`", op, t)
	}
	if !t.Contains(r) {
		return Value{}, &Panic{Message: "attempt to " + opVerb[op] + " with overflow", Pos: pos}
	}
	return IntValue(r, t), nil
}

func shift(op string, x, y Value, pos token.Pos) (Value, error) {
	t := x.IntType
	limit := int64(t.Bits)
	if t.Untyped() {
		limit = 32
	}
	if y.Int.Sign() < 0 || y.Int.Cmp(big.NewInt(limit)) >= 0 {
		dir := "left"
		if op == ">>" {
			dir = "right"
		}
		return Value{}, &Panic{Message: "attempt to shift " + dir + " with overflow", Pos: pos}
	}
	n := uint(y.Int.Uint64())
	if op == ">>" {
		return IntValue(new(big.Int).Rsh(x.Int, n), t), nil
	}
	return IntValue(t.Wrap(new(big.Int).Lsh(x.Int, n)), t), nil
}

func (f *frame) cast(x Value, ty string, pos token.Pos) (Value, error) {
	ty = strings.TrimSpace(ty)
	if t, ok := intTypes[ty]; ok {
		switch x.Kind {
		case Int:
			return IntValue(t.Wrap(x.Int), t), nil
		case Bool:
			n := int64(0)
			if x.Bool {
				n = 1
			}
			return Int64Value(n, t), nil
		case Char:
			return IntValue(t.Wrap(big.NewInt(int64(x.Char))), t), nil
		}
	}
	if v, ok := f.params[ty]; ok && v.Kind == Type {
		return f.cast(x, v.Name, pos)
	}
	switch ty {
	case "bool":
		if x.Kind == Bool {
			return x, nil
		}
	case "char":
		if x.Kind == Char {
			return x, nil
		}
		if x.Kind == Int && (x.IntType.Name == "u8" || (x.IntType.Untyped() && x.Int.IsUint64() && x.Int.Uint64() <= 255)) {
			return Value{Kind: Char, Char: rune(x.Int.Int64())}, nil
		}
		if x.Kind == Int {
			return Value{}, errorf(pos, "only `u8` can be cast as `char`, not `%s`", x.IntType)
		}
	}
	return Value{}, errorf(pos, "non-primitive cast: `%s` as `%s`", x.TypeOf(), ty)
}

// intTypeOf returns the width used by bit-level methods; unsuffixed
// literals fall back to i32.
func intTypeOf(v Value) IntType {
	if v.IntType.Untyped() {
		return intTypes["i32"]
	}
	return v.IntType
}

// unsigned returns the two's complement bit pattern of v.
func unsigned(v Value) *big.Int {
	t := intTypeOf(v)
	u := IntType{Name: "u", Bits: t.Bits}
	return u.Wrap(v.Int)
}

func (f *frame) method(e *guard.MethodCall) (Value, error) {
	recv, err := f.eval(e.Recv)
	if err != nil {
		return Value{}, err
	}
	args, err := f.evalAll(e.Args)
	if err != nil {
		return Value{}, err
	}
	arity := func(n int) error {
		if len(args) != n {
			return errorf(e.At, "method `%s` takes %d arguments but %d were supplied", e.Name, n, len(args))
		}
		return nil
	}

	switch recv.Kind {
	case Array, Str:
		n := len(recv.Elems)
		if recv.Kind == Str {
			n = len(recv.Str)
		}
		switch e.Name {
		case "len":
			if err := arity(0); err != nil {
				return Value{}, err
			}
			return Int64Value(int64(n), intTypes["usize"]), nil
		case "is_empty":
			if err := arity(0); err != nil {
				return Value{}, err
			}
			return BoolValue(n == 0), nil
		}
	case Int:
		return f.intMethod(e, recv, args, arity)
	case Char:
		if err := arity(0); err != nil {
			return Value{}, err
		}
		switch e.Name {
		case "is_ascii":
			return BoolValue(recv.Char < 0x80), nil
		case "is_ascii_digit":
			return BoolValue(recv.Char >= '0' && recv.Char <= '9'), nil
		case "len_utf8":
			return Int64Value(int64(len(string(recv.Char))), intTypes["usize"]), nil
		}
	}
	return Value{}, errorf(e.At, "no const method named `%s` found for `%s`", e.Name, recv.TypeOf())
}

func (f *frame) intMethod(e *guard.MethodCall, x Value, args []Value, arity func(int) error) (Value, error) {
	t := intTypeOf(x)
	u32 := intTypes["u32"]
	if x.IntType.Untyped() {
		x = IntValue(x.Int, t)
	}

	switch e.Name {
	case "is_power_of_two", "count_ones", "count_zeros", "leading_zeros", "trailing_zeros",
		"abs", "is_positive", "is_negative", "signum", "next_power_of_two", "ilog2", "ilog10":
		if err := arity(0); err != nil {
			return Value{}, err
		}
	case "pow", "min", "max", "abs_diff", "wrapping_add", "wrapping_sub", "wrapping_mul",
		"saturating_add", "saturating_sub", "saturating_mul", "rem_euclid":
		if err := arity(1); err != nil {
			return Value{}, err
		}
	default:
		return Value{}, errorf(e.At, "no const method named `%s` found for `%s`", e.Name, t)
	}

	bitsOf := unsigned(x)
	switch e.Name {
	case "is_power_of_two":
		if t.Signed {
			break
		}
		return BoolValue(x.Int.Sign() > 0 && new(big.Int).And(x.Int, new(big.Int).Sub(x.Int, big.NewInt(1))).Sign() == 0), nil
	case "count_ones":
		n := 0
		for _, w := range bitsOf.Bits() {
			n += bits.OnesCount64(uint64(w))
		}
		return Int64Value(int64(n), u32), nil
	case "count_zeros":
		n := int(t.Bits)
		for _, w := range bitsOf.Bits() {
			n -= bits.OnesCount64(uint64(w))
		}
		return Int64Value(int64(n), u32), nil
	case "leading_zeros":
		return Int64Value(int64(t.Bits)-int64(bitsOf.BitLen()), u32), nil
	case "trailing_zeros":
		if bitsOf.Sign() == 0 {
			return Int64Value(int64(t.Bits), u32), nil
		}
		return Int64Value(int64(bitsOf.TrailingZeroBits()), u32), nil
	case "abs":
		if !t.Signed {
			break
		}
		r := new(big.Int).Abs(x.Int)
		if !t.Contains(r) {
			return Value{}, &Panic{Message: "attempt to negate with overflow", Pos: e.At}
		}
		return IntValue(r, t), nil
	case "is_positive", "is_negative", "signum":
		if !t.Signed {
			break
		}
		s := x.Int.Sign()
		switch e.Name {
		case "is_positive":
			return BoolValue(s > 0), nil
		case "is_negative":
			return BoolValue(s < 0), nil
		}
		return Int64Value(int64(s), t), nil
	case "next_power_of_two":
		if t.Signed {
			break
		}
		r := big.NewInt(1)
		for r.Cmp(x.Int) < 0 {
			r.Lsh(r, 1)
		}
		if !t.Contains(r) {
			return Value{}, &Panic{Message: "attempt to add with overflow", Pos: e.At}
		}
		return IntValue(r, t), nil
	case "ilog2", "ilog10":
		if x.Int.Sign() <= 0 {
			return Value{}, &Panic{Message: "argument of integer logarithm must be positive", Pos: e.At}
		}
		if e.Name == "ilog2" {
			return Int64Value(int64(x.Int.BitLen()-1), u32), nil
		}
		return Int64Value(int64(len(x.Int.String())-1), u32), nil
	}
	if len(args) == 0 {
		return Value{}, errorf(e.At, "no const method named `%s` found for `%s`", e.Name, t)
	}

	y := args[0]
	if y.Kind != Int {
		return Value{}, errorf(e.Args[0].Pos(), "mismatched types: expected `%s`, found `%s`", t, y.TypeOf())
	}
	if e.Name == "pow" {
		exp, err := coerce(y, "u32", e.Args[0].Pos())
		if err != nil {
			return Value{}, err
		}
		r := new(big.Int).Exp(x.Int, exp.Int, nil)
		if !t.Contains(r) {
			return Value{}, &Panic{Message: "attempt to multiply with overflow", Pos: e.At}
		}
		return IntValue(r, t), nil
	}
	y, err := unify(x, y, e.Args[0].Pos())
	if err != nil {
		return Value{}, err
	}

	switch e.Name {
	case "min":
		if x.Int.Cmp(y.Int) <= 0 {
			return x, nil
		}
		return y, nil
	case "max":
		if x.Int.Cmp(y.Int) >= 0 {
			return x, nil
		}
		return y, nil
	case "abs_diff":
		r := new(big.Int).Abs(new(big.Int).Sub(x.Int, y.Int))
		ut := t
		if t.Signed {
			ut = intTypes["u"+strings.TrimPrefix(t.Name, "i")]
		}
		return IntValue(r, ut), nil
	case "rem_euclid":
		if y.Int.Sign() == 0 {
			return Value{}, &Panic{Message: "attempt to calculate the remainder with a divisor of zero", Pos: e.At}
		}
		r := new(big.Int).Mod(x.Int, y.Int)
		return IntValue(r, t), nil
	}

	r := new(big.Int)
	switch strings.TrimPrefix(strings.TrimPrefix(e.Name, "wrapping_"), "saturating_") {
	case "add":
		r.Add(x.Int, y.Int)
	case "sub":
		r.Sub(x.Int, y.Int)
	case "mul":
		r.Mul(x.Int, y.Int)
	}
	if strings.HasPrefix(e.Name, "wrapping_") {
		return IntValue(t.Wrap(r), t), nil
	}
	switch {
	case r.Cmp(t.Max()) > 0:
		r = t.Max()
	case r.Cmp(t.Min()) < 0:
		r = t.Min()
	}
	return IntValue(r, t), nil
}

// layout evaluates size_of and align_of for primitive and array types.
func (f *frame) layout(seg guard.PathSegment, pos token.Pos) (Value, error) {
	if len(seg.Args) != 1 {
		return Value{}, errorf(pos, "`%s` needs exactly one type argument", seg.Name)
	}
	size, align, err := f.layoutOf(seg.Args[0], pos)
	if err != nil {
		return Value{}, err
	}
	n := size
	if seg.Name == "align_of" {
		n = align
	}
	return Int64Value(n, intTypes["usize"]), nil
}

func (f *frame) layoutOf(ty token.Stream, pos token.Pos) (size, align int64, err error) {
	if len(ty) == 1 && ty[0].Kind == token.Ident {
		name := ty[0].Text
		if v, ok := f.params[name]; ok && v.Kind == Type {
			sub, err := token.Lex(v.Name)
			if err != nil {
				return 0, 0, errorf(pos, "cannot compute the layout of `%s`", v.Name)
			}
			return f.layoutOf(sub, pos)
		}
		if t, ok := intTypes[name]; ok {
			n := int64(t.Bits / 8)
			return n, n, nil
		}
		switch name {
		case "bool":
			return 1, 1, nil
		case "char":
			return 4, 4, nil
		}
	}
	if len(ty) == 1 && ty[0].IsGroup(token.Paren) && len(ty[0].Stream) == 0 {
		return 0, 1, nil
	}
	if len(ty) > 0 && (ty[0].IsPunct("&") || ty[0].IsPunct("*")) {
		return 8, 8, nil
	}
	if len(ty) == 1 && ty[0].IsGroup(token.Bracket) {
		parts := splitOn(ty[0].Stream, ";")
		if len(parts) == 2 {
			es, ea, err := f.layoutOf(parts[0], pos)
			if err != nil {
				return 0, 0, err
			}
			e, err := parseArg(parts[1])
			if err != nil {
				return 0, 0, err
			}
			n, err := f.eval(e)
			if err != nil {
				return 0, 0, err
			}
			if n.Kind != Int || !n.Int.IsInt64() {
				return 0, 0, errorf(pos, "array length must be a `usize`")
			}
			return es * n.Int.Int64(), ea, nil
		}
	}
	return 0, 0, errorf(pos, "cannot compute the layout of `%s`", ty)
}

// splitOn splits s at top-level occurrences of the punct sep.
func splitOn(s token.Stream, sep string) []token.Stream {
	var out []token.Stream
	start := 0
	for i, t := range s {
		if t.IsPunct(sep) && (i == 0 || !s[i-1].IsPunct(sep)) && (i+1 >= len(s) || !s[i+1].IsPunct(sep)) {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func (f *frame) macro(m *guard.Macro) (Value, error) {
	name := m.Path
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	switch name {
	case "panic":
		if len(m.Raw) == 0 {
			return Value{}, &Panic{Message: "explicit panic", Pos: m.At}
		}
		msg, err := f.format(m, m.Exprs)
		if err != nil {
			return Value{}, err
		}
		return Value{}, &Panic{Message: msg, Pos: m.At}

	case "assert", "debug_assert":
		if len(m.Exprs) == 0 {
			return Value{}, errorf(m.At, "`%s!` needs a condition", name)
		}
		c, err := f.eval(m.Exprs[0])
		if err != nil {
			return Value{}, err
		}
		if c.Kind != Bool {
			return Value{}, errorf(m.Exprs[0].Pos(), "mismatched types: expected `bool`, found `%s`", c.TypeOf())
		}
		if c.Bool {
			return UnitValue, nil
		}
		if len(m.Exprs) > 1 {
			msg, err := f.format(m, m.Exprs[1:])
			if err != nil {
				return Value{}, err
			}
			return Value{}, &Panic{Message: msg, Pos: m.At}
		}
		return Value{}, &Panic{Message: "assertion failed: " + generics.SplitArgs(m.Raw)[0].String(), Pos: m.At}

	case "assert_eq", "assert_ne", "debug_assert_eq", "debug_assert_ne":
		if len(m.Exprs) < 2 {
			return Value{}, errorf(m.At, "`%s!` needs two operands", name)
		}
		l, err := f.eval(m.Exprs[0])
		if err != nil {
			return Value{}, err
		}
		r, err := f.eval(m.Exprs[1])
		if err != nil {
			return Value{}, err
		}
		eq := strings.HasSuffix(name, "_eq")
		if l.Kind == Int && r.Kind == Int {
			if r, err = unify(l, r, m.At); err != nil {
				return Value{}, err
			}
		}
		if l.Equal(r) == eq {
			return UnitValue, nil
		}
		op := "=="
		if !eq {
			op = "!="
		}
		head := "assertion `left " + op + " right` failed"
		if len(m.Exprs) > 2 {
			msg, err := f.format(m, m.Exprs[2:])
			if err != nil {
				return Value{}, err
			}
			head += ": " + msg
		}
		return Value{}, &Panic{Message: fmt.Sprintf("%s\n  left: %s\n right: %s", head, l.Debug(), r.Debug()), Pos: m.At}

	case "unreachable", "todo", "unimplemented":
		msg := map[string]string{
			"unreachable":   "internal error: entered unreachable code",
			"todo":          "not yet implemented",
			"unimplemented": "not implemented",
		}[name]
		if len(m.Exprs) > 0 {
			extra, err := f.format(m, m.Exprs)
			if err != nil {
				return Value{}, err
			}
			msg += ": " + extra
		}
		return Value{}, &Panic{Message: msg, Pos: m.At}

	case "matches":
		return f.matches(m)
	}
	return Value{}, errorf(m.At, "cannot evaluate macro `%s!`", m.Path)
}

// format renders a format string and its arguments. Supported
// placeholders are `{}`, `{:?}`, positional `{0}` and named `{name}`,
// with `{{` and `}}` escapes.
func (f *frame) format(m *guard.Macro, exprs []guard.Expr) (string, error) {
	if len(exprs) == 0 {
		return "", errorf(m.At, "format arguments of `%s!` do not parse", m.Path)
	}
	lit, ok := exprs[0].(*guard.Lit)
	if !ok || lit.Kind != token.LitStr {
		return "", errorf(exprs[0].Pos(), "format argument must be a string literal")
	}
	tmpl, err := parseStrLit(lit.Text)
	if err != nil {
		return "", errorf(lit.At, "%v", err)
	}

	var positional []Value
	named := map[string]Value{}
	for _, a := range exprs[1:] {
		if as, ok := a.(*guard.Assign); ok && as.Op == "=" {
			if p, ok := as.Target.(*guard.Path); ok {
				if n, ok := p.Ident(); ok {
					v, err := f.eval(as.Value)
					if err != nil {
						return "", err
					}
					named[n] = v
					continue
				}
			}
		}
		v, err := f.eval(a)
		if err != nil {
			return "", err
		}
		positional = append(positional, v)
	}

	var b strings.Builder
	next := 0
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c == '}' {
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
			}
			b.WriteByte('}')
			continue
		}
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			b.WriteByte('{')
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			return "", errorf(lit.At, "invalid format string: expected `}`")
		}
		arg, spec, _ := strings.Cut(tmpl[i+1:i+end], ":")
		i += end

		var v Value
		switch {
		case arg == "":
			if next >= len(positional) {
				return "", errorf(lit.At, "format string references more arguments than were supplied")
			}
			v = positional[next]
			next++
		case arg[0] >= '0' && arg[0] <= '9':
			n, err := strconv.Atoi(arg)
			if err != nil || n >= len(positional) {
				return "", errorf(lit.At, "invalid reference to positional argument %s", arg)
			}
			v = positional[n]
		default:
			var ok bool
			if v, ok = named[arg]; !ok {
				if v, err = f.eval(&guard.Path{Segments: []guard.PathSegment{{Name: arg}}, At: lit.At}); err != nil {
					return "", err
				}
			}
		}
		switch spec {
		case "":
			b.WriteString(v.Display())
		case "?", "#?":
			b.WriteString(v.Debug())
		default:
			return "", errorf(lit.At, "unsupported format spec `%s`", spec)
		}
	}
	return b.String(), nil
}

// matches evaluates `matches!(expr, pat)` for literal, range and wildcard
// patterns joined by `|`.
func (f *frame) matches(m *guard.Macro) (Value, error) {
	args := generics.SplitArgs(m.Raw)
	if len(args) != 2 {
		return Value{}, errorf(m.At, "`matches!` needs an expression and a pattern")
	}
	x, err := f.evalTokens(args[0])
	if err != nil {
		return Value{}, err
	}
	for _, alt := range splitOn(args[1], "|") {
		ok, err := f.matchPattern(x, alt, m.At)
		if err != nil {
			return Value{}, err
		}
		if ok {
			return BoolValue(true), nil
		}
	}
	return BoolValue(false), nil
}

func (f *frame) matchPattern(x Value, pat token.Stream, pos token.Pos) (bool, error) {
	if len(pat) == 1 && pat[0].IsIdent("_") {
		return true, nil
	}
	for i := 0; i+1 < len(pat); i++ {
		if !pat[i].IsPunct(".") || !pat[i+1].IsPunct(".") {
			continue
		}
		inclusive := i+2 < len(pat) && pat[i+2].IsPunct("=")
		hiStart := i + 2
		if inclusive {
			hiStart++
		}
		lo, hi := pat[:i], pat[hiStart:]
		if len(lo) > 0 {
			v, err := f.evalTokens(lo)
			if err != nil {
				return false, err
			}
			c, err := apply(">=", x, v, pos)
			if err != nil || !c.Bool {
				return false, err
			}
		}
		if len(hi) > 0 {
			v, err := f.evalTokens(hi)
			if err != nil {
				return false, err
			}
			op := "<"
			if inclusive {
				op = "<="
			}
			c, err := apply(op, x, v, pos)
			if err != nil || !c.Bool {
				return false, err
			}
		}
		return true, nil
	}
	v, err := f.evalTokens(pat)
	if err != nil {
		return false, err
	}
	c, err := apply("==", x, v, pos)
	if err != nil {
		return false, err
	}
	return c.Bool, nil
}

func (f *frame) evalTokens(s token.Stream) (Value, error) {
	e, err := parseArg(s)
	if err != nil {
		return Value{}, err
	}
	return f.eval(e)
}

// opaque runs `while` and range `for` loops. Other constructs the parser
// keeps opaque are not evaluated.
func (f *frame) opaque(e *guard.Opaque) (Value, error) {
	toks := e.Tokens
	body := toks[len(toks)-1]
	switch e.Keyword {
	case "while":
		cond, err := parseArg(toks[1 : len(toks)-1])
		if err != nil {
			return Value{}, err
		}
		block, err := guard.ParseBlock(body)
		if err != nil {
			return Value{}, errorf(body.Pos(), "%v", err)
		}
		for {
			c, err := f.eval(cond)
			if err != nil {
				return Value{}, err
			}
			if c.Kind != Bool {
				return Value{}, errorf(cond.Pos(), "mismatched types: expected `bool`, found `%s`", c.TypeOf())
			}
			if !c.Bool {
				return UnitValue, nil
			}
			if _, err := f.block(block); err != nil {
				return Value{}, err
			}
		}

	case "for":
		return f.forRange(e, toks, body)
	case "struct":
		return Value{}, errorf(e.At, "struct literals are not evaluated in guards")
	case "block":
		return Value{}, errorf(e.At, "labeled blocks are not evaluated in guards")
	}
	return Value{}, errorf(e.At, "`%s` expressions are not evaluated in guards", e.Keyword)
}

func (f *frame) forRange(e *guard.Opaque, toks token.Stream, body token.Tree) (Value, error) {
	if len(toks) < 5 || toks[1].Kind != token.Ident || !toks[2].IsIdent("in") {
		return Value{}, errorf(e.At, "only `for name in a..b` loops are evaluated in guards")
	}
	name := toks[1].Text
	rng := toks[3 : len(toks)-1]

	var lo, hi Value
	inclusive, found := false, false
	for i := 0; i+1 < len(rng); i++ {
		if !rng[i].IsPunct(".") || !rng[i+1].IsPunct(".") {
			continue
		}
		found = true
		hiStart := i + 2
		if hiStart < len(rng) && rng[hiStart].IsPunct("=") {
			inclusive = true
			hiStart++
		}
		var err error
		if lo, err = f.evalTokens(rng[:i]); err != nil {
			return Value{}, err
		}
		if hi, err = f.evalTokens(rng[hiStart:]); err != nil {
			return Value{}, err
		}
		break
	}
	if !found || lo.Kind != Int || hi.Kind != Int {
		return Value{}, errorf(e.At, "only integer ranges are evaluated in `for` loops")
	}
	hi, err := unify(lo, hi, e.At)
	if err != nil {
		return Value{}, err
	}
	lo, err = unify(hi, lo, e.At)
	if err != nil {
		return Value{}, err
	}
	block, err := guard.ParseBlock(body)
	if err != nil {
		return Value{}, errorf(body.Pos(), "%v", err)
	}

	end := new(big.Int).Set(hi.Int)
	if inclusive {
		end.Add(end, big.NewInt(1))
	}
	for i := new(big.Int).Set(lo.Int); i.Cmp(end) < 0; i.Add(i, big.NewInt(1)) {
		f.push()
		f.declare(name, &binding{v: IntValue(new(big.Int).Set(i), lo.IntType), init: true})
		_, err := f.block(block)
		f.pop()
		if err != nil {
			return Value{}, err
		}
	}
	return UnitValue, nil
}
