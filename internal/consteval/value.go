package consteval

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Kind is the kind of a Value.
type Kind int

const (
	Unit Kind = iota
	Bool
	Int
	Char
	Str
	Tuple
	Array
	Type
)

func (k Kind) String() string {
	switch k {
	case Unit:
		return "()"
	case Bool:
		return "bool"
	case Int:
		return "integer"
	case Char:
		return "char"
	case Str:
		return "&str"
	case Tuple:
		return "tuple"
	case Array:
		return "array"
	case Type:
		return "type"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IntType is a fixed-width integer type. The zero IntType is an integer
// literal whose type has not been inferred yet.
type IntType struct {
	Name   string
	Bits   uint
	Signed bool
}

var intTypes = map[string]IntType{
	"u8":    {"u8", 8, false},
	"u16":   {"u16", 16, false},
	"u32":   {"u32", 32, false},
	"u64":   {"u64", 64, false},
	"u128":  {"u128", 128, false},
	"usize": {"usize", 64, false},
	"i8":    {"i8", 8, true},
	"i16":   {"i16", 16, true},
	"i32":   {"i32", 32, true},
	"i64":   {"i64", 64, true},
	"i128":  {"i128", 128, true},
	"isize": {"isize", 64, true},
}

// intSuffixes is ordered so that longer suffixes match first.
var intSuffixes = []string{"usize", "isize", "u128", "i128", "u16", "u32", "u64", "i16", "i32", "i64", "u8", "i8"}

// LookupIntType returns the integer type named name.
func LookupIntType(name string) (IntType, bool) {
	t, ok := intTypes[name]
	return t, ok
}

// Untyped reports whether the type is still an unsuffixed literal.
func (t IntType) Untyped() bool {
	return t.Name == ""
}

func (t IntType) String() string {
	if t.Untyped() {
		return "{integer}"
	}
	return t.Name
}

// Min returns the smallest value of t.
func (t IntType) Min() *big.Int {
	if !t.Signed {
		return new(big.Int)
	}
	return new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), t.Bits-1))
}

// Max returns the largest value of t.
func (t IntType) Max() *big.Int {
	bits := t.Bits
	if t.Signed {
		bits--
	}
	m := new(big.Int).Lsh(big.NewInt(1), bits)
	return m.Sub(m, big.NewInt(1))
}

// Contains reports whether x is representable in t. Untyped integers hold
// any value.
func (t IntType) Contains(x *big.Int) bool {
	if t.Untyped() {
		return true
	}
	return x.Cmp(t.Min()) >= 0 && x.Cmp(t.Max()) <= 0
}

// Wrap truncates x to t with two's complement semantics, as `as` does.
func (t IntType) Wrap(x *big.Int) *big.Int {
	if t.Untyped() {
		return new(big.Int).Set(x)
	}
	mask := new(big.Int).Lsh(big.NewInt(1), t.Bits)
	mask.Sub(mask, big.NewInt(1))
	v := new(big.Int).And(x, mask)
	if t.Signed && v.Bit(int(t.Bits-1)) == 1 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), t.Bits))
	}
	return v
}

// Value is the result of evaluating a guard expression.
type Value struct {
	Kind    Kind
	Int     *big.Int
	IntType IntType
	Bool    bool
	Char    rune
	Str     string
	Elems   []Value
	Name    string // source text of a Type value
}

// UnitValue is ().
var UnitValue = Value{Kind: Unit}

// BoolValue returns a bool.
func BoolValue(b bool) Value {
	return Value{Kind: Bool, Bool: b}
}

// IntValue returns an integer of type t.
func IntValue(x *big.Int, t IntType) Value {
	return Value{Kind: Int, Int: x, IntType: t}
}

// Int64Value returns an integer of type t.
func Int64Value(x int64, t IntType) Value {
	return IntValue(big.NewInt(x), t)
}

// TypeOf describes v's type for diagnostics.
func (v Value) TypeOf() string {
	switch v.Kind {
	case Int:
		return v.IntType.String()
	case Type:
		return "type `" + v.Name + "`"
	case Array:
		if len(v.Elems) > 0 {
			return fmt.Sprintf("[%s; %d]", v.Elems[0].TypeOf(), len(v.Elems))
		}
		return "[_; 0]"
	case Tuple:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.TypeOf()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return v.Kind.String()
}

// Display formats v as `{}` does.
func (v Value) Display() string {
	switch v.Kind {
	case Str:
		return v.Str
	case Char:
		return string(v.Char)
	}
	return v.Debug()
}

// Debug formats v as `{:?}` does.
func (v Value) Debug() string {
	switch v.Kind {
	case Unit:
		return "()"
	case Bool:
		return strconv.FormatBool(v.Bool)
	case Int:
		return v.Int.String()
	case Char:
		return strconv.QuoteRune(v.Char)
	case Str:
		return strconv.Quote(v.Str)
	case Tuple:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.Debug()
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case Array:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.Debug()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Type:
		return v.Name
	}
	return "?"
}

func (v Value) String() string {
	return v.Debug()
}

// Equal reports structural equality. Integers compare by value.
func (v Value) Equal(w Value) bool {
	if v.Kind != w.Kind {
		return false
	}
	switch v.Kind {
	case Unit:
		return true
	case Bool:
		return v.Bool == w.Bool
	case Int:
		return v.Int.Cmp(w.Int) == 0
	case Char:
		return v.Char == w.Char
	case Str:
		return v.Str == w.Str
	case Type:
		return v.Name == w.Name
	case Tuple, Array:
		if len(v.Elems) != len(w.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(w.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// parseIntLit parses an integer literal with optional base prefix,
// underscores and type suffix.
func parseIntLit(text string) (*big.Int, IntType, error) {
	s := strings.ReplaceAll(text, "_", "")
	var t IntType
	for _, suf := range intSuffixes {
		if strings.HasSuffix(s, suf) && len(s) > len(suf) {
			t = intTypes[suf]
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	base := 10
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'o', 'b':
			base = 0
		}
	}
	x, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, t, fmt.Errorf("invalid integer literal `%s`", text)
	}
	if !t.Contains(x) {
		return nil, t, fmt.Errorf("literal out of range for `%s`", t)
	}
	return x, t, nil
}

// unescape decodes the escapes of a char or string literal body.
func unescape(body string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("unterminated escape")
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '0':
			b.WriteByte(0)
		case '\\', '\'', '"':
			b.WriteByte(body[i])
		case '\n':
			// Line continuation: skip the newline and leading whitespace.
			for i+1 < len(body) && strings.ContainsRune(" \t\n\r", rune(body[i+1])) {
				i++
			}
		case 'x':
			if i+2 >= len(body) {
				return "", fmt.Errorf("invalid \\x escape")
			}
			n, err := strconv.ParseUint(body[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("invalid \\x escape")
			}
			b.WriteByte(byte(n))
			i += 2
		case 'u':
			end := strings.IndexByte(body[i:], '}')
			if i+1 >= len(body) || body[i+1] != '{' || end < 0 {
				return "", fmt.Errorf("invalid \\u escape")
			}
			hex := strings.ReplaceAll(body[i+2:i+end], "_", "")
			n, err := strconv.ParseUint(hex, 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid \\u escape")
			}
			b.WriteRune(rune(n))
			i += end
		default:
			return "", fmt.Errorf("unknown character escape `\\%c`", body[i])
		}
	}
	return b.String(), nil
}

// parseStrLit decodes a string literal, raw or not.
func parseStrLit(text string) (string, error) {
	if strings.HasPrefix(text, "r") {
		s := strings.TrimPrefix(text, "r")
		hashes := len(s) - len(strings.TrimLeft(s, "#"))
		s = s[hashes : len(s)-hashes]
		return s[1 : len(s)-1], nil
	}
	if len(text) < 2 {
		return "", fmt.Errorf("invalid string literal")
	}
	return unescape(text[1 : len(text)-1])
}

// parseCharLit decodes a char literal; byte literals decode to their value.
func parseCharLit(text string) (rune, error) {
	text = strings.TrimPrefix(text, "b")
	if len(text) < 3 {
		return 0, fmt.Errorf("invalid character literal")
	}
	s, err := unescape(text[1 : len(text)-1])
	if err != nil {
		return 0, err
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("character literal may only contain one codepoint")
	}
	return r[0], nil
}
