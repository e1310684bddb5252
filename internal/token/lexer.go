package token

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// SyntaxError is returned when source text cannot be lexed.
type SyntaxError struct {
	Pos     Pos
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

const punctChars = "=<>!~+-*/%^&|@.,;:#$?"

// Lexer turns source text into token trees.
type Lexer struct {
	input string // The source being tokenized
	pos   int    // Current byte offset in input
	line  int    // Current line number (1-indexed)
	col   int    // Current column number (1-indexed, in runes)
}

// frame is an open delimiter awaiting its closing character.
type frame struct {
	delim Delimiter
	open  Pos
	trees Stream
}

// New creates a new Lexer for the given input.
func New(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

// Lex tokenizes src into a stream of token trees.
func Lex(src string) (Stream, error) {
	return New(src).Tokenize()
}

// MustLex is like Lex but panics on error. Use only for fixed fragments
// known to be valid.
func MustLex(src string) Stream {
	s, err := Lex(src)
	if err != nil {
		panic(err)
	}
	return s
}

// Tokenize lexes the whole input.
func (l *Lexer) Tokenize() (Stream, error) {
	stack := []*frame{{delim: NoDelim}}
	top := func() *frame { return stack[len(stack)-1] }

	for {
		if err := l.skipTrivia(top); err != nil {
			return nil, err
		}
		if l.pos >= len(l.input) {
			break
		}

		start := l.position()
		r := l.peek()

		switch {
		case r == '(' || r == '[' || r == '{':
			l.advance()
			stack = append(stack, &frame{delim: openDelim(r), open: start})

		case r == ')' || r == ']' || r == '}':
			l.advance()
			f := top()
			if len(stack) == 1 {
				return nil, &SyntaxError{Pos: start, Message: fmt.Sprintf("unexpected closing delimiter `%c`", r)}
			}
			if f.delim.Close() != string(r) {
				return nil, &SyntaxError{Pos: start, Message: fmt.Sprintf("mismatched closing delimiter `%c` for `%s` opened at %s", r, f.delim.Open(), f.open)}
			}
			stack = stack[:len(stack)-1]
			top().trees = append(top().trees, Tree{
				Kind:   Group,
				Delim:  f.delim,
				Stream: f.trees,
				Span:   Span{Start: f.open, End: l.position()},
			})

		default:
			t, err := l.lexToken()
			if err != nil {
				return nil, err
			}
			top().trees = append(top().trees, t)
		}
	}

	if len(stack) > 1 {
		f := top()
		return nil, &SyntaxError{Pos: f.open, Message: fmt.Sprintf("unclosed delimiter `%s`", f.delim.Open())}
	}
	return stack[0].trees, nil
}

func openDelim(r rune) Delimiter {
	switch r {
	case '(':
		return Paren
	case '[':
		return Bracket
	default:
		return Brace
	}
}

// skipTrivia consumes whitespace and comments. Doc comments are turned
// into `#[doc = "..."]` attribute trees on the current frame.
func (l *Lexer) skipTrivia(top func() *frame) error {
	for l.pos < len(l.input) {
		r := l.peek()
		switch {
		case unicode.IsSpace(r):
			l.advance()
		case strings.HasPrefix(l.input[l.pos:], "//"):
			start := l.position()
			end := strings.IndexByte(l.input[l.pos:], '\n')
			if end < 0 {
				end = len(l.input) - l.pos
			}
			text := l.input[l.pos : l.pos+end]
			l.advanceBytes(end)
			if doc, inner, ok := lineDoc(text); ok {
				top().trees = append(top().trees, docAttr(doc, inner, Span{Start: start, End: l.position()})...)
			}
		case strings.HasPrefix(l.input[l.pos:], "/*"):
			start := l.position()
			text, err := l.blockComment()
			if err != nil {
				return err
			}
			if doc, inner, ok := blockDoc(text); ok {
				top().trees = append(top().trees, docAttr(doc, inner, Span{Start: start, End: l.position()})...)
			}
		default:
			return nil
		}
	}
	return nil
}

// blockComment consumes a possibly nested block comment and returns its text.
func (l *Lexer) blockComment() (string, error) {
	start := l.position()
	from := l.pos
	depth := 0
	for l.pos < len(l.input) {
		rest := l.input[l.pos:]
		switch {
		case strings.HasPrefix(rest, "/*"):
			depth++
			l.advanceBytes(2)
		case strings.HasPrefix(rest, "*/"):
			depth--
			l.advanceBytes(2)
			if depth == 0 {
				return l.input[from:l.pos], nil
			}
		default:
			l.advance()
		}
	}
	return "", &SyntaxError{Pos: start, Message: "unterminated block comment"}
}

func lineDoc(text string) (doc string, inner bool, ok bool) {
	switch {
	case strings.HasPrefix(text, "///") && !strings.HasPrefix(text, "////"):
		return strings.TrimSuffix(text[3:], "\r"), false, true
	case strings.HasPrefix(text, "//!"):
		return strings.TrimSuffix(text[3:], "\r"), true, true
	}
	return "", false, false
}

func blockDoc(text string) (doc string, inner bool, ok bool) {
	body := text[2 : len(text)-2]
	switch {
	case strings.HasPrefix(body, "*") && !strings.HasPrefix(body, "**") && body != "*":
		return body[1:], false, true
	case strings.HasPrefix(body, "!"):
		return body[1:], true, true
	}
	return "", false, false
}

func docAttr(doc string, inner bool, span Span) Stream {
	out := Stream{{Kind: Punct, Text: "#", Span: span}}
	if inner {
		out[0].Spacing = Joint
		out = append(out, Tree{Kind: Punct, Text: "!", Span: span})
	}
	return append(out, Tree{
		Kind:  Group,
		Delim: Bracket,
		Span:  span,
		Stream: Stream{
			{Kind: Ident, Text: "doc", Span: span},
			{Kind: Punct, Text: "=", Span: span},
			{Kind: Literal, Lit: LitStr, Text: QuoteStr(doc), Span: span},
		},
	})
}

// lexToken lexes a single non-group token at the current position.
func (l *Lexer) lexToken() (Tree, error) {
	start := l.position()
	r := l.peek()

	switch {
	case r == '"':
		if err := l.quoted('"'); err != nil {
			return Tree{}, err
		}
		return l.literal(start, LitStr), nil

	case r == '\'':
		return l.quote(start)

	case r == 'b' && l.peekAt(1) == '"':
		l.advance()
		if err := l.quoted('"'); err != nil {
			return Tree{}, err
		}
		return l.literal(start, LitByteStr), nil

	case r == 'b' && l.peekAt(1) == '\'':
		l.advance()
		if err := l.quoted('\''); err != nil {
			return Tree{}, err
		}
		return l.literal(start, LitByte), nil

	case r == 'r' && l.rawStringAhead(1):
		l.advance()
		if err := l.rawString(); err != nil {
			return Tree{}, err
		}
		return l.literal(start, LitStr), nil

	case r == 'b' && l.peekAt(1) == 'r' && l.rawStringAhead(2):
		l.advance()
		l.advance()
		if err := l.rawString(); err != nil {
			return Tree{}, err
		}
		return l.literal(start, LitByteStr), nil

	case r == 'r' && l.peekAt(1) == '#' && isIdentStart(l.peekAt(2)):
		l.advance()
		l.advance()
		l.identRun()
		return Tree{Kind: Ident, Text: l.input[start.Offset:l.pos], Span: l.span(start)}, nil

	case isIdentStart(r):
		l.identRun()
		text := norm.NFC.String(l.input[start.Offset:l.pos])
		return Tree{Kind: Ident, Text: text, Span: l.span(start)}, nil

	case r >= '0' && r <= '9':
		kind := l.number()
		return l.literal(start, kind), nil

	case strings.ContainsRune(punctChars, r):
		l.advance()
		t := Tree{Kind: Punct, Text: string(r), Span: l.span(start)}
		if l.pos < len(l.input) && strings.ContainsRune(punctChars, l.peek()) {
			t.Spacing = Joint
		}
		return t, nil
	}

	return Tree{}, &SyntaxError{Pos: start, Message: fmt.Sprintf("unexpected character %q", r)}
}

// quote lexes either a char literal or a lifetime.
func (l *Lexer) quote(start Pos) (Tree, error) {
	next := l.peekAt(1)
	if next != '\\' && isIdentStart(next) && l.peekAt(2) != '\'' {
		l.advance()
		l.identRun()
		return Tree{Kind: Lifetime, Text: l.input[start.Offset:l.pos], Span: l.span(start)}, nil
	}
	if err := l.quoted('\''); err != nil {
		return Tree{}, err
	}
	return l.literal(start, LitChar), nil
}

// quoted consumes a quote-delimited literal with backslash escapes,
// followed by an optional suffix.
func (l *Lexer) quoted(q rune) error {
	start := l.position()
	l.advance() // opening quote
	for l.pos < len(l.input) {
		r := l.advance()
		switch r {
		case '\\':
			if l.pos < len(l.input) {
				l.advance()
			}
		case q:
			l.identRun()
			return nil
		}
	}
	what := "string"
	if q == '\'' {
		what = "character"
	}
	return &SyntaxError{Pos: start, Message: fmt.Sprintf("unterminated %s literal", what)}
}

func (l *Lexer) rawStringAhead(at int) bool {
	for {
		switch l.peekAt(at) {
		case '#':
			at++
		case '"':
			return true
		default:
			return false
		}
	}
}

// rawString consumes r#"..."# with any number of hashes; the leading r or
// br has already been consumed.
func (l *Lexer) rawString() error {
	start := l.position()
	hashes := 0
	for l.peek() == '#' {
		hashes++
		l.advance()
	}
	l.advance() // opening quote
	closing := "\"" + strings.Repeat("#", hashes)
	idx := strings.Index(l.input[l.pos:], closing)
	if idx < 0 {
		return &SyntaxError{Pos: start, Message: "unterminated raw string literal"}
	}
	l.advanceBytes(idx + len(closing))
	l.identRun()
	return nil
}

// number consumes an integer or float literal including its suffix.
func (l *Lexer) number() LitKind {
	begin := l.pos
	kind := LitInt
	if l.peek() == '0' && strings.ContainsRune("xob", l.peekAt(1)) {
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) || l.peek() == '_' {
			l.advance()
		}
		l.identRun()
		return kind
	}

	l.digits()
	if l.tupleIndex(begin) {
		l.identRun()
		return kind
	}
	if l.peek() == '.' && l.peekAt(1) != '.' && !isIdentStart(l.peekAt(1)) {
		kind = LitFloat
		l.advance()
		l.digits()
	}
	if r := l.peek(); r == 'e' || r == 'E' {
		at := 1
		if s := l.peekAt(1); s == '+' || s == '-' {
			at = 2
		}
		if d := l.peekAt(at); d >= '0' && d <= '9' {
			kind = LitFloat
			for i := 0; i < at; i++ {
				l.advance()
			}
			l.digits()
		}
	}
	suffix := l.pos
	l.identRun()
	if s := l.input[suffix:l.pos]; s == "f32" || s == "f64" {
		kind = LitFloat
	}
	return kind
}

// tupleIndex reports whether the number starting at start follows a field
// access dot, as in `x.0.1`. Such a number never takes a fraction, so
// `0.1` there lexes as `0`, `.`, `1`.
func (l *Lexer) tupleIndex(start int) bool {
	if start == 0 || l.input[start-1] != '.' {
		return false
	}
	return start < 2 || l.input[start-2] != '.'
}

func (l *Lexer) digits() {
	for r := l.peek(); (r >= '0' && r <= '9') || r == '_'; r = l.peek() {
		l.advance()
	}
}

func (l *Lexer) identRun() {
	for l.pos < len(l.input) && isIdentContinue(l.peek()) {
		l.advance()
	}
}

func (l *Lexer) literal(start Pos, kind LitKind) Tree {
	return Tree{Kind: Literal, Lit: kind, Text: l.input[start.Offset:l.pos], Span: l.span(start)}
}

func (l *Lexer) position() Pos {
	return Pos{Offset: l.pos, Line: l.line, Col: l.col}
}

func (l *Lexer) span(start Pos) Span {
	return Span{Start: start, End: l.position()}
}

func (l *Lexer) peek() rune {
	return l.peekAt(0)
}

// peekAt returns the rune n runes ahead, or 0 past the end of input.
func (l *Lexer) peekAt(n int) rune {
	p := l.pos
	for i := 0; ; i++ {
		if p >= len(l.input) {
			return 0
		}
		r, size := utf8.DecodeRuneInString(l.input[p:])
		if i == n {
			return r
		}
		p += size
	}
}

func (l *Lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) advanceBytes(n int) {
	end := l.pos + n
	for l.pos < end {
		l.advance()
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.Is(unicode.Nl, r)
}

func isIdentContinue(r rune) bool {
	return isIdentStart(r) || unicode.In(r, unicode.Nd, unicode.Mn, unicode.Mc, unicode.Pc)
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
