package expand

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/constguard/internal/decl"
	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/guard"
	"github.com/roach88/constguard/internal/ir"
	"github.com/roach88/constguard/internal/merge"
	"github.com/roach88/constguard/internal/token"
)

// FileResult is the outcome of expanding one source file.
type FileResult struct {
	Path string
	// Output is the source with every accepted expansion spliced in. Text
	// outside guarded items is byte-identical to the input.
	Output      []byte
	Expansions  []Expansion
	Diagnostics []*diag.Diagnostic

	// Items are the const fn and const items guards may reference.
	Items []guard.Stmt
	// Guarded are the declarations whose guards were applied, for Check.
	Guarded []Guarded

	tokens token.Stream
}

// Failed reports whether any application was rejected.
func (r *FileResult) Failed() bool {
	return len(r.Diagnostics) > 0
}

// Changed reports whether the output differs from the input.
func (r *FileResult) Changed() bool {
	for _, e := range r.Expansions {
		if e.Diagnostic == nil {
			return true
		}
	}
	return false
}

// Expansion is one guard application within a file.
type Expansion struct {
	ID         string
	Pos        token.Pos
	Context    decl.Context
	Ident      string
	Kind       decl.Kind
	Guard      string
	Input      string
	Output     string
	Cached     bool
	Diagnostic *diag.Diagnostic
}

// Record converts e into a ledger record.
func (e Expansion) Record(path string) ir.Expansion {
	rec := ir.Expansion{
		ID:      e.ID,
		Path:    path,
		Line:    int64(e.Pos.Line),
		Ident:   e.Ident,
		Context: contextName(e.Context),
		Guard:   e.Guard,
		Input:   e.Input,
		Output:  e.Output,
	}
	if e.Ident != "" {
		rec.Kind = e.Kind.String()
	}
	if e.Diagnostic != nil {
		rec.Code = e.Diagnostic.Code
		rec.Message = e.Diagnostic.Error()
	}
	return rec
}

// Guarded is a declaration whose guard was applied.
type Guarded struct {
	Path string
	Pos  token.Pos
	// Module is the path of inline `mod` items enclosing the declaration
	// within its file.
	Module []string
	// Item is where the guarded item starts. Stacked guards on one item
	// share it.
	Item   token.Pos
	Decl   *decl.Declaration
	Guard  *guard.Spec
	Params merge.Set
}

// ExpandSource expands every guard attribute in src. Guards on items nested
// inside other items are expanded first, and stacked guard attributes on one
// item are applied one at a time, first attribute first. A rejected item is
// left as written and reported in Diagnostics.
func (x *Expander) ExpandSource(path string, src []byte) *FileResult {
	res := &FileResult{Path: path, Output: src}
	toks, err := token.Lex(string(src))
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, diag.FromLex(err))
		return res
	}
	res.tokens = toks

	r := &rewriter{x: x, src: src, res: res}
	edits := r.level(toks, decl.ContextItem)
	res.Output = []byte(splice(string(src), edits, 0))

	slog.Debug("source expanded",
		"path", path,
		"expansions", len(res.Expansions),
		"diagnostics", len(res.Diagnostics),
	)
	return res
}

// edit replaces src[start:end].
type edit struct {
	start, end int
	text       string
}

func splice(text string, edits []edit, base int) string {
	if len(edits) == 0 {
		return text
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	at := 0
	for _, e := range edits {
		b.WriteString(text[at : e.start-base])
		b.WriteString(e.text)
		at = e.end - base
	}
	b.WriteString(text[at:])
	return b.String()
}

// item is one item-like run of trees at a nesting level.
type item struct {
	toks  token.Stream
	nattr int // leading trees that are outer attributes
	body  int // index of the body brace group, or -1
	trait bool
}

// splitItems cuts s into items. An item ends at a top-level `;` or at the
// first brace group that is neither inside angle brackets nor after a
// top-level `=`. Inner attributes are skipped.
func splitItems(s token.Stream) []item {
	var items []item
	for i := 0; i < len(s); {
		if s[i].IsPunct("#") && i+2 < len(s) && s[i+1].IsPunct("!") && s[i+2].IsGroup(token.Bracket) {
			i += 3
			continue
		}
		if s[i].IsPunct(";") {
			i++
			continue
		}
		start := i
		for i+1 < len(s) && s[i].IsPunct("#") && s[i+1].IsGroup(token.Bracket) {
			i += 2
		}
		it := item{nattr: i - start, body: -1}

		depth, sawEq, end := 0, false, len(s)
	scan:
		for j := i; j < len(s); j++ {
			t := s[j]
			depth += token.AngleDelta(s, j)
			if depth < 0 {
				depth = 0
			}
			switch {
			case t.IsPunct(";"):
				end = j + 1
				break scan
			case depth == 0 && t.IsPunct("=") && t.Spacing == token.Alone && !(j > 0 && s[j-1].Kind == token.Punct && s[j-1].Spacing == token.Joint):
				sawEq = true
			case depth == 0 && t.IsIdent("trait") && it.body < 0:
				it.trait = true
			case depth == 0 && !sawEq && t.IsGroup(token.Brace):
				it.body = j - start
				end = j + 1
				break scan
			}
		}
		it.toks = s[start:end]
		items = append(items, it)
		i = end
	}
	return items
}

type rewriter struct {
	x      *Expander
	src    []byte
	res    *FileResult
	module []string
}

func (r *rewriter) level(s token.Stream, ctx decl.Context) []edit {
	var edits []edit
	for _, it := range splitItems(s) {
		edits = append(edits, r.item(it, ctx)...)
	}
	return edits
}

func (r *rewriter) item(it item, ctx decl.Context) []edit {
	var inner []edit
	if it.body >= 0 {
		bodyCtx := decl.ContextItem
		if it.trait {
			bodyCtx = decl.ContextTrait
		}
		outer := r.module
		if name, ok := moduleName(it); ok {
			r.module = append(outer[:len(outer):len(outer)], name)
		}
		inner = r.level(it.toks[it.body].Stream, bodyCtx)
		r.module = outer
	}
	if ctx == decl.ContextItem {
		r.collect(it)
	}
	if _, _, ok := r.x.findGuard(it.toks[:it.nattr]); !ok {
		return inner
	}

	span := it.toks.Span()
	start, end := span.Start.Offset, span.End.Offset
	toks := it.toks
	relexed := len(inner) > 0
	if relexed {
		text := splice(string(r.src[start:end]), inner, start)
		var err error
		if toks, err = token.Lex(text); err != nil {
			r.reject(Expansion{Pos: span.Start, Context: ctx}, relocate(diag.FromLex(err), span.Start))
			return inner
		}
	}

	out, ok := r.apply(toks, ctx, span.Start, relexed)
	if !ok {
		return inner
	}
	return []edit{{start: start, end: end, text: out}}
}

// moduleName returns the name of an inline `mod name { ... }` item.
func moduleName(it item) (string, bool) {
	if it.body < 0 {
		return "", false
	}
	head := it.toks[it.nattr:it.body]
	if len(head) > 0 && head[0].IsIdent("pub") {
		head = head[1:]
		if len(head) > 0 && head[0].IsGroup(token.Paren) {
			head = head[1:]
		}
	}
	if len(head) == 2 && head[0].IsIdent("mod") && head[1].Kind == token.Ident {
		return head[1].Text, true
	}
	return "", false
}

// apply expands the guard attributes of one item in order.
func (r *rewriter) apply(toks token.Stream, ctx decl.Context, base token.Pos, relexed bool) (string, bool) {
	var applied []Guarded
	for {
		idx, args, ok := r.x.findGuard(leadingAttrs(toks))
		if !ok {
			break
		}
		pos := toks[idx].Pos()
		if relexed || !pos.IsValid() {
			pos = relocatePos(pos, base)
		}
		input := token.Concat(toks[:idx], toks[idx+2:])
		exp := Expansion{Pos: pos, Context: ctx, Guard: args.String(), Input: input.String()}

		key := r.x.Key(ctx, input, args)
		if id, err := ir.ExpansionID(key); err == nil {
			exp.ID = id
		}
		var res Result
		if cached, hit := r.x.lookup(exp.ID); hit {
			// Output comes from the cache; the declaration is still needed
			// for checking instantiations.
			d, spec, set, err := analyze(ctx, input, args)
			if err != nil {
				res = rejected(err)
			} else {
				res = Result{State: Emitted, Decl: d, Guard: spec, Params: set, Output: cached}
				exp.Cached = true
			}
		} else {
			res = r.x.ExpandIn(ctx, input, args)
		}
		if res.State == Rejected {
			d := res.Diagnostic
			if relexed {
				d = relocate(d, base)
			}
			r.reject(exp, d)
			return "", false
		}
		exp.Ident, exp.Kind = res.Decl.Ident, res.Decl.Kind
		exp.Output = res.Output.String()
		r.res.Expansions = append(r.res.Expansions, exp)
		applied = append(applied, Guarded{Path: r.res.Path, Pos: pos, Module: r.module, Item: base, Decl: res.Decl, Guard: res.Guard, Params: res.Params})
		toks = res.Output
	}
	r.res.Guarded = append(r.res.Guarded, applied...)
	return toks.String(), true
}

func (r *rewriter) reject(exp Expansion, d *diag.Diagnostic) {
	if !d.Pos.IsValid() {
		d.Pos = exp.Pos
	}
	exp.Diagnostic = d
	r.res.Expansions = append(r.res.Expansions, exp)
	r.res.Diagnostics = append(r.res.Diagnostics, d)
	slog.Debug("guard rejected",
		"path", r.res.Path,
		"code", d.Code,
		"detail", d.Detail,
	)
}

// collect records const fn and const items for the evaluator.
func (r *rewriter) collect(it item) {
	rest := it.toks[it.nattr:]
	c := token.NewCursor(rest)
	if c.EatIdent("pub") && c.PeekGroup(token.Paren) {
		c.Next()
	}
	if !c.PeekIdent("const") {
		return
	}
	if stmt, err := guard.ParseItem(it.toks); err == nil {
		r.res.Items = append(r.res.Items, stmt)
	}
}

func (x *Expander) lookup(id string) (token.Stream, bool) {
	if x.cache == nil || id == "" {
		return nil, false
	}
	out, ok := x.cache.Lookup(id)
	if !ok {
		return nil, false
	}
	toks, err := token.Lex(out)
	if err != nil {
		return nil, false
	}
	clearSpans(toks)
	return toks, true
}

// clearSpans drops positions that refer to text outside the file.
func clearSpans(s token.Stream) {
	for i := range s {
		s[i].Span = token.Span{}
		if s[i].Kind == token.Group {
			clearSpans(s[i].Stream)
		}
	}
}

// leadingAttrs returns the outer attributes at the start of s.
func leadingAttrs(s token.Stream) token.Stream {
	i := 0
	for i+1 < len(s) && s[i].IsPunct("#") && s[i+1].IsGroup(token.Bracket) {
		i += 2
	}
	return s[:i]
}

// findGuard locates the first guard attribute among attrs and returns the
// index of its `#` and the attribute argument.
func (x *Expander) findGuard(attrs token.Stream) (int, token.Stream, bool) {
	for i := 0; i+1 < len(attrs); i += 2 {
		path, args := attrPath(attrs[i+1].Stream)
		if x.attrs[path] {
			return i, args, true
		}
	}
	return 0, nil, false
}

// attrPath splits the inside of `#[...]` into its path and the contents of
// a trailing parenthesized argument.
func attrPath(s token.Stream) (string, token.Stream) {
	var b strings.Builder
	for i, t := range s {
		switch {
		case t.Kind == token.Ident:
			b.WriteString(t.Text)
		case t.IsPunct(":"):
			b.WriteByte(':')
		case t.IsGroup(token.Paren) && i == len(s)-1:
			return b.String(), t.Stream
		default:
			return "", nil
		}
	}
	return b.String(), nil
}

func relocatePos(p, base token.Pos) token.Pos {
	if !p.IsValid() {
		return base
	}
	out := token.Pos{Offset: base.Offset + p.Offset, Line: base.Line + p.Line - 1, Col: p.Col}
	if p.Line == 1 {
		out.Col = base.Col + p.Col - 1
	}
	return out
}

func relocate(d *diag.Diagnostic, base token.Pos) *diag.Diagnostic {
	out := *d
	out.Pos = relocatePos(d.Pos, base)
	return &out
}
