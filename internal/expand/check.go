package expand

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/roach88/constguard/internal/consteval"
	"github.com/roach88/constguard/internal/decl"
	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/guard"
	"github.com/roach88/constguard/internal/token"
)

// Instance is one concrete instantiation of a guarded declaration.
type Instance struct {
	Path  string
	Pos   token.Pos
	Ident string
	// Text is the instantiation as written, e.g. `Buf::<4>`.
	Text       string
	Args       map[string]string
	Passed     bool
	Diagnostic *diag.Diagnostic
}

// Check evaluates the guard of every guarded declaration in results for each
// instantiation whose generic arguments are concrete. Instantiations that
// still depend on outer generic parameters are skipped.
//
// A use is matched to the declaration its path names: unqualified and
// `self`, `super` or `crate` paths resolve through the inline modules of
// the file the use is in, and a call only matches fns and tuple structs
// while type position only matches structs, enums and associated types.
// Uses the file cannot resolve, such as imports and method calls, fall
// back to every declaration with that ident. A use that still matches
// more than one declaration is reported as not evaluable.
func (x *Expander) Check(results ...*FileResult) []Instance {
	var items []guard.Stmt
	byIdent := map[string][]Guarded{}
	for _, r := range results {
		items = append(items, r.Items...)
		for _, g := range r.Guarded {
			byIdent[g.Decl.Ident] = append(byIdent[g.Decl.Ident], g)
		}
	}
	if len(byIdent) == 0 {
		return nil
	}
	ev := consteval.New(
		consteval.WithItems(items...),
		consteval.WithStepLimit(x.cfg.StepLimit),
		consteval.WithMessage(x.cfg.Emit.Message),
	)

	var out []Instance
	for _, r := range results {
		for _, u := range findUses(r.tokens, nil, byIdent) {
			gs, n := resolve(u, r.Path, byIdent[u.ident])
			if n > 1 {
				if inst, ok := ambiguous(ev, r.Path, u, gs, n); ok {
					out = append(out, inst)
				}
				continue
			}
			for _, g := range gs {
				inst, ok := instantiate(ev, r.Path, u, g)
				if ok {
					out = append(out, inst)
				}
			}
		}
	}
	slog.Debug("instantiations checked",
		"guarded", len(byIdent),
		"instances", len(out),
	)
	return out
}

// site is the syntactic position of a use.
type site int

const (
	siteValue site = iota // `f::<3>` as a value
	siteCall              // `f::<3>(..)`
	siteType              // `Buf<3>`, `Buf::<3>::new`, `Buf::<3> { .. }`
)

type use struct {
	ident string
	pos   token.Pos
	text  string
	args  []token.Stream
	site  site
	// module is the inline module path the use appears in.
	module []string
	// qual holds the path segments written before the ident.
	qual   []string
	method bool
}

// associated reports whether the use goes through a value or type rather
// than a module path, as in `x.f::<3>()` or `Self::f::<3>()`.
func (u use) associated() bool {
	if u.method {
		return true
	}
	if len(u.qual) == 0 {
		return false
	}
	last := u.qual[len(u.qual)-1]
	return last[0] >= 'A' && last[0] <= 'Z'
}

// target resolves the module the use's path names. It fails for paths
// climbing above the file's root.
func (u use) target() ([]string, bool) {
	mod := append([]string(nil), u.module...)
	for i, seg := range u.qual {
		switch {
		case seg == "crate" && i == 0:
			mod = nil
		case seg == "self" && i == 0:
		case seg == "super":
			if len(mod) == 0 {
				return nil, false
			}
			mod = mod[:len(mod)-1]
		default:
			mod = append(mod, seg)
		}
	}
	return mod, true
}

func (s site) matches(k decl.Kind) bool {
	switch s {
	case siteType:
		return k == decl.Struct || k == decl.Enum || k == decl.TraitType
	default:
		return k == decl.Fn || k == decl.TraitMethod || k == decl.Struct
	}
}

// resolve returns the guarded applications of the declaration u refers to
// and how many declarations matched. When more than one matched, the
// applications of all of them are returned.
func resolve(u use, path string, gs []Guarded) ([]Guarded, int) {
	var cands []Guarded
	for _, g := range gs {
		if u.site.matches(g.Decl.Kind) {
			cands = append(cands, g)
		}
	}
	if !u.associated() {
		if mod, ok := u.target(); ok {
			var local []Guarded
			for _, g := range cands {
				if g.Path == path && slices.Equal(g.Module, mod) {
					local = append(local, g)
				}
			}
			if n := countDecls(local); n > 0 {
				local = prefer(u.site, local)
				return local, countDecls(local)
			}
		}
		if len(u.qual) > 0 {
			// The named module is not in this file, or is but does not
			// declare the item.
			var rest []Guarded
			for _, g := range cands {
				if g.Path != path || hasSuffix(g.Module, u.qual) {
					rest = append(rest, g)
				}
			}
			cands = rest
		}
	}
	cands = prefer(u.site, pick(cands, path))
	return cands, countDecls(cands)
}

// prefer keeps fns over structs of the same name for calls and values; a
// fn and a braced struct may share a name.
func prefer(s site, gs []Guarded) []Guarded {
	if s == siteType {
		return gs
	}
	var fns []Guarded
	for _, g := range gs {
		if g.Decl.Kind == decl.Fn || g.Decl.Kind == decl.TraitMethod {
			fns = append(fns, g)
		}
	}
	if len(fns) > 0 {
		return fns
	}
	return gs
}

// countDecls counts distinct declarations; stacked guards on one item
// count once.
func countDecls(gs []Guarded) int {
	type key struct {
		path   string
		offset int
	}
	seen := map[key]bool{}
	for _, g := range gs {
		seen[key{g.Path, g.Item.Offset}] = true
	}
	return len(seen)
}

func hasSuffix(s, suffix []string) bool {
	return len(s) >= len(suffix) && slices.Equal(s[len(s)-len(suffix):], suffix)
}

// pick prefers guarded declarations from the same file, since an ident may
// be declared in several files.
func pick(gs []Guarded, path string) []Guarded {
	var local []Guarded
	for _, g := range gs {
		if g.Path == path {
			local = append(local, g)
		}
	}
	if len(local) > 0 {
		return local
	}
	return gs
}

var declKeywords = map[string]bool{
	"fn": true, "struct": true, "enum": true, "type": true,
	"union": true, "trait": true,
}

// findUses locates `Name::<...>` and, for structs and enums, `Name<...>`
// in type position. Bodies of inline `mod` items extend module.
func findUses(s token.Stream, module []string, guarded map[string][]Guarded) []use {
	var out []use
	for i := 0; i < len(s); i++ {
		t := s[i]
		if t.IsIdent("mod") && i+2 < len(s) && s[i+1].Kind == token.Ident && s[i+2].IsGroup(token.Brace) {
			inner := append(module[:len(module):len(module)], s[i+1].Text)
			out = append(out, findUses(s[i+2].Stream, inner, guarded)...)
			i += 2
			continue
		}
		if t.Kind == token.Group {
			out = append(out, findUses(t.Stream, module, guarded)...)
			continue
		}
		gs, ok := guarded[t.Text]
		if t.Kind != token.Ident || !ok {
			continue
		}
		open := -1
		turbofish := false
		switch {
		case i+3 < len(s) && s[i+1].IsPunct(":") && s[i+2].IsPunct(":") && s[i+3].IsPunct("<"):
			open, turbofish = i+3, true
		case i+1 < len(s) && s[i+1].IsPunct("<") && typeLike(gs) && !(i > 0 && s[i-1].Kind == token.Ident && declKeywords[s[i-1].Text]):
			open = i + 1
		}
		if open < 0 {
			continue
		}
		end := closeAngle(s, open)
		if end < 0 {
			continue
		}
		u := use{
			ident:  t.Text,
			pos:    t.Pos(),
			text:   s[i : end+1].String(),
			args:   generics.SplitArgs(s[open+1 : end]),
			site:   siteType,
			module: module,
		}
		if turbofish {
			u.site = useSite(s, end+1)
		}
		j := i
		for j >= 3 && s[j-1].IsPunct(":") && s[j-2].IsPunct(":") && s[j-3].Kind == token.Ident {
			u.qual = append([]string{s[j-3].Text}, u.qual...)
			j -= 3
		}
		u.method = j > 0 && s[j-1].IsPunct(".")
		out = append(out, u)
		i = end
	}
	return out
}

// useSite classifies a turbofish use by the tree after its closing `>`.
func useSite(s token.Stream, next int) site {
	switch {
	case next >= len(s):
		return siteValue
	case s[next].IsGroup(token.Paren):
		return siteCall
	case s[next].IsGroup(token.Brace), s[next].IsPunct(":"):
		return siteType
	}
	return siteValue
}

func typeLike(gs []Guarded) bool {
	for _, g := range gs {
		if g.Decl.Kind == decl.Struct || g.Decl.Kind == decl.Enum {
			return true
		}
	}
	return false
}

// closeAngle returns the index of the `>` matching the `<` at open.
func closeAngle(s token.Stream, open int) int {
	depth := 0
	for j := open; j < len(s); j++ {
		depth += token.AngleDelta(s, j)
		if depth == 0 {
			return j
		}
		if s[j].IsPunct(";") {
			return -1
		}
	}
	return -1
}

// bind maps the use's generic arguments onto g's forwardable parameters.
// It fails when an argument is missing or not concrete.
func bind(ev *consteval.Evaluator, u use, g Guarded) (map[string]token.Stream, map[string]string, bool) {
	var args []token.Stream
	for _, a := range u.args {
		if len(a) == 1 && a[0].Kind == token.Lifetime {
			continue
		}
		args = append(args, a)
	}

	bound := map[string]token.Stream{}
	shown := map[string]string{}
	i := 0
	for _, p := range g.Decl.Generics {
		if !p.Forwardable() {
			continue
		}
		var arg token.Stream
		switch {
		case i < len(args):
			arg = args[i]
		case len(p.Default) > 0:
			arg = p.Default
		default:
			return nil, nil, false
		}
		i++
		if !concrete(p, arg) {
			return nil, nil, false
		}
		if p.Kind == generics.Const {
			// Braced arguments may still name outer parameters.
			if _, err := ev.EvalArg(arg); err != nil {
				return nil, nil, false
			}
		}
		bound[p.Ident] = arg
		shown[p.Ident] = arg.String()
	}
	if i < len(args) {
		return nil, nil, false
	}
	return bound, shown, true
}

func instantiate(ev *consteval.Evaluator, path string, u use, g Guarded) (Instance, bool) {
	bound, shown, ok := bind(ev, u, g)
	if !ok {
		return Instance{}, false
	}

	inst := Instance{Path: path, Pos: u.pos, Ident: u.ident, Text: u.text, Args: shown}
	outcome, err := ev.EvalGuard(g.Guard, g.Params.Params, bound)
	switch {
	case err != nil:
		inst.Diagnostic = diag.NotEvaluable(u.pos, "%s: %s", u.text, evalMessage(err))
	case !outcome.Passed:
		inst.Diagnostic = diag.GuardFailed(u.pos, outcome.Message, u.text)
	default:
		inst.Passed = true
	}
	return inst, true
}

// ambiguous reports a use matching n declarations, provided its arguments
// are concrete for at least one of them.
func ambiguous(ev *consteval.Evaluator, path string, u use, gs []Guarded, n int) (Instance, bool) {
	for _, g := range gs {
		if _, shown, ok := bind(ev, u, g); ok {
			return Instance{
				Path: path, Pos: u.pos, Ident: u.ident, Text: u.text, Args: shown,
				Diagnostic: diag.NotEvaluable(u.pos, "%s: `%s` matches %d guarded declarations", u.text, u.ident, n),
			}, true
		}
	}
	return Instance{}, false
}

// concrete reports whether arg is fully known: any type other than `_` or
// a bare identifier naming an outer parameter, and for const params a
// literal, a negated literal, a bool or a braced expression.
func concrete(p generics.Param, arg token.Stream) bool {
	if len(arg) == 1 && arg[0].Kind == token.Ident && (arg[0].Text == "_" || p.Kind == generics.Const && arg[0].Text != "true" && arg[0].Text != "false") {
		return false
	}
	if p.Kind == generics.Type {
		return !(len(arg) == 1 && arg[0].Kind == token.Ident && isParamName(arg[0].Text))
	}
	switch {
	case len(arg) == 1 && arg[0].Kind == token.Literal:
		return true
	case len(arg) == 1 && arg[0].IsGroup(token.Brace):
		return true
	case len(arg) == 1 && (arg[0].IsIdent("true") || arg[0].IsIdent("false")):
		return true
	case len(arg) == 2 && arg[0].IsPunct("-") && arg[1].Kind == token.Literal:
		return true
	}
	return false
}

// isParamName treats a single upper-case letter, optionally followed by
// digits, as a generic parameter rather than a concrete type.
func isParamName(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func evalMessage(err error) string {
	var e *consteval.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
