// Package emit synthesizes the guarded declaration.
//
// The output is the declaration with one extra where predicate:
//
//	head where [preds,] Witness<{
//	    #[allow(non_snake_case)]
//	    const fn _ident_guard<params>() -> bool {
//	        if !VALUE { panic!("guard evaluated to false") }
//	        true
//	    }
//	    _ident_guard::<idents>()
//	}>: Capability tail
//
// The witness type implements the capability only for `true`, so an
// instantiation whose guard is false fails to satisfy the predicate. The
// guard function lives inside the const block and is invisible outside it.
package emit

import (
	"github.com/roach88/constguard/internal/decl"
	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/guard"
	"github.com/roach88/constguard/internal/merge"
	"github.com/roach88/constguard/internal/token"
)

// Options configures the names used in emitted code.
type Options struct {
	Witness    string // path of the witness type keyed by a bool
	Capability string // path of the trait implemented only for `true`
	Prefix     string // guard fn name prefix
	Suffix     string // guard fn name suffix
	Message    string // default panic message
}

// DefaultOptions returns the names of the const_guards runtime.
func DefaultOptions() Options {
	return Options{
		Witness:    "const_guards::Guard",
		Capability: "const_guards::Protect",
		Prefix:     "_",
		Suffix:     "_guard",
		Message:    diag.MsgGuardFailed,
	}
}

// Emitter renders guarded declarations.
type Emitter struct {
	opts Options
}

// New returns an Emitter. Empty option fields take their defaults.
func New(opts Options) *Emitter {
	def := DefaultOptions()
	if opts.Witness == "" {
		opts.Witness = def.Witness
	}
	if opts.Capability == "" {
		opts.Capability = def.Capability
	}
	if opts.Prefix == "" && opts.Suffix == "" {
		opts.Prefix, opts.Suffix = def.Prefix, def.Suffix
	}
	if opts.Message == "" {
		opts.Message = def.Message
	}
	return &Emitter{opts: opts}
}

// Options returns the effective options.
func (e *Emitter) Options() Options {
	return e.opts
}

// GuardFnIdent derives the guard function name from a declaration name.
func (e *Emitter) GuardFnIdent(ident string) string {
	return e.opts.Prefix + ident + e.opts.Suffix
}

// Emit renders d with the guard installed.
func (e *Emitter) Emit(d *decl.Declaration, spec *guard.Spec, set merge.Set) token.Stream {
	b := token.NewBuilder().Stream(d.Head)
	b.Stream(e.whereExtension(d))
	b.Path(e.opts.Witness).
		Punct("<").
		Group(token.Brace, e.constBlock(d.Ident, spec, set)).
		Punct(">").
		Punct(":").
		Path(e.opts.Capability)
	b.Stream(d.Tail)
	return b.Build()
}

// whereExtension renders the existing clause followed by a separator, or a
// new `where` keyword.
func (e *Emitter) whereExtension(d *decl.Declaration) token.Stream {
	b := token.NewBuilder().Ident("where")
	if d.Where.Empty() {
		return b.Build()
	}
	b.Stream(d.Where.Predicates)
	if !d.Where.TrailingComma() {
		b.Punct(",")
	}
	return b.Build()
}

func (e *Emitter) constBlock(ident string, spec *guard.Spec, set merge.Set) token.Stream {
	name := e.GuardFnIdent(ident)

	check := token.NewBuilder().
		Ident("if").Punct("!").Stream(spec.Value()).
		Group(token.Brace, token.NewBuilder().
			Ident("panic").Punct("!").
			Group(token.Paren, token.NewBuilder().Str(e.opts.Message).Build()).
			Build()).
		Ident("true").
		Build()

	b := token.NewBuilder().
		Punct("#").
		Group(token.Bracket, token.NewBuilder().
			Ident("allow").
			Group(token.Paren, token.NewBuilder().Ident("non_snake_case").Build()).
			Build()).
		Ident("const", "fn", name)
	if len(set.Params) > 0 {
		b.Punct("<")
		for i, p := range set.Params {
			if i > 0 {
				b.Punct(",")
			}
			b.Stream(p.Decl())
		}
		b.Punct(">")
	}
	b.Group(token.Paren, nil).Punct("->").Ident("bool").Group(token.Brace, check)

	b.Ident(name)
	if idents := set.Idents(); len(idents) > 0 {
		b.Punct("::<")
		for i, id := range idents {
			if i > 0 {
				b.Punct(",")
			}
			b.Ident(id)
		}
		b.Punct(">")
	}
	b.Group(token.Paren, nil)
	return b.Build()
}
