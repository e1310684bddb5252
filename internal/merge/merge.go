// Package merge builds the parameter set of a synthesized guard function.
//
// For a poly-block with its own parameter list the declaration's params and
// the guard's params are concatenated, lifetimes are dropped, the result is
// sorted by identifier and duplicates are removed. The order depends only on
// identifiers, so reordering a declaration's params never changes the
// emitted text. Expression guards and parameterless poly-blocks use the
// declaration's params as declared.
package merge

import (
	"sort"

	"github.com/roach88/constguard/internal/decl"
	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/guard"
)

// Set is the parameter list of a guard function.
type Set struct {
	// Params is the definition list. It may contain lifetimes when it was
	// taken verbatim from a declaration.
	Params []generics.Param

	// Canonical is true when Params was produced by Canonicalize.
	Canonical bool
}

// Idents returns the identifiers forwarded at the call site. Lifetimes are
// never forwarded.
func (s Set) Idents() []string {
	var out []string
	for _, p := range s.Params {
		if p.Forwardable() {
			out = append(out, p.Ident)
		}
	}
	return out
}

// Forwardable returns the type and const params of the set.
func (s Set) Forwardable() []generics.Param {
	var out []generics.Param
	for _, p := range s.Params {
		if p.Forwardable() {
			out = append(out, p)
		}
	}
	return out
}

// Lookup finds a param by identifier.
func (s Set) Lookup(ident string) (generics.Param, bool) {
	for _, p := range s.Params {
		if p.Ident == ident {
			return p, true
		}
	}
	return generics.Param{}, false
}

// Canonicalize concatenates the lists, drops lifetimes, sorts by identifier
// and removes duplicates. The first occurrence of an identifier wins, so a
// declaration param keeps its bounds over a guard param of the same name.
// Two params sharing an identifier but not a kind are reported as E203.
func Canonicalize(lists ...[]generics.Param) (Set, error) {
	var all []generics.Param
	for _, l := range lists {
		for _, p := range l {
			if p.Forwardable() {
				all = append(all, p)
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Ident < all[j].Ident
	})

	out := all[:0:0]
	for _, p := range all {
		if n := len(out); n > 0 && out[n-1].Ident == p.Ident {
			prev := out[n-1]
			if prev.Kind != p.Kind {
				return Set{}, diag.Ambiguous(p.Span.Start, p.Ident, prev.Kind.String(), p.Kind.String())
			}
			continue
		}
		out = append(out, p)
	}
	return Set{Params: out, Canonical: true}, nil
}

// ForGuard returns the guard function's parameters for d guarded by spec.
func ForGuard(d *decl.Declaration, spec *guard.Spec) (Set, error) {
	if spec.Variant == guard.PolyBlock && spec.HasGenerics {
		return Canonicalize(d.Generics, spec.Generics)
	}
	return Set{Params: d.Generics}, nil
}
