// Package expand runs the guard transformation.
//
// A single application is decompose -> parse guard -> merge parameters ->
// emit. It either produces the guarded declaration or a diagnostic, never
// partial output. On top of that the package expands whole source files the
// way attribute macros expand during compilation, and checks concrete
// instantiations against their guards.
package expand

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/roach88/constguard/internal/consteval"
	"github.com/roach88/constguard/internal/decl"
	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/emit"
	"github.com/roach88/constguard/internal/guard"
	"github.com/roach88/constguard/internal/ir"
	"github.com/roach88/constguard/internal/merge"
	"github.com/roach88/constguard/internal/token"
)

// State is the terminal state of one guard application.
type State int

const (
	Emitted State = iota
	Rejected
)

func (s State) String() string {
	switch s {
	case Emitted:
		return "emitted"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config configures an Expander.
type Config struct {
	// Attributes are the attribute paths recognized as guards.
	Attributes []string
	Emit       emit.Options
	StepLimit  int
	// Concurrency bounds the files expanded at once.
	Concurrency int
}

// DefaultConfig recognizes `guard` and `const_guards::guard`.
func DefaultConfig() Config {
	return Config{
		Attributes:  []string{"guard", "const_guards::guard"},
		Emit:        emit.DefaultOptions(),
		StepLimit:   consteval.DefaultStepLimit,
		Concurrency: runtime.GOMAXPROCS(0),
	}
}

// Cache returns previously rendered output by expansion ID.
type Cache interface {
	Lookup(id string) (output string, ok bool)
}

// Expander applies guards. It holds no per-invocation state and is safe for
// concurrent use.
type Expander struct {
	cfg     Config
	attrs   map[string]bool
	emitter *emit.Emitter
	cache   Cache
}

// ExpanderOption configures optional collaborators.
type ExpanderOption func(*Expander)

// WithCache makes source expansion reuse rendered output for applications
// whose content ID is already known.
func WithCache(c Cache) ExpanderOption {
	return func(x *Expander) {
		x.cache = c
	}
}

// New creates an Expander. Zero config fields take their defaults.
func New(cfg Config, opts ...ExpanderOption) *Expander {
	def := DefaultConfig()
	if len(cfg.Attributes) == 0 {
		cfg.Attributes = def.Attributes
	}
	if cfg.StepLimit <= 0 {
		cfg.StepLimit = def.StepLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	x := &Expander{
		cfg:     cfg,
		attrs:   make(map[string]bool, len(cfg.Attributes)),
		emitter: emit.New(cfg.Emit),
	}
	x.cfg.Emit = x.emitter.Options()
	for _, a := range cfg.Attributes {
		x.attrs[a] = true
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Config returns the effective configuration.
func (x *Expander) Config() Config {
	return x.cfg
}

// Result is the outcome of one guard application.
type Result struct {
	State      State
	Decl       *decl.Declaration
	Guard      *guard.Spec
	Params     merge.Set
	Output     token.Stream
	Diagnostic *diag.Diagnostic
}

// Expand applies the guard attr to item in item position.
func (x *Expander) Expand(item, attr token.Stream) Result {
	return x.ExpandIn(decl.ContextItem, item, attr)
}

// ExpandIn applies the guard attr to item appearing in ctx.
func (x *Expander) ExpandIn(ctx decl.Context, item, attr token.Stream) Result {
	d, spec, set, err := analyze(ctx, item, attr)
	if err != nil {
		return rejected(err)
	}

	out := x.emitter.Emit(d, spec, set)
	slog.Debug("guard applied",
		"ident", d.Ident,
		"kind", d.Kind,
		"variant", spec.Variant,
		"params", set.Idents(),
	)
	return Result{
		State:  Emitted,
		Decl:   d,
		Guard:  spec,
		Params: set,
		Output: out,
	}
}

// analyze runs every stage except emission.
func analyze(ctx decl.Context, item, attr token.Stream) (*decl.Declaration, *guard.Spec, merge.Set, error) {
	d, err := decl.DecomposeIn(ctx, item)
	if err != nil {
		return nil, nil, merge.Set{}, err
	}
	spec, err := guard.Parse(attr)
	if err != nil {
		return nil, nil, merge.Set{}, err
	}
	set, err := merge.ForGuard(d, spec)
	if err != nil {
		return nil, nil, merge.Set{}, err
	}
	return d, spec, set, nil
}

func rejected(err error) Result {
	return Result{State: Rejected, Diagnostic: diag.FromLex(err)}
}

// Key returns the content key of one application.
func (x *Expander) Key(ctx decl.Context, item, attr token.Stream) ir.ExpansionKey {
	return ir.ExpansionKey{
		Item:    item.String(),
		Guard:   attr.String(),
		Context: contextName(ctx),
		Options: x.OptionMap(),
	}
}

// OptionMap flattens the emitter options for hashing and display.
func (x *Expander) OptionMap() map[string]string {
	o := x.cfg.Emit
	return map[string]string{
		"witness":    o.Witness,
		"capability": o.Capability,
		"prefix":     o.Prefix,
		"suffix":     o.Suffix,
		"message":    o.Message,
	}
}

func contextName(ctx decl.Context) string {
	if ctx == decl.ContextTrait {
		return ir.ContextTrait
	}
	return ir.ContextItem
}

// ParseContext is the inverse of the context names recorded in the ledger.
func ParseContext(name string) (decl.Context, error) {
	switch name {
	case ir.ContextItem:
		return decl.ContextItem, nil
	case ir.ContextTrait:
		return decl.ContextTrait, nil
	}
	return decl.ContextItem, fmt.Errorf("unknown context %q", name)
}

// EmitOptions rebuilds emitter options from an OptionMap.
func EmitOptions(m map[string]string) emit.Options {
	return emit.Options{
		Witness:    m["witness"],
		Capability: m["capability"],
		Prefix:     m["prefix"],
		Suffix:     m["suffix"],
		Message:    m["message"],
	}
}
