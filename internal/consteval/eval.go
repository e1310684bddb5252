// Package consteval evaluates guards for concrete instantiations.
//
// It interprets the subset of the host language that a synthesized guard
// function can run at compile time: fixed-width integer arithmetic with
// overflow checks, bool and char logic, let bindings, if/else, while and
// range-for loops, user const fns, and the panicking macros. A guard whose
// evaluation panics reports the panic message; a guard that yields false
// reports the default message.
package consteval

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/roach88/constguard/internal/diag"
	"github.com/roach88/constguard/internal/generics"
	"github.com/roach88/constguard/internal/guard"
	"github.com/roach88/constguard/internal/token"
)

// DefaultStepLimit bounds the number of evaluated expressions per guard.
const DefaultStepLimit = 1_000_000

// Panic is a guard evaluation that aborted with a message.
type Panic struct {
	Message string
	Pos     token.Pos
}

func (p *Panic) Error() string {
	return "evaluation panicked: " + p.Message
}

// Error is a guard the evaluator cannot run: unbound names, type errors,
// or constructs outside the supported subset.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s", e.Pos, e.Message)
	}
	return e.Message
}

func errorf(pos token.Pos, format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...), Pos: pos}
}

// returnSignal unwinds a `return` to the enclosing function.
type returnSignal struct {
	v Value
}

func (*returnSignal) Error() string { return "return outside of a function" }

// Outcome is the result of evaluating a guard.
type Outcome struct {
	Passed  bool
	Message string // panic or default message when !Passed
	Pos     token.Pos
}

// Evaluator evaluates guards. It is safe for concurrent use once built.
type Evaluator struct {
	fns     map[string]*guard.FnItem
	consts  map[string]*guard.ConstItem
	limit   int
	message string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithStepLimit bounds the number of evaluated expressions.
func WithStepLimit(n int) Option {
	return func(ev *Evaluator) {
		if n > 0 {
			ev.limit = n
		}
	}
}

// WithMessage sets the message reported when a guard yields false.
func WithMessage(msg string) Option {
	return func(ev *Evaluator) {
		if msg != "" {
			ev.message = msg
		}
	}
}

// WithItems makes module-level fn and const items visible to guards.
func WithItems(items ...guard.Stmt) Option {
	return func(ev *Evaluator) {
		for _, it := range items {
			switch it := it.(type) {
			case *guard.FnItem:
				ev.fns[it.Name] = it
			case *guard.ConstItem:
				ev.consts[it.Name] = it
			}
		}
	}
}

// New returns an Evaluator.
func New(opts ...Option) *Evaluator {
	ev := &Evaluator{
		fns:     map[string]*guard.FnItem{},
		consts:  map[string]*guard.ConstItem{},
		limit:   DefaultStepLimit,
		message: diag.MsgGuardFailed,
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// EvalGuard evaluates spec with its params bound to args, keyed by
// identifier. Lifetime params are ignored. A non-nil error means the guard
// could not be evaluated; a failing guard is reported in the Outcome.
func (ev *Evaluator) EvalGuard(spec *guard.Spec, params []generics.Param, args map[string]token.Stream) (Outcome, error) {
	bound, err := ev.Bind(params, args)
	if err != nil {
		return Outcome{}, err
	}
	body := spec.Body()
	v, err := ev.newRun().frame(bound).eval(body)

	var ret *returnSignal
	if errors.As(err, &ret) {
		v, err = ret.v, nil
	}
	var p *Panic
	if errors.As(err, &p) {
		return Outcome{Message: p.Message, Pos: p.Pos}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if v.Kind != Bool {
		return Outcome{}, errorf(body.Pos(), "mismatched types: expected `bool`, found `%s`", v.TypeOf())
	}
	if !v.Bool {
		return Outcome{Message: ev.message, Pos: body.Pos()}, nil
	}
	return Outcome{Passed: true}, nil
}

// Bind evaluates instantiation arguments for params. Const arguments are
// literals, negated literals, or braced expressions; type arguments are
// kept as their source text.
func (ev *Evaluator) Bind(params []generics.Param, args map[string]token.Stream) (map[string]Value, error) {
	out := map[string]Value{}
	for _, p := range params {
		if !p.Forwardable() {
			continue
		}
		arg, ok := args[p.Ident]
		if !ok || len(arg) == 0 {
			return nil, errorf(p.Span.Start, "generic parameter `%s` is not bound by this instantiation", p.Ident)
		}
		if p.Kind == generics.Type {
			out[p.Ident] = Value{Kind: Type, Name: arg.String()}
			continue
		}
		v, err := ev.EvalArg(arg)
		if err != nil {
			return nil, err
		}
		if v, err = coerce(v, p.Bounds.String(), arg.Pos()); err != nil {
			return nil, err
		}
		out[p.Ident] = v
	}
	return out, nil
}

// EvalArg evaluates a const generic argument.
func (ev *Evaluator) EvalArg(arg token.Stream) (Value, error) {
	var e guard.Expr
	var err error
	if len(arg) == 1 && arg[0].IsGroup(token.Brace) {
		e, err = guard.ParseBlock(arg[0])
	} else {
		e, err = guard.ParseExpr(arg)
	}
	if err != nil {
		return Value{}, errorf(arg.Pos(), "invalid const argument `%s`: %v", arg, err)
	}
	return ev.EvalExpr(e, nil)
}

// EvalExpr evaluates e with the given bindings in scope.
func (ev *Evaluator) EvalExpr(e guard.Expr, bindings map[string]Value) (Value, error) {
	v, err := ev.newRun().frame(bindings).eval(e)
	var ret *returnSignal
	if errors.As(err, &ret) {
		return ret.v, nil
	}
	return v, err
}

// run is one evaluation; the step budget is shared by all frames.
type run struct {
	ev         *Evaluator
	steps      int
	evaluating map[string]bool // module consts being evaluated, for cycles
}

func (ev *Evaluator) newRun() *run {
	return &run{ev: ev, evaluating: map[string]bool{}}
}

type binding struct {
	v    Value
	mut  bool
	init bool
}

// frame is the state of one function body. Nested fns do not see the
// enclosing frame's locals or generic params.
type frame struct {
	r      *run
	params map[string]Value
	scopes []map[string]*binding
	fns    []map[string]*guard.FnItem
}

func (r *run) frame(params map[string]Value) *frame {
	if params == nil {
		params = map[string]Value{}
	}
	return &frame{r: r, params: params}
}

func (f *frame) push() {
	f.scopes = append(f.scopes, map[string]*binding{})
	f.fns = append(f.fns, map[string]*guard.FnItem{})
}

func (f *frame) pop() {
	f.scopes = f.scopes[:len(f.scopes)-1]
	f.fns = f.fns[:len(f.fns)-1]
}

func (f *frame) declare(name string, b *binding) {
	if len(f.scopes) == 0 {
		f.push()
	}
	if name == "_" {
		return
	}
	f.scopes[len(f.scopes)-1][name] = b
}

func (f *frame) local(name string) (*binding, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if b, ok := f.scopes[i][name]; ok {
			return b, true
		}
	}
	return nil, false
}

func (f *frame) fn(name string) (*guard.FnItem, bool) {
	for i := len(f.fns) - 1; i >= 0; i-- {
		if fn, ok := f.fns[i][name]; ok {
			return fn, true
		}
	}
	fn, ok := f.r.ev.fns[name]
	return fn, ok
}

func (f *frame) step(pos token.Pos) error {
	f.r.steps++
	if f.r.steps > f.r.ev.limit {
		return errorf(pos, "evaluation exceeded the step limit of %d", f.r.ev.limit)
	}
	return nil
}

func (f *frame) eval(e guard.Expr) (Value, error) {
	if err := f.step(e.Pos()); err != nil {
		return Value{}, err
	}
	switch e := e.(type) {
	case *guard.Lit:
		return literal(e)
	case *guard.BoolLit:
		return BoolValue(e.Value), nil
	case *guard.Path:
		return f.path(e)
	case *guard.Paren:
		return f.eval(e.X)
	case *guard.Unary:
		return f.unary(e)
	case *guard.Binary:
		return f.binary(e)
	case *guard.Assign:
		return f.assign(e)
	case *guard.Cast:
		x, err := f.eval(e.X)
		if err != nil {
			return Value{}, err
		}
		return f.cast(x, e.Type.String(), e.At)
	case *guard.Call:
		return f.call(e)
	case *guard.MethodCall:
		return f.method(e)
	case *guard.Field:
		return f.field(e)
	case *guard.Index:
		return f.index(e)
	case *guard.Tuple:
		elems, err := f.evalAll(e.Elems)
		if err != nil {
			return Value{}, err
		}
		if len(elems) == 0 {
			return UnitValue, nil
		}
		return Value{Kind: Tuple, Elems: elems}, nil
	case *guard.Array:
		return f.array(e)
	case *guard.Block:
		return f.block(e)
	case *guard.If:
		return f.ifExpr(e)
	case *guard.Return:
		v := UnitValue
		if e.X != nil {
			var err error
			if v, err = f.eval(e.X); err != nil {
				return Value{}, err
			}
		}
		return Value{}, &returnSignal{v: v}
	case *guard.Macro:
		return f.macro(e)
	case *guard.Opaque:
		return f.opaque(e)
	}
	return Value{}, errorf(e.Pos(), "unsupported expression")
}

func (f *frame) evalAll(es []guard.Expr) ([]Value, error) {
	out := make([]Value, len(es))
	for i, e := range es {
		v, err := f.eval(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func literal(e *guard.Lit) (Value, error) {
	switch e.Kind {
	case token.LitInt:
		x, t, err := parseIntLit(e.Text)
		if err != nil {
			return Value{}, errorf(e.At, "%v", err)
		}
		return IntValue(x, t), nil
	case token.LitStr:
		s, err := parseStrLit(e.Text)
		if err != nil {
			return Value{}, errorf(e.At, "%v", err)
		}
		return Value{Kind: Str, Str: s}, nil
	case token.LitChar:
		r, err := parseCharLit(e.Text)
		if err != nil {
			return Value{}, errorf(e.At, "%v", err)
		}
		return Value{Kind: Char, Char: r}, nil
	case token.LitByte:
		r, err := parseCharLit(e.Text)
		if err != nil {
			return Value{}, errorf(e.At, "%v", err)
		}
		return Int64Value(int64(r), intTypes["u8"]), nil
	case token.LitFloat:
		return Value{}, errorf(e.At, "floating-point arithmetic is not evaluated in guards")
	}
	return Value{}, errorf(e.At, "unsupported literal `%s`", e.Text)
}

func (f *frame) path(e *guard.Path) (Value, error) {
	if name, ok := e.Ident(); ok {
		if b, ok := f.local(name); ok {
			if !b.init {
				return Value{}, errorf(e.At, "used binding `%s` isn't initialized", name)
			}
			return b.v, nil
		}
		if v, ok := f.params[name]; ok {
			if v.Kind == Type {
				return Value{}, errorf(e.At, "expected value, found type parameter `%s`", name)
			}
			return v, nil
		}
		if c, ok := f.r.ev.consts[name]; ok {
			return f.moduleConst(c)
		}
		return Value{}, errorf(e.At, "cannot find value `%s` in this scope", name)
	}

	if len(e.Segments) == 2 {
		ty, assoc := e.Segments[0].Name, e.Segments[1].Name
		if v, ok := f.params[ty]; ok && v.Kind == Type {
			ty = v.Name
		}
		if v, ok := associatedConst(ty, assoc); ok {
			return v, nil
		}
	}
	return Value{}, errorf(e.At, "cannot evaluate path `%s`", pathString(e))
}

func (f *frame) moduleConst(c *guard.ConstItem) (Value, error) {
	if f.r.evaluating[c.Name] {
		return Value{}, errorf(c.At, "cycle detected when evaluating `%s`", c.Name)
	}
	f.r.evaluating[c.Name] = true
	defer delete(f.r.evaluating, c.Name)

	v, err := f.r.frame(nil).eval(c.Value)
	if err != nil {
		return Value{}, err
	}
	return coerce(v, c.Type.String(), c.At)
}

func associatedConst(ty, name string) (Value, bool) {
	if t, ok := intTypes[ty]; ok {
		switch name {
		case "MAX":
			return IntValue(t.Max(), t), true
		case "MIN":
			return IntValue(t.Min(), t), true
		case "BITS":
			return Int64Value(int64(t.Bits), intTypes["u32"]), true
		}
	}
	if ty == "char" {
		switch name {
		case "MAX":
			return Value{Kind: Char, Char: 0x10FFFF}, true
		case "REPLACEMENT_CHARACTER":
			return Value{Kind: Char, Char: 0xFFFD}, true
		}
	}
	return Value{}, false
}

func pathString(e *guard.Path) string {
	parts := make([]string, len(e.Segments))
	for i, s := range e.Segments {
		parts[i] = s.Name
	}
	return strings.Join(parts, "::")
}

func (f *frame) unary(e *guard.Unary) (Value, error) {
	x, err := f.eval(e.X)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case "&", "&mut", "*":
		return x, nil
	case "!":
		switch x.Kind {
		case Bool:
			return BoolValue(!x.Bool), nil
		case Int:
			if x.IntType.Untyped() {
				return IntValue(new(big.Int).Not(x.Int), x.IntType), nil
			}
			return IntValue(x.IntType.Wrap(new(big.Int).Not(x.Int)), x.IntType), nil
		}
	case "-":
		if x.Kind == Int {
			if !x.IntType.Untyped() && !x.IntType.Signed {
				return Value{}, errorf(e.At, "cannot apply unary operator `-` to type `%s`", x.IntType)
			}
			r := new(big.Int).Neg(x.Int)
			if !x.IntType.Contains(r) {
				return Value{}, &Panic{Message: "attempt to negate with overflow", Pos: e.At}
			}
			return IntValue(r, x.IntType), nil
		}
	}
	return Value{}, errorf(e.At, "cannot apply unary operator `%s` to type `%s`", e.Op, x.TypeOf())
}

func (f *frame) binary(e *guard.Binary) (Value, error) {
	x, err := f.eval(e.X)
	if err != nil {
		return Value{}, err
	}
	if x.Kind == Bool && (e.Op == "&&" || e.Op == "||") {
		if (e.Op == "&&" && !x.Bool) || (e.Op == "||" && x.Bool) {
			return x, nil
		}
		y, err := f.eval(e.Y)
		if err != nil {
			return Value{}, err
		}
		if y.Kind != Bool {
			return Value{}, errorf(e.Y.Pos(), "mismatched types: expected `bool`, found `%s`", y.TypeOf())
		}
		return y, nil
	}
	y, err := f.eval(e.Y)
	if err != nil {
		return Value{}, err
	}
	return apply(e.Op, x, y, e.At)
}

func (f *frame) assign(e *guard.Assign) (Value, error) {
	p, ok := e.Target.(*guard.Path)
	name, isIdent := "", false
	if ok {
		name, isIdent = p.Ident()
	}
	if !isIdent {
		return Value{}, errorf(e.At, "only local variables can be assigned in guards")
	}
	b, ok := f.local(name)
	if !ok {
		return Value{}, errorf(e.At, "cannot find value `%s` in this scope", name)
	}
	if b.init && !b.mut {
		return Value{}, errorf(e.At, "cannot assign twice to immutable variable `%s`", name)
	}
	v, err := f.eval(e.Value)
	if err != nil {
		return Value{}, err
	}
	if e.Op != "=" {
		if !b.init {
			return Value{}, errorf(e.At, "used binding `%s` isn't initialized", name)
		}
		if v, err = apply(strings.TrimSuffix(e.Op, "="), b.v, v, e.At); err != nil {
			return Value{}, err
		}
	} else if b.init && b.v.Kind == Int && v.Kind == Int {
		if v, err = unify(b.v, v, e.At); err != nil {
			return Value{}, err
		}
	}
	b.v, b.init = v, true
	return UnitValue, nil
}

func (f *frame) field(e *guard.Field) (Value, error) {
	x, err := f.eval(e.X)
	if err != nil {
		return Value{}, err
	}
	if x.Kind == Tuple {
		var i int
		if _, err := fmt.Sscanf(e.Name, "%d", &i); err == nil && i >= 0 && i < len(x.Elems) {
			return x.Elems[i], nil
		}
	}
	return Value{}, errorf(e.At, "no field `%s` on type `%s`", e.Name, x.TypeOf())
}

func (f *frame) index(e *guard.Index) (Value, error) {
	x, err := f.eval(e.X)
	if err != nil {
		return Value{}, err
	}
	i, err := f.eval(e.Index)
	if err != nil {
		return Value{}, err
	}
	if x.Kind != Array || i.Kind != Int {
		return Value{}, errorf(e.At, "cannot index into a value of type `%s`", x.TypeOf())
	}
	if i.Int.Sign() < 0 || i.Int.Cmp(big.NewInt(int64(len(x.Elems)))) >= 0 {
		return Value{}, &Panic{
			Message: fmt.Sprintf("index out of bounds: the length is %d but the index is %s", len(x.Elems), i.Int),
			Pos:     e.At,
		}
	}
	return x.Elems[i.Int.Int64()], nil
}

// maxArrayLen bounds `[x; N]` materialization.
const maxArrayLen = 1 << 16

func (f *frame) array(e *guard.Array) (Value, error) {
	if e.Len == nil {
		elems, err := f.evalAll(e.Elems)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: Array, Elems: elems}, nil
	}
	x, err := f.eval(e.Elems[0])
	if err != nil {
		return Value{}, err
	}
	n, err := f.eval(e.Len)
	if err != nil {
		return Value{}, err
	}
	if n.Kind != Int || n.Int.Sign() < 0 {
		return Value{}, errorf(e.Len.Pos(), "array length must be a `usize`")
	}
	if n.Int.Cmp(big.NewInt(maxArrayLen)) > 0 {
		return Value{}, errorf(e.Len.Pos(), "array of length %s is too large to evaluate", n.Int)
	}
	elems := make([]Value, n.Int.Int64())
	for i := range elems {
		elems[i] = x
	}
	return Value{Kind: Array, Elems: elems}, nil
}

func (f *frame) block(b *guard.Block) (Value, error) {
	f.push()
	defer f.pop()
	for _, s := range b.Stmts {
		if err := f.stmt(s); err != nil {
			return Value{}, err
		}
	}
	if b.Tail == nil {
		return UnitValue, nil
	}
	return f.eval(b.Tail)
}

func (f *frame) stmt(s guard.Stmt) error {
	switch s := s.(type) {
	case *guard.Let:
		if s.Name == "" {
			return errorf(s.At, "destructuring `let` patterns are not evaluated in guards")
		}
		b := &binding{mut: s.Mut}
		if s.Init != nil {
			v, err := f.eval(s.Init)
			if err != nil {
				return err
			}
			if len(s.Type) > 0 {
				if v, err = coerce(v, s.Type.String(), s.At); err != nil {
					return err
				}
			}
			b.v, b.init = v, true
		}
		f.declare(s.Name, b)
	case *guard.ConstItem:
		v, err := f.r.frame(nil).eval(s.Value)
		if err != nil {
			return err
		}
		if v, err = coerce(v, s.Type.String(), s.At); err != nil {
			return err
		}
		f.declare(s.Name, &binding{v: v, init: true})
	case *guard.FnItem:
		f.fns[len(f.fns)-1][s.Name] = s
	case *guard.Item:
		return errorf(s.At, "`%s` items are not evaluated in guards", s.Keyword)
	case *guard.ExprStmt:
		_, err := f.eval(s.X)
		return err
	}
	return nil
}

func (f *frame) ifExpr(e *guard.If) (Value, error) {
	c, err := f.eval(e.Cond)
	if err != nil {
		return Value{}, err
	}
	if c.Kind != Bool {
		return Value{}, errorf(e.Cond.Pos(), "mismatched types: expected `bool`, found `%s`", c.TypeOf())
	}
	if c.Bool {
		return f.eval(e.Then)
	}
	if e.Else == nil {
		return UnitValue, nil
	}
	return f.eval(e.Else)
}

func (f *frame) call(e *guard.Call) (Value, error) {
	p, ok := e.Fun.(*guard.Path)
	if !ok {
		return Value{}, errorf(e.At, "only named functions can be called in guards")
	}
	last := p.Segments[len(p.Segments)-1]
	if last.Name == "size_of" || last.Name == "align_of" {
		return f.layout(last, e.At)
	}
	name, ok := p.Ident()
	if !ok && len(p.Segments) == 1 {
		name, ok = last.Name, true
	}
	if !ok {
		return Value{}, errorf(e.At, "cannot call `%s` in guards", pathString(p))
	}
	fn, found := f.fn(name)
	if !found {
		return Value{}, errorf(e.At, "cannot find function `%s` in this scope", name)
	}
	if !fn.Const {
		return Value{}, errorf(e.At, "cannot call non-const fn `%s` in constant functions", name)
	}
	if len(e.Args) != len(fn.Params) {
		return Value{}, errorf(e.At, "function `%s` takes %d arguments but %d were supplied", name, len(fn.Params), len(e.Args))
	}
	args, err := f.evalAll(e.Args)
	if err != nil {
		return Value{}, err
	}

	callee := f.r.frame(nil)
	if err := f.bindFnGenerics(callee, fn, last.Args, e.At); err != nil {
		return Value{}, err
	}
	callee.push()
	for i, param := range fn.Params {
		v, err := coerce(args[i], param.Type.String(), e.Args[i].Pos())
		if err != nil {
			return Value{}, err
		}
		callee.declare(param.Name, &binding{v: v, init: true})
	}

	v, err := callee.eval(fn.Body)
	var ret *returnSignal
	if errors.As(err, &ret) {
		v, err = ret.v, nil
	}
	if err != nil {
		return Value{}, err
	}
	if len(fn.Result) == 0 {
		return v, nil
	}
	return coerce(v, fn.Result.String(), fn.At)
}

func (f *frame) bindFnGenerics(callee *frame, fn *guard.FnItem, args []token.Stream, pos token.Pos) error {
	var params []generics.Param
	for _, p := range fn.Generics {
		if p.Forwardable() {
			params = append(params, p)
		}
	}
	if len(params) == 0 {
		return nil
	}
	if len(args) != len(params) {
		return errorf(pos, "function `%s` needs explicit generic arguments", fn.Name)
	}
	for i, p := range params {
		if p.Kind == generics.Type {
			callee.params[p.Ident] = Value{Kind: Type, Name: args[i].String()}
			continue
		}
		e, err := parseArg(args[i])
		if err != nil {
			return err
		}
		v, err := f.eval(e)
		if err != nil {
			return err
		}
		if v, err = coerce(v, p.Bounds.String(), args[i].Pos()); err != nil {
			return err
		}
		callee.params[p.Ident] = v
	}
	return nil
}

func parseArg(arg token.Stream) (guard.Expr, error) {
	var e guard.Expr
	var err error
	if len(arg) == 1 && arg[0].IsGroup(token.Brace) {
		e, err = guard.ParseBlock(arg[0])
	} else {
		e, err = guard.ParseExpr(arg)
	}
	if err != nil {
		return nil, errorf(arg.Pos(), "invalid const argument `%s`: %v", arg, err)
	}
	return e, nil
}

// coerce checks v against a declared type and fixes the type of untyped
// integer literals. Types the evaluator does not model pass through.
func coerce(v Value, ty string, pos token.Pos) (Value, error) {
	ty = strings.TrimSpace(ty)
	if t, ok := intTypes[ty]; ok {
		if v.Kind != Int {
			return Value{}, errorf(pos, "mismatched types: expected `%s`, found `%s`", ty, v.TypeOf())
		}
		if v.IntType.Untyped() {
			if !t.Contains(v.Int) {
				return Value{}, errorf(pos, "literal out of range for `%s`", ty)
			}
			return IntValue(v.Int, t), nil
		}
		if v.IntType != t {
			return Value{}, errorf(pos, "mismatched types: expected `%s`, found `%s`", ty, v.IntType)
		}
		return v, nil
	}
	want := Kind(-1)
	switch {
	case ty == "bool":
		want = Bool
	case ty == "char":
		want = Char
	case ty == "()":
		want = Unit
	case strings.HasPrefix(ty, "&") && strings.HasSuffix(ty, "str"):
		want = Str
	}
	if want >= 0 && v.Kind != want {
		return Value{}, errorf(pos, "mismatched types: expected `%s`, found `%s`", ty, v.TypeOf())
	}
	return v, nil
}
