// Package expr is the construction-plan IR of the container.
//
// A plan is a tree of Expr nodes describing how to build one service: call a
// constructor, allocate a struct and fill its fields, fetch an instance from a scope,
// wrap a sub-plan into a function value and so on. Compile lowers the tree into nested
// Go closures once, so a cached plan costs only closure calls when replayed.
package expr

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
)

// Env is the runtime state a compiled plan is evaluated against.
type Env struct {
	// Args are the arguments of the innermost MakeFunc invocation.
	Args []reflect.Value

	// Parent is the Env of the enclosing MakeFunc frame, nil at the top level.
	Parent *Env

	// State is owner-defined resolution state, opaque to this package.
	State any
}

// Func is a compiled plan.
type Func func(env *Env) (reflect.Value, error)

// Expr is a node of a construction plan.
type Expr interface {
	// Type is the static type of the value produced by the node.
	Type() reflect.Type

	// Compile lowers the node and its children into a closure.
	Compile() Func

	fmt.Stringer
}

// Store is a scope-like instance store used by Scoped nodes.
type Store interface {
	// GetOrAdd returns the instance stored under id, creating it at most once.
	GetOrAdd(id uint64, create func() (any, error)) (any, error)

	// TrackDisposable registers an instance for disposal together with the store.
	TrackDisposable(instance any)
}

// Locator selects the Store a Scoped node targets at runtime.
type Locator func(env *Env) (Store, error)

// Compile compiles x, returning a closure that yields the zero value for a nil plan.
func Compile(x Expr) Func {
	if x == nil {
		return func(*Env) (reflect.Value, error) {
			return reflect.Value{}, nil
		}
	}
	return x.Compile()
}

// TypeMismatchError is returned when a produced value cannot be assigned to the planned type.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("value of type %v is not assignable to %v", e.Actual, e.Expected)
}

// PanicError captures a panic raised by user code invoked from a plan.
type PanicError struct {
	Func  string
	Panic any
	Stack []byte
}

func (e PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Func, e.Panic)
}

// Unwrap exposes an error panic value.
func (e PanicError) Unwrap() error {
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}

var errorType = reflect.TypeFor[error]()

// Assign converts v into a value of type t, unwrapping interfaces when needed.
// An invalid v or a nil interface yields the zero value of t.
func Assign(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Zero(t), nil
	}
	if v.Type() == t {
		return v, nil
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(t), nil
		}
		return Assign(v.Elem(), t)
	}
	if v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}
	return reflect.Value{}, TypeMismatchError{Expected: t, Actual: v.Type()}
}

// FromAny wraps an untyped instance as a value of type t.
func FromAny(instance any, t reflect.Type) (reflect.Value, error) {
	return Assign(reflect.ValueOf(instance), t)
}

// ToAny returns the untyped instance held by v, nil for invalid or nil values.
func ToAny(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}

// Constant yields a fixed value.
type Constant struct {
	Value reflect.Value
	T     reflect.Type
}

// Const returns a Constant node for value typed as t.
func Const(value any, t reflect.Type) *Constant {
	v, err := FromAny(value, t)
	if err != nil {
		v = reflect.ValueOf(value)
	}
	return &Constant{Value: v, T: t}
}

func (c *Constant) Type() reflect.Type { return c.T }

func (c *Constant) Compile() Func {
	v := c.Value
	return func(*Env) (reflect.Value, error) { return v, nil }
}

func (c *Constant) String() string {
	return fmt.Sprintf("const(%v)", c.T)
}

// Default yields the zero value of a type.
type Default struct {
	T reflect.Type
}

func (d *Default) Type() reflect.Type { return d.T }

func (d *Default) Compile() Func {
	zero := reflect.Zero(d.T)
	return func(*Env) (reflect.Value, error) { return zero, nil }
}

func (d *Default) String() string {
	return fmt.Sprintf("default(%v)", d.T)
}

// Call invokes a function value with evaluated arguments. When the function's last
// result is an error and it is non-nil, the call fails with that error.
type Call struct {
	Fn   reflect.Value
	Name string
	Args []Expr
	T    reflect.Type
}

func (c *Call) Type() reflect.Type { return c.T }

func (c *Call) Compile() Func {
	fn := c.Fn
	fnType := fn.Type()
	name := c.Name
	if name == "" {
		name = fnType.String()
	}
	args := compileAll(c.Args)
	variadic := fnType.IsVariadic()
	numOut := fnType.NumOut()
	returnsError := numOut > 0 && fnType.Out(numOut-1) == errorType
	t := c.T

	return func(env *Env) (result reflect.Value, err error) {
		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			v, err := arg(env)
			if err != nil {
				return reflect.Value{}, err
			}
			if v, err = Assign(v, fnType.In(i)); err != nil {
				return reflect.Value{}, err
			}
			in[i] = v
		}

		defer func() {
			if r := recover(); r != nil {
				err = PanicError{Func: name, Panic: r, Stack: debug.Stack()}
			}
		}()

		var out []reflect.Value
		if variadic {
			out = fn.CallSlice(in)
		} else {
			out = fn.Call(in)
		}

		if returnsError {
			if e := out[numOut-1]; !e.IsNil() {
				return reflect.Value{}, e.Interface().(error)
			}
		}
		if len(out) == 0 || (returnsError && numOut == 1) {
			return reflect.Zero(t), nil
		}
		return Assign(out[0], t)
	}
}

func (c *Call) String() string {
	name := c.Name
	if name == "" {
		name = c.Fn.Type().String()
	}
	return fmt.Sprintf("%s(%s)", name, joinAll(c.Args))
}

// FieldInit assigns the value of X to the struct field at Index.
type FieldInit struct {
	Index []int
	Name  string
	X     Expr
}

// NewStruct allocates a struct and initializes selected fields. T is either a struct
// type or a pointer to one.
type NewStruct struct {
	T      reflect.Type
	Fields []FieldInit
}

func (n *NewStruct) Type() reflect.Type { return n.T }

func (n *NewStruct) Compile() Func {
	isPtr := n.T.Kind() == reflect.Pointer
	structType := n.T
	if isPtr {
		structType = n.T.Elem()
	}

	type compiledField struct {
		index []int
		fn    Func
	}
	fields := make([]compiledField, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = compiledField{index: f.Index, fn: f.X.Compile()}
	}

	return func(env *Env) (reflect.Value, error) {
		ptr := reflect.New(structType)
		s := ptr.Elem()
		for _, f := range fields {
			v, err := f.fn(env)
			if err != nil {
				return reflect.Value{}, err
			}
			field := s.FieldByIndex(f.index)
			if v, err = Assign(v, field.Type()); err != nil {
				return reflect.Value{}, err
			}
			field.Set(v)
		}
		if isPtr {
			return ptr, nil
		}
		return s, nil
	}
}

func (n *NewStruct) String() string {
	parts := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		parts[i] = f.Name + ": " + f.X.String()
	}
	return fmt.Sprintf("new %v{%s}", n.T, strings.Join(parts, ", "))
}

// Convert assigns the value of X to type T.
type Convert struct {
	X Expr
	T reflect.Type
}

func (c *Convert) Type() reflect.Type { return c.T }

func (c *Convert) Compile() Func {
	x := c.X.Compile()
	t := c.T
	return func(env *Env) (reflect.Value, error) {
		v, err := x(env)
		if err != nil {
			return reflect.Value{}, err
		}
		return Assign(v, t)
	}
}

func (c *Convert) String() string {
	return fmt.Sprintf("%v(%s)", c.T, c.X)
}

// Slice builds a slice of type T from item plans, preserving their order.
type Slice struct {
	T     reflect.Type
	Items []Expr
}

func (s *Slice) Type() reflect.Type { return s.T }

func (s *Slice) Compile() Func {
	items := compileAll(s.Items)
	t := s.T
	elem := t.Elem()
	return func(env *Env) (reflect.Value, error) {
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			v, err := item(env)
			if err != nil {
				return reflect.Value{}, err
			}
			if v, err = Assign(v, elem); err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(v)
		}
		return out, nil
	}
}

func (s *Slice) String() string {
	return fmt.Sprintf("%v{%s}", s.T, joinAll(s.Items))
}

// Param yields an argument of an enclosing MakeFunc frame. Depth 0 is the innermost frame.
type Param struct {
	Depth int
	Index int
	T     reflect.Type
}

func (p *Param) Type() reflect.Type { return p.T }

func (p *Param) Compile() Func {
	depth, index, t := p.Depth, p.Index, p.T
	return func(env *Env) (reflect.Value, error) {
		frame := env
		for i := 0; i < depth && frame != nil; i++ {
			frame = frame.Parent
		}
		if frame == nil || index >= len(frame.Args) {
			return reflect.Value{}, fmt.Errorf("argument %d at depth %d is not available", index, depth)
		}
		return Assign(frame.Args[index], t)
	}
}

func (p *Param) String() string {
	return fmt.Sprintf("arg%d.%d", p.Depth, p.Index)
}

// MakeFunc produces a function value of type T whose body is evaluated on every
// invocation with the invocation arguments. If T returns an error as its last result
// the body error is returned there; otherwise a body error panics in the caller.
type MakeFunc struct {
	T    reflect.Type
	Body Expr
}

func (m *MakeFunc) Type() reflect.Type { return m.T }

func (m *MakeFunc) Compile() Func {
	body := m.Body.Compile()
	t := m.T
	numOut := t.NumOut()
	returnsError := numOut > 0 && t.Out(numOut-1) == errorType

	return func(env *Env) (reflect.Value, error) {
		fn := reflect.MakeFunc(t, func(args []reflect.Value) []reflect.Value {
			out := make([]reflect.Value, numOut)
			for i := range out {
				out[i] = reflect.Zero(t.Out(i))
			}

			v, err := body(&Env{Args: args, Parent: env, State: env.State})
			if err == nil && numOut > 0 && !(returnsError && numOut == 1) {
				v, err = Assign(v, t.Out(0))
			}
			if err != nil {
				if !returnsError {
					panic(err)
				}
				out[numOut-1] = reflect.ValueOf(&err).Elem()
				return out
			}
			if numOut > 0 && !(returnsError && numOut == 1) {
				out[0] = v
			}
			return out
		})
		return fn, nil
	}
}

func (m *MakeFunc) String() string {
	return fmt.Sprintf("func %v { %s }", m.T, m.Body)
}

// Scoped evaluates Body at most once per Store and ID; the Store is located at runtime.
// A nil Store means no reuse: Body is evaluated every time.
type Scoped struct {
	ID     uint64
	Locate Locator
	Body   Expr
	T      reflect.Type
}

func (s *Scoped) Type() reflect.Type { return s.T }

func (s *Scoped) Compile() Func {
	body := s.Body.Compile()
	id, locate, t := s.ID, s.Locate, s.T
	return func(env *Env) (reflect.Value, error) {
		store, err := locate(env)
		if err != nil {
			return reflect.Value{}, err
		}
		if store == nil {
			return body(env)
		}
		instance, err := store.GetOrAdd(id, func() (any, error) {
			v, err := body(env)
			if err != nil {
				return nil, err
			}
			return ToAny(v), nil
		})
		if err != nil {
			return reflect.Value{}, err
		}
		return FromAny(instance, t)
	}
}

func (s *Scoped) String() string {
	return fmt.Sprintf("scoped#%d(%s)", s.ID, s.Body)
}

// Tracked registers the value of X for disposal with the located Store.
type Tracked struct {
	X      Expr
	Locate Locator
}

func (tr *Tracked) Type() reflect.Type { return tr.X.Type() }

func (tr *Tracked) Compile() Func {
	x := tr.X.Compile()
	locate := tr.Locate
	return func(env *Env) (reflect.Value, error) {
		v, err := x(env)
		if err != nil {
			return reflect.Value{}, err
		}
		store, err := locate(env)
		if err != nil {
			return reflect.Value{}, err
		}
		if store != nil {
			if instance := ToAny(v); instance != nil {
				store.TrackDisposable(instance)
			}
		}
		return v, nil
	}
}

func (tr *Tracked) String() string {
	return fmt.Sprintf("tracked(%s)", tr.X)
}

// Dynamic defers to a runtime callback. It is used where the value depends on state
// only known at invocation time, such as deferred resolution or delegate factories.
type Dynamic struct {
	Name string
	T    reflect.Type
	Fn   func(env *Env) (reflect.Value, error)
}

func (d *Dynamic) Type() reflect.Type { return d.T }

func (d *Dynamic) Compile() Func {
	fn, t := d.Fn, d.T
	return func(env *Env) (reflect.Value, error) {
		v, err := fn(env)
		if err != nil {
			return reflect.Value{}, err
		}
		return Assign(v, t)
	}
}

func (d *Dynamic) String() string {
	return fmt.Sprintf("%s<%v>", d.Name, d.T)
}

func compileAll(xs []Expr) []Func {
	fns := make([]Func, len(xs))
	for i, x := range xs {
		fns[i] = x.Compile()
	}
	return fns
}

func joinAll(xs []Expr) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = x.String()
	}
	return strings.Join(parts, ", ")
}
