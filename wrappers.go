package dryioc

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/dadhi/dryioc/internal/expr"
)

// Wrappers are service shapes the container builds around a registered service
// without a registration of their own:
//
//	[]T             every resolvable T in registration order
//	func() T        creates T on each call; func(A, B) T passes A and B to T's dependencies
//	*Lazy[T]        creates T on first Value call
//	Meta[T, M]      T together with the metadata it was registered with
//	KV[K, T]        T together with its service key
//
// Wrappers nest, so []func() T and []Meta[*Lazy[T], M] work too. Custom shapes are
// added with RegisterWrapper.

// Lazy defers the creation of a service until Value is called. A successful result is
// kept; a failed one is retried by the next call.
type Lazy[T any] struct {
	mu     sync.Mutex
	source func() (reflect.Value, error)
	done   bool
	value  T
}

// NewLazy returns a Lazy calling create on first use.
func NewLazy[T any](create func() (T, error)) *Lazy[T] {
	return &Lazy[T]{source: func() (reflect.Value, error) {
		v, err := create()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(&v).Elem(), nil
	}}
}

// Value returns the service, creating it on the first successful call.
func (l *Lazy[T]) Value() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return l.value, nil
	}

	var zero T
	if l.source == nil {
		return zero, fmt.Errorf("lazy %s has no source", reflect.TypeFor[T]())
	}
	v, err := l.source()
	if err != nil {
		return zero, err
	}
	v, err = expr.Assign(v, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	if value, ok := v.Interface().(T); ok {
		l.value = value
	}
	l.done = true
	return l.value, nil
}

// IsValueCreated reports whether Value has succeeded.
func (l *Lazy[T]) IsValueCreated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func (l *Lazy[T]) lazyElem() reflect.Type { return reflect.TypeFor[T]() }

func (l *Lazy[T]) setSource(source func() (reflect.Value, error)) { l.source = source }

type lazyValue interface {
	lazyElem() reflect.Type
	setSource(source func() (reflect.Value, error))
}

// Meta is a service together with the metadata of its registration. Only registrations
// whose metadata is assignable to M are considered.
type Meta[T any, M any] struct {
	Value    T
	Metadata M
}

func (Meta[T, M]) metaTypes() (value, metadata reflect.Type) {
	return reflect.TypeFor[T](), reflect.TypeFor[M]()
}

type metaValue interface {
	metaTypes() (value, metadata reflect.Type)
}

// KV is a service together with its service key. Only registrations whose key is
// assignable to K are considered; defaults have DefaultKey keys.
type KV[K any, T any] struct {
	Key   K
	Value T
}

func (KV[K, T]) kvTypes() (key, value reflect.Type) {
	return reflect.TypeFor[K](), reflect.TypeFor[T]()
}

type kvValue interface {
	kvTypes() (key, value reflect.Type)
}

var (
	lazyValueType = reflect.TypeFor[lazyValue]()
	metaValueType = reflect.TypeFor[metaValue]()
	kvValueType   = reflect.TypeFor[kvValue]()
	errorType     = reflect.TypeFor[error]()
)

// WrapperDefinition describes a custom wrapper shape.
type WrapperDefinition struct {
	// Name identifies the wrapper for UnregisterWrapper and in plans.
	Name string

	// Unwrap reports whether wrapperType has the wrapper's shape and returns the type
	// of the wrapped service.
	Unwrap func(wrapperType reflect.Type) (serviceType reflect.Type, ok bool)

	// Wrap creates the wrapper value. resolve returns the wrapped service.
	Wrap func(wrapperType reflect.Type, resolve func() (any, error)) (any, error)

	// Deferred makes the wrapped service resolvable later, like func() T: it may be
	// part of a dependency cycle, and its plan is built on first resolve call.
	Deferred bool
}

// wrapperMatch is a wrapper recognized for a type.
type wrapperMatch struct {
	inner      reflect.Type
	collection bool
	build      func(p *planner, req *Request) (expr.Expr, error)
}

func (p *planner) wrapperFor(t reflect.Type) *wrapperMatch {
	for _, def := range p.reg.wrappers {
		if inner, ok := def.Unwrap(t); ok {
			return &wrapperMatch{inner: inner, build: func(p *planner, req *Request) (expr.Expr, error) {
				return p.customWrapperExpr(req, t, def, inner)
			}}
		}
	}

	switch t.Kind() {
	case reflect.Slice:
		return &wrapperMatch{inner: t.Elem(), collection: true, build: func(p *planner, req *Request) (expr.Expr, error) {
			return p.collectionExpr(req, t)
		}}

	case reflect.Func:
		if !isFuncWrapper(t) {
			return nil
		}
		return &wrapperMatch{inner: t.Out(0), build: func(p *planner, req *Request) (expr.Expr, error) {
			return p.funcExpr(req, t)
		}}

	case reflect.Pointer:
		if !t.Implements(lazyValueType) {
			return nil
		}
		inner := reflect.New(t.Elem()).Interface().(lazyValue).lazyElem()
		return &wrapperMatch{inner: inner, build: func(p *planner, req *Request) (expr.Expr, error) {
			return p.lazyExpr(req, t, inner)
		}}

	case reflect.Struct:
		if t.Implements(metaValueType) {
			valueType, metadataType := reflect.Zero(t).Interface().(metaValue).metaTypes()
			return &wrapperMatch{inner: valueType, build: func(p *planner, req *Request) (expr.Expr, error) {
				return p.metaExpr(req, t, valueType, metadataType)
			}}
		}
		if t.Implements(kvValueType) {
			keyType, valueType := reflect.Zero(t).Interface().(kvValue).kvTypes()
			return &wrapperMatch{inner: valueType, build: func(p *planner, req *Request) (expr.Expr, error) {
				return p.kvExpr(req, t, keyType, valueType)
			}}
		}
	}
	return nil
}

func isFuncWrapper(t reflect.Type) bool {
	switch t.NumOut() {
	case 1:
		return t.Out(0) != errorType
	case 2:
		return t.Out(0) != errorType && t.Out(1) == errorType
	}
	return false
}

// innermost unwraps t through every non-collection wrapper down to the service type
// factories are selected for.
func (p *planner) innermost(t reflect.Type) reflect.Type {
	for i := 0; i < p.rules.maxResolutionDepth; i++ {
		if p.reg.hasServices(t) {
			return t
		}
		w := p.wrapperFor(t)
		if w == nil || w.collection {
			return t
		}
		t = w.inner
	}
	return t
}

// collectionExpr builds []T from every registration of T, including open-generic
// ones, in registration order. Items that cannot be resolved are left out, as is the
// consumer's own factory. Every item sees the func wrapper arguments of the path.
func (p *planner) collectionExpr(req *Request, t reflect.Type) (expr.Expr, error) {
	items := make([]expr.Expr, 0)
	for _, item := range p.collectionItems(req, t.Elem()) {
		restore := req.saveArgs()
		x, err := p.serviceExpr(item)
		restore()
		if err != nil {
			if IsUnresolved(err) {
				continue
			}
			return nil, err
		}
		items = append(items, x)
	}
	return &expr.Slice{T: t, Items: items}, nil
}

func (p *planner) collectionItems(req *Request, elem reflect.Type) []*Request {
	lookup := p.innermost(elem)
	if req.requiredType != nil {
		lookup = req.requiredType
	}

	all := p.candidates(lookup)

	var items []*Request
	for _, kf := range all {
		if kf.Factory.setup.FactoryType != ServiceFactory {
			continue
		}
		if req.key != nil && kf.Key != req.key {
			continue
		}
		item := req.unwrapTo(elem)
		item.pinned = kf.Factory
		if item.isRecursive(kf.Factory) {
			continue
		}
		items = append(items, item)
	}
	return items
}

func (p *planner) funcExpr(req *Request, t reflect.Type) (expr.Expr, error) {
	resultType := t.Out(0)
	argTypes := make([]reflect.Type, t.NumIn())
	for i := range argTypes {
		argTypes[i] = t.In(i)
	}

	newInner := func() *Request {
		inner := req.unwrapTo(resultType)
		inner.deferred = true
		if len(argTypes) > 0 {
			inner.frame = &funcFrame{types: argTypes, used: make([]bool, len(argTypes))}
		}
		return inner
	}

	if x, err := p.deferredCheck(req, newInner()); x != nil || err != nil {
		return x, err
	}

	d := &deferredPlan{c: p.c, build: func(bp *planner) (expr.Expr, error) {
		return bp.serviceExpr(newInner())
	}}
	if len(argTypes) == 0 {
		d.site = newDeferredSite(req, newInner())
	}
	return &expr.MakeFunc{T: t, Body: &expr.Dynamic{Name: "func", T: resultType, Fn: d.eval}}, nil
}

func (p *planner) lazyExpr(req *Request, t, valueType reflect.Type) (expr.Expr, error) {
	newInner := func() *Request {
		inner := req.unwrapTo(valueType)
		inner.deferred = true
		return inner
	}

	if x, err := p.deferredCheck(req, newInner()); x != nil || err != nil {
		return x, err
	}

	d := &deferredPlan{c: p.c, site: newDeferredSite(req, newInner()), build: func(bp *planner) (expr.Expr, error) {
		return bp.serviceExpr(newInner())
	}}
	lazyStruct := t.Elem()
	return &expr.Dynamic{
		Name: "lazy",
		T:    t,
		Fn: func(env *expr.Env) (reflect.Value, error) {
			l := reflect.New(lazyStruct)
			l.Interface().(lazyValue).setSource(func() (reflect.Value, error) {
				return d.eval(env)
			})
			return l, nil
		},
	}, nil
}

// deferredCheck makes sure the service behind a deferred wrapper exists, so that an
// unresolvable func() T fails at resolution rather than when called. It returns a
// non-nil expression when the wrapper resolves to its zero value. When validating, the
// wrapped plan is built right away unless that would loop.
func (p *planner) deferredCheck(wrapperReq, inner *Request) (expr.Expr, error) {
	err := p.checkResolvable(inner)
	if err != nil {
		if IsUnresolved(err) && wrapperReq.ifUnresolved == IfUnresolvedReturnDefault {
			return &expr.Default{T: wrapperReq.serviceType}, nil
		}
		return nil, err
	}

	if p.validating {
		f, _, _ := p.selectFactory(&Request{
			serviceType:  p.innermost(inner.serviceType),
			requiredType: inner.requiredType,
			key:          inner.key,
			pinned:       inner.pinned,
		})
		if f != nil && inner.onPath(f) {
			return nil, nil
		}
		if _, err := p.serviceExpr(inner); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// checkResolvable reports whether a factory, or a func argument, can serve the
// innermost service of req without building its plan.
func (p *planner) checkResolvable(req *Request) error {
	t := req.serviceType
	if req.hasArg(t) {
		return nil
	}
	if !p.reg.hasServices(t) {
		if w := p.wrapperFor(t); w != nil {
			if w.collection {
				return nil
			}
			return p.checkResolvable(req.unwrapTo(w.inner))
		}
	}
	f, _, err := p.selectFactory(req)
	if err != nil {
		return err
	}
	if f == nil {
		return p.unresolvedError(req)
	}
	return nil
}

// pinInnermost selects the factory of the innermost service of req, applying the
// request's filters, and pins req to it.
func (p *planner) pinInnermost(req *Request) (*Factory, any, error) {
	probe := *req
	probe.serviceType = p.innermost(req.serviceType)
	f, key, err := p.selectFactory(&probe)
	if err != nil || f == nil {
		if f == nil && err == nil {
			err = p.unresolvedError(&probe)
		}
		return nil, nil, err
	}
	req.pinned = f
	return f, key, nil
}

func (p *planner) metaExpr(req *Request, t, valueType, metadataType reflect.Type) (expr.Expr, error) {
	inner := req.unwrapTo(valueType)
	inner.metadataType = metadataType

	f, _, err := p.pinInnermost(inner)
	if err != nil {
		if IsUnresolved(err) && req.ifUnresolved == IfUnresolvedReturnDefault {
			return &expr.Default{T: t}, nil
		}
		return nil, err
	}

	x, err := p.serviceExpr(inner)
	if err != nil {
		return nil, err
	}
	return &expr.NewStruct{T: t, Fields: []expr.FieldInit{
		{Index: []int{0}, Name: "Value", X: x},
		{Index: []int{1}, Name: "Metadata", X: expr.Const(f.setup.Metadata, metadataType)},
	}}, nil
}

func (p *planner) kvExpr(req *Request, t, keyType, valueType reflect.Type) (expr.Expr, error) {
	inner := req.unwrapTo(valueType)
	inner.keyType = keyType

	_, key, err := p.pinInnermost(inner)
	if err != nil {
		if IsUnresolved(err) && req.ifUnresolved == IfUnresolvedReturnDefault {
			return &expr.Default{T: t}, nil
		}
		return nil, err
	}

	x, err := p.serviceExpr(inner)
	if err != nil {
		return nil, err
	}
	return &expr.NewStruct{T: t, Fields: []expr.FieldInit{
		{Index: []int{0}, Name: "Key", X: expr.Const(key, keyType)},
		{Index: []int{1}, Name: "Value", X: x},
	}}, nil
}

func (p *planner) customWrapperExpr(req *Request, t reflect.Type, def *WrapperDefinition, innerType reflect.Type) (expr.Expr, error) {
	inner := req.unwrapTo(innerType)

	var resolveAt expr.Func
	if def.Deferred {
		inner.deferred = true
		if x, err := p.deferredCheck(req, inner); x != nil || err != nil {
			return x, err
		}
		d := &deferredPlan{c: p.c, site: newDeferredSite(req, inner), build: func(bp *planner) (expr.Expr, error) {
			return bp.serviceExpr(inner)
		}}
		resolveAt = d.eval
	} else {
		x, err := p.serviceExpr(inner)
		if err != nil {
			if IsUnresolved(err) && req.ifUnresolved == IfUnresolvedReturnDefault {
				return &expr.Default{T: t}, nil
			}
			return nil, err
		}
		resolveAt = x.Compile()
	}

	wrap := def.Wrap
	return &expr.Dynamic{
		Name: def.Name,
		T:    t,
		Fn: func(env *expr.Env) (reflect.Value, error) {
			v, err := wrap(t, func() (any, error) {
				v, err := resolveAt(env)
				return expr.ToAny(v), err
			})
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(v), nil
		},
	}, nil
}
