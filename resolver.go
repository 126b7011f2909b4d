package dryioc

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/dadhi/dryioc/internal/expr"
	"github.com/dadhi/dryioc/internal/reflection"
	"github.com/petermattis/goid"
	"go.uber.org/zap"
)

// Resolver resolves services. The container implements it, and delegate factories
// receive it to resolve what they need.
type Resolver interface {
	// Resolve returns the service of serviceType.
	Resolve(serviceType reflect.Type, opts ...ResolveOption) (any, error)

	// ResolveMany returns every resolvable service of serviceType in registration order.
	ResolveMany(serviceType reflect.Type, opts ...ResolveOption) ([]any, error)
}

// planner builds construction plans against one registry snapshot.
type planner struct {
	c     *Container
	reg   *registry
	rules *Rules

	// validating builds deferred parts eagerly and ignores conditions of pinned
	// factories, so that Validate reaches every registration.
	validating bool
}

func (c *Container) planner(reg *registry) *planner {
	return &planner{c: c, reg: reg, rules: c.rules}
}

// serviceExpr builds the plan for one request.
func (p *planner) serviceExpr(req *Request) (expr.Expr, error) {
	if req.depth > p.rules.maxResolutionDepth {
		return nil, newError(ResolutionDepthExceeded, req, "dependency chain is longer than %d", p.rules.maxResolutionDepth)
	}

	t := req.serviceType
	if req.parent != nil && req.requiredType == nil && req.pinned == nil {
		if depth, index, ok := req.findArg(t); ok {
			return &expr.Param{Depth: depth, Index: index, T: t}, nil
		}
	}

	if !p.reg.hasServices(t) {
		if w := p.wrapperFor(t); w != nil {
			return w.build(p, req)
		}
	}

	if req.requiredType != nil && !req.requiredType.AssignableTo(t) {
		return nil, newError(RequiredTypeNotAssignable, req, "%s is not assignable to %s",
			formatType(req.requiredType), formatType(t))
	}

	f, key, err := p.selectFactory(req)
	if err != nil {
		return nil, err
	}
	if f == nil {
		if req.ifUnresolved == IfUnresolvedReturnDefault {
			return &expr.Default{T: t}, nil
		}
		return nil, p.unresolvedError(req)
	}

	return p.factoryExpr(req.withFactory(f, key))
}

// candidates returns the registrations serving lookupType, the closed ones first and
// then the open-generic ones.
func (p *planner) candidates(lookupType reflect.Type) []KeyedFactory {
	return slices.Concat(p.reg.factories(lookupType), p.reg.genericFactories(lookupType))
}

// selectFactory picks the factory for a request. It returns a nil factory and no error
// when nothing matches.
func (p *planner) selectFactory(req *Request) (*Factory, any, error) {
	lookup := req.LookupType()

	if req.pinned != nil {
		key := any(nil)
		for _, kf := range p.candidates(lookup) {
			if kf.Factory.id == req.pinned.id {
				key = kf.Key
				break
			}
		}
		kf := KeyedFactory{Key: key, Factory: req.pinned}
		if !p.validating && (!req.pinned.setup.matches(req) || !filtersAccept(req, kf)) {
			return nil, nil, nil
		}
		return req.pinned, key, nil
	}

	// Open-generic registrations serve a closed type only when no closed registration
	// matches.
	matching := p.matching(req, p.reg.factories(lookup))
	if len(matching) == 0 {
		matching = p.matching(req, p.reg.genericFactories(lookup))
	}

	switch len(matching) {
	case 0:
		if req.metadataType != nil || req.keyType != nil {
			return nil, nil, nil
		}
		for _, resolve := range p.rules.unknownServiceResolvers {
			if f := resolve(req); f != nil {
				p.rules.logger.Debug("unknown service resolved",
					zap.Stringer("service", req.serviceType),
					zap.Any("key", req.key),
					zap.Stringer("factory", f))
				return f, req.key, nil
			}
		}
		return nil, nil, nil
	case 1:
		return matching[0].Factory, matching[0].Key, nil
	}

	if selector := p.rules.factorySelector; selector != nil {
		f := selector(req, matching)
		for _, kf := range matching {
			if kf.Factory == f {
				return f, kf.Key, nil
			}
		}
		return f, nil, nil
	}

	impls := make([]string, len(matching))
	for i, kf := range matching {
		impls[i] = fmt.Sprintf("%v: %s", kf.Key, kf.Factory)
	}
	return nil, nil, newError(ExpectedSingleDefaultFactory, req,
		"found %d registrations, register with keys or set a factory selector:\n    %s",
		len(matching), strings.Join(impls, "\n    "))
}

func (p *planner) matching(req *Request, all []KeyedFactory) []KeyedFactory {
	var matching []KeyedFactory
	for _, kf := range all {
		if kf.Factory.setup.FactoryType != ServiceFactory {
			continue
		}
		if !keyAccepts(req, kf.Key) || !filtersAccept(req, kf) || !kf.Factory.setup.matches(req) {
			continue
		}
		matching = append(matching, kf)
	}
	return matching
}

func isDefaultKey(key any) bool {
	_, ok := key.(DefaultKey)
	return ok
}

func keyAccepts(req *Request, key any) bool {
	if req.key != nil {
		return key == req.key
	}
	if req.keyType != nil {
		return true
	}
	return isDefaultKey(key)
}

func filtersAccept(req *Request, kf KeyedFactory) bool {
	if req.metadataType != nil {
		m := kf.Factory.setup.Metadata
		if m == nil || !reflect.TypeOf(m).AssignableTo(req.metadataType) {
			return false
		}
	}
	if req.keyType != nil {
		if kf.Key == nil || !reflect.TypeOf(kf.Key).AssignableTo(req.keyType) {
			return false
		}
	}
	return true
}

func (p *planner) unresolvedError(req *Request) error {
	all := p.candidates(req.LookupType())
	switch {
	case len(all) == 0:
		return newError(UnableToResolveUnknownService, req, "no registrations found")
	case req.key != nil:
		keys := make([]string, len(all))
		for i, kf := range all {
			keys[i] = fmt.Sprint(kf.Key)
		}
		return newError(UnableToResolveUnknownService, req, "no registration with key %v, registered keys: %s",
			req.key, strings.Join(keys, ", "))
	case req.metadataType != nil:
		return newError(UnableToResolveUnknownService, req, "no registration with metadata of type %s",
			formatType(req.metadataType))
	case req.keyType != nil:
		return newError(UnableToResolveUnknownService, req, "no registration with a key of type %s",
			formatType(req.keyType))
	default:
		return newError(UnableToResolveUnknownService, req, "%d registrations found, none matches the request", len(all))
	}
}

// factoryExpr builds the plan of the factory chosen for req: the instance creation
// wrapped in its reuse and then in the decorators of the service.
func (p *planner) factoryExpr(req *Request) (expr.Expr, error) {
	f := req.factory
	if req.isRecursive(f) {
		return nil, newError(RecursiveDependencyDetected, req, "%s is already being created on this path", f)
	}

	reuse := f.effectiveReuse(p.rules)
	if p.rules.throwIfDependencyHasShorterReuse && reuse.Lifespan() > TransientLifespan {
		if consumer := req.nearestReusedConsumer(p.rules); consumer != nil {
			consumerReuse := consumer.factory.effectiveReuse(p.rules)
			if reuse.Lifespan() < consumerReuse.Lifespan() {
				return nil, newError(DependencyHasShorterReuseLifespan, req,
					"%s dependency is captured by %s %s, use a wrapper like func() T or *Lazy[T]",
					reuse, consumerReuse, formatType(consumer.serviceType))
			}
		}
	}

	if f.setup.AsResolutionCall && !req.deferred && !req.IsResolutionRoot() && !p.validating {
		return p.resolutionCallExpr(req), nil
	}

	body, err := p.bodyExpr(req)
	if err != nil {
		return nil, err
	}
	if f.setup.OpenResolutionScope {
		body = openResolutionScope(body)
	}

	x := p.reuseExpr(req, reuse, body)

	if x, err = p.decorate(req, x); err != nil {
		return nil, err
	}
	return &expr.Convert{X: x, T: req.serviceType}, nil
}

func (p *planner) bodyExpr(req *Request) (expr.Expr, error) {
	f := req.factory
	switch f.kind {
	case ConstructorKind:
		return p.constructorExpr(req, f, nil)
	case StructKind:
		return p.structExpr(req, f)
	case DelegateKind:
		return delegateExpr(f, req.LookupType()), nil
	case InstanceKind:
		return expr.Const(f.instance, f.implType), nil
	}
	return nil, newError(InvalidRegistration, req, "unknown factory kind %v", f.kind)
}

// constructorExpr calls the constructor of f with its parameters resolved. A non-nil
// decorated expression is passed for the first parameter of the decorated service type.
func (p *planner) constructorExpr(req *Request, f *Factory, decorated expr.Expr) (expr.Expr, error) {
	info := f.ctor
	call := &expr.Call{Fn: f.fn, Name: funcName(f.fn), T: info.Out}

	argExpr := func(param reflection.ParameterInfo) (expr.Expr, error) {
		if decorated != nil && param.Type == req.serviceType {
			x := decorated
			decorated = nil
			return x, nil
		}
		return p.dependencyExpr(req, param.Type, param.Key, param.Optional)
	}

	if info.IsParamObject() {
		param := &expr.NewStruct{T: info.ParamObject}
		for _, field := range info.Parameters {
			x, err := argExpr(field)
			if err != nil {
				return nil, err
			}
			param.Fields = append(param.Fields, expr.FieldInit{Index: []int{field.Index}, Name: field.Name, X: x})
		}
		call.Args = []expr.Expr{param}
		return call, nil
	}

	call.Args = make([]expr.Expr, len(info.Parameters))
	for i, param := range info.Parameters {
		x, err := argExpr(param)
		if err != nil {
			return nil, err
		}
		call.Args[i] = x
	}
	return call, nil
}

func (p *planner) structExpr(req *Request, f *Factory) (expr.Expr, error) {
	x := &expr.NewStruct{T: f.implType}
	for _, field := range f.fields {
		fx, err := p.dependencyExpr(req, field.Type, field.Key, field.Optional)
		if err != nil {
			return nil, err
		}
		x.Fields = append(x.Fields, expr.FieldInit{Index: field.Index, Name: field.Name, X: fx})
	}
	return x, nil
}

func (p *planner) dependencyExpr(consumer *Request, t reflect.Type, key any, optional bool) (expr.Expr, error) {
	ifUnresolved := IfUnresolvedThrow
	if optional {
		ifUnresolved = IfUnresolvedReturnDefault
	}
	return p.serviceExpr(consumer.push(t, key, ifUnresolved))
}

func delegateExpr(f *Factory, serviceType reflect.Type) expr.Expr {
	t := f.implType
	if t == nil {
		t = serviceType
	}
	delegate := f.delegate
	return &expr.Dynamic{
		Name: "delegate",
		T:    t,
		Fn: func(env *expr.Env) (reflect.Value, error) {
			v, err := delegate(env.State.(*resolution).container)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(v), nil
		},
	}
}

// reuseExpr stores the instance created by body according to reuse.
func (p *planner) reuseExpr(req *Request, reuse Reuse, body expr.Expr) expr.Expr {
	f := req.factory
	if f.kind == InstanceKind {
		if f.setup.TrackDisposable {
			return &expr.Scoped{ID: f.id, Locate: rootLocator, Body: body, T: body.Type()}
		}
		return body
	}

	if _, ok := reuse.(transientReuse); ok {
		if f.setup.TrackDisposable {
			return &expr.Tracked{X: body, Locate: currentOrRootLocator}
		}
		return body
	}

	return &expr.Scoped{
		ID:     f.id,
		Locate: reuseLocator(reuse, req.serviceType, req.factoryKey),
		Body:   body,
		T:      body.Type(),
	}
}

func reuseLocator(reuse Reuse, serviceType reflect.Type, key any) expr.Locator {
	return func(env *expr.Env) (expr.Store, error) {
		s, err := reuse.ScopeFor(env.State.(*resolution))
		if err != nil {
			var ce *ContainerError
			if errors.As(err, &ce) && ce.ServiceType == nil {
				withService := *ce
				withService.ServiceType, withService.Key = serviceType, key
				return nil, &withService
			}
			return nil, err
		}
		if s == nil {
			return nil, nil
		}
		return s, nil
	}
}

func rootLocator(env *expr.Env) (expr.Store, error) {
	return env.State.(*resolution).RootScope(), nil
}

func currentOrRootLocator(env *expr.Env) (expr.Store, error) {
	st := env.State.(*resolution)
	if s := st.CurrentScope(); s != nil {
		return s, nil
	}
	return st.RootScope(), nil
}

func openResolutionScope(body expr.Expr) expr.Expr {
	fn := body.Compile()
	return &expr.Dynamic{
		Name: "resolutionScope",
		T:    body.Type(),
		Fn: func(env *expr.Env) (reflect.Value, error) {
			child := env.State.(*resolution).child()
			return fn(&expr.Env{Args: env.Args, Parent: env.Parent, State: child})
		},
	}
}

// resolutionCallExpr resolves the factory of req when the plan runs instead of inlining
// its construction.
func (p *planner) resolutionCallExpr(req *Request) expr.Expr {
	deferredReq := *req
	deferredReq.deferred = true
	d := &deferredPlan{c: p.c, build: func(bp *planner) (expr.Expr, error) {
		return bp.factoryExpr(&deferredReq)
	}}
	return &expr.Dynamic{Name: "resolve", T: req.serviceType, Fn: d.eval}
}

// deferredPlan builds its plan on first evaluation and rebuilds it after registrations
// change.
type deferredPlan struct {
	c     *Container
	build func(p *planner) (expr.Expr, error)

	// site, when set, makes forcing the plan again while it runs on the same goroutine
	// a recursive dependency.
	site *deferredSite

	mu         sync.Mutex
	fn         expr.Func
	generation uint64
}

func (d *deferredPlan) eval(env *expr.Env) (reflect.Value, error) {
	if st, ok := env.State.(*resolution); ok && d.site != nil {
		leave, err := st.enter(*d.site)
		if err != nil {
			return reflect.Value{}, err
		}
		defer leave()
	}

	reg := d.c.reg.Load()

	d.mu.Lock()
	if d.fn == nil || d.generation != reg.generation {
		x, err := d.build(d.c.planner(reg))
		if err != nil {
			d.mu.Unlock()
			return reflect.Value{}, err
		}
		d.fn, d.generation = x.Compile(), reg.generation
	}
	fn := d.fn
	d.mu.Unlock()

	return fn(env)
}

// deferredSite identifies an argument-less deferred wrapper across plan rebuilds: the
// factory consuming the wrapper and the service it wraps.
type deferredSite struct {
	consumer    uint64
	serviceType reflect.Type
	key         any
}

func newDeferredSite(wrapperReq, inner *Request) *deferredSite {
	site := &deferredSite{serviceType: inner.serviceType, key: inner.key}
	for cur := wrapperReq; cur != nil; cur = cur.parent {
		if cur.factory != nil {
			site.consumer = cur.factory.id
			break
		}
	}
	return site
}

type activeSite struct {
	deferredSite
	goroutine int64
}

func funcName(fn reflect.Value) string {
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		return f.Name()
	}
	return fn.Type().String()
}

// resolution is the runtime state of one top-level Resolve call.
type resolution struct {
	container *Container
	parent    *resolution

	mu    sync.Mutex
	scope *Scope

	// active holds the deferred sites being evaluated, on the top-level resolution only.
	active map[activeSite]bool
}

// enter marks site as evaluated by the calling goroutine until leave is called. A site
// entered twice means the wrapped service is forced while it is being created.
func (r *resolution) enter(site deferredSite) (leave func(), err error) {
	top := r
	for top.parent != nil {
		top = top.parent
	}
	key := activeSite{deferredSite: site, goroutine: goid.Get()}

	top.mu.Lock()
	defer top.mu.Unlock()
	if top.active[key] {
		return nil, &ContainerError{
			Code:        RecursiveDependencyDetected,
			ServiceType: site.serviceType,
			Key:         site.key,
			Detail:      "the deferred service is forced again while it is being created",
		}
	}
	if top.active == nil {
		top.active = make(map[activeSite]bool)
	}
	top.active[key] = true

	return func() {
		top.mu.Lock()
		delete(top.active, key)
		top.mu.Unlock()
	}, nil
}

func (r *resolution) RootScope() *Scope { return r.container.root }

func (r *resolution) CurrentScope() *Scope { return r.container.currentScope() }

// ResolutionScope creates the scope on first use. A top-level resolution scope is
// disposed with the current scope, or the root scope when none is open; a nested one
// with its parent. The owner only tracks the scope once it holds a disposable, so a
// resolution scope without disposables is dropped with the call.
func (r *resolution) ResolutionScope() *Scope {
	r.mu.Lock()
	s := r.scope
	r.mu.Unlock()
	if s != nil {
		return s
	}

	var parent, owner *Scope
	if r.parent != nil {
		parent = r.parent.ResolutionScope()
		owner = parent
	} else {
		parent = r.CurrentScope()
		owner = parent
		if owner == nil {
			owner = r.RootScope()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scope == nil {
		scope := NewScope(owner.Context(), parent, resolutionScopeName{})
		scope.onFirstDisposable = func() { owner.TrackDisposable(scope) }
		r.scope = scope
	}
	return r.scope
}

func (r *resolution) child() *resolution {
	return &resolution{container: r.container, parent: r}
}

type resolutionScopeName struct{}

func (resolutionScopeName) String() string { return "resolution" }
