package dryioc

import (
	"errors"
	"reflect"

	"go.uber.org/zap"
)

// Register registers impl as the implementation of serviceType. impl is one of:
//
//	func(deps...) T or func(deps...) (T, error)   a constructor
//	reflect.Type                                   a struct type with injected fields
//	*Factory                                       a prepared factory
//	nil                                            serviceType itself as a struct type
//
// The produced type must be assignable to serviceType. Use RegisterInstance for values
// and RegisterDelegate for functions of a Resolver.
func (c *Container) Register(serviceType reflect.Type, impl any, opts ...RegisterOption) error {
	if serviceType == nil {
		return &ContainerError{Code: InvalidRegistration, Detail: "service type is nil"}
	}
	o := newRegisterOptions(opts)

	f, err := c.newFactory(serviceType, impl, o)
	if err != nil {
		return err
	}
	return c.register(serviceType, f, o.key, o.policy)
}

// Register registers impl as the implementation of T.
func Register[T any](c *Container, impl any, opts ...RegisterOption) error {
	return c.Register(reflect.TypeFor[T](), impl, opts...)
}

func (c *Container) newFactory(serviceType reflect.Type, impl any, o *registerOptions) (*Factory, error) {
	switch impl := impl.(type) {
	case *Factory:
		return impl, nil
	case nil:
		return NewStructFactory(serviceType, o.reuse, o.setup, o.selector)
	case reflect.Type:
		return NewStructFactory(impl, o.reuse, o.setup, o.selector)
	}

	if reflect.TypeOf(impl).Kind() != reflect.Func {
		return nil, typeError(InvalidRegistration, serviceType, o.key,
			"implementation %T is neither a constructor nor a type, use RegisterInstance for values", impl)
	}
	return NewConstructorFactory(impl, o.reuse, o.setup)
}

func (c *Container) register(serviceType reflect.Type, f *Factory, key any, policy IfAlreadyRegistered) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	if err := checkKey(serviceType, key); err != nil {
		return err
	}
	if !f.canProduce(serviceType) {
		return typeError(RegisteringImplementationNotAssignableToServiceType, serviceType, key,
			"%s does not implement it", formatType(f.implType))
	}

	if err := c.update(func(r *registry) (*registry, error) {
		return r.withService(serviceType, f, key, policy)
	}); err != nil {
		return err
	}

	c.rules.logger.Debug("service registered",
		zap.Stringer("service", serviceType),
		zap.Any("key", key),
		zap.Stringer("factory", f),
		zap.Stringer("policy", policy))
	return nil
}

// update publishes the registry derived by change, retrying when another writer got
// there first.
func (c *Container) update(change func(*registry) (*registry, error)) error {
	for {
		current := c.reg.Load()
		next, err := change(current)
		if err != nil {
			return err
		}
		if next == current || c.reg.CompareAndSwap(current, next) {
			return nil
		}
	}
}

func checkKey(serviceType reflect.Type, key any) error {
	if key != nil && !reflect.ValueOf(key).Comparable() {
		return typeError(ServiceKeyNotComparable, serviceType, nil, "key of type %T", key)
	}
	return nil
}

// RegisterInstance registers an existing value of serviceType. The container does not
// dispose it unless TrackDisposable is given.
func (c *Container) RegisterInstance(serviceType reflect.Type, instance any, opts ...RegisterOption) error {
	if serviceType == nil {
		return &ContainerError{Code: InvalidRegistration, Detail: "service type is nil"}
	}
	o := newRegisterOptions(opts)
	f, err := NewInstanceFactory(instance, o.setup)
	if err != nil {
		return err
	}
	return c.register(serviceType, f, o.key, o.policy)
}

// RegisterInstance registers an existing value of T.
func RegisterInstance[T any](c *Container, instance T, opts ...RegisterOption) error {
	return c.RegisterInstance(reflect.TypeFor[T](), instance, opts...)
}

// RegisterDelegate registers fn as the factory of serviceType. fn resolves what it
// needs through the Resolver it is given; its dependencies are not part of the
// consumer's plan and are not checked for cycles.
func (c *Container) RegisterDelegate(serviceType reflect.Type, fn func(r Resolver) (any, error), opts ...RegisterOption) error {
	if serviceType == nil {
		return &ContainerError{Code: InvalidRegistration, Detail: "service type is nil"}
	}
	o := newRegisterOptions(opts)
	f, err := NewDelegateFactory(nil, fn, o.reuse, o.setup)
	if err != nil {
		return err
	}
	return c.register(serviceType, f, o.key, o.policy)
}

// RegisterDelegate registers fn as the factory of T.
func RegisterDelegate[T any](c *Container, fn func(r Resolver) (T, error), opts ...RegisterOption) error {
	if fn == nil {
		return typeError(InvalidRegistration, reflect.TypeFor[T](), nil, "delegate is nil")
	}
	o := newRegisterOptions(opts)
	f, err := NewDelegateFactory(reflect.TypeFor[T](), func(r Resolver) (any, error) {
		return fn(r)
	}, o.reuse, o.setup)
	if err != nil {
		return err
	}
	return c.register(reflect.TypeFor[T](), f, o.key, o.policy)
}

// RegisterMany registers one implementation under every type of serviceTypes. The
// registrations share a single factory, so a reused instance is shared too.
func (c *Container) RegisterMany(impl any, serviceTypes []reflect.Type, opts ...RegisterOption) error {
	if len(serviceTypes) == 0 {
		return &ContainerError{Code: InvalidRegistration, Detail: "no service types given"}
	}
	if err := c.checkDisposed(); err != nil {
		return err
	}
	o := newRegisterOptions(opts)

	f, err := c.newFactory(serviceTypes[0], impl, o)
	if err != nil {
		return err
	}
	for _, t := range serviceTypes {
		if t == nil {
			return &ContainerError{Code: InvalidRegistration, Detail: "service type is nil"}
		}
		if err := checkKey(t, o.key); err != nil {
			return err
		}
		if !f.canProduce(t) {
			return typeError(RegisteringImplementationNotAssignableToServiceType, t, o.key,
				"%s does not implement it", formatType(f.implType))
		}
	}

	if err := c.update(func(r *registry) (*registry, error) {
		next := r
		for _, t := range serviceTypes {
			var err error
			if next, err = next.withService(t, f, o.key, o.policy); err != nil {
				return nil, err
			}
		}
		return next, nil
	}); err != nil {
		return err
	}

	c.rules.logger.Debug("services registered",
		zap.Int("count", len(serviceTypes)),
		zap.Any("key", o.key),
		zap.Stringer("factory", f))
	return nil
}

// RegisterDecorator registers a constructor decorating the services of serviceType.
// The first constructor parameter of serviceType receives the decorated instance;
// the other parameters are resolved as usual. Decorators apply in registration order,
// so the last one registered is the outermost. WithKey and WithCondition restrict the
// services decorated; WithReuse keeps one decorator instance per decorated service.
func (c *Container) RegisterDecorator(serviceType reflect.Type, decorator any, opts ...RegisterOption) error {
	if serviceType == nil {
		return &ContainerError{Code: InvalidRegistration, Detail: "service type is nil"}
	}
	o := newRegisterOptions(opts)
	o.setup.FactoryType = DecoratorFactory
	o.setup.Condition = decoratorCondition(o.key, o.setup.Condition)

	f, err := NewConstructorFactory(decorator, o.reuse, o.setup)
	if err != nil {
		return err
	}
	if !f.ctor.Out.AssignableTo(serviceType) {
		return typeError(RegisteringImplementationNotAssignableToServiceType, serviceType, nil,
			"decorator %s returns %s", f.ctor.Type, formatType(f.ctor.Out))
	}
	if !takesParameter(f, serviceType) {
		return typeError(InvalidRegistration, serviceType, nil,
			"decorator %s has no parameter of the decorated type", f.ctor.Type)
	}
	return c.addDecorator(serviceType, f)
}

// RegisterDecoratorFunc registers fn as a decorator of T. Function decorators apply
// before constructor decorators.
func RegisterDecoratorFunc[T any](c *Container, fn func(T) T, opts ...RegisterOption) error {
	serviceType := reflect.TypeFor[T]()
	if fn == nil {
		return typeError(InvalidRegistration, serviceType, nil, "decorator is nil")
	}
	o := newRegisterOptions(opts)
	o.setup.FactoryType = DecoratorFactory
	o.setup.Condition = decoratorCondition(o.key, o.setup.Condition)

	f, err := NewConstructorFactory(fn, nil, o.setup)
	if err != nil {
		return err
	}
	f.funcDecorator = true
	return c.addDecorator(serviceType, f)
}

func (c *Container) addDecorator(serviceType reflect.Type, f *Factory) error {
	if err := c.checkDisposed(); err != nil {
		return err
	}
	if err := c.update(func(r *registry) (*registry, error) {
		return r.withDecorator(serviceType, f), nil
	}); err != nil {
		return err
	}
	c.rules.logger.Debug("decorator registered",
		zap.Stringer("service", serviceType),
		zap.Stringer("factory", f))
	return nil
}

func decoratorCondition(key any, cond func(*Request) bool) func(*Request) bool {
	if key == nil {
		return cond
	}
	return func(req *Request) bool {
		return req.factoryKey == key && (cond == nil || cond(req))
	}
}

func takesParameter(f *Factory, t reflect.Type) bool {
	for _, p := range f.ctor.Parameters {
		if p.Type == t {
			return true
		}
	}
	return false
}

// RegisterWrapper adds a custom wrapper shape. Wrappers are tried in registration order
// before the built-in ones.
func (c *Container) RegisterWrapper(def WrapperDefinition) error {
	if def.Name == "" || def.Unwrap == nil || def.Wrap == nil {
		return &ContainerError{Code: InvalidRegistration, Detail: "wrapper needs a name, Unwrap and Wrap"}
	}
	if err := c.checkDisposed(); err != nil {
		return err
	}
	if err := c.update(func(r *registry) (*registry, error) {
		for _, w := range r.wrappers {
			if w.Name == def.Name {
				return nil, &ContainerError{Code: UnableToRegisterDuplicateKey, Key: def.Name, Detail: "wrapper"}
			}
		}
		return r.withWrapper(&def), nil
	}); err != nil {
		return err
	}
	c.rules.logger.Debug("wrapper registered", zap.String("wrapper", def.Name))
	return nil
}

// UnregisterWrapper removes the custom wrapper named name and reports whether it existed.
func (c *Container) UnregisterWrapper(name string) bool {
	removed := false
	_ = c.update(func(r *registry) (*registry, error) {
		next, ok := r.withoutWrapper(name)
		removed = ok
		return next, nil
	})
	return removed
}

// RegisterOpenGeneric registers the instantiations of a generic implementation for
// every closed type sharing the generic origin of sample. Go cannot instantiate
// generics at runtime, so constructors lists one constructor per instantiation the
// program uses:
//
//	c.RegisterOpenGeneric(reflect.TypeFor[Repo[any]](), []any{
//		NewRepo[User],
//		NewRepo[Order],
//	}, dryioc.WithReuse(dryioc.Singleton))
//
// Repo[User] is then served by NewRepo[User]. The first constructor whose type
// arguments all occur in the requested type and whose result is assignable to it wins.
func (c *Container) RegisterOpenGeneric(sample reflect.Type, constructors []any, opts ...RegisterOption) error {
	if sample == nil {
		return &ContainerError{Code: InvalidRegistration, Detail: "service type is nil"}
	}
	if err := c.checkDisposed(); err != nil {
		return err
	}
	o := newRegisterOptions(opts)
	if err := checkKey(sample, o.key); err != nil {
		return err
	}

	f, err := newOpenGenericFactory(sample, constructors, o.reuse, o.setup)
	if err != nil {
		return err
	}
	origin := f.generic.origin

	if err := c.update(func(r *registry) (*registry, error) {
		return r.withGeneric(origin, f, o.key, o.policy)
	}); err != nil {
		var ce *ContainerError
		if errors.As(err, &ce) && ce.ServiceType == nil {
			ce.ServiceType = sample
		}
		return err
	}

	c.rules.logger.Debug("open generic registered",
		zap.String("origin", origin),
		zap.Int("constructors", len(constructors)),
		zap.Any("key", o.key))
	return nil
}

// Unregister removes the registrations of serviceType selected by opts, every one
// of them when no key is given, and reports whether anything was removed. With
// OfFactoryType(DecoratorFactory) it removes decorators instead. Instances already
// created stay in their scopes.
func (c *Container) Unregister(serviceType reflect.Type, opts ...MatchOption) bool {
	if serviceType == nil {
		return false
	}
	o := newMatchOptions(opts)

	removed := 0
	_ = c.update(func(r *registry) (*registry, error) {
		if o.factoryType == DecoratorFactory {
			next, n := r.withoutDecorators(serviceType, func(f *Factory) bool {
				return o.where == nil || o.where(f)
			})
			removed = n
			return next, nil
		}
		next, kfs := r.withoutService(serviceType, o.matches)
		removed = len(kfs)
		return next, nil
	})

	if removed > 0 {
		c.rules.logger.Debug("service unregistered",
			zap.Stringer("service", serviceType),
			zap.Any("key", o.key),
			zap.Int("removed", removed))
	}
	return removed > 0
}

// UnregisterOpenGeneric removes the open-generic registrations sharing the generic
// origin of sample.
func (c *Container) UnregisterOpenGeneric(sample reflect.Type, opts ...MatchOption) bool {
	info := globalTypeCache.getTypeInfo(sample)
	if info == nil || !info.IsGeneric() {
		return false
	}
	o := newMatchOptions(opts)

	removed := 0
	_ = c.update(func(r *registry) (*registry, error) {
		next, kfs := r.withoutGeneric(info.GenericOrigin, o.matches)
		removed = len(kfs)
		return next, nil
	})
	return removed > 0
}

// IsRegistered reports whether a registration of serviceType selected by opts exists,
// open-generic ones included. With OfFactoryType(DecoratorFactory) it looks for
// decorators.
func (c *Container) IsRegistered(serviceType reflect.Type, opts ...MatchOption) bool {
	if serviceType == nil {
		return false
	}
	o := newMatchOptions(opts)
	reg := c.reg.Load()

	if o.factoryType == DecoratorFactory {
		decorators, _ := reg.decorators.TryFind(serviceType)
		for _, d := range decorators {
			if o.where == nil || o.where(d) {
				return true
			}
		}
		return false
	}

	for _, kf := range reg.factories(serviceType) {
		if o.matches(kf) {
			return true
		}
	}
	for _, kf := range reg.genericFactories(serviceType) {
		if o.matches(kf) {
			return true
		}
	}
	return false
}

// Registrations returns the registrations of serviceType in registration order.
func (c *Container) Registrations(serviceType reflect.Type) []KeyedFactory {
	return append([]KeyedFactory(nil), c.reg.Load().factories(serviceType)...)
}
