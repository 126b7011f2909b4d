// Package dryioc is a dependency injection container that compiles the construction
// of each requested service into a cached plan.
//
// # Overview
//
// Register services with their implementation and reuse, then resolve them. The first
// Resolve of a request builds its construction plan: which constructor to call with
// which dependencies, where reused instances live, which decorators wrap the result.
// The plan is compiled into closures and cached, so later calls only replay it.
// Registering or unregistering a service drops the cached plans.
//
//	c := dryioc.New()
//	defer c.Close()
//
//	_ = dryioc.Register[Logger](c, NewConsoleLogger, dryioc.WithReuse(dryioc.Singleton))
//	_ = dryioc.Register[*UserService](c, NewUserService)
//
//	users, err := dryioc.Resolve[*UserService](c)
//
// # Registrations
//
// An implementation is a constructor function returning T or (T, error), a struct
// type whose `inject` tagged fields are set, a value (RegisterInstance) or a delegate
// receiving a Resolver (RegisterDelegate). A service type may have any number of
// keyed registrations and several unkeyed ones, which get DefaultKey(0), DefaultKey(1)
// and so on. Resolving an unkeyed service with several defaults fails unless a factory
// selector is set in the rules. WithIfAlreadyRegistered controls collisions.
//
// # Reuse
//
//   - Transient: a new instance for every dependency
//   - Singleton: one instance in the root scope of the container
//   - Scoped: one instance per scope opened with OpenScope
//   - ScopedTo(name): one instance per nearest scope with that name
//   - ResolutionScoped: one instance per top-level Resolve call
//
// Scopes dispose the instances implementing Disposable or DisposableWithContext in the
// reverse order of their creation. A reused service may not depend on a service with
// a shorter reuse unless the dependency is deferred with a wrapper.
//
// # Wrappers
//
// Wrappers are resolvable without a registration of their own:
//
//	[]T          every T in registration order
//	func() T     a factory of T; func(A) T passes A to the dependencies of T
//	*Lazy[T]     T created on first Value call
//	Meta[T, M]   T together with its registration metadata
//	KV[K, T]     T together with its service key
//
// func() T and *Lazy[T] also break dependency cycles. Custom wrappers are added with
// RegisterWrapper.
//
// # Decorators
//
// RegisterDecorator wraps every resolved instance of a service type. Decorators apply
// in registration order; WithKey and WithCondition restrict them.
//
// # Fallbacks
//
// Rules.WithUnknownServiceResolvers installs resolvers for services without a
// registration: AutoConcreteTypeResolution, ResolveFromParent and FallbackToDig.
package dryioc
