package dryioc

import (
	"reflect"

	"go.uber.org/zap"
)

// DefaultMaxResolutionDepth bounds dependency chains; deeper chains fail with
// ErrResolutionDepthExceeded instead of exhausting the stack.
const DefaultMaxResolutionDepth = 64

// KeyedFactory is a registered factory together with its service key.
type KeyedFactory struct {
	Key     any
	Factory *Factory
}

// FactorySelector picks one factory when several defaults match a request. Returning
// nil leaves the request unresolved.
type FactorySelector func(req *Request, candidates []KeyedFactory) *Factory

// UnknownServiceResolver supplies a factory for a request no registration matches.
// It returns nil to pass the request on to the next resolver.
type UnknownServiceResolver func(req *Request) *Factory

// Rules are the immutable container settings. Every With method returns a copy.
type Rules struct {
	factorySelector                   FactorySelector
	unknownServiceResolvers           []UnknownServiceResolver
	throwIfDependencyHasShorterReuse  bool
	defaultReuse                      Reuse
	maxResolutionDepth                int
	logger                            *zap.Logger
	autoConcreteTypeResolutionEnabled bool
}

// DefaultRules returns the rules a container uses unless told otherwise.
func DefaultRules() *Rules {
	return &Rules{
		throwIfDependencyHasShorterReuse: true,
		defaultReuse:                     Transient,
		maxResolutionDepth:               DefaultMaxResolutionDepth,
		logger:                           zap.NewNop(),
	}
}

func (r *Rules) clone() *Rules {
	c := *r
	c.unknownServiceResolvers = append([]UnknownServiceResolver(nil), r.unknownServiceResolvers...)
	return &c
}

// WithFactorySelector sets the selector used when several defaults match.
func (r *Rules) WithFactorySelector(selector FactorySelector) *Rules {
	c := r.clone()
	c.factorySelector = selector
	return c
}

// WithUnknownServiceResolvers appends resolvers consulted in order for services that
// have no registration.
func (r *Rules) WithUnknownServiceResolvers(resolvers ...UnknownServiceResolver) *Rules {
	c := r.clone()
	c.unknownServiceResolvers = append(c.unknownServiceResolvers, resolvers...)
	return c
}

// WithoutUnknownServiceResolvers removes every unknown service resolver.
func (r *Rules) WithoutUnknownServiceResolvers() *Rules {
	c := r.clone()
	c.unknownServiceResolvers = nil
	c.autoConcreteTypeResolutionEnabled = false
	return c
}

// WithAutoConcreteTypeResolution lets unregistered pointer-to-struct types be created
// on demand with their inject-tagged fields resolved.
func (r *Rules) WithAutoConcreteTypeResolution() *Rules {
	if r.autoConcreteTypeResolutionEnabled {
		return r
	}
	c := r.WithUnknownServiceResolvers(AutoConcreteTypeResolution())
	c.autoConcreteTypeResolutionEnabled = true
	return c
}

// WithDefaultReuse sets the reuse of registrations that do not choose one.
func (r *Rules) WithDefaultReuse(reuse Reuse) *Rules {
	c := r.clone()
	if reuse == nil {
		reuse = Transient
	}
	c.defaultReuse = reuse
	return c
}

// WithoutThrowIfDependencyHasShorterReuseLifespan allows a longer-lived service to
// capture a shorter-lived dependency.
func (r *Rules) WithoutThrowIfDependencyHasShorterReuseLifespan() *Rules {
	c := r.clone()
	c.throwIfDependencyHasShorterReuse = false
	return c
}

// WithMaxResolutionDepth sets the longest allowed dependency chain.
func (r *Rules) WithMaxResolutionDepth(depth int) *Rules {
	c := r.clone()
	if depth <= 0 {
		depth = DefaultMaxResolutionDepth
	}
	c.maxResolutionDepth = depth
	return c
}

// WithLogger sets the logger for container diagnostics.
func (r *Rules) WithLogger(logger *zap.Logger) *Rules {
	c := r.clone()
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
	return c
}

func (r *Rules) FactorySelector() FactorySelector                  { return r.factorySelector }
func (r *Rules) UnknownServiceResolvers() []UnknownServiceResolver { return r.unknownServiceResolvers }
func (r *Rules) ThrowIfDependencyHasShorterReuseLifespan() bool {
	return r.throwIfDependencyHasShorterReuse
}
func (r *Rules) DefaultReuse() Reuse     { return r.defaultReuse }
func (r *Rules) MaxResolutionDepth() int { return r.maxResolutionDepth }
func (r *Rules) Logger() *zap.Logger     { return r.logger }

// SelectLastRegisteredFactory picks the most recently registered candidate.
func SelectLastRegisteredFactory() FactorySelector {
	return func(_ *Request, candidates []KeyedFactory) *Factory {
		if len(candidates) == 0 {
			return nil
		}
		return candidates[len(candidates)-1].Factory
	}
}

// SelectFactoryWithImplementation picks the candidate producing implType.
func SelectFactoryWithImplementation(implType reflect.Type) FactorySelector {
	return func(_ *Request, candidates []KeyedFactory) *Factory {
		for _, c := range candidates {
			if c.Factory.implType == implType {
				return c.Factory
			}
		}
		return nil
	}
}
