package dryioc

import (
	"reflect"
	"sync"

	"github.com/dadhi/dryioc/internal/reflection"
)

// Go cannot instantiate a generic type at runtime, so an open-generic registration is a
// family of constructors already instantiated for the type arguments the program needs.
// A request for a closed service type is served by the first constructor whose type
// arguments all occur in the requested type and whose result is assignable to it.

type genericFamily struct {
	origin       string
	constructors []genericConstructor

	closed sync.Map // reflect.Type -> *Factory, nil when no constructor fits
}

type genericConstructor struct {
	fn   reflect.Value
	info *reflection.ConstructorInfo
	out  *typeInfo
}

// newOpenGenericFactory builds the family factory for service types sharing the
// generic origin of sample.
func newOpenGenericFactory(sample reflect.Type, constructors []any, reuse Reuse, setup Setup) (*Factory, error) {
	sampleInfo := globalTypeCache.getTypeInfo(sample)
	if sampleInfo == nil || !sampleInfo.IsGeneric() {
		return nil, typeError(InvalidRegistration, sample, nil, "service type is not a generic instantiation")
	}
	if len(constructors) == 0 {
		return nil, typeError(InvalidRegistration, sample, nil, "no constructors given")
	}

	family := &genericFamily{origin: sampleInfo.GenericOrigin}
	for _, c := range constructors {
		info, err := analyzer.Analyze(c)
		if err != nil {
			return nil, &ContainerError{Code: InvalidRegistration, ServiceType: sample, Cause: err}
		}
		out := globalTypeCache.getTypeInfo(info.Out)
		if !out.IsGeneric() {
			return nil, typeError(InvalidRegistration, sample, nil,
				"constructor %v does not produce a generic instantiation", info.Type)
		}
		family.constructors = append(family.constructors, genericConstructor{
			fn:   reflect.ValueOf(c),
			info: info,
			out:  out,
		})
	}

	return &Factory{
		id:      nextFactoryID(),
		kind:    ConstructorKind,
		reuse:   reuse,
		setup:   setup,
		generic: family,
	}, nil
}

// closeFor returns the closed factory of the family producing serviceType, creating
// and caching it on first use. Each closed type gets its own factory ID, so reused
// instances are kept per closed type.
func (f *Factory) closeFor(serviceType reflect.Type) *Factory {
	family := f.generic
	if cached, ok := family.closed.Load(serviceType); ok {
		closed, _ := cached.(*Factory)
		return closed
	}

	want := globalTypeCache.getTypeInfo(serviceType)
	var closed *Factory
	if want.IsGeneric() && want.GenericOrigin == family.origin {
		for _, c := range family.constructors {
			if !c.out.argsWithin(want) || !c.info.Out.AssignableTo(serviceType) {
				continue
			}
			closed = &Factory{
				id:       nextFactoryID(),
				kind:     ConstructorKind,
				implType: c.info.Out,
				reuse:    f.reuse,
				setup:    f.setup,
				fn:       c.fn,
				ctor:     c.info,
			}
			break
		}
	}

	actual, _ := family.closed.LoadOrStore(serviceType, closed)
	result, _ := actual.(*Factory)
	return result
}

// genericFactories returns the closed factories of every open-generic registration
// that can produce serviceType, in registration order.
func (r *registry) genericFactories(serviceType reflect.Type) []KeyedFactory {
	info := globalTypeCache.getTypeInfo(serviceType)
	if !info.IsGeneric() {
		return nil
	}
	entry, ok := r.generics.TryFind(info.GenericOrigin)
	if !ok {
		return nil
	}

	var result []KeyedFactory
	for _, kf := range entry.factories {
		if closed := kf.Factory.closeFor(serviceType); closed != nil {
			result = append(result, KeyedFactory{Key: kf.Key, Factory: closed})
		}
	}
	return result
}
