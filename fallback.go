package dryioc

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/dig"

	"github.com/dadhi/dryioc/internal/expr"
)

// Unknown service resolvers are consulted, in the order of
// Rules.WithUnknownServiceResolvers, for a request no registration matches. They are
// not consulted for collection items or for Meta and KV filters.

// AutoConcreteTypeResolution creates unregistered pointer-to-struct services on demand
// as transients with their inject-tagged fields resolved. Keyed requests are left
// unresolved.
func AutoConcreteTypeResolution() UnknownServiceResolver {
	var factories sync.Map // reflect.Type -> *Factory

	return func(req *Request) *Factory {
		t := req.LookupType()
		if req.ServiceKey() != nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
			return nil
		}
		if f, ok := factories.Load(t); ok {
			return f.(*Factory)
		}
		f, err := NewStructFactory(t, Transient, Setup{}, nil)
		if err != nil {
			return nil
		}
		actual, _ := factories.LoadOrStore(t, f)
		return actual.(*Factory)
	}
}

// ResolveFromParent resolves services unknown to the container from parent. It lets a
// child container with its own registrations fall back to a shared one.
func ResolveFromParent(parent *Container) UnknownServiceResolver {
	var factories sync.Map // cacheKey -> *Factory

	return func(req *Request) *Factory {
		key := cacheKey{serviceType: req.serviceType, requiredType: req.requiredType, key: req.key}
		if f, ok := factories.Load(key); ok {
			return f.(*Factory)
		}

		var opts []ResolveOption
		if req.key != nil {
			opts = append(opts, WithKey(req.key))
		}
		if req.requiredType != nil {
			opts = append(opts, RequiredType(req.requiredType))
		}
		if !parent.CanResolve(req.serviceType, opts...) {
			return nil
		}

		serviceType := req.serviceType
		f, err := NewDelegateFactory(serviceType, func(Resolver) (any, error) {
			return parent.Resolve(serviceType, opts...)
		}, Transient, Setup{})
		if err != nil {
			return nil
		}
		actual, _ := factories.LoadOrStore(key, f)
		return actual.(*Factory)
	}
}

// FallbackToDig resolves services unknown to the container from a dig container.
// String keys are looked up as dig names. dig keeps its own instances, so the
// services are registered as transients here.
func FallbackToDig(dc *dig.Container) UnknownServiceResolver {
	var (
		mu        sync.Mutex // dig containers are invoked one at a time
		factories sync.Map   // cacheKey -> *Factory
	)

	invoke := func(t reflect.Type, key any) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		return digInvoke(dc, t, key)
	}

	return func(req *Request) *Factory {
		t, key := req.LookupType(), req.ServiceKey()
		if _, named := key.(string); key != nil && !named {
			return nil
		}

		ck := cacheKey{serviceType: t, key: key}
		if f, ok := factories.Load(ck); ok {
			return f.(*Factory)
		}
		if _, err := invoke(t, key); err != nil {
			return nil
		}

		f, err := NewDelegateFactory(t, func(Resolver) (any, error) {
			return invoke(t, key)
		}, Transient, Setup{})
		if err != nil {
			return nil
		}
		actual, _ := factories.LoadOrStore(ck, f)
		return actual.(*Factory)
	}
}

var digInType = reflect.TypeFor[dig.In]()

// digInvoke extracts a value of type t from dc by invoking a function taking it. A
// named value is taken through a dig.In parameter struct.
func digInvoke(dc *dig.Container, t reflect.Type, key any) (any, error) {
	argType := t
	name, named := key.(string)
	if named {
		argType = reflect.StructOf([]reflect.StructField{
			{Name: "In", Type: digInType, Anonymous: true},
			{Name: "Value", Type: t, Tag: reflect.StructTag(fmt.Sprintf(`name:%q`, name))},
		})
	}

	var result any
	fnType := reflect.FuncOf([]reflect.Type{argType}, []reflect.Type{errorType}, false)
	fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		v := args[0]
		if named {
			v = v.Field(1)
		}
		result = expr.ToAny(v)
		return []reflect.Value{reflect.Zero(errorType)}
	})

	if err := dc.Invoke(fn.Interface()); err != nil {
		return nil, err
	}
	return result, nil
}
