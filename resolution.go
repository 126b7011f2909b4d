package dryioc

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/dadhi/dryioc/internal/expr"
)

// Resolve returns the service of serviceType. The construction plan of a request is
// built on the first call and cached until registrations change, so repeated calls
// only replay the compiled plan.
func (c *Container) Resolve(serviceType reflect.Type, opts ...ResolveOption) (any, error) {
	v, err := c.resolve(serviceType, opts)
	if err != nil {
		return nil, err
	}
	return expr.ToAny(v), nil
}

func (c *Container) resolve(serviceType reflect.Type, opts []ResolveOption) (reflect.Value, error) {
	if serviceType == nil {
		return reflect.Value{}, &ContainerError{Code: InvalidRegistration, Detail: "service type is nil"}
	}
	if err := c.checkDisposed(); err != nil {
		return reflect.Value{}, err
	}

	o := newResolveOptions(opts)
	if err := checkKey(serviceType, o.key); err != nil {
		return reflect.Value{}, err
	}
	req := newRequest(serviceType, o.key, o.requiredType, o.ifUnresolved)

	fn, reg, ok := c.cachedPlan(req)
	if !ok {
		var err error
		if fn, err = c.plan(reg, req); err != nil {
			return reflect.Value{}, err
		}
	}
	return fn(&expr.Env{State: &resolution{container: c}})
}

// Resolve returns the service of type T.
func Resolve[T any](r Resolver, opts ...ResolveOption) (T, error) {
	var zero T
	v, err := r.Resolve(reflect.TypeFor[T](), opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("resolved %T is not a %s", v, formatType(reflect.TypeFor[T]()))
	}
	return t, nil
}

// MustResolve returns the service of type T and panics if it cannot be resolved.
func MustResolve[T any](r Resolver, opts ...ResolveOption) T {
	t, err := Resolve[T](r, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// ResolveMany returns every resolvable service of serviceType in registration order.
// Registrations that cannot be resolved are skipped; no registration gives an empty
// result. With WithKey only the service registered under that key is considered.
func (c *Container) ResolveMany(serviceType reflect.Type, opts ...ResolveOption) ([]any, error) {
	if serviceType == nil {
		return nil, &ContainerError{Code: InvalidRegistration, Detail: "service type is nil"}
	}
	v, err := c.resolve(reflect.SliceOf(serviceType), opts)
	if err != nil {
		return nil, err
	}
	out := make([]any, v.Len())
	for i := range out {
		out[i] = expr.ToAny(v.Index(i))
	}
	return out, nil
}

// ResolveMany returns every resolvable service of type T in registration order.
func ResolveMany[T any](c *Container, opts ...ResolveOption) ([]T, error) {
	v, err := c.resolve(reflect.TypeFor[[]T](), opts)
	if err != nil {
		return nil, err
	}
	return v.Interface().([]T), nil
}

// ResolveManySeq iterates over the services of serviceType, creating each one only
// when the iteration reaches it. The registrations are those present when the
// iteration starts. A service failing to resolve is yielded with its error.
func (c *Container) ResolveManySeq(serviceType reflect.Type, opts ...ResolveOption) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		if err := c.checkDisposed(); err != nil {
			yield(nil, err)
			return
		}
		o := newResolveOptions(opts)
		reg := c.reg.Load()
		p := c.planner(reg)

		root := newRequest(reflect.SliceOf(serviceType), o.key, o.requiredType, o.ifUnresolved)
		for _, item := range p.collectionItems(root, serviceType) {
			x, err := p.serviceExpr(item)
			if err != nil {
				if IsUnresolved(err) {
					continue
				}
				if !yield(nil, err) {
					return
				}
				continue
			}
			v, err := x.Compile()(&expr.Env{State: &resolution{container: c}})
			if !yield(expr.ToAny(v), err) {
				return
			}
		}
	}
}

// CanResolve reports whether Resolve would find a registration for serviceType. It
// builds the plan but creates nothing.
func (c *Container) CanResolve(serviceType reflect.Type, opts ...ResolveOption) bool {
	if serviceType == nil || c.checkDisposed() != nil {
		return false
	}
	o := newResolveOptions(opts)
	req := newRequest(serviceType, o.key, o.requiredType, IfUnresolvedThrow)
	if _, _, ok := c.cachedPlan(req); ok {
		return true
	}
	_, err := c.planner(c.reg.Load()).serviceExpr(req)
	return err == nil
}
