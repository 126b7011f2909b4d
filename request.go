package dryioc

import (
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strings"
)

// IfUnresolved tells what to do when no factory can serve a request.
type IfUnresolved int

const (
	// IfUnresolvedThrow fails the resolution.
	IfUnresolvedThrow IfUnresolved = iota

	// IfUnresolvedReturnDefault yields the zero value of the service type.
	IfUnresolvedReturnDefault
)

// Request is one node of the resolution path: the service being resolved and, through
// Parent, the chain of consumers that led to it. Requests are immutable and only live
// while a construction plan is being built.
type Request struct {
	serviceType  reflect.Type
	requiredType reflect.Type
	key          any
	ifUnresolved IfUnresolved
	parent       *Request
	depth        int

	factory    *Factory
	factoryKey any

	// deferred marks a Lazy or func wrapper boundary: the service is created later,
	// so the path above it cannot form a cycle with the path below.
	deferred bool

	// frame holds the arguments of a func wrapper whose body this request builds.
	frame *funcFrame

	// pinned restricts selection to one factory of the innermost service type.
	pinned *Factory

	// metadataType and keyType filter factories for Meta and KV wrappers.
	metadataType reflect.Type
	keyType      reflect.Type
}

type funcFrame struct {
	types []reflect.Type
	used  []bool
}

func newRequest(serviceType reflect.Type, key any, requiredType reflect.Type, ifUnresolved IfUnresolved) *Request {
	return &Request{
		serviceType:  serviceType,
		requiredType: requiredType,
		key:          key,
		ifUnresolved: ifUnresolved,
	}
}

// push creates the request for a dependency of r.
func (r *Request) push(serviceType reflect.Type, key any, ifUnresolved IfUnresolved) *Request {
	return &Request{
		serviceType:  serviceType,
		key:          key,
		ifUnresolved: ifUnresolved,
		parent:       r,
		depth:        r.depth + 1,
	}
}

// unwrapTo creates the request for the service wrapped by the wrapper r resolves.
// Pinning, filters and the required type carry over to the wrapped service.
func (r *Request) unwrapTo(serviceType reflect.Type) *Request {
	return &Request{
		serviceType:  serviceType,
		requiredType: r.requiredType,
		key:          r.key,
		ifUnresolved: r.ifUnresolved,
		parent:       r,
		depth:        r.depth + 1,
		pinned:       r.pinned,
		metadataType: r.metadataType,
		keyType:      r.keyType,
	}
}

func (r *Request) withFactory(f *Factory, key any) *Request {
	c := *r
	c.factory = f
	c.factoryKey = key
	return &c
}

// ServiceType returns the requested service type.
func (r *Request) ServiceType() reflect.Type { return r.serviceType }

// RequiredType returns the type to look registrations up by, nil when it is the
// service type.
func (r *Request) RequiredType() reflect.Type { return r.requiredType }

// LookupType returns the required type if set, otherwise the service type.
func (r *Request) LookupType() reflect.Type {
	if r.requiredType != nil {
		return r.requiredType
	}
	return r.serviceType
}

// ServiceKey returns the requested key, nil for the default registration.
func (r *Request) ServiceKey() any { return r.key }

// IfUnresolved returns the policy for a missing registration.
func (r *Request) IfUnresolved() IfUnresolved { return r.ifUnresolved }

// Factory returns the factory chosen for the request, nil while it is being selected.
func (r *Request) Factory() *Factory { return r.factory }

// FactoryKey returns the key the chosen factory is registered with.
func (r *Request) FactoryKey() any { return r.factoryKey }

// ImplementationType returns the implementation type of the chosen factory.
func (r *Request) ImplementationType() reflect.Type {
	if r.factory == nil {
		return nil
	}
	return r.factory.implType
}

// Parent returns the consumer request, nil for the resolution root.
func (r *Request) Parent() *Request { return r.parent }

// Depth returns the number of consumers above the request.
func (r *Request) Depth() int { return r.depth }

// IsResolutionRoot reports whether the request is the one passed to Resolve.
func (r *Request) IsResolutionRoot() bool { return r.parent == nil }

// Ancestors iterates over the consumers of the request, nearest first.
func (r *Request) Ancestors() iter.Seq[*Request] {
	return func(yield func(*Request) bool) {
		for p := r.parent; p != nil; p = p.parent {
			if !yield(p) {
				return
			}
		}
	}
}

// String renders the resolution path, the request first and the root last.
func (r *Request) String() string {
	var parts []string
	for cur := r; cur != nil; cur = cur.parent {
		parts = append(parts, cur.describe())
	}
	return strings.Join(parts, "\n  <- ")
}

func (r *Request) describe() string {
	var b strings.Builder
	b.WriteString(formatType(r.serviceType))
	if r.requiredType != nil && r.requiredType != r.serviceType {
		fmt.Fprintf(&b, " as %s", formatType(r.requiredType))
	}
	if r.key != nil {
		fmt.Fprintf(&b, " {key: %v}", r.key)
	}
	if r.factory != nil {
		fmt.Fprintf(&b, " by %s", r.factory)
	}
	return b.String()
}

// findArg returns the first unused func wrapper argument assignable to t, searching
// the nearest func frame first. depth counts the func frames between the request and
// the frame owning the argument.
func (r *Request) findArg(t reflect.Type) (depth, index int, ok bool) {
	depth = -1
	for cur := r; cur != nil; cur = cur.parent {
		if cur.frame == nil {
			continue
		}
		depth++
		for i, argType := range cur.frame.types {
			if !cur.frame.used[i] && argType.AssignableTo(t) {
				cur.frame.used[i] = true
				return depth, i, true
			}
		}
	}
	return 0, 0, false
}

// saveArgs records which func wrapper arguments on the path are used and returns a
// function restoring that state, so sibling requests can consume the same argument.
func (r *Request) saveArgs() (restore func()) {
	type mark struct {
		frame *funcFrame
		used  []bool
	}
	var marks []mark
	for cur := r; cur != nil; cur = cur.parent {
		if cur.frame != nil {
			marks = append(marks, mark{frame: cur.frame, used: slices.Clone(cur.frame.used)})
		}
	}
	return func() {
		for _, m := range marks {
			copy(m.frame.used, m.used)
		}
	}
}

// isRecursive reports whether f is already being created on the path above r, not
// looking past deferred boundaries.
func (r *Request) isRecursive(f *Factory) bool {
	for cur := r; !cur.deferred && cur.parent != nil; cur = cur.parent {
		if p := cur.parent; p.factory != nil && p.factory.id == f.id {
			return true
		}
	}
	return false
}

// nearestReusedConsumer returns the closest request above r created by a non-transient
// factory, stopping at deferred boundaries.
func (r *Request) nearestReusedConsumer(rules *Rules) *Request {
	for cur := r; !cur.deferred && cur.parent != nil; cur = cur.parent {
		if p := cur.parent; p.factory != nil && p.factory.effectiveReuse(rules).Lifespan() > TransientLifespan {
			return p
		}
	}
	return nil
}

// hasArg reports whether a func wrapper above r has an unused argument assignable to t.
func (r *Request) hasArg(t reflect.Type) bool {
	for cur := r; cur != nil; cur = cur.parent {
		if cur.frame == nil {
			continue
		}
		for i, argType := range cur.frame.types {
			if !cur.frame.used[i] && argType.AssignableTo(t) {
				return true
			}
		}
	}
	return false
}

// onPath reports whether f creates any request above r, deferred boundaries included.
func (r *Request) onPath(f *Factory) bool {
	for cur := r.parent; cur != nil; cur = cur.parent {
		if cur.factory != nil && cur.factory.id == f.id {
			return true
		}
	}
	return false
}
