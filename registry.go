package dryioc

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/dadhi/dryioc/internal/expr"
	"github.com/dadhi/dryioc/internal/immap"
)

// DefaultKey identifies the n-th default registration of a service type. Defaults
// are registered without a key and numbered in registration order from 0. Resolving
// with a DefaultKey targets one of them.
type DefaultKey int

func (k DefaultKey) String() string {
	return fmt.Sprintf("DefaultKey(%d)", int(k))
}

// IfAlreadyRegistered is the policy for a registration that collides with an existing
// one of the same service type.
type IfAlreadyRegistered int

const (
	// AppendNotKeyed adds another default, or fails for a duplicate key.
	AppendNotKeyed IfAlreadyRegistered = iota

	// Throw fails for a duplicate default or key.
	Throw

	// Keep leaves the existing registration in place.
	Keep

	// Replace swaps the existing registration for the new one. Replacing a default
	// replaces every default of the service type.
	Replace

	// AppendNewImplementation adds a default only when no default with the same
	// implementation type exists.
	AppendNewImplementation
)

func (p IfAlreadyRegistered) String() string {
	switch p {
	case AppendNotKeyed:
		return "AppendNotKeyed"
	case Throw:
		return "Throw"
	case Keep:
		return "Keep"
	case Replace:
		return "Replace"
	case AppendNewImplementation:
		return "AppendNewImplementation"
	default:
		return fmt.Sprintf("IfAlreadyRegistered(%d)", int(p))
	}
}

// serviceEntry holds the registrations of one service type in registration order.
type serviceEntry struct {
	factories []KeyedFactory
	defaults  int
}

// registry is an immutable snapshot of all registrations. Writers derive a new
// snapshot and publish it with compare-and-swap; readers never lock.
type registry struct {
	services   immap.Map[reflect.Type, *serviceEntry]
	decorators immap.Map[reflect.Type, []*Factory]
	generics   immap.Map[string, *serviceEntry]
	wrappers   []*WrapperDefinition

	// cache holds compiled plans valid for this generation only.
	cache      immap.Map[cacheKey, expr.Func]
	generation uint64
}

func newRegistry() *registry {
	return &registry{}
}

// changed copies the registry for a registration change, dropping cached plans.
func (r *registry) changed() *registry {
	c := *r
	c.cache = immap.Empty[cacheKey, expr.Func]()
	c.generation++
	return &c
}

func (r *registry) factories(serviceType reflect.Type) []KeyedFactory {
	if e, ok := r.services.TryFind(serviceType); ok {
		return e.factories
	}
	return nil
}

func (r *registry) hasServices(serviceType reflect.Type) bool {
	return len(r.factories(serviceType)) > 0
}

func (r *registry) withService(serviceType reflect.Type, f *Factory, key any, policy IfAlreadyRegistered) (*registry, error) {
	entry, _ := r.services.TryFind(serviceType)
	next, err := addKeyed(entry, f, key, policy)
	if err != nil {
		var ce *ContainerError
		if errors.As(err, &ce) {
			ce.ServiceType = serviceType
		}
		return nil, err
	}
	if next == entry {
		return r, nil
	}
	c := r.changed()
	c.services = c.services.AddOrUpdate(serviceType, next)
	return c, nil
}

func (r *registry) withGeneric(origin string, f *Factory, key any, policy IfAlreadyRegistered) (*registry, error) {
	entry, _ := r.generics.TryFind(origin)
	next, err := addKeyed(entry, f, key, policy)
	if err != nil {
		return nil, err
	}
	if next == entry {
		return r, nil
	}
	c := r.changed()
	c.generics = c.generics.AddOrUpdate(origin, next)
	return c, nil
}

func addKeyed(entry *serviceEntry, f *Factory, key any, policy IfAlreadyRegistered) (*serviceEntry, error) {
	next := &serviceEntry{}
	if entry != nil {
		next.factories = append([]KeyedFactory(nil), entry.factories...)
		next.defaults = entry.defaults
	}

	if key == nil {
		firstDefault := -1
		for i, kf := range next.factories {
			if _, ok := kf.Key.(DefaultKey); ok {
				if firstDefault < 0 {
					firstDefault = i
				}
				if policy == AppendNewImplementation && kf.Factory.implType == f.implType {
					return entry, nil
				}
			}
		}

		if firstDefault >= 0 {
			switch policy {
			case Throw:
				return nil, &ContainerError{Code: UnableToRegisterDuplicateDefault, Detail: f.String()}
			case Keep:
				return entry, nil
			case Replace:
				kept := next.factories[:0]
				for i, kf := range next.factories {
					if _, ok := kf.Key.(DefaultKey); ok && i != firstDefault {
						continue
					}
					if i == firstDefault {
						kf.Factory = f
					}
					kept = append(kept, kf)
				}
				next.factories = kept
				return next, nil
			}
		}

		next.factories = append(next.factories, KeyedFactory{Key: DefaultKey(next.defaults), Factory: f})
		next.defaults++
		return next, nil
	}

	for i, kf := range next.factories {
		if kf.Key != key {
			continue
		}
		switch policy {
		case Keep:
			return entry, nil
		case Replace:
			next.factories[i].Factory = f
			return next, nil
		default:
			return nil, &ContainerError{Code: UnableToRegisterDuplicateKey, Key: key, Detail: f.String()}
		}
	}

	next.factories = append(next.factories, KeyedFactory{Key: key, Factory: f})
	return next, nil
}

// withoutService removes the registrations of serviceType accepted by match.
func (r *registry) withoutService(serviceType reflect.Type, match func(KeyedFactory) bool) (*registry, []KeyedFactory) {
	entry, ok := r.services.TryFind(serviceType)
	if !ok {
		return r, nil
	}
	next, removed := removeKeyed(entry, match)
	if len(removed) == 0 {
		return r, nil
	}
	c := r.changed()
	if next == nil {
		c.services = c.services.Remove(serviceType)
	} else {
		c.services = c.services.AddOrUpdate(serviceType, next)
	}
	return c, removed
}

func (r *registry) withoutGeneric(origin string, match func(KeyedFactory) bool) (*registry, []KeyedFactory) {
	entry, ok := r.generics.TryFind(origin)
	if !ok {
		return r, nil
	}
	next, removed := removeKeyed(entry, match)
	if len(removed) == 0 {
		return r, nil
	}
	c := r.changed()
	if next == nil {
		c.generics = c.generics.Remove(origin)
	} else {
		c.generics = c.generics.AddOrUpdate(origin, next)
	}
	return c, removed
}

// removeKeyed returns nil when nothing is left, so a later registration starts
// numbering defaults from 0 again.
func removeKeyed(entry *serviceEntry, match func(KeyedFactory) bool) (*serviceEntry, []KeyedFactory) {
	var kept, removed []KeyedFactory
	for _, kf := range entry.factories {
		if match(kf) {
			removed = append(removed, kf)
		} else {
			kept = append(kept, kf)
		}
	}
	if len(kept) == 0 {
		return nil, removed
	}
	return &serviceEntry{factories: kept, defaults: entry.defaults}, removed
}

func (r *registry) withDecorator(serviceType reflect.Type, f *Factory) *registry {
	c := r.changed()
	c.decorators = c.decorators.AddOrUpdateWith(serviceType, []*Factory{f}, func(old, added []*Factory) []*Factory {
		return append(append([]*Factory(nil), old...), added...)
	})
	return c
}

func (r *registry) withoutDecorators(serviceType reflect.Type, match func(*Factory) bool) (*registry, int) {
	decorators, ok := r.decorators.TryFind(serviceType)
	if !ok {
		return r, 0
	}
	var kept []*Factory
	for _, d := range decorators {
		if !match(d) {
			kept = append(kept, d)
		}
	}
	removed := len(decorators) - len(kept)
	if removed == 0 {
		return r, 0
	}
	c := r.changed()
	if len(kept) == 0 {
		c.decorators = c.decorators.Remove(serviceType)
	} else {
		c.decorators = c.decorators.AddOrUpdate(serviceType, kept)
	}
	return c, removed
}

func (r *registry) withWrapper(w *WrapperDefinition) *registry {
	c := r.changed()
	c.wrappers = append(append([]*WrapperDefinition(nil), r.wrappers...), w)
	return c
}

func (r *registry) withoutWrapper(name string) (*registry, bool) {
	for i, w := range r.wrappers {
		if w.Name == name {
			c := r.changed()
			c.wrappers = append(append([]*WrapperDefinition(nil), r.wrappers[:i]...), r.wrappers[i+1:]...)
			return c, true
		}
	}
	return r, false
}

// withCached adds a compiled plan without changing the generation.
func (r *registry) withCached(key cacheKey, fn expr.Func) *registry {
	c := *r
	c.cache = c.cache.AddOrUpdate(key, fn)
	return &c
}

func (r *registry) withoutCache() *registry {
	if r.cache.IsEmpty() {
		return r
	}
	c := *r
	c.cache = immap.Empty[cacheKey, expr.Func]()
	return &c
}
