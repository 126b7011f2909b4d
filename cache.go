package dryioc

import (
	"reflect"

	"github.com/dadhi/dryioc/internal/expr"
)

// cacheKey identifies a compiled plan of a top-level request.
type cacheKey struct {
	serviceType  reflect.Type
	requiredType reflect.Type
	key          any
	ifUnresolved IfUnresolved
}

func cacheKeyOf(req *Request) cacheKey {
	return cacheKey{
		serviceType:  req.serviceType,
		requiredType: req.requiredType,
		key:          req.key,
		ifUnresolved: req.ifUnresolved,
	}
}

// cachedPlan returns the compiled plan for req from the current registry snapshot.
func (c *Container) cachedPlan(req *Request) (expr.Func, *registry, bool) {
	reg := c.reg.Load()
	fn, ok := reg.cache.TryFind(cacheKeyOf(req))
	return fn, reg, ok
}

// plan builds and compiles the plan for req against reg and caches it, unless the
// registrations changed in the meantime.
func (c *Container) plan(reg *registry, req *Request) (expr.Func, error) {
	x, err := c.planner(reg).serviceExpr(req)
	if err != nil {
		return nil, err
	}
	fn := x.Compile()

	key := cacheKeyOf(req)
	for {
		current := c.reg.Load()
		if current.generation != reg.generation {
			break
		}
		if c.reg.CompareAndSwap(current, current.withCached(key, fn)) {
			break
		}
	}
	return fn, nil
}

// ClearCache drops every compiled plan. Registration changes do this on their own;
// ClearCache is for releasing the memory held by plans.
func (c *Container) ClearCache() {
	for {
		current := c.reg.Load()
		next := current.withoutCache()
		if next == current || c.reg.CompareAndSwap(current, next) {
			c.rules.logger.Debug("plan cache cleared")
			return
		}
	}
}
