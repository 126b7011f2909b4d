package dryioc

import (
	"github.com/dadhi/dryioc/internal/expr"
)

// decorate wraps x, the plan of the service chosen for req, in the decorators
// registered for its service type. Func decorators come first, then constructor
// decorators in registration order, so the last registered decorator is outermost.
func (p *planner) decorate(req *Request, x expr.Expr) (expr.Expr, error) {
	decorators, ok := p.reg.decorators.TryFind(req.serviceType)
	if !ok {
		return x, nil
	}

	var funcs, ctors []*Factory
	for _, d := range decorators {
		if !d.setup.matches(req) {
			continue
		}
		if d.funcDecorator {
			funcs = append(funcs, d)
		} else {
			ctors = append(ctors, d)
		}
	}

	for _, d := range funcs {
		x = &expr.Call{
			Fn:   d.fn,
			Name: funcName(d.fn),
			Args: []expr.Expr{&expr.Convert{X: x, T: req.serviceType}},
			T:    d.ctor.Out,
		}
	}

	for _, d := range ctors {
		dreq := req.push(req.serviceType, req.key, IfUnresolvedThrow).withFactory(d, nil)
		call, err := p.constructorExpr(dreq, d, &expr.Convert{X: x, T: req.serviceType})
		if err != nil {
			return nil, err
		}
		x = p.decoratorReuse(req, d, call)
	}
	return x, nil
}

// decoratorReuse keeps one decorator instance per decorated factory and scope.
func (p *planner) decoratorReuse(req *Request, d *Factory, call expr.Expr) expr.Expr {
	if d.reuse == nil || d.reuse.Lifespan() == TransientLifespan {
		return call
	}
	return &expr.Scoped{
		ID:     derivedID(d.id, req.factory.id),
		Locate: reuseLocator(d.reuse, req.serviceType, req.factoryKey),
		Body:   call,
		T:      call.Type(),
	}
}
