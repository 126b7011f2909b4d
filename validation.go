package dryioc

import (
	"cmp"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Validate builds the construction plan of every service registration without
// creating any instance, and returns a ValidationError for each plan that cannot be
// built: missing dependencies, cycles, ambiguous defaults, captured shorter-lived
// dependencies. Deferred wrappers like func() T are planned too. Conditions of the
// validated registrations themselves are ignored. Errors are sorted by service type.
func (c *Container) Validate() []error {
	if err := c.checkDisposed(); err != nil {
		return []error{err}
	}

	reg := c.reg.Load()
	p := c.planner(reg)
	p.validating = true

	var failures []ValidationError
	for serviceType, entry := range reg.services.All() {
		for _, kf := range entry.factories {
			if kf.Factory.setup.FactoryType != ServiceFactory {
				continue
			}
			req := newRequest(serviceType, kf.Key, nil, IfUnresolvedThrow)
			req.pinned = kf.Factory
			if _, err := p.serviceExpr(req); err != nil {
				failures = append(failures, ValidationError{ServiceType: serviceType, Key: kf.Key, Cause: err})
			}
		}
	}

	slices.SortFunc(failures, func(a, b ValidationError) int {
		return cmp.Or(
			cmp.Compare(formatType(a.ServiceType), formatType(b.ServiceType)),
			cmp.Compare(fmt.Sprint(a.Key), fmt.Sprint(b.Key)),
		)
	})

	c.rules.logger.Debug("registrations validated", zap.Int("failures", len(failures)))

	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	return errs
}
