package dryioc

// FactoryType tells how a factory takes part in resolution.
type FactoryType int

const (
	// ServiceFactory produces a resolvable service.
	ServiceFactory FactoryType = iota

	// DecoratorFactory wraps the services of its service type.
	DecoratorFactory

	// WrapperFactory adapts a wrapped service into another shape, like func() T.
	WrapperFactory
)

func (t FactoryType) String() string {
	switch t {
	case ServiceFactory:
		return "Service"
	case DecoratorFactory:
		return "Decorator"
	case WrapperFactory:
		return "Wrapper"
	default:
		return "Unknown"
	}
}

// Setup carries the per-registration settings that are not part of how the instance
// is created.
type Setup struct {
	FactoryType FactoryType

	// Condition restricts the factory to requests it returns true for. A factory whose
	// condition is false is invisible to that request.
	Condition func(req *Request) bool

	// Metadata is an arbitrary value attached to the registration and exposed through
	// the Meta wrapper.
	Metadata any

	// OpenResolutionScope makes each instance of the factory start its own resolution
	// scope for its dependencies.
	OpenResolutionScope bool

	// TrackDisposable makes the container own disposable instances it does not reuse.
	// Transients are tracked by the current scope, or the root scope when none is
	// open; registered instances are tracked by the root scope.
	TrackDisposable bool

	// AsResolutionCall resolves the service at runtime instead of inlining its
	// construction into the consumer's plan.
	AsResolutionCall bool
}

func (s Setup) matches(req *Request) bool {
	return s.Condition == nil || s.Condition(req)
}
