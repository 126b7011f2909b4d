package dryioc

import (
	"fmt"
	"reflect"
)

// RegisterOption modifies a registration made with Register and its variants.
type RegisterOption interface {
	applyRegisterOption(*registerOptions)
}

type registerOptions struct {
	key      any
	reuse    Reuse
	setup    Setup
	policy   IfAlreadyRegistered
	selector FieldSelector
}

func newRegisterOptions(opts []RegisterOption) *registerOptions {
	o := &registerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyRegisterOption(o)
		}
	}
	return o
}

// ResolveOption modifies a Resolve or ResolveMany call.
type ResolveOption interface {
	applyResolveOption(*resolveOptions)
}

type resolveOptions struct {
	key          any
	requiredType reflect.Type
	ifUnresolved IfUnresolved
}

func newResolveOptions(opts []ResolveOption) *resolveOptions {
	o := &resolveOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyResolveOption(o)
		}
	}
	return o
}

// MatchOption selects registrations for Unregister and IsRegistered.
type MatchOption interface {
	applyMatchOption(*matchOptions)
}

type matchOptions struct {
	key         any
	where       func(*Factory) bool
	factoryType FactoryType
}

func newMatchOptions(opts []MatchOption) *matchOptions {
	o := &matchOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyMatchOption(o)
		}
	}
	return o
}

func (o *matchOptions) matches(kf KeyedFactory) bool {
	if o.key != nil && kf.Key != o.key {
		return false
	}
	return o.where == nil || o.where(kf.Factory)
}

// KeyOption is returned by WithKey. It works as a register, resolve and match option.
type KeyOption struct {
	key any
}

// WithKey registers, resolves or matches the service under key. Keys are compared with
// ==, so they must be comparable. A DefaultKey targets one unkeyed registration.
//
// On a decorator registration, WithKey restricts the decorator to the service
// registered with key.
func WithKey(key any) KeyOption {
	return KeyOption{key: key}
}

func (o KeyOption) String() string {
	return fmt.Sprintf("WithKey(%v)", o.key)
}

func (o KeyOption) applyRegisterOption(opts *registerOptions) { opts.key = o.key }
func (o KeyOption) applyResolveOption(opts *resolveOptions)   { opts.key = o.key }
func (o KeyOption) applyMatchOption(opts *matchOptions)       { opts.key = o.key }

// WithReuse sets the reuse of the registration. Without it the rules' default reuse
// applies, Transient unless configured otherwise.
func WithReuse(reuse Reuse) RegisterOption {
	return reuseOption{reuse}
}

type reuseOption struct{ reuse Reuse }

func (o reuseOption) String() string {
	return fmt.Sprintf("WithReuse(%v)", o.reuse)
}

func (o reuseOption) applyRegisterOption(opts *registerOptions) { opts.reuse = o.reuse }

// WithSetup replaces the whole setup of the registration. Options after it still
// modify individual settings.
func WithSetup(setup Setup) RegisterOption {
	return setupOption(func(s *Setup) { *s = setup })
}

// WithMetadata attaches metadata to the registration, available through Meta[T, M].
func WithMetadata(metadata any) RegisterOption {
	return setupOption(func(s *Setup) { s.Metadata = metadata })
}

// WithCondition makes the registration visible only to requests cond returns true for.
func WithCondition(cond func(req *Request) bool) RegisterOption {
	return setupOption(func(s *Setup) { s.Condition = cond })
}

// OpenResolutionScope makes every instance of the registration start a resolution
// scope for its dependencies.
func OpenResolutionScope() RegisterOption {
	return setupOption(func(s *Setup) { s.OpenResolutionScope = true })
}

// TrackDisposable makes the container dispose transient or instance registrations it
// would otherwise leave to the caller.
func TrackDisposable() RegisterOption {
	return setupOption(func(s *Setup) { s.TrackDisposable = true })
}

// AsResolutionCall resolves the service on each use instead of inlining its plan into
// its consumers. The service may then take part in a cycle broken elsewhere and is
// replanned after registrations change.
func AsResolutionCall() RegisterOption {
	return setupOption(func(s *Setup) { s.AsResolutionCall = true })
}

type setupOption func(*Setup)

func (o setupOption) String() string { return "Setup" }

func (o setupOption) applyRegisterOption(opts *registerOptions) { o(&opts.setup) }

// WithIfAlreadyRegistered sets the policy for a registration colliding with an
// existing one. The default is AppendNotKeyed.
func WithIfAlreadyRegistered(policy IfAlreadyRegistered) RegisterOption {
	return policyOption(policy)
}

type policyOption IfAlreadyRegistered

func (o policyOption) String() string {
	return fmt.Sprintf("WithIfAlreadyRegistered(%v)", IfAlreadyRegistered(o))
}

func (o policyOption) applyRegisterOption(opts *registerOptions) {
	opts.policy = IfAlreadyRegistered(o)
}

// WithFields chooses the fields injected into a struct registration.
func WithFields(selector FieldSelector) RegisterOption {
	return fieldsOption{selector}
}

type fieldsOption struct{ selector FieldSelector }

func (o fieldsOption) String() string { return "WithFields" }

func (o fieldsOption) applyRegisterOption(opts *registerOptions) { opts.selector = o.selector }

// RequiredType resolves registrations of t, which must be assignable to the requested
// service type. ResolveMany(I, RequiredType(T)) returns the I services registered as T.
func RequiredType(t reflect.Type) ResolveOption {
	return requiredTypeOption{t}
}

type requiredTypeOption struct{ t reflect.Type }

func (o requiredTypeOption) String() string {
	return fmt.Sprintf("RequiredType(%v)", o.t)
}

func (o requiredTypeOption) applyResolveOption(opts *resolveOptions) { opts.requiredType = o.t }

// ReturnDefaultIfUnresolved returns the zero value instead of an error when the service
// has no registration.
func ReturnDefaultIfUnresolved() ResolveOption {
	return returnDefaultOption{}
}

type returnDefaultOption struct{}

func (returnDefaultOption) String() string { return "ReturnDefaultIfUnresolved" }

func (returnDefaultOption) applyResolveOption(opts *resolveOptions) {
	opts.ifUnresolved = IfUnresolvedReturnDefault
}

// Where matches the registrations whose factory cond returns true for.
func Where(cond func(f *Factory) bool) MatchOption {
	return whereOption(cond)
}

type whereOption func(*Factory) bool

func (whereOption) String() string { return "Where" }

func (o whereOption) applyMatchOption(opts *matchOptions) { opts.where = o }

// OfFactoryType matches decorators with DecoratorFactory instead of services.
func OfFactoryType(t FactoryType) MatchOption {
	return factoryTypeOption(t)
}

type factoryTypeOption FactoryType

func (o factoryTypeOption) String() string {
	return fmt.Sprintf("OfFactoryType(%v)", FactoryType(o))
}

func (o factoryTypeOption) applyMatchOption(opts *matchOptions) {
	opts.factoryType = FactoryType(o)
}
