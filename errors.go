package dryioc

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// Every container failure is returned as a *ContainerError carrying one of these
// sentinels as its code, so callers can match with errors.Is.

var (
	ErrUnableToResolveUnknownService = errors.New("unable to resolve unknown service")
	ErrExpectedSingleDefaultFactory  = errors.New("expected a single default factory")
	ErrRecursiveDependencyDetected   = errors.New("recursive dependency detected")
	ErrResolutionDepthExceeded       = errors.New("resolution depth exceeded")

	ErrUnableToRegisterDuplicateKey                        = errors.New("unable to register duplicate service key")
	ErrUnableToRegisterDuplicateDefault                    = errors.New("unable to register duplicate default service")
	ErrRegisteringImplementationNotAssignableToServiceType = errors.New("implementation is not assignable to service type")
	ErrServiceKeyNotComparable                             = errors.New("service key is not comparable")
	ErrInvalidRegistration                                 = errors.New("invalid registration")
	ErrRequiredTypeNotAssignable                           = errors.New("required service type is not assignable to service type")

	ErrContainerIsDisposed = errors.New("container is disposed")
	ErrScopeIsDisposed     = errors.New("scope is disposed")
	ErrNoCurrentScope      = errors.New("no current scope")
	ErrNoMatchedScopeFound = errors.New("no matched scope found")

	ErrDependencyHasShorterReuseLifespan = errors.New("dependency has shorter reuse lifespan than its consumer")
)

// ErrorCode identifies the kind of a container failure.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	UnableToResolveUnknownService
	ExpectedSingleDefaultFactory
	RecursiveDependencyDetected
	ResolutionDepthExceeded
	UnableToRegisterDuplicateKey
	UnableToRegisterDuplicateDefault
	RegisteringImplementationNotAssignableToServiceType
	ServiceKeyNotComparable
	InvalidRegistration
	RequiredTypeNotAssignable
	ContainerIsDisposed
	ScopeIsDisposed
	NoCurrentScope
	NoMatchedScopeFound
	DependencyHasShorterReuseLifespan
)

var codeSentinels = map[ErrorCode]error{
	UnableToResolveUnknownService:                       ErrUnableToResolveUnknownService,
	ExpectedSingleDefaultFactory:                        ErrExpectedSingleDefaultFactory,
	RecursiveDependencyDetected:                         ErrRecursiveDependencyDetected,
	ResolutionDepthExceeded:                             ErrResolutionDepthExceeded,
	UnableToRegisterDuplicateKey:                        ErrUnableToRegisterDuplicateKey,
	UnableToRegisterDuplicateDefault:                    ErrUnableToRegisterDuplicateDefault,
	RegisteringImplementationNotAssignableToServiceType: ErrRegisteringImplementationNotAssignableToServiceType,
	ServiceKeyNotComparable:                             ErrServiceKeyNotComparable,
	InvalidRegistration:                                 ErrInvalidRegistration,
	RequiredTypeNotAssignable:                           ErrRequiredTypeNotAssignable,
	ContainerIsDisposed:                                 ErrContainerIsDisposed,
	ScopeIsDisposed:                                     ErrScopeIsDisposed,
	NoCurrentScope:                                      ErrNoCurrentScope,
	NoMatchedScopeFound:                                 ErrNoMatchedScopeFound,
	DependencyHasShorterReuseLifespan:                   ErrDependencyHasShorterReuseLifespan,
}

// Sentinel returns the sentinel error of the code, nil for CodeUnknown.
func (c ErrorCode) Sentinel() error {
	return codeSentinels[c]
}

func (c ErrorCode) String() string {
	if err := c.Sentinel(); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

var (
	_ error = (*ContainerError)(nil)
	_ error = ValidationError{}
	_ error = ModuleError{}
	_ error = DisposalError{}
)

// ContainerError is the error returned by registration, resolution and disposal.
type ContainerError struct {
	Code        ErrorCode
	ServiceType reflect.Type
	Key         any
	Detail      string

	// Request is the resolution path that failed, rendered outermost last.
	Request string

	Cause error
}

func (e *ContainerError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.ServiceType != nil {
		b.WriteString(": ")
		b.WriteString(formatType(e.ServiceType))
		if e.Key != nil {
			fmt.Fprintf(&b, " {key: %v}", e.Key)
		}
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.Request != "" {
		b.WriteString("\n  in ")
		b.WriteString(e.Request)
	}
	return b.String()
}

// Is matches the sentinel of the error code.
func (e *ContainerError) Is(target error) bool {
	return target != nil && target == e.Code.Sentinel()
}

func (e *ContainerError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, req *Request, format string, args ...any) *ContainerError {
	e := &ContainerError{Code: code}
	if format != "" {
		e.Detail = fmt.Sprintf(format, args...)
	}
	if req != nil {
		e.ServiceType = req.ServiceType()
		e.Key = req.ServiceKey()
		e.Request = req.String()
	}
	return e
}

func typeError(code ErrorCode, serviceType reflect.Type, key any, format string, args ...any) *ContainerError {
	e := &ContainerError{Code: code, ServiceType: serviceType, Key: key}
	if format != "" {
		e.Detail = fmt.Sprintf(format, args...)
	}
	return e
}

// ErrorCodeOf returns the code of the first ContainerError in err's chain.
func ErrorCodeOf(err error) ErrorCode {
	var ce *ContainerError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeUnknown
}

// IsUnresolved reports whether err means that a service has no usable registration.
func IsUnresolved(err error) bool {
	return errors.Is(err, ErrUnableToResolveUnknownService)
}

// ValidationError reports a registration whose construction plan cannot be built.
type ValidationError struct {
	ServiceType reflect.Type
	Key         any
	Cause       error
}

func (e ValidationError) Error() string {
	if e.ServiceType == nil {
		return e.Cause.Error()
	}
	if e.Key != nil {
		return fmt.Sprintf("%s {key: %v}: %v", formatType(e.ServiceType), e.Key, e.Cause)
	}
	return fmt.Sprintf("%s: %v", formatType(e.ServiceType), e.Cause)
}

func (e ValidationError) Unwrap() error {
	return e.Cause
}

// ModuleError wraps errors from module registration.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e ModuleError) Unwrap() error {
	return e.Cause
}

// DisposalError aggregates disposal errors
type DisposalError struct {
	Context string // "container", "scope"
	Errors  []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s disposal failed: %v", e.Context, e.Errors[0])
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s disposal failed with %d errors:", e.Context, len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
	}
	return sb.String()
}

func (e DisposalError) Unwrap() []error {
	return e.Errors
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Func:
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
