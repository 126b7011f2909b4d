package testutil

import (
	"errors"
	"testing"

	"github.com/dadhi/dryioc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertResolvable resolves T and fails the test on error or a nil result.
func AssertResolvable[T any](t *testing.T, r dryioc.Resolver, opts ...dryioc.ResolveOption) T {
	t.Helper()
	service, err := dryioc.Resolve[T](r, opts...)
	require.NoError(t, err, "failed to resolve service of type %T", *new(T))
	require.NotNil(t, service, "resolved service is nil")
	return service
}

// AssertUnresolved checks that resolving T fails because no registration serves it.
func AssertUnresolved[T any](t *testing.T, r dryioc.Resolver, opts ...dryioc.ResolveOption) {
	t.Helper()
	_, err := dryioc.Resolve[T](r, opts...)
	require.Error(t, err)
	assert.True(t, dryioc.IsUnresolved(err), "expected unresolved service error, got: %v", err)
}

// AssertErrorCode checks that err carries the given code.
func AssertErrorCode(t *testing.T, err error, code dryioc.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, dryioc.ErrorCodeOf(err), "unexpected error: %v", err)
	assert.ErrorIs(t, err, code.Sentinel())
}

// AssertSameInstance checks that two pointers point to the same instance
func AssertSameInstance(t *testing.T, expected, actual any, msgAndArgs ...any) {
	t.Helper()
	assert.Same(t, expected, actual, msgAndArgs...)
}

// AssertDifferentInstances checks that two pointers point to different instances
func AssertDifferentInstances(t *testing.T, first, second any, msgAndArgs ...any) {
	t.Helper()
	assert.NotSame(t, first, second, msgAndArgs...)
}

// AssertErrorType checks that err has an error of type T in its chain and returns it.
func AssertErrorType[T error](t *testing.T, err error, msgAndArgs ...any) T {
	t.Helper()
	var target T
	require.True(t, errors.As(err, &target), msgAndArgs...)
	return target
}

// AssertCircularDependency checks for a recursive dependency error
func AssertCircularDependency(t *testing.T, err error) {
	t.Helper()
	AssertErrorCode(t, err, dryioc.RecursiveDependencyDetected)
}

// AssertPanics checks that f panics
func AssertPanics(t *testing.T, f func(), msgAndArgs ...any) {
	t.Helper()
	assert.Panics(t, f, msgAndArgs...)
}
