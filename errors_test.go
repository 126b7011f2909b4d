package dryioc_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/dadhi/dryioc"
	"github.com/dadhi/dryioc/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerError(t *testing.T) {
	t.Run("formats type, key, detail and cause", func(t *testing.T) {
		t.Parallel()

		err := &dryioc.ContainerError{
			Code:        dryioc.UnableToResolveUnknownService,
			ServiceType: reflect.TypeFor[*testutil.TestService](),
			Key:         "primary",
			Detail:      "no registration",
			Cause:       testutil.ErrTest,
			Request:     "*TestService {key: primary}",
		}

		assert.Equal(t,
			"unable to resolve unknown service: *TestService {key: primary}: no registration: test error\n  in *TestService {key: primary}",
			err.Error())
	})

	t.Run("code only", func(t *testing.T) {
		t.Parallel()

		err := &dryioc.ContainerError{Code: dryioc.NoCurrentScope}
		assert.Equal(t, "no current scope", err.Error())
	})

	t.Run("matches its sentinel and cause", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("wrapped: %w", &dryioc.ContainerError{Code: dryioc.ScopeIsDisposed, Cause: testutil.ErrTest})

		assert.ErrorIs(t, err, dryioc.ErrScopeIsDisposed)
		assert.ErrorIs(t, err, testutil.ErrTest)
		assert.NotErrorIs(t, err, dryioc.ErrContainerIsDisposed)
		assert.Equal(t, dryioc.ScopeIsDisposed, dryioc.ErrorCodeOf(err))
	})

	t.Run("errors from resolution", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		_, err := dryioc.Resolve[*testutil.TestService](c)
		require.Error(t, err)

		var ce *dryioc.ContainerError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, reflect.TypeFor[*testutil.TestService](), ce.ServiceType)
		assert.Contains(t, err.Error(), "*TestService")
		assert.True(t, dryioc.IsUnresolved(err))
	})

	t.Run("unknown errors", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, dryioc.CodeUnknown, dryioc.ErrorCodeOf(testutil.ErrTest))
		assert.Equal(t, dryioc.CodeUnknown, dryioc.ErrorCodeOf(nil))
		assert.False(t, dryioc.IsUnresolved(testutil.ErrTest))
	})
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	codes := []dryioc.ErrorCode{
		dryioc.UnableToResolveUnknownService,
		dryioc.ExpectedSingleDefaultFactory,
		dryioc.RecursiveDependencyDetected,
		dryioc.ResolutionDepthExceeded,
		dryioc.UnableToRegisterDuplicateKey,
		dryioc.UnableToRegisterDuplicateDefault,
		dryioc.RegisteringImplementationNotAssignableToServiceType,
		dryioc.ServiceKeyNotComparable,
		dryioc.InvalidRegistration,
		dryioc.RequiredTypeNotAssignable,
		dryioc.ContainerIsDisposed,
		dryioc.ScopeIsDisposed,
		dryioc.NoCurrentScope,
		dryioc.NoMatchedScopeFound,
		dryioc.DependencyHasShorterReuseLifespan,
	}
	for _, code := range codes {
		require.NotNil(t, code.Sentinel(), "code %d", int(code))
		assert.Equal(t, code.Sentinel().Error(), code.String())
	}

	assert.Nil(t, dryioc.CodeUnknown.Sentinel())
	assert.Equal(t, "ErrorCode(0)", dryioc.CodeUnknown.String())
	assert.Equal(t, "ErrorCode(999)", dryioc.ErrorCode(999).String())
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	cause := &dryioc.ContainerError{Code: dryioc.UnableToResolveUnknownService}

	err := dryioc.ValidationError{ServiceType: reflect.TypeFor[*Repository](), Cause: cause}
	assert.Equal(t, "*Repository: unable to resolve unknown service", err.Error())
	assert.True(t, dryioc.IsUnresolved(err))

	keyed := dryioc.ValidationError{ServiceType: reflect.TypeFor[*Repository](), Key: "k", Cause: cause}
	assert.Equal(t, "*Repository {key: k}: unable to resolve unknown service", keyed.Error())

	untyped := dryioc.ValidationError{Cause: testutil.ErrTest}
	assert.Equal(t, "test error", untyped.Error())
}

func TestDisposalError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		t.Parallel()

		err := dryioc.DisposalError{Context: "scope", Errors: []error{testutil.ErrDisposal}}
		assert.Equal(t, "scope disposal failed: disposal error", err.Error())
		assert.ErrorIs(t, err, testutil.ErrDisposal)
	})

	t.Run("several errors", func(t *testing.T) {
		t.Parallel()

		err := dryioc.DisposalError{Context: "container", Errors: []error{testutil.ErrDisposal, testutil.ErrTest}}
		assert.Equal(t, "container disposal failed with 2 errors:\n  1. disposal error\n  2. test error", err.Error())
		assert.ErrorIs(t, err, testutil.ErrDisposal)
		assert.ErrorIs(t, err, testutil.ErrTest)
	})
}
