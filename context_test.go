package dryioc_test

import (
	"context"
	"testing"

	"github.com/dadhi/dryioc"
	"github.com/dadhi/dryioc/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithContainer(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t, testutil.BasicModule)
		ctx := dryioc.ContextWithContainer(context.Background(), c)

		got, err := dryioc.FromContext(ctx)
		require.NoError(t, err)
		assert.Same(t, c, got)
		testutil.AssertResolvable[testutil.TestLogger](t, got)
	})

	t.Run("missing container", func(t *testing.T) {
		t.Parallel()

		_, err := dryioc.FromContext(context.Background())
		assert.Error(t, err)

		//nolint:staticcheck // a nil context is rejected
		_, err = dryioc.FromContext(nil)
		assert.Error(t, err)
	})

	t.Run("disposed container", func(t *testing.T) {
		t.Parallel()

		c := dryioc.New()
		ctx := dryioc.ContextWithContainer(context.Background(), c)
		require.NoError(t, c.Close())

		_, err := dryioc.FromContext(ctx)
		testutil.AssertErrorCode(t, err, dryioc.ContainerIsDisposed)
	})

	t.Run("closed scope", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		s, err := c.OpenScope("request")
		require.NoError(t, err)
		ctx := dryioc.ContextWithContainer(context.Background(), s)

		got, err := dryioc.FromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "request", got.CurrentScope().Name())

		require.NoError(t, s.Close())
		_, err = dryioc.FromContext(ctx)
		testutil.AssertErrorCode(t, err, dryioc.ScopeIsDisposed)

		_, err = dryioc.FromContext(dryioc.ContextWithContainer(context.Background(), c))
		assert.NoError(t, err, "the parent container stays usable")
	})
}
