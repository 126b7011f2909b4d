package dryioc_test

import (
	"reflect"
	"testing"

	"github.com/dadhi/dryioc"
	"github.com/dadhi/dryioc/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerHandler(t *testing.T, c *dryioc.Container, name string, opts ...dryioc.RegisterOption) {
	t.Helper()
	require.NoError(t, dryioc.Register[testutil.TestHandler](c, func() testutil.TestHandler {
		return testutil.NewTestHandler(name)
	}, opts...))
}

func handles(handlers []testutil.TestHandler) []string {
	out := make([]string, len(handlers))
	for i, h := range handlers {
		out[i] = h.Handle()
	}
	return out
}

func TestWrappers_Collection(t *testing.T) {
	t.Run("registration order", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		registerHandler(t, c, "first")
		registerHandler(t, c, "keyed", dryioc.WithKey("k"))
		registerHandler(t, c, "second")

		all, err := dryioc.ResolveMany[testutil.TestHandler](c)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "keyed", "second"}, handles(all))

		slice := testutil.AssertResolvable[[]testutil.TestHandler](t, c)
		assert.Equal(t, []string{"first", "keyed", "second"}, handles(slice))
	})

	t.Run("empty collection", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		all, err := dryioc.ResolveMany[testutil.TestHandler](c)
		require.NoError(t, err)
		assert.NotNil(t, all)
		assert.Empty(t, all)
	})

	t.Run("unresolvable items are skipped", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		registerHandler(t, c, "ok")
		require.NoError(t, dryioc.Register[testutil.TestHandler](c, func(*Repository) testutil.TestHandler {
			return testutil.NewTestHandler("needs repository")
		}))

		all, err := dryioc.ResolveMany[testutil.TestHandler](c)
		require.NoError(t, err)
		assert.Equal(t, []string{"ok"}, handles(all))
	})

	t.Run("restricted by key", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		registerHandler(t, c, "a", dryioc.WithKey("a"))
		registerHandler(t, c, "b", dryioc.WithKey("b"))

		all, err := dryioc.ResolveMany[testutil.TestHandler](c, dryioc.WithKey("a"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, handles(all))
	})

	t.Run("untyped many", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		registerHandler(t, c, "a")
		registerHandler(t, c, "b")

		all, err := c.ResolveMany(reflect.TypeFor[testutil.TestHandler]())
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "b", all[1].(testutil.TestHandler).Handle())
	})

	t.Run("lazy sequence", func(t *testing.T) {
		t.Parallel()

		created := 0
		c := testutil.NewContainer(t)
		for _, name := range []string{"a", "b", "c"} {
			require.NoError(t, dryioc.Register[testutil.TestHandler](c, func() testutil.TestHandler {
				created++
				return testutil.NewTestHandler(name)
			}))
		}

		var got []string
		for h, err := range c.ResolveManySeq(reflect.TypeFor[testutil.TestHandler]()) {
			require.NoError(t, err)
			got = append(got, h.(testutil.TestHandler).Handle())
			if len(got) == 2 {
				break
			}
		}
		assert.Equal(t, []string{"a", "b"}, got)
		assert.Equal(t, 2, created)
	})

	t.Run("collection as a dependency", func(t *testing.T) {
		t.Parallel()

		type router struct {
			handlers []testutil.TestHandler
		}

		c := testutil.NewContainer(t)
		registerHandler(t, c, "a")
		registerHandler(t, c, "b")
		require.NoError(t, dryioc.Register[*router](c, func(hs []testutil.TestHandler) *router {
			return &router{handlers: hs}
		}))

		r := testutil.AssertResolvable[*router](t, c)
		assert.Equal(t, []string{"a", "b"}, handles(r.handlers))
	})

	t.Run("nested wrappers", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		registerHandler(t, c, "a")
		registerHandler(t, c, "b")

		lazies := testutil.AssertResolvable[[]*dryioc.Lazy[testutil.TestHandler]](t, c)
		require.Len(t, lazies, 2)
		h, err := lazies[1].Value()
		require.NoError(t, err)
		assert.Equal(t, "b", h.Handle())

		factories := testutil.AssertResolvable[[]func() testutil.TestHandler](t, c)
		require.Len(t, factories, 2)
		assert.Equal(t, "a", factories[0]().Handle())
	})
}

func TestWrappers_Func(t *testing.T) {
	t.Run("creates on every call", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		require.NoError(t, dryioc.Register[*testutil.TestService](c, testutil.NewTestService))

		newService := testutil.AssertResolvable[func() *testutil.TestService](t, c)
		testutil.AssertDifferentInstances(t, newService(), newService())
	})

	t.Run("returns errors", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		require.NoError(t, dryioc.Register[*testutil.TestService](c, func() (*testutil.TestService, error) {
			return nil, testutil.ErrConstructor
		}))

		newService := testutil.AssertResolvable[func() (*testutil.TestService, error)](t, c)
		_, err := newService()
		assert.ErrorIs(t, err, testutil.ErrConstructor)
	})

	t.Run("passes arguments to dependencies", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t, testutil.BasicModule)
		require.NoError(t, dryioc.Register[*Greeter](c, NewGreeter))

		newGreeter := testutil.AssertResolvable[func(string) *Greeter](t, c)
		bob := newGreeter("bob")
		alice := newGreeter("alice")
		assert.Equal(t, "bob", bob.Name)
		assert.Equal(t, "alice", alice.Name)
		assert.NotNil(t, bob.Logger)
	})

	t.Run("argument shadows a registration", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t, testutil.BasicModule)
		require.NoError(t, dryioc.Register[*Greeter](c, NewGreeter))

		custom := testutil.NewTestLogger()
		newGreeter := testutil.AssertResolvable[func(string, testutil.TestLogger) (*Greeter, error)](t, c)
		g, err := newGreeter("carol", custom)
		require.NoError(t, err)
		testutil.AssertSameInstance(t, custom, g.Logger)
	})

	t.Run("argument reaches every collection item", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		for _, prefix := range []string{"1:", "2:"} {
			require.NoError(t, dryioc.Register[testutil.TestHandler](c, func(name string) testutil.TestHandler {
				return testutil.NewTestHandler(prefix + name)
			}))
		}

		newHandlers := testutil.AssertResolvable[func(string) []testutil.TestHandler](t, c)
		assert.Equal(t, []string{"1:x", "2:x"}, handles(newHandlers("x")))
	})

	t.Run("unresolvable service fails at resolution", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		_, err := dryioc.Resolve[func() *Repository](c)
		testutil.AssertErrorCode(t, err, dryioc.UnableToResolveUnknownService)

		f, err := dryioc.Resolve[func() *Repository](c, dryioc.ReturnDefaultIfUnresolved())
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("breaks a cycle", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		require.NoError(t, dryioc.Register[*Parent](c, NewParent, dryioc.WithReuse(dryioc.Singleton)))
		require.NoError(t, dryioc.Register[*Child](c, NewChild))

		p := testutil.AssertResolvable[*Parent](t, c)
		child, err := p.NewChild()
		require.NoError(t, err)
		testutil.AssertSameInstance(t, p, child.Parent)
	})

	t.Run("sees later registrations", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		registerHandler(t, c, "old")
		newHandler := testutil.AssertResolvable[func() testutil.TestHandler](t, c)
		assert.Equal(t, "old", newHandler().Handle())

		registerHandler(t, c, "new", dryioc.WithIfAlreadyRegistered(dryioc.Replace))
		assert.Equal(t, "new", newHandler().Handle())
	})
}

func TestWrappers_Lazy(t *testing.T) {
	t.Run("creates on first value", func(t *testing.T) {
		t.Parallel()

		created := 0
		c := testutil.NewContainer(t)
		require.NoError(t, dryioc.Register[*testutil.TestService](c, func() *testutil.TestService {
			created++
			return testutil.NewTestService()
		}))

		lazy := testutil.AssertResolvable[*dryioc.Lazy[*testutil.TestService]](t, c)
		assert.False(t, lazy.IsValueCreated())
		assert.Zero(t, created)

		first, err := lazy.Value()
		require.NoError(t, err)
		second, err := lazy.Value()
		require.NoError(t, err)

		testutil.AssertSameInstance(t, first, second)
		assert.True(t, lazy.IsValueCreated())
		assert.Equal(t, 1, created)
	})

	t.Run("failed value is retried", func(t *testing.T) {
		t.Parallel()

		calls := 0
		c := testutil.NewContainer(t)
		require.NoError(t, dryioc.Register[*testutil.TestService](c, func() (*testutil.TestService, error) {
			calls++
			if calls == 1 {
				return nil, testutil.ErrConstructor
			}
			return testutil.NewTestService(), nil
		}))

		lazy := testutil.AssertResolvable[*dryioc.Lazy[*testutil.TestService]](t, c)
		_, err := lazy.Value()
		assert.ErrorIs(t, err, testutil.ErrConstructor)
		assert.False(t, lazy.IsValueCreated())

		svc, err := lazy.Value()
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("breaks a cycle", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		require.NoError(t, dryioc.Register[*LazyA](c, NewLazyA, dryioc.WithReuse(dryioc.Singleton)))
		require.NoError(t, dryioc.Register[*LazyB](c, NewLazyB, dryioc.WithReuse(dryioc.Singleton)))

		a := testutil.AssertResolvable[*LazyA](t, c)
		b, err := a.B.Value()
		require.NoError(t, err)
		testutil.AssertSameInstance(t, a, b.A)

		fromContainer := testutil.AssertResolvable[*LazyB](t, c)
		testutil.AssertSameInstance(t, b, fromContainer)
	})

	t.Run("forced while its consumer is created", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		require.NoError(t, dryioc.Register[*eagerA](c, func(b *dryioc.Lazy[*eagerB]) (*eagerA, error) {
			if _, err := b.Value(); err != nil {
				return nil, err
			}
			return &eagerA{}, nil
		}))
		require.NoError(t, dryioc.Register[*eagerB](c, func(a *eagerA) *eagerB { return &eagerB{a: a} }))

		_, err := dryioc.Resolve[*eagerA](c)
		testutil.AssertErrorCode(t, err, dryioc.RecursiveDependencyDetected)
	})

	t.Run("standalone", func(t *testing.T) {
		t.Parallel()

		lazy := dryioc.NewLazy(func() (string, error) { return "value", nil })
		v, err := lazy.Value()
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	})
}

type eagerA struct{}

type eagerB struct{ a *eagerA }

func TestWrappers_Cycle(t *testing.T) {
	t.Parallel()

	c := testutil.NewContainer(t)
	require.NoError(t, dryioc.Register[*testutil.CircularServiceA](c, testutil.NewCircularServiceA))
	require.NoError(t, dryioc.Register[*testutil.CircularServiceB](c, testutil.NewCircularServiceB))

	_, err := dryioc.Resolve[*testutil.CircularServiceA](c)
	testutil.AssertCircularDependency(t, err)
	assert.Contains(t, err.Error(), "CircularServiceB")
}

func TestWrappers_Meta(t *testing.T) {
	setup := func(t *testing.T) *dryioc.Container {
		c := testutil.NewContainer(t)
		registerHandler(t, c, "a", dryioc.WithKey("a"), dryioc.WithMetadata("meta-a"))
		registerHandler(t, c, "plain", dryioc.WithKey("plain"))
		registerHandler(t, c, "numbered", dryioc.WithKey("numbered"), dryioc.WithMetadata(7))
		registerHandler(t, c, "b", dryioc.WithKey("b"), dryioc.WithMetadata("meta-b"))
		return c
	}

	t.Run("collection filtered by metadata type", func(t *testing.T) {
		t.Parallel()

		c := setup(t)
		metas := testutil.AssertResolvable[[]dryioc.Meta[testutil.TestHandler, string]](t, c)
		require.Len(t, metas, 2)
		assert.Equal(t, "a", metas[0].Value.Handle())
		assert.Equal(t, "meta-a", metas[0].Metadata)
		assert.Equal(t, "meta-b", metas[1].Metadata)

		numbered := testutil.AssertResolvable[[]dryioc.Meta[testutil.TestHandler, int]](t, c)
		require.Len(t, numbered, 1)
		assert.Equal(t, 7, numbered[0].Metadata)
	})

	t.Run("single by key", func(t *testing.T) {
		t.Parallel()

		c := setup(t)
		m := testutil.AssertResolvable[dryioc.Meta[testutil.TestHandler, string]](t, c, dryioc.WithKey("b"))
		assert.Equal(t, "b", m.Value.Handle())
		assert.Equal(t, "meta-b", m.Metadata)
	})

	t.Run("no matching metadata", func(t *testing.T) {
		t.Parallel()

		c := setup(t)
		_, err := dryioc.Resolve[dryioc.Meta[testutil.TestHandler, string]](c, dryioc.WithKey("plain"))
		testutil.AssertErrorCode(t, err, dryioc.UnableToResolveUnknownService)
	})

	t.Run("meta of lazy", func(t *testing.T) {
		t.Parallel()

		c := setup(t)
		metas := testutil.AssertResolvable[[]dryioc.Meta[*dryioc.Lazy[testutil.TestHandler], string]](t, c)
		require.Len(t, metas, 2)
		assert.False(t, metas[0].Value.IsValueCreated())
		h, err := metas[0].Value.Value()
		require.NoError(t, err)
		assert.Equal(t, "a", h.Handle())
	})
}

func TestWrappers_KV(t *testing.T) {
	t.Parallel()

	c := testutil.NewContainer(t)
	registerHandler(t, c, "default")
	registerHandler(t, c, "a", dryioc.WithKey("a"))
	registerHandler(t, c, "one", dryioc.WithKey(1))
	registerHandler(t, c, "b", dryioc.WithKey("b"))

	pairs := testutil.AssertResolvable[[]dryioc.KV[string, testutil.TestHandler]](t, c)
	require.Len(t, pairs, 2)
	assert.Equal(t, "a", pairs[0].Key)
	assert.Equal(t, "a", pairs[0].Value.Handle())
	assert.Equal(t, "b", pairs[1].Key)

	defaults := testutil.AssertResolvable[[]dryioc.KV[dryioc.DefaultKey, testutil.TestHandler]](t, c)
	require.Len(t, defaults, 1)
	assert.Equal(t, dryioc.DefaultKey(0), defaults[0].Key)

	all := testutil.AssertResolvable[[]dryioc.KV[any, testutil.TestHandler]](t, c)
	assert.Len(t, all, 4)
}

// Ref is a custom wrapper shape holding a resolved service.
type Ref[T any] struct {
	Value T
}

func (Ref[T]) refElem() reflect.Type { return reflect.TypeFor[T]() }

type refValue interface{ refElem() reflect.Type }

var refWrapper = dryioc.WrapperDefinition{
	Name: "ref",
	Unwrap: func(t reflect.Type) (reflect.Type, bool) {
		if t.Kind() != reflect.Struct || !t.Implements(reflect.TypeFor[refValue]()) {
			return nil, false
		}
		return reflect.Zero(t).Interface().(refValue).refElem(), true
	},
	Wrap: func(t reflect.Type, resolve func() (any, error)) (any, error) {
		v, err := resolve()
		if err != nil {
			return nil, err
		}
		ref := reflect.New(t).Elem()
		ref.Field(0).Set(reflect.ValueOf(v))
		return ref.Interface(), nil
	},
}

func TestWrappers_Custom(t *testing.T) {
	t.Run("resolves through the wrapper", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		registerHandler(t, c, "wrapped")
		require.NoError(t, c.RegisterWrapper(refWrapper))

		ref := testutil.AssertResolvable[Ref[testutil.TestHandler]](t, c)
		assert.Equal(t, "wrapped", ref.Value.Handle())

		refs := testutil.AssertResolvable[[]Ref[testutil.TestHandler]](t, c)
		assert.Len(t, refs, 1)
	})

	t.Run("duplicate name", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		require.NoError(t, c.RegisterWrapper(refWrapper))
		err := c.RegisterWrapper(refWrapper)
		testutil.AssertErrorCode(t, err, dryioc.UnableToRegisterDuplicateKey)
	})

	t.Run("unregister", func(t *testing.T) {
		t.Parallel()

		c := testutil.NewContainer(t)
		registerHandler(t, c, "wrapped")
		require.NoError(t, c.RegisterWrapper(refWrapper))
		testutil.AssertResolvable[Ref[testutil.TestHandler]](t, c)

		assert.True(t, c.UnregisterWrapper("ref"))
		assert.False(t, c.UnregisterWrapper("ref"))
		testutil.AssertUnresolved[Ref[testutil.TestHandler]](t, c)
	})

	t.Run("deferred wrapper breaks a cycle", func(t *testing.T) {
		t.Parallel()

		type node struct {
			Next func() (any, error)
		}

		deferred := dryioc.WrapperDefinition{
			Name: "thunk",
			Unwrap: func(t reflect.Type) (reflect.Type, bool) {
				if t != reflect.TypeFor[func() (any, error)]() {
					return nil, false
				}
				return reflect.TypeFor[*node](), true
			},
			Wrap: func(_ reflect.Type, resolve func() (any, error)) (any, error) {
				return resolve, nil
			},
			Deferred: true,
		}

		c := testutil.NewContainer(t)
		require.NoError(t, c.RegisterWrapper(deferred))
		require.NoError(t, dryioc.Register[*node](c, func(next func() (any, error)) *node {
			return &node{Next: next}
		}, dryioc.WithReuse(dryioc.Singleton)))

		n := testutil.AssertResolvable[*node](t, c)
		next, err := n.Next()
		require.NoError(t, err)
		testutil.AssertSameInstance(t, n, next)
	})
}
