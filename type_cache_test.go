package dryioc

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair[K comparable, V any] struct {
	Key   K
	Value V
}

type list[T any] []T

func TestTypeCache_GenericInfo(t *testing.T) {
	t.Run("non-generic", func(t *testing.T) {
		t.Parallel()

		info := globalTypeCache.getTypeInfo(reflect.TypeFor[*Container]())
		assert.False(t, info.IsGeneric())
		assert.Empty(t, info.TypeArgs)
		assert.Equal(t, "*Container", info.FormattedName)
	})

	t.Run("pointer to generic", func(t *testing.T) {
		t.Parallel()

		info := globalTypeCache.getTypeInfo(reflect.TypeFor[*pair[string, int]]())
		require.True(t, info.IsGeneric())
		assert.Equal(t, "*github.com/dadhi/dryioc.pair", info.GenericOrigin)
		assert.Equal(t, []string{"string", "int"}, info.TypeArgs)
	})

	t.Run("nested arguments", func(t *testing.T) {
		t.Parallel()

		info := globalTypeCache.getTypeInfo(reflect.TypeFor[pair[string, list[int]]]())
		require.Len(t, info.TypeArgs, 2)
		assert.Equal(t, "string", info.TypeArgs[0])
		assert.Equal(t, 1, info.argCounts["int"])
	})

	t.Run("same origin for every instantiation", func(t *testing.T) {
		t.Parallel()

		a := globalTypeCache.getTypeInfo(reflect.TypeFor[list[int]]())
		b := globalTypeCache.getTypeInfo(reflect.TypeFor[list[string]]())
		assert.Equal(t, a.GenericOrigin, b.GenericOrigin)
		assert.NotEqual(t, globalTypeCache.getTypeInfo(reflect.TypeFor[*list[int]]()).GenericOrigin, a.GenericOrigin)
	})

	t.Run("nil type", func(t *testing.T) {
		t.Parallel()

		assert.Nil(t, globalTypeCache.getTypeInfo(nil))
	})
}

func TestTypeCache_ArgsWithin(t *testing.T) {
	t.Parallel()

	info := func(t reflect.Type) *typeInfo { return globalTypeCache.getTypeInfo(t) }

	ints := info(reflect.TypeFor[list[int]]())
	assert.True(t, ints.argsWithin(info(reflect.TypeFor[pair[string, int]]())))
	assert.True(t, ints.argsWithin(info(reflect.TypeFor[pair[string, list[int]]]())), "nested arguments count")
	assert.False(t, ints.argsWithin(info(reflect.TypeFor[pair[string, bool]]())))

	twoInts := info(reflect.TypeFor[pair[int, int]]())
	assert.False(t, twoInts.argsWithin(ints), "multiplicity matters")
	assert.False(t, ints.argsWithin(info(reflect.TypeFor[string]())))
}

func TestSplitTypeArgs(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"int":                        {"int"},
		"string,int":                 {"string", "int"},
		"main.pair[string,int],bool": {"main.pair[string,int]", "bool"},
		"map[string]int, []uint8":    {"map[string]int", "[]uint8"},
		"":                           nil,
	}
	for in, want := range cases {
		assert.Equal(t, want, splitTypeArgs(in), in)
	}
}

func TestTypeCache_Concurrent(t *testing.T) {
	t.Parallel()

	tc := &typeCache{}
	typ := reflect.TypeFor[pair[string, int]]()

	var wg sync.WaitGroup
	results := make([]*typeInfo, 32)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = tc.getTypeInfo(typ)
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}
