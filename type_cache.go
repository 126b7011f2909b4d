package dryioc

import (
	"reflect"
	"strings"
	"sync"
)

// typeCache provides a thread-safe cache for reflection type information
// to avoid repeated parsing of the same types.
type typeCache struct {
	cache sync.Map // map[reflect.Type]*typeInfo
}

// typeInfo holds pre-computed information about a type.
type typeInfo struct {
	Type reflect.Type

	// GenericOrigin identifies the generic declaration of an instantiated type, like
	// "*example.com/repo.Repo" for *Repo[User]. Empty for non-generic types.
	GenericOrigin string

	// TypeArgs are the top-level type arguments as printed by reflect.
	TypeArgs []string

	// argCounts counts the type arguments at every nesting level.
	argCounts map[string]int

	FormattedName string
}

// globalTypeCache is the singleton type cache used throughout the library.
var globalTypeCache = &typeCache{}

func (tc *typeCache) getTypeInfo(t reflect.Type) *typeInfo {
	if t == nil {
		return nil
	}
	if cached, ok := tc.cache.Load(t); ok {
		return cached.(*typeInfo)
	}

	info := &typeInfo{Type: t, FormattedName: formatType(t)}
	info.GenericOrigin, info.TypeArgs = parseGeneric(t)
	if info.GenericOrigin != "" {
		info.argCounts = make(map[string]int)
		for _, arg := range info.TypeArgs {
			countArgs(arg, info.argCounts)
		}
	}

	actual, _ := tc.cache.LoadOrStore(t, info)
	return actual.(*typeInfo)
}

// IsGeneric reports whether the type is a generic instantiation.
func (ti *typeInfo) IsGeneric() bool {
	return ti.GenericOrigin != ""
}

// argsWithin reports whether every type argument of ti, counted with multiplicity,
// occurs among the type arguments of other at any nesting level.
func (ti *typeInfo) argsWithin(other *typeInfo) bool {
	if !ti.IsGeneric() || !other.IsGeneric() {
		return false
	}
	need := make(map[string]int, len(ti.TypeArgs))
	for _, arg := range ti.TypeArgs {
		need[arg]++
	}
	for arg, n := range need {
		if other.argCounts[arg] < n {
			return false
		}
	}
	return true
}

// parseGeneric splits the name of an instantiated generic type into its origin and
// type arguments. Pointer types keep a "*" per indirection in the origin.
func parseGeneric(t reflect.Type) (string, []string) {
	prefix := ""
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		prefix += "*"
		t = t.Elem()
	}

	name := t.Name()
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return "", nil
	}

	origin := prefix + t.PkgPath() + "." + name[:open]
	return origin, splitTypeArgs(name[open+1 : len(name)-1])
}

// splitTypeArgs splits a type argument list at top-level commas.
func splitTypeArgs(list string) []string {
	var args []string
	depth, start := 0, 0
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(list[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(list[start:]); rest != "" {
		args = append(args, rest)
	}
	return args
}

func countArgs(arg string, counts map[string]int) {
	counts[arg]++
	open := strings.IndexByte(arg, '[')
	if open < 0 || !strings.HasSuffix(arg, "]") {
		return
	}
	for _, nested := range splitTypeArgs(arg[open+1 : len(arg)-1]) {
		countArgs(nested, counts)
	}
}
