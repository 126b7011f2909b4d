package dryioc

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reuse decides where the instance of a factory is stored and therefore how long it
// lives. Transient reuse stores nothing: every resolution creates a new instance.
type Reuse interface {
	// Lifespan orders reuses by how long their instances live. A longer-lived service
	// must not capture a shorter-lived dependency.
	Lifespan() int

	// ScopeFor returns the scope that stores the instance, nil for no reuse.
	ScopeFor(access ScopeAccess) (*Scope, error)

	fmt.Stringer
}

// ScopeAccess exposes the scopes known to a running resolution.
type ScopeAccess interface {
	// RootScope is the container's singleton scope.
	RootScope() *Scope

	// CurrentScope is the scope the resolving container is bound to, nil when none.
	CurrentScope() *Scope

	// ResolutionScope is the scope of the current top-level resolution call, created on
	// first use.
	ResolutionScope() *Scope
}

// Lifespans of the built-in reuses.
const (
	TransientLifespan        = 0
	ResolutionScopedLifespan = 50
	ScopedLifespan           = 100
	SingletonLifespan        = 1000
)

var (
	// Transient creates a new instance on every resolution.
	Transient Reuse = transientReuse{}

	// Singleton stores one instance in the root scope of the container.
	Singleton Reuse = singletonReuse{}

	// Scoped stores one instance per current scope. Resolving without an open scope
	// fails with ErrNoCurrentScope.
	Scoped Reuse = scopedReuse{}

	// ScopedOrSingleton stores one instance per current scope, or in the root scope
	// when no scope is open.
	ScopedOrSingleton Reuse = scopedOrSingletonReuse{}

	// ResolutionScoped stores one instance per top-level resolution call.
	ResolutionScoped Reuse = resolutionScopedReuse{}
)

type transientReuse struct{}

func (transientReuse) Lifespan() int                        { return TransientLifespan }
func (transientReuse) ScopeFor(ScopeAccess) (*Scope, error) { return nil, nil }
func (transientReuse) String() string                       { return "Transient" }

type singletonReuse struct{}

func (singletonReuse) Lifespan() int { return SingletonLifespan }
func (singletonReuse) ScopeFor(a ScopeAccess) (*Scope, error) {
	return a.RootScope(), nil
}
func (singletonReuse) String() string { return "Singleton" }

type scopedReuse struct{}

func (scopedReuse) Lifespan() int { return ScopedLifespan }
func (scopedReuse) ScopeFor(a ScopeAccess) (*Scope, error) {
	if s := a.CurrentScope(); s != nil {
		return s, nil
	}
	return nil, &ContainerError{Code: NoCurrentScope, Detail: "open a scope to resolve scoped services"}
}
func (scopedReuse) String() string { return "Scoped" }

type scopedOrSingletonReuse struct{}

func (scopedOrSingletonReuse) Lifespan() int { return ScopedLifespan }
func (scopedOrSingletonReuse) ScopeFor(a ScopeAccess) (*Scope, error) {
	if s := a.CurrentScope(); s != nil {
		return s, nil
	}
	return a.RootScope(), nil
}
func (scopedOrSingletonReuse) String() string { return "ScopedOrSingleton" }

type resolutionScopedReuse struct{}

func (resolutionScopedReuse) Lifespan() int { return ResolutionScopedLifespan }
func (resolutionScopedReuse) ScopeFor(a ScopeAccess) (*Scope, error) {
	return a.ResolutionScope(), nil
}
func (resolutionScopedReuse) String() string { return "ResolutionScoped" }

// ScopedTo stores one instance per nearest open scope with the given name, searching
// from the current scope outwards.
func ScopedTo(name any) Reuse {
	return scopedToReuse{name: name}
}

type scopedToReuse struct {
	name any
}

func (r scopedToReuse) Lifespan() int { return ScopedLifespan }

func (r scopedToReuse) ScopeFor(a ScopeAccess) (*Scope, error) {
	current := a.CurrentScope()
	if current == nil {
		return nil, &ContainerError{Code: NoCurrentScope, Detail: fmt.Sprintf("open a scope named %v", r.name)}
	}
	if s := current.FindByName(r.name); s != nil {
		return s, nil
	}
	return nil, &ContainerError{
		Code:   NoMatchedScopeFound,
		Detail: fmt.Sprintf("no scope named %v around %s", r.name, current),
	}
}

func (r scopedToReuse) String() string {
	return fmt.Sprintf("ScopedTo(%v)", r.name)
}

// ParseReuse parses the text form of a reuse: transient, singleton, scoped,
// scopedOrSingleton, resolutionScoped or scopedTo:<name>. Matching is case-insensitive.
func ParseReuse(text string) (Reuse, error) {
	s := strings.TrimSpace(text)
	if name, ok := cutPrefixFold(s, "scopedTo:"); ok {
		return ScopedTo(name), nil
	}
	switch strings.ToLower(s) {
	case "transient":
		return Transient, nil
	case "singleton":
		return Singleton, nil
	case "scoped":
		return Scoped, nil
	case "scopedorsingleton":
		return ScopedOrSingleton, nil
	case "resolutionscoped":
		return ResolutionScoped, nil
	}
	return nil, fmt.Errorf("invalid reuse %q", text)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// ReuseValue adapts a Reuse to text, JSON and YAML encoding.
type ReuseValue struct {
	Reuse
}

// MarshalText implements encoding.TextMarshaler.
func (r ReuseValue) MarshalText() ([]byte, error) {
	if r.Reuse == nil {
		return []byte(Transient.String()), nil
	}
	if s, ok := r.Reuse.(scopedToReuse); ok {
		return []byte(fmt.Sprintf("scopedTo:%v", s.name)), nil
	}
	return []byte(r.Reuse.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ReuseValue) UnmarshalText(text []byte) error {
	reuse, err := ParseReuse(string(text))
	if err != nil {
		return err
	}
	r.Reuse = reuse
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r ReuseValue) MarshalJSON() ([]byte, error) {
	text, _ := r.MarshalText()
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ReuseValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return r.UnmarshalText([]byte(s))
}
