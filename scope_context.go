package dryioc

import (
	"sync"

	"github.com/petermattis/goid"
)

// ScopeContext holds the ambient current scope for containers that are not bound to a
// scope themselves. A container created WithScopeContext publishes every scope it
// opens into the context, so code holding only the root container still resolves
// scoped services from the scope that is current for it.
type ScopeContext interface {
	// Current returns the ambient scope, nil when none is open.
	Current() *Scope

	// Use makes s the ambient scope and returns a function restoring the previous one.
	Use(s *Scope) (restore func())
}

// GoroutineScopeContext keeps one ambient scope per goroutine. A scope opened on one
// goroutine is invisible to others, which matches request-per-goroutine servers.
type GoroutineScopeContext struct {
	mu      sync.RWMutex
	current map[int64]*Scope
}

// NewGoroutineScopeContext creates an empty per-goroutine scope context.
func NewGoroutineScopeContext() *GoroutineScopeContext {
	return &GoroutineScopeContext{current: make(map[int64]*Scope)}
}

func (g *GoroutineScopeContext) Current() *Scope {
	id := goid.Get()
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current[id]
}

func (g *GoroutineScopeContext) Use(s *Scope) func() {
	id := goid.Get()

	g.mu.Lock()
	prev, had := g.current[id]
	g.current[id] = s
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if had {
			g.current[id] = prev
		} else {
			delete(g.current, id)
		}
	}
}

// Len returns the number of goroutines with an ambient scope.
func (g *GoroutineScopeContext) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.current)
}
