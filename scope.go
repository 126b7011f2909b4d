package dryioc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/petermattis/goid"
)

// Scope is a disposable instance store. Reused services live in exactly one scope:
// singletons in the container's root scope, scoped services in the scope opened for
// them. Each factory's instance is created at most once per scope, even when many
// goroutines ask for it concurrently, and is disposed together with the scope in the
// reverse order of creation.
type Scope struct {
	id     string
	name   any
	parent *Scope
	ctx    context.Context

	mu          sync.Mutex
	items       map[uint64]*scopeItem
	disposables []any
	disposed    atomic.Bool

	// onFirstDisposable runs once, when the scope starts holding a disposable.
	onFirstDisposable func()
}

type scopeItem struct {
	done  chan struct{}
	value any
	err   error
	owner int64
}

// NewScope creates a scope with an optional parent and name. The parent is only used
// for lookups by name; instances are never shared between a scope and its parent.
func NewScope(ctx context.Context, parent *Scope, name any) *Scope {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Scope{
		id:     uuid.NewString(),
		name:   name,
		parent: parent,
		items:  make(map[uint64]*scopeItem),
	}
	s.ctx = contextWithScope(ctx, s)
	return s
}

// ID returns the unique ID of the scope.
func (s *Scope) ID() string { return s.id }

// Name returns the name the scope was opened with, nil for anonymous scopes.
func (s *Scope) Name() any { return s.name }

// Parent returns the enclosing scope, nil for top-level scopes.
func (s *Scope) Parent() *Scope { return s.parent }

// Context returns the context of the scope. ScopeFromContext recovers the scope from it.
func (s *Scope) Context() context.Context { return s.ctx }

// IsDisposed reports whether Close has been called.
func (s *Scope) IsDisposed() bool { return s.disposed.Load() }

// Len returns the number of instances stored in the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// FindByName returns the nearest scope, starting at s, whose name equals name.
func (s *Scope) FindByName(name any) *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur
		}
	}
	return nil
}

func (s *Scope) String() string {
	if s.name != nil {
		return fmt.Sprintf("scope %v (%s)", s.name, s.id)
	}
	return "scope " + s.id
}

// GetOrAdd returns the instance stored under id, calling create if there is none.
// Concurrent callers for the same id wait for the first creation and share its result.
// A failed creation is not stored, so a later call retries. Asking for an id whose
// creation is in progress on the same goroutine is a recursive dependency.
func (s *Scope) GetOrAdd(id uint64, create func() (any, error)) (any, error) {
	if s.disposed.Load() {
		return nil, s.disposedError()
	}

	me := goid.Get()

	s.mu.Lock()
	if s.items == nil {
		s.mu.Unlock()
		return nil, s.disposedError()
	}
	if item, ok := s.items[id]; ok {
		s.mu.Unlock()
		select {
		case <-item.done:
		default:
			if item.owner == me {
				return nil, &ContainerError{
					Code:   RecursiveDependencyDetected,
					Detail: fmt.Sprintf("instance #%d is requested while being created in %s", id, s),
				}
			}
			<-item.done
		}
		return item.value, item.err
	}
	item := &scopeItem{done: make(chan struct{}), owner: me}
	s.items[id] = item
	s.mu.Unlock()

	completed := false
	defer func() {
		if !completed {
			s.mu.Lock()
			if s.items != nil {
				delete(s.items, id)
			}
			s.mu.Unlock()
			item.err = fmt.Errorf("creation of instance #%d in %s did not complete", id, s)
			close(item.done)
		}
	}()

	value, err := create()
	completed = true

	var hook func()
	s.mu.Lock()
	switch {
	case err != nil:
		if s.items != nil {
			delete(s.items, id)
		}
	case s.items == nil:
		// Closed while the instance was being created.
		err = s.disposedError()
		if isDisposable(value) {
			_ = dispose(s.ctx, value)
		}
		value = nil
	case isDisposable(value):
		hook = s.appendDisposable(value)
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	item.value, item.err = value, err
	close(item.done)
	return value, err
}

// TrackDisposable registers an instance created outside of GetOrAdd for disposal with
// the scope. An instance tracked after the scope is closed is disposed right away.
func (s *Scope) TrackDisposable(instance any) {
	if !isDisposable(instance) {
		return
	}
	s.mu.Lock()
	if s.items == nil {
		s.mu.Unlock()
		_ = dispose(s.ctx, instance)
		return
	}
	hook := s.appendDisposable(instance)
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// appendDisposable tracks instance and returns the first-disposable hook when it is
// due. The caller holds s.mu and runs the hook after unlocking.
func (s *Scope) appendDisposable(instance any) func() {
	s.disposables = append(s.disposables, instance)
	hook := s.onFirstDisposable
	s.onFirstDisposable = nil
	return hook
}

// Close disposes the tracked instances in reverse order of creation. Every instance is
// closed even when some fail; the failures are returned together as a DisposalError.
// Closing a closed scope does nothing.
func (s *Scope) Close() error {
	if !s.disposed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	toDispose := s.disposables
	s.disposables = nil
	s.items = nil
	s.mu.Unlock()

	var errs []error
	for i := len(toDispose) - 1; i >= 0; i-- {
		if err := dispose(s.ctx, toDispose[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return DisposalError{Context: "scope", Errors: errs}
	}
	return nil
}

func (s *Scope) disposedError() error {
	return &ContainerError{Code: ScopeIsDisposed, Detail: s.String()}
}

type scopeContextKey struct{}

func contextWithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// ScopeFromContext returns the scope whose Context is ctx or an ancestor of it.
func ScopeFromContext(ctx context.Context) (*Scope, error) {
	if ctx == nil {
		return nil, errors.New("context is nil")
	}
	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	if !ok || s == nil {
		return nil, &ContainerError{Code: NoCurrentScope, Detail: "context carries no scope"}
	}
	if s.IsDisposed() {
		return nil, s.disposedError()
	}
	return s, nil
}
