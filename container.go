package dryioc

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Container registers and resolves services.
//
// The root container owns the singleton scope. OpenScope returns a scoped container
// that shares the registrations of its parent and owns a scope of its own; closing it
// disposes the scoped services created through it. A Container is safe for concurrent
// use: registrations are published atomically and never block resolution.
type Container struct {
	id    string
	reg   *atomic.Pointer[registry]
	rules *Rules

	root     *Scope
	scope    *Scope
	scopeCtx ScopeContext
	restore  func()

	parent *Container
	closed atomic.Bool
}

// Option configures a new Container.
type Option func(*containerOptions)

type containerOptions struct {
	rules    *Rules
	scopeCtx ScopeContext
	logger   *zap.Logger
	ctx      context.Context
}

// WithRules sets the container rules. DefaultRules are used otherwise.
func WithRules(rules *Rules) Option {
	return func(o *containerOptions) {
		if rules != nil {
			o.rules = rules
		}
	}
}

// WithScopeContext makes the container track its open scopes in sc, so that the root
// container resolves scoped services from the scope that is current in sc.
func WithScopeContext(sc ScopeContext) Option {
	return func(o *containerOptions) {
		o.scopeCtx = sc
	}
}

// WithLogger sets the logger of the container rules.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithContext sets the context of the root scope. It is passed to disposables
// implementing DisposableWithContext.
func WithContext(ctx context.Context) Option {
	return func(o *containerOptions) {
		o.ctx = ctx
	}
}

// New creates an empty container.
func New(opts ...Option) *Container {
	o := containerOptions{rules: DefaultRules(), ctx: context.Background()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	rules := o.rules
	if o.logger != nil {
		rules = rules.WithLogger(o.logger)
	}

	c := &Container{
		id:       uuid.NewString(),
		reg:      new(atomic.Pointer[registry]),
		rules:    rules,
		scopeCtx: o.scopeCtx,
	}
	c.reg.Store(newRegistry())
	c.root = NewScope(o.ctx, nil, nil)

	rules.logger.Debug("container created", zap.String("container", c.id))
	return c
}

// ID returns the unique ID of the container.
func (c *Container) ID() string { return c.id }

// Rules returns the rules of the container.
func (c *Container) Rules() *Rules { return c.rules }

// RootScope returns the scope holding singletons.
func (c *Container) RootScope() *Scope { return c.root }

// CurrentScope returns the scope scoped services are resolved from: the scope of a
// scoped container, else the current scope of the scope context, else nil.
func (c *Container) CurrentScope() *Scope { return c.currentScope() }

// Parent returns the container the scope was opened from, nil for the root container.
func (c *Container) Parent() *Container { return c.parent }

// IsDisposed reports whether the container, or the root container it belongs to, is
// closed.
func (c *Container) IsDisposed() bool {
	return c.closed.Load() || c.root.IsDisposed()
}

func (c *Container) currentScope() *Scope {
	if c.scope != nil {
		return c.scope
	}
	if c.scopeCtx != nil {
		return c.scopeCtx.Current()
	}
	return nil
}

func (c *Container) checkDisposed() error {
	if c.root.IsDisposed() {
		return &ContainerError{Code: ContainerIsDisposed, Detail: c.String()}
	}
	if c.scope != nil && (c.closed.Load() || c.scope.IsDisposed()) {
		return c.scope.disposedError()
	}
	return nil
}

// OpenScope opens a scope nested in the current scope and returns a container bound to
// it. name identifies the scope for ScopedTo reuse; nil opens an anonymous scope.
func (c *Container) OpenScope(name any) (*Container, error) {
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}

	parent := c.currentScope()
	ctx := c.root.Context()
	if parent != nil {
		ctx = parent.Context()
	}

	s := NewScope(ctx, parent, name)
	scoped := &Container{
		id:       uuid.NewString(),
		reg:      c.reg,
		rules:    c.rules,
		root:     c.root,
		scope:    s,
		scopeCtx: c.scopeCtx,
		parent:   c,
	}
	if c.scopeCtx != nil {
		scoped.restore = c.scopeCtx.Use(s)
	}

	c.rules.logger.Debug("scope opened",
		zap.String("container", c.id),
		zap.String("scope", s.ID()),
		zap.Any("name", name))
	return scoped, nil
}

// Close disposes the scope of a scoped container, or every singleton and tracked
// instance of the root container. Closing twice does nothing.
func (c *Container) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if c.scope != nil {
		if c.restore != nil {
			c.restore()
		}
		c.rules.logger.Debug("scope closed", zap.String("scope", c.scope.ID()))
		return c.scope.Close()
	}

	c.rules.logger.Debug("container closed", zap.String("container", c.id))
	if err := c.root.Close(); err != nil {
		if de, ok := err.(DisposalError); ok {
			de.Context = "container"
			return de
		}
		return err
	}
	return nil
}

func (c *Container) String() string {
	if c.scope != nil {
		return fmt.Sprintf("container %s in %s", c.id, c.scope)
	}
	return "container " + c.id
}

var _ Resolver = (*Container)(nil)
