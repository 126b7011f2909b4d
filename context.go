package dryioc

import (
	"context"
	"errors"
)

type containerContextKey struct{}

// ContextWithContainer returns a copy of ctx carrying c.
func ContextWithContainer(ctx context.Context, c *Container) context.Context {
	return context.WithValue(ctx, containerContextKey{}, c)
}

// FromContext returns the container stored by ContextWithContainer.
func FromContext(ctx context.Context) (*Container, error) {
	if ctx == nil {
		return nil, errors.New("context is nil")
	}
	c, ok := ctx.Value(containerContextKey{}).(*Container)
	if !ok || c == nil {
		return nil, errors.New("context carries no container")
	}
	if err := c.checkDisposed(); err != nil {
		return nil, err
	}
	return c, nil
}
