package dryioc_test

import (
	"sync/atomic"

	"github.com/dadhi/dryioc"
	"github.com/dadhi/dryioc/internal/testutil"
)

// Shared service types for the package tests.

type Greeter struct {
	Name   string
	Logger testutil.TestLogger
}

func NewGreeter(name string, logger testutil.TestLogger) *Greeter {
	return &Greeter{Name: name, Logger: logger}
}

type Counter struct {
	created atomic.Int32
}

func (c *Counter) Inc() int32 { return c.created.Add(1) }

func (c *Counter) Count() int32 { return c.created.Load() }

type Repository struct {
	DB testutil.TestDatabase
}

func NewRepository(db testutil.TestDatabase) *Repository {
	return &Repository{DB: db}
}

type UserService struct {
	Repo   *Repository
	Logger testutil.TestLogger
}

func NewUserService(repo *Repository, logger testutil.TestLogger) *UserService {
	return &UserService{Repo: repo, Logger: logger}
}

// Struct registrations with injected fields.
type Controller struct {
	Users    *UserService         `inject:""`
	Admin    testutil.TestHandler `inject:"admin"`
	Optional *Repository          `inject:"" optional:"true"`
	Skipped  testutil.TestLogger
}

// Lazy cycle: each side holds the other without constructing it eagerly.
type LazyA struct {
	B *dryioc.Lazy[*LazyB]
}

type LazyB struct {
	A *LazyA
}

func NewLazyA(b *dryioc.Lazy[*LazyB]) *LazyA { return &LazyA{B: b} }

func NewLazyB(a *LazyA) *LazyB { return &LazyB{A: a} }

// Func cycle.
type Parent struct {
	NewChild func() (*Child, error)
}

type Child struct {
	Parent *Parent
}

func NewParent(newChild func() (*Child, error)) *Parent { return &Parent{NewChild: newChild} }

func NewChild(p *Parent) *Child { return &Child{Parent: p} }

// Generic services.
type Box[T any] struct {
	Value T
}

func NewIntBox() *Box[int] { return &Box[int]{Value: 42} }

func NewStringBox() *Box[string] { return &Box[string]{Value: "box"} }

type Store[T any] interface {
	Get() T
}

type memStore[T any] struct {
	value T
}

func (s *memStore[T]) Get() T { return s.value }

func NewMemStore[T any]() *memStore[T] { return &memStore[T]{} }
