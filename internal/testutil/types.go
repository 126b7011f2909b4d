package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Common test errors
var (
	ErrTest            = errors.New("test error")
	ErrConstructor     = errors.New("constructor error")
	ErrDisposal        = errors.New("disposal error")
	ErrAlreadyDisposed = errors.New("already disposed")
)

// TestService is a basic test service with a unique ID per instance.
type TestService struct {
	ID   string
	Data string
}

// NewTestService creates a new test service
func NewTestService() *TestService {
	return &TestService{ID: uuid.NewString(), Data: "test"}
}

// TestLogger is a test logger interface
type TestLogger interface {
	Log(msg string)
	GetLogs() []string
}

// TestLoggerImpl implements TestLogger
type TestLoggerImpl struct {
	logs []string
	mu   sync.Mutex
}

func NewTestLogger() TestLogger {
	return &TestLoggerImpl{}
}

func (l *TestLoggerImpl) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, msg)
}

func (l *TestLoggerImpl) GetLogs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make([]string, len(l.logs))
	copy(result, l.logs)
	return result
}

// TestDatabase is a test database interface
type TestDatabase interface {
	Query(sql string) string
	Close() error
}

// TestDatabaseImpl implements TestDatabase
type TestDatabaseImpl struct {
	name   string
	closed atomic.Bool
}

func NewTestDatabase() TestDatabase {
	return &TestDatabaseImpl{name: "testdb"}
}

func NewTestDatabaseNamed(name string) TestDatabase {
	return &TestDatabaseImpl{name: name}
}

func (d *TestDatabaseImpl) Query(sql string) string {
	return fmt.Sprintf("%s: %s", d.name, sql)
}

func (d *TestDatabaseImpl) Close() error {
	if d.closed.Swap(true) {
		return ErrAlreadyDisposed
	}
	return nil
}

func (d *TestDatabaseImpl) IsClosed() bool { return d.closed.Load() }

// TestHandler is a test handler interface
type TestHandler interface {
	Handle() string
}

// TestHandlerImpl implements TestHandler
type TestHandlerImpl struct {
	name string
}

func NewTestHandler(name string) TestHandler {
	return &TestHandlerImpl{name: name}
}

func (h *TestHandlerImpl) Handle() string {
	return h.name
}

// DecoratedHandler wraps another handler with a prefix
type DecoratedHandler struct {
	Inner  TestHandler
	Prefix string
}

func (d *DecoratedHandler) Handle() string {
	return d.Prefix + d.Inner.Handle()
}

// DisposalLog records the order in which disposables are closed.
type DisposalLog struct {
	mu     sync.Mutex
	closed []string
}

// Closed returns the names of the closed disposables in closing order.
func (l *DisposalLog) Closed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.closed...)
}

func (l *DisposalLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = append(l.closed, name)
}

// TestDisposable implements Disposable and records its disposal.
type TestDisposable struct {
	Name string
	Log  *DisposalLog
	Err  error

	disposed atomic.Bool
}

func NewTestDisposable(name string, log *DisposalLog) *TestDisposable {
	return &TestDisposable{Name: name, Log: log}
}

func (d *TestDisposable) Close() error {
	if d.disposed.Swap(true) {
		return ErrAlreadyDisposed
	}
	if d.Log != nil {
		d.Log.add(d.Name)
	}
	return d.Err
}

func (d *TestDisposable) IsDisposed() bool { return d.disposed.Load() }

// TestContextDisposable implements DisposableWithContext
type TestContextDisposable struct {
	ID string

	mu       sync.Mutex
	ctx      context.Context
	disposed bool
}

func NewTestContextDisposable() *TestContextDisposable {
	return &TestContextDisposable{ID: uuid.NewString()}
}

func (s *TestContextDisposable) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrAlreadyDisposed
	}
	s.ctx = ctx
	s.disposed = true
	return nil
}

func (s *TestContextDisposable) WasDisposedWithContext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

func (s *TestContextDisposable) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// CircularServiceA and CircularServiceB for testing circular dependencies
type CircularServiceA struct {
	B *CircularServiceB
}

type CircularServiceB struct {
	A *CircularServiceA
}

func NewCircularServiceA(b *CircularServiceB) *CircularServiceA {
	return &CircularServiceA{B: b}
}

func NewCircularServiceB(a *CircularServiceA) *CircularServiceB {
	return &CircularServiceB{A: a}
}

// CloserFunc is a helper type to wrap a function as a Disposable
type CloserFunc func() error

func (f CloserFunc) Close() error {
	return f()
}
