package expr_test

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/dadhi/dryioc/internal/expr"
)

type greeter interface{ Greet() string }

type english struct{ name string }

func (e *english) Greet() string { return "hello " + e.name }

type holder struct {
	G     greeter
	Count int
}

func newEnglish(name string) *english { return &english{name: name} }

func failing() (*english, error) { return nil, errors.New("boom") }

func panicking() *english { panic("bad constructor") }

var (
	greeterType = reflect.TypeFor[greeter]()
	stringType  = reflect.TypeFor[string]()
)

func eval(t *testing.T, x expr.Expr) reflect.Value {
	t.Helper()
	v, err := expr.Compile(x)(&expr.Env{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return v
}

func TestCall_ConvertsResultToPlannedType(t *testing.T) {
	call := &expr.Call{
		Fn:   reflect.ValueOf(newEnglish),
		Args: []expr.Expr{expr.Const("bob", stringType)},
		T:    greeterType,
	}

	v := eval(t, call)
	if v.Type() != greeterType {
		t.Fatalf("expected %v, got %v", greeterType, v.Type())
	}
	if got := v.Interface().(greeter).Greet(); got != "hello bob" {
		t.Errorf("unexpected greeting %q", got)
	}
}

func TestCall_ReturnsConstructorError(t *testing.T) {
	call := &expr.Call{Fn: reflect.ValueOf(failing), T: greeterType}
	_, err := call.Compile()(&expr.Env{})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestCall_RecoversPanic(t *testing.T) {
	call := &expr.Call{Fn: reflect.ValueOf(panicking), Name: "panicking", T: greeterType}
	_, err := call.Compile()(&expr.Env{})

	var pe expr.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Panic != "bad constructor" || len(pe.Stack) == 0 {
		t.Errorf("unexpected panic error %+v", pe)
	}
}

func TestNewStruct_SetsFields(t *testing.T) {
	x := &expr.NewStruct{
		T: reflect.TypeFor[*holder](),
		Fields: []expr.FieldInit{
			{Index: []int{0}, Name: "G", X: expr.Const(&english{name: "ann"}, greeterType)},
			{Index: []int{1}, Name: "Count", X: expr.Const(3, reflect.TypeFor[int]())},
		},
	}

	h := eval(t, x).Interface().(*holder)
	if h.G.Greet() != "hello ann" || h.Count != 3 {
		t.Errorf("unexpected struct %+v", h)
	}
}

func TestSlice_PreservesOrder(t *testing.T) {
	x := &expr.Slice{
		T: reflect.TypeFor[[]greeter](),
		Items: []expr.Expr{
			expr.Const(&english{name: "1"}, greeterType),
			expr.Const(&english{name: "2"}, greeterType),
		},
	}

	items := eval(t, x).Interface().([]greeter)
	if len(items) != 2 || items[0].Greet() != "hello 1" || items[1].Greet() != "hello 2" {
		t.Errorf("unexpected items %v", items)
	}
}

func TestMakeFunc_PassesArguments(t *testing.T) {
	fnType := reflect.TypeFor[func(string) greeter]()
	x := &expr.MakeFunc{
		T: fnType,
		Body: &expr.Call{
			Fn:   reflect.ValueOf(newEnglish),
			Args: []expr.Expr{&expr.Param{Index: 0, T: stringType}},
			T:    greeterType,
		},
	}

	fn := eval(t, x).Interface().(func(string) greeter)
	if got := fn("eve").Greet(); got != "hello eve" {
		t.Errorf("unexpected greeting %q", got)
	}
}

func TestMakeFunc_ReturnsBodyError(t *testing.T) {
	x := &expr.MakeFunc{
		T:    reflect.TypeFor[func() (greeter, error)](),
		Body: &expr.Call{Fn: reflect.ValueOf(failing), T: greeterType},
	}

	fn := eval(t, x).Interface().(func() (greeter, error))
	if _, err := fn(); err == nil {
		t.Fatal("expected error from func wrapper")
	}
}

type countingStore struct {
	mu        sync.Mutex
	items     map[uint64]any
	tracked   []any
	creations int
}

func (s *countingStore) GetOrAdd(id uint64, create func() (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.items[id]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return nil, err
	}
	s.creations++
	s.items[id] = v
	return v, nil
}

func (s *countingStore) TrackDisposable(instance any) {
	s.tracked = append(s.tracked, instance)
}

func TestScoped_CreatesOncePerStore(t *testing.T) {
	store := &countingStore{items: map[uint64]any{}}
	x := &expr.Scoped{
		ID:     42,
		Locate: func(*expr.Env) (expr.Store, error) { return store, nil },
		Body: &expr.Call{
			Fn:   reflect.ValueOf(newEnglish),
			Args: []expr.Expr{expr.Const("x", stringType)},
			T:    greeterType,
		},
		T: greeterType,
	}

	fn := x.Compile()
	a, _ := fn(&expr.Env{})
	b, _ := fn(&expr.Env{})
	if a.Interface() != b.Interface() {
		t.Error("expected the same instance from the store")
	}
	if store.creations != 1 {
		t.Errorf("expected one creation, got %d", store.creations)
	}
}

func TestScoped_NilStoreMeansNoReuse(t *testing.T) {
	x := &expr.Scoped{
		ID:     1,
		Locate: func(*expr.Env) (expr.Store, error) { return nil, nil },
		Body:   &expr.Call{Fn: reflect.ValueOf(newEnglish), Args: []expr.Expr{expr.Const("x", stringType)}, T: greeterType},
		T:      greeterType,
	}

	fn := x.Compile()
	a, _ := fn(&expr.Env{})
	b, _ := fn(&expr.Env{})
	if a.Interface() == b.Interface() {
		t.Error("expected distinct instances without a store")
	}
}

func TestTracked_RegistersInstance(t *testing.T) {
	store := &countingStore{items: map[uint64]any{}}
	x := &expr.Tracked{
		X:      expr.Const(&english{name: "t"}, greeterType),
		Locate: func(*expr.Env) (expr.Store, error) { return store, nil },
	}

	eval(t, x)
	if len(store.tracked) != 1 {
		t.Errorf("expected one tracked instance, got %d", len(store.tracked))
	}
}

func TestAssign_NilInterfaceYieldsZero(t *testing.T) {
	var g greeter
	v, err := expr.Assign(reflect.ValueOf(&g).Elem(), reflect.TypeFor[*english]())
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsNil() {
		t.Error("expected nil pointer")
	}

	if _, err := expr.Assign(reflect.ValueOf(1), stringType); err == nil {
		t.Error("expected type mismatch")
	}
}
