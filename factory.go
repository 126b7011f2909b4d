package dryioc

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/dadhi/dryioc/internal/reflection"
)

// FactoryKind tells how a factory creates its instance.
type FactoryKind int

const (
	// ConstructorKind calls a constructor function, resolving its parameters.
	ConstructorKind FactoryKind = iota

	// StructKind allocates a struct and injects its selected fields.
	StructKind

	// DelegateKind calls a user delegate with a Resolver.
	DelegateKind

	// InstanceKind returns a pre-built instance.
	InstanceKind
)

func (k FactoryKind) String() string {
	switch k {
	case ConstructorKind:
		return "Constructor"
	case StructKind:
		return "Struct"
	case DelegateKind:
		return "Delegate"
	case InstanceKind:
		return "Instance"
	default:
		return fmt.Sprintf("FactoryKind(%d)", int(k))
	}
}

// Global atomic counter for factory IDs; IDs key the instances in scopes.
var factoryIDCounter atomic.Uint64

// derived IDs give decorator instances a slot per decorated factory.
var derivedIDs sync.Map // [2]uint64 -> uint64

func nextFactoryID() uint64 {
	return factoryIDCounter.Add(1)
}

func derivedID(a, b uint64) uint64 {
	key := [2]uint64{a, b}
	if id, ok := derivedIDs.Load(key); ok {
		return id.(uint64)
	}
	id, _ := derivedIDs.LoadOrStore(key, nextFactoryID())
	return id.(uint64)
}

// analyzer is shared by all containers; analysis depends only on types.
var analyzer = reflection.New()

// Factory describes how to create the instance of a registration. Factories are
// immutable once registered, and every factory has a unique ID.
type Factory struct {
	id       uint64
	kind     FactoryKind
	implType reflect.Type
	reuse    Reuse
	setup    Setup

	fn       reflect.Value
	ctor     *reflection.ConstructorInfo
	fields   []Field
	delegate func(r Resolver) (any, error)
	instance any

	// funcDecorator marks a func(T) T decorator applied before factory decorators.
	funcDecorator bool

	// generic is set on open-generic factories.
	generic *genericFamily
}

// Field is a struct field selected for injection.
type Field struct {
	Name     string
	Index    []int
	Type     reflect.Type
	Key      any
	Optional bool
}

// FieldSelector returns the fields of an implementation type to inject.
type FieldSelector func(implType reflect.Type) ([]Field, error)

// InjectTaggedFields selects the exported fields carrying an inject tag. It is the
// default for struct registrations.
func InjectTaggedFields(implType reflect.Type) ([]Field, error) {
	infos, err := analyzer.AnalyzeStruct(implType)
	if err != nil {
		return nil, err
	}
	return toFields(infos), nil
}

// AllExportedFields selects every exported field. Fields without a registration are
// left at their zero value.
func AllExportedFields(implType reflect.Type) ([]Field, error) {
	t := implType
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("implementation type must be a struct or a pointer to struct, got %v", implType)
	}
	return toFields(reflection.ExportedFields(implType)), nil
}

func toFields(infos []reflection.FieldInfo) []Field {
	fields := make([]Field, len(infos))
	for i, f := range infos {
		fields[i] = Field{Name: f.Name, Index: f.Index, Type: f.Type, Key: f.Key, Optional: f.Optional}
	}
	return fields
}

// NewConstructorFactory creates a factory calling fn, a function returning T or
// (T, error). Its parameters are resolved as dependencies; a single parameter struct
// embedding In has each exported field resolved instead.
func NewConstructorFactory(fn any, reuse Reuse, setup Setup) (*Factory, error) {
	info, err := analyzer.Analyze(fn)
	if err != nil {
		return nil, &ContainerError{Code: InvalidRegistration, Cause: err}
	}
	return &Factory{
		id:       nextFactoryID(),
		kind:     ConstructorKind,
		implType: info.Out,
		reuse:    reuse,
		setup:    setup,
		fn:       reflect.ValueOf(fn),
		ctor:     info,
	}, nil
}

// NewStructFactory creates a factory allocating implType, a struct or pointer to
// struct, and injecting the fields chosen by selector. A nil selector means
// InjectTaggedFields.
func NewStructFactory(implType reflect.Type, reuse Reuse, setup Setup, selector FieldSelector) (*Factory, error) {
	if implType == nil {
		return nil, &ContainerError{Code: InvalidRegistration, Detail: "implementation type is nil"}
	}
	if selector == nil {
		selector = InjectTaggedFields
	}
	fields, err := selector(implType)
	if err != nil {
		return nil, &ContainerError{Code: InvalidRegistration, ServiceType: implType, Cause: err}
	}
	return &Factory{
		id:       nextFactoryID(),
		kind:     StructKind,
		implType: implType,
		reuse:    reuse,
		setup:    setup,
		fields:   fields,
	}, nil
}

// NewDelegateFactory creates a factory calling fn for every instance. The produced
// value must be assignable to the service type it is resolved as.
func NewDelegateFactory(implType reflect.Type, fn func(r Resolver) (any, error), reuse Reuse, setup Setup) (*Factory, error) {
	if fn == nil {
		return nil, &ContainerError{Code: InvalidRegistration, ServiceType: implType, Detail: "delegate is nil"}
	}
	return &Factory{
		id:       nextFactoryID(),
		kind:     DelegateKind,
		implType: implType,
		reuse:    reuse,
		setup:    setup,
		delegate: fn,
	}, nil
}

// NewInstanceFactory creates a factory returning instance. With Setup.TrackDisposable
// the instance is disposed with the container.
func NewInstanceFactory(instance any, setup Setup) (*Factory, error) {
	if instance == nil {
		return nil, &ContainerError{Code: InvalidRegistration, Detail: "instance is nil"}
	}
	return &Factory{
		id:       nextFactoryID(),
		kind:     InstanceKind,
		implType: reflect.TypeOf(instance),
		reuse:    Singleton,
		setup:    setup,
		instance: instance,
	}, nil
}

// ID returns the unique ID of the factory.
func (f *Factory) ID() uint64 { return f.id }

// Kind returns how the factory creates its instance.
func (f *Factory) Kind() FactoryKind { return f.kind }

// ImplementationType returns the type of the produced instance when it is known
// statically.
func (f *Factory) ImplementationType() reflect.Type { return f.implType }

// Reuse returns the reuse of the factory, nil when the container default applies.
func (f *Factory) Reuse() Reuse { return f.reuse }

// Setup returns the registration settings of the factory.
func (f *Factory) Setup() Setup { return f.setup }

// Metadata returns Setup().Metadata.
func (f *Factory) Metadata() any { return f.setup.Metadata }

// IsOpenGeneric reports whether the factory is a family of generic instantiations.
func (f *Factory) IsOpenGeneric() bool { return f.generic != nil }

func (f *Factory) String() string {
	s := fmt.Sprintf("%s factory #%d", f.kind, f.id)
	if f.implType != nil {
		s += " of " + formatType(f.implType)
	}
	if f.reuse != nil {
		s += " (" + f.reuse.String() + ")"
	}
	return s
}

func (f *Factory) effectiveReuse(rules *Rules) Reuse {
	if f.reuse != nil {
		return f.reuse
	}
	if rules.defaultReuse != nil {
		return rules.defaultReuse
	}
	return Transient
}

// canProduce reports whether the factory's instances are statically assignable to t.
// Delegates are checked when they run.
func (f *Factory) canProduce(t reflect.Type) bool {
	if f.kind == DelegateKind || f.implType == nil {
		return true
	}
	return f.implType.AssignableTo(t)
}
