package reflection

import (
	"fmt"
	"reflect"
	"sync"
)

// In marks a parameter object: a constructor taking a single struct that embeds In
// receives each exported field as a separate dependency.
type In struct{}

var (
	inType  = reflect.TypeFor[In]()
	errType = reflect.TypeFor[error]()
)

// Analyzer performs reflection-based analysis of constructors and implementation types.
// Results depend only on the analyzed type, so they are cached per type.
type Analyzer struct {
	mu           sync.RWMutex
	constructors map[reflect.Type]*ConstructorInfo
	structs      map[reflect.Type][]FieldInfo
}

// ConstructorInfo contains analyzed information about a constructor function.
type ConstructorInfo struct {
	// Type is the function type.
	Type reflect.Type

	// Out is the produced type, the first result of the function.
	Out reflect.Type

	// HasErrorReturn is set when the function returns (T, error).
	HasErrorReturn bool

	// Parameters are the dependencies in invocation order.
	Parameters []ParameterInfo

	// ParamObject is the In struct type when the constructor takes a parameter object.
	ParamObject reflect.Type
}

// IsParamObject reports whether the constructor takes a parameter object.
func (c *ConstructorInfo) IsParamObject() bool {
	return c.ParamObject != nil
}

// ParameterInfo describes a constructor parameter or a field of an In struct.
type ParameterInfo struct {
	Type     reflect.Type
	Name     string // Field name for In structs
	Index    int    // Parameter position, or field position for In structs
	Key      any    // From name:"key" tag
	Optional bool   // From optional:"true" tag
}

// FieldInfo describes an injectable field of an implementation struct.
type FieldInfo struct {
	Name     string
	Type     reflect.Type
	Index    []int
	Key      any
	Optional bool
}

// TagInfo contains parsed struct tag information.
type TagInfo struct {
	Optional bool
	Name     string
	Inject   bool
	Ignore   bool
}

// New creates a new Analyzer.
func New() *Analyzer {
	return &Analyzer{
		constructors: make(map[reflect.Type]*ConstructorInfo),
		structs:      make(map[reflect.Type][]FieldInfo),
	}
}

// Analyze analyzes a constructor function and extracts dependency information.
func (a *Analyzer) Analyze(constructor any) (*ConstructorInfo, error) {
	if constructor == nil {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	val := reflect.ValueOf(constructor)
	if val.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %v", val.Type())
	}
	if val.IsNil() {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	return a.AnalyzeType(val.Type())
}

// AnalyzeType analyzes a function type.
func (a *Analyzer) AnalyzeType(fnType reflect.Type) (*ConstructorInfo, error) {
	a.mu.RLock()
	if cached, ok := a.constructors[fnType]; ok {
		a.mu.RUnlock()
		return cached, nil
	}
	a.mu.RUnlock()

	info := &ConstructorInfo{Type: fnType}

	if err := a.analyzeReturns(info); err != nil {
		return nil, fmt.Errorf("failed to analyze returns: %w", err)
	}

	if err := a.analyzeParameters(info); err != nil {
		return nil, fmt.Errorf("failed to analyze parameters: %w", err)
	}

	a.mu.Lock()
	a.constructors[fnType] = info
	a.mu.Unlock()

	return info, nil
}

// analyzeReturns accepts func(...) T and func(...) (T, error).
func (a *Analyzer) analyzeReturns(info *ConstructorInfo) error {
	fnType := info.Type

	switch fnType.NumOut() {
	case 1:
		if fnType.Out(0) == errType {
			return fmt.Errorf("constructor only returns error")
		}
	case 2:
		if fnType.Out(1) != errType {
			return fmt.Errorf("second result must be error, got %v", fnType.Out(1))
		}
		info.HasErrorReturn = true
	case 0:
		return fmt.Errorf("constructor has no return values")
	default:
		return fmt.Errorf("constructor must return T or (T, error), got %d results", fnType.NumOut())
	}

	info.Out = fnType.Out(0)
	return nil
}

// analyzeParameters analyzes function parameters or In struct fields.
func (a *Analyzer) analyzeParameters(info *ConstructorInfo) error {
	fnType := info.Type

	if fnType.NumIn() == 1 && !fnType.IsVariadic() {
		paramType := fnType.In(0)
		if HasEmbeddedIn(paramType) {
			return a.analyzeParamObject(info, paramType)
		}
	}

	info.Parameters = make([]ParameterInfo, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		info.Parameters[i] = ParameterInfo{
			Type:  fnType.In(i),
			Index: i,
		}
	}

	return nil
}

// analyzeParamObject analyzes an In struct's fields.
func (a *Analyzer) analyzeParamObject(info *ConstructorInfo, structType reflect.Type) error {
	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("In parameter must be a struct value, got %v", structType)
	}

	info.ParamObject = structType
	params := make([]ParameterInfo, 0, structType.NumField())

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)

		if field.Anonymous && field.Type == inType {
			continue
		}

		if !field.IsExported() {
			continue
		}

		tagInfo := ParseFieldTags(field.Tag)
		if tagInfo.Ignore {
			continue
		}

		param := ParameterInfo{
			Type:     field.Type,
			Name:     field.Name,
			Index:    i,
			Optional: tagInfo.Optional,
		}
		if tagInfo.Name != "" {
			param.Key = tagInfo.Name
		}

		params = append(params, param)
	}

	info.Parameters = params
	return nil
}

// AnalyzeStruct returns the fields of the struct behind implType that are selected for
// injection: exported fields carrying an inject tag. implType must be a struct or a
// pointer to a struct.
func (a *Analyzer) AnalyzeStruct(implType reflect.Type) ([]FieldInfo, error) {
	structType := implType
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("implementation type must be a struct or a pointer to struct, got %v", implType)
	}

	a.mu.RLock()
	if cached, ok := a.structs[structType]; ok {
		a.mu.RUnlock()
		return cached, nil
	}
	a.mu.RUnlock()

	fields := make([]FieldInfo, 0)
	for _, field := range reflect.VisibleFields(structType) {
		if !field.IsExported() || field.Anonymous {
			continue
		}

		tagInfo := ParseFieldTags(field.Tag)
		if !tagInfo.Inject || tagInfo.Ignore {
			continue
		}

		f := FieldInfo{
			Name:     field.Name,
			Type:     field.Type,
			Index:    field.Index,
			Optional: tagInfo.Optional,
		}
		if tagInfo.Name != "" {
			f.Key = tagInfo.Name
		}
		fields = append(fields, f)
	}

	a.mu.Lock()
	a.structs[structType] = fields
	a.mu.Unlock()

	return fields, nil
}

// ExportedFields returns every exported, non-embedded field of a struct type regardless
// of tags. It backs the "all fields" member selection strategy.
func ExportedFields(implType reflect.Type) []FieldInfo {
	structType := implType
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return nil
	}

	var fields []FieldInfo
	for _, field := range reflect.VisibleFields(structType) {
		if !field.IsExported() || field.Anonymous {
			continue
		}
		tagInfo := ParseFieldTags(field.Tag)
		if tagInfo.Ignore {
			continue
		}
		f := FieldInfo{Name: field.Name, Type: field.Type, Index: field.Index, Optional: true}
		if tagInfo.Name != "" {
			f.Key = tagInfo.Name
		}
		fields = append(fields, f)
	}
	return fields
}

// ParseFieldTags parses struct field tags for DI-specific annotations.
//
//	name:"key"        the dependency is resolved with the given service key
//	optional:"true"   an unresolved dependency is left at its zero value
//	inject:""         the field is injected (struct implementations only)
//	inject:"key"      the field is injected with the given service key
//	inject:"-"        the field is never injected
func ParseFieldTags(tag reflect.StructTag) TagInfo {
	info := TagInfo{}

	if val, ok := tag.Lookup("optional"); ok {
		info.Optional = val == "true"
	}

	if val, ok := tag.Lookup("name"); ok {
		info.Name = val
	}

	if val, ok := tag.Lookup("inject"); ok {
		if val == "-" {
			info.Ignore = true
		} else {
			info.Inject = true
			if val != "" && info.Name == "" {
				info.Name = val
			}
		}
	}

	return info
}

// Clear clears the analysis cache.
func (a *Analyzer) Clear() {
	a.mu.Lock()
	a.constructors = make(map[reflect.Type]*ConstructorInfo)
	a.structs = make(map[reflect.Type][]FieldInfo)
	a.mu.Unlock()
}

// CacheSize returns the number of cached analyses.
func (a *Analyzer) CacheSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.constructors) + len(a.structs)
}

// HasEmbeddedIn reports whether t is a struct embedding In.
func HasEmbeddedIn(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == inType {
			return true
		}
	}

	return false
}
