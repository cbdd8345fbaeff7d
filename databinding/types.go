package databinding

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// TypeRegistry maps type names used in service contracts to Go types
type TypeRegistry struct {
	types map[string]reflect.Type
	names map[reflect.Type]string
	mu    sync.RWMutex
}

// NewTypeRegistry creates a new type registry
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]reflect.Type),
		names: make(map[reflect.Type]string),
	}
}

// Register registers a type under a name. msgType may be a value or a pointer.
func (r *TypeRegistry) Register(typeName string, msgType interface{}) error {
	if msgType == nil {
		return fmt.Errorf("message type cannot be nil")
	}
	return r.RegisterReflect(typeName, reflect.TypeOf(msgType))
}

// RegisterReflect registers a reflected type under a name
func (r *TypeRegistry) RegisterReflect(typeName string, t reflect.Type) error {
	if typeName == "" {
		return fmt.Errorf("type name cannot be empty")
	}
	if t == nil {
		return fmt.Errorf("message type cannot be nil")
	}

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("message type must be a struct, got %v", t.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.types[typeName]; exists {
		if existing == t {
			return nil
		}
		return fmt.Errorf("type name %s already registered to %v", typeName, existing)
	}

	r.types[typeName] = t
	r.names[t] = typeName
	return nil
}

// RegisterType registers a type under its package-qualified struct name
func (r *TypeRegistry) RegisterType(msgType interface{}) error {
	if msgType == nil {
		return fmt.Errorf("message type cannot be nil")
	}
	t := reflect.TypeOf(msgType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return r.RegisterReflect(QualifiedName(t), t)
}

// QualifiedName returns the package path and name of a type
func QualifiedName(t reflect.Type) string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// Get retrieves the type registered under a name
func (r *TypeRegistry) Get(typeName string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.types[typeName]
	if !exists {
		return nil, fmt.Errorf("type %s not registered", typeName)
	}
	return t, nil
}

// CreateInstance returns a pointer to a new zero value of the registered type
func (r *TypeRegistry) CreateInstance(typeName string) (interface{}, error) {
	t, err := r.Get(typeName)
	if err != nil {
		return nil, err
	}
	return reflect.New(t).Interface(), nil
}

// TypeName returns the name a value's type is registered under
func (r *TypeRegistry) TypeName(value interface{}) (string, error) {
	if value == nil {
		return "", fmt.Errorf("value cannot be nil")
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, exists := r.names[t]
	if !exists {
		return "", fmt.Errorf("type %v not registered", t)
	}
	return name, nil
}

// IsRegistered checks if a name is registered
func (r *TypeRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.types[typeName]
	return exists
}

// ListTypes returns all registered names, sorted
func (r *TypeRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for typeName := range r.types {
		types = append(types, typeName)
	}
	sort.Strings(types)
	return types
}
