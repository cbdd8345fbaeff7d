package binding

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/relay-go/databinding"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/service"
)

// JSONBindingID identifies the JSON envelope binding
const JSONBindingID = "json"

// ErrUnknownBinding is returned for a binding id with no registered factory
var ErrUnknownBinding = errors.New("binding: unknown binding id")

// Binding is a wire format applied to one BindingInfo. It contributes the
// interceptors that read and write that format.
type Binding interface {
	interceptors.Provider
	Info() *service.BindingInfo
}

// Factory creates bindings of one kind
type Factory interface {
	BindingID() string
	Create(info *service.BindingInfo) (Binding, error)
}

// JSONBindingFactory creates JSON envelope bindings
type JSONBindingFactory struct {
	types  *databinding.TypeRegistry
	logger *slog.Logger
}

// NewJSONBindingFactory creates the JSON envelope binding factory
func NewJSONBindingFactory(types *databinding.TypeRegistry, logger *slog.Logger) *JSONBindingFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONBindingFactory{types: types, logger: logger}
}

// BindingID implements Factory
func (f *JSONBindingFactory) BindingID() string {
	return JSONBindingID
}

// Create implements Factory
func (f *JSONBindingFactory) Create(info *service.BindingInfo) (Binding, error) {
	if info == nil {
		return nil, fmt.Errorf("binding: info cannot be nil")
	}

	b := &jsonBinding{info: info}
	envelopeOut := NewEnvelopeOutInterceptor()

	b.AddIn(NewEnvelopeInInterceptor(f.logger), NewOperationInInterceptor(info), NewFaultInInterceptor(f.types, f.logger))
	b.AddOut(envelopeOut)
	b.AddOutFault(envelopeOut, NewFaultOutInterceptor())
	return b, nil
}

type jsonBinding struct {
	interceptors.Providers
	info *service.BindingInfo
}

func (b *jsonBinding) Info() *service.BindingInfo {
	return b.info
}

// Registry holds binding factories keyed by binding id
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry holding the given factories
func NewRegistry(factories ...Factory) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for _, f := range factories {
		r.factories[f.BindingID()] = f
	}
	return r
}

// Register adds a factory, replacing any factory with the same id
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.BindingID()] = f
}

// Get returns the factory for a binding id
func (r *Registry) Get(bindingID string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[bindingID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBinding, bindingID)
	}
	return f, nil
}

// Create looks up the factory for info.BindingID and applies it
func (r *Registry) Create(info *service.BindingInfo) (Binding, error) {
	f, err := r.Get(info.BindingID)
	if err != nil {
		return nil, err
	}
	return f.Create(info)
}
