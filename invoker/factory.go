package invoker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/glimte/relay-go/contracts"
)

// Factory supplies the bean instance that serves one exchange
type Factory interface {
	Create(ctx context.Context, ex *contracts.Exchange) (interface{}, error)
	Release(ex *contracts.Exchange, instance interface{})
}

// SingletonFactory serves every exchange with the same bean
type SingletonFactory struct {
	bean interface{}
}

// NewSingletonFactory creates a singleton factory
func NewSingletonFactory(bean interface{}) *SingletonFactory {
	return &SingletonFactory{bean: bean}
}

func (f *SingletonFactory) Create(ctx context.Context, ex *contracts.Exchange) (interface{}, error) {
	return f.bean, nil
}

func (f *SingletonFactory) Release(ex *contracts.Exchange, instance interface{}) {}

// PerRequestFactory creates a new bean for every exchange. A bean that
// implements io.Closer is closed on release.
type PerRequestFactory struct {
	newBean func(ctx context.Context) (interface{}, error)
}

// NewPerRequestFactory creates a per-request factory
func NewPerRequestFactory(newBean func(ctx context.Context) (interface{}, error)) *PerRequestFactory {
	return &PerRequestFactory{newBean: newBean}
}

func (f *PerRequestFactory) Create(ctx context.Context, ex *contracts.Exchange) (interface{}, error) {
	return f.newBean(ctx)
}

func (f *PerRequestFactory) Release(ex *contracts.Exchange, instance interface{}) {
	if closer, ok := instance.(io.Closer); ok {
		_ = closer.Close()
	}
}

// PooledFactory lends beans from a bounded pool. Create blocks while every
// bean is lent out.
type PooledFactory struct {
	newBean func() (interface{}, error)
	tokens  chan struct{}
	idle    chan interface{}
}

// NewPooledFactory creates a pool of at most size beans
func NewPooledFactory(size int, newBean func() (interface{}, error)) *PooledFactory {
	if size < 1 {
		size = 1
	}
	return &PooledFactory{
		newBean: newBean,
		tokens:  make(chan struct{}, size),
		idle:    make(chan interface{}, size),
	}
}

func (f *PooledFactory) Create(ctx context.Context, ex *contracts.Exchange) (interface{}, error) {
	select {
	case f.tokens <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case bean := <-f.idle:
		return bean, nil
	default:
	}

	bean, err := f.newBean()
	if err != nil {
		<-f.tokens
		return nil, err
	}
	return bean, nil
}

func (f *PooledFactory) Release(ex *contracts.Exchange, instance interface{}) {
	select {
	case f.idle <- instance:
	default:
	}
	<-f.tokens
}

// Idle returns the number of pooled beans not lent out
func (f *PooledFactory) Idle() int {
	return len(f.idle)
}

// BeanRegistry maps bean names to factories. It is filled at startup.
type BeanRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewBeanRegistry creates an empty bean registry
func NewBeanRegistry() *BeanRegistry {
	return &BeanRegistry{factories: make(map[string]Factory)}
}

// Register binds a name to a factory. Names are unique.
func (r *BeanRegistry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return contracts.NewConfigurationError("BeanRegistry", "Register", "bean name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return contracts.NewConfigurationError("BeanRegistry", "Register", fmt.Sprintf("bean %q already registered", name))
	}
	r.factories[name] = factory
	return nil
}

// Factory returns the factory registered under name
func (r *BeanRegistry) Factory(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, contracts.NewConfigurationError("BeanRegistry", "Factory", fmt.Sprintf("no bean named %q", name))
	}
	return f, nil
}

// Names returns the registered bean names, sorted
func (r *BeanRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
