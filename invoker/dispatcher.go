package invoker

import (
	"reflect"
	"sort"
	"sync"
)

// MethodDispatcher maps operation names to methods of a bean type
type MethodDispatcher struct {
	beanType reflect.Type

	mu      sync.RWMutex
	methods map[string]reflect.Method
}

// NewMethodDispatcher creates a dispatcher for beans of beanType
func NewMethodDispatcher(beanType reflect.Type) *MethodDispatcher {
	return &MethodDispatcher{beanType: beanType, methods: make(map[string]reflect.Method)}
}

// BeanType returns the type of the beans the dispatcher calls into
func (d *MethodDispatcher) BeanType() reflect.Type {
	return d.beanType
}

// Bind maps an operation to a method
func (d *MethodDispatcher) Bind(operation string, method reflect.Method) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.methods[operation] = method
}

// Method returns the method bound to an operation
func (d *MethodDispatcher) Method(operation string) (reflect.Method, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.methods[operation]
	return m, ok
}

// Operations returns the bound operation names, sorted
func (d *MethodDispatcher) Operations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ops := make([]string, 0, len(d.methods))
	for op := range d.methods {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
