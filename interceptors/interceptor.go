package interceptors

import (
	"context"
	"fmt"

	"github.com/glimte/relay-go/contracts"
)

// Interceptor is a single unit of message processing
type Interceptor interface {
	// HandleMessage processes the message. Returning an error faults the chain.
	HandleMessage(ctx context.Context, msg *contracts.Message) error

	// HandleFault is called in reverse order on interceptors whose HandleMessage
	// completed when a later interceptor faults, so they can release what they hold
	HandleFault(ctx context.Context, msg *contracts.Message)
}

// PhaseInterceptor is an interceptor bound to a phase, with optional ordering
// constraints relative to other interceptors in the same phase
type PhaseInterceptor interface {
	Interceptor

	// ID identifies the interceptor within a chain
	ID() string

	// Phase returns the name of the phase the interceptor runs in
	Phase() string

	// Before lists ids this interceptor must run before
	Before() []string

	// After lists ids this interceptor must run after
	After() []string
}

// Base carries the phase binding of an interceptor. Embed it and implement
// HandleMessage; HandleFault defaults to a no-op.
type Base struct {
	id     string
	phase  string
	before []string
	after  []string
}

// NewBase creates a phase binding
func NewBase(id, phase string) Base {
	return Base{id: id, phase: phase}
}

// ID implements PhaseInterceptor
func (b *Base) ID() string { return b.id }

// Phase implements PhaseInterceptor
func (b *Base) Phase() string { return b.phase }

// Before implements PhaseInterceptor
func (b *Base) Before() []string { return b.before }

// After implements PhaseInterceptor
func (b *Base) After() []string { return b.after }

// AddBefore declares that the interceptor runs before the given ids
func (b *Base) AddBefore(ids ...string) {
	b.before = append(b.before, ids...)
}

// AddAfter declares that the interceptor runs after the given ids
func (b *Base) AddAfter(ids ...string) {
	b.after = append(b.after, ids...)
}

// HandleFault implements Interceptor
func (b *Base) HandleFault(ctx context.Context, msg *contracts.Message) {}

// InterceptorFunc is a function adapter for PhaseInterceptor
type InterceptorFunc struct {
	Base
	fn    func(ctx context.Context, msg *contracts.Message) error
	fault func(ctx context.Context, msg *contracts.Message)
}

// NewInterceptorFunc creates a new function-based interceptor
func NewInterceptorFunc(id, phase string, fn func(ctx context.Context, msg *contracts.Message) error) *InterceptorFunc {
	return &InterceptorFunc{Base: NewBase(id, phase), fn: fn}
}

// WithFaultHandler sets the function called from HandleFault
func (i *InterceptorFunc) WithFaultHandler(fn func(ctx context.Context, msg *contracts.Message)) *InterceptorFunc {
	i.fault = fn
	return i
}

// RunBefore declares ordering constraints and returns the interceptor
func (i *InterceptorFunc) RunBefore(ids ...string) *InterceptorFunc {
	i.AddBefore(ids...)
	return i
}

// RunAfter declares ordering constraints and returns the interceptor
func (i *InterceptorFunc) RunAfter(ids ...string) *InterceptorFunc {
	i.AddAfter(ids...)
	return i
}

// HandleMessage implements Interceptor
func (i *InterceptorFunc) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	return i.fn(ctx, msg)
}

// HandleFault implements Interceptor
func (i *InterceptorFunc) HandleFault(ctx context.Context, msg *contracts.Message) {
	if i.fault != nil {
		i.fault(ctx, msg)
	}
}

// boundInterceptor binds a plain Interceptor to a phase
type boundInterceptor struct {
	Interceptor
	id    string
	phase string
}

func (b *boundInterceptor) ID() string       { return b.id }
func (b *boundInterceptor) Phase() string    { return b.phase }
func (b *boundInterceptor) Before() []string { return nil }
func (b *boundInterceptor) After() []string  { return nil }

// Bind attaches a plain interceptor to a phase. The id is taken from a Name()
// method when present, otherwise from the dynamic type.
func Bind(phase string, interceptor Interceptor) PhaseInterceptor {
	id := fmt.Sprintf("%T", interceptor)
	if named, ok := interceptor.(interface{ Name() string }); ok && named.Name() != "" {
		id = named.Name()
	}
	return &boundInterceptor{Interceptor: interceptor, id: id, phase: phase}
}
