package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/glimte/relay-go/binding"
	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/databinding"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/invoker"
	"github.com/glimte/relay-go/phase"
	"github.com/glimte/relay-go/service"
	"github.com/glimte/relay-go/transport"
	"github.com/glimte/relay-go/transport/local"
)

type contextKey struct{}

// Bus is the runtime every endpoint and client of a process shares. It owns
// the registries and the bus-level interceptors.
type Bus struct {
	interceptors.Providers

	ID string

	logger     *slog.Logger
	phases     *phase.Registry
	types      *databinding.TypeRegistry
	transports *transport.Registry
	bindings   *binding.Registry
	beans      *invoker.BeanRegistry
	services   *service.Registry
	metrics    interceptors.MetricsCollector

	mu       sync.Mutex
	closers  []func(ctx context.Context) error
	shutdown bool
}

// Option configures a Bus
type Option func(*config)

type config struct {
	logger       *slog.Logger
	phaseOptions []phase.Option
	types        *databinding.TypeRegistry
	transports   []transport.Factory
	bindings     []binding.Factory
	beans        *invoker.BeanRegistry
	metrics      interceptors.MetricsCollector
	noLocal      bool
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPhases adjusts the phase orders
func WithPhases(opts ...phase.Option) Option {
	return func(c *config) {
		c.phaseOptions = append(c.phaseOptions, opts...)
	}
}

// WithTypes shares an existing type registry
func WithTypes(types *databinding.TypeRegistry) Option {
	return func(c *config) {
		c.types = types
	}
}

// WithTransports registers transport factories next to the local transport
func WithTransports(factories ...transport.Factory) Option {
	return func(c *config) {
		c.transports = append(c.transports, factories...)
	}
}

// WithoutLocalTransport leaves the in-process transport unregistered
func WithoutLocalTransport() Option {
	return func(c *config) {
		c.noLocal = true
	}
}

// WithBindings registers binding factories next to the JSON binding
func WithBindings(factories ...binding.Factory) Option {
	return func(c *config) {
		c.bindings = append(c.bindings, factories...)
	}
}

// WithBeans shares an existing bean registry
func WithBeans(beans *invoker.BeanRegistry) Option {
	return func(c *config) {
		c.beans = beans
	}
}

// WithMetrics installs a MetricsInterceptor on every chain
func WithMetrics(collector interceptors.MetricsCollector) Option {
	return func(c *config) {
		c.metrics = collector
	}
}

// New creates a bus
func New(opts ...Option) (*Bus, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	phases, err := phase.NewRegistry(cfg.phaseOptions...)
	if err != nil {
		return nil, err
	}
	if cfg.types == nil {
		cfg.types = databinding.NewTypeRegistry()
	}
	if cfg.beans == nil {
		cfg.beans = invoker.NewBeanRegistry()
	}

	id := uuid.New().String()
	b := &Bus{
		ID:         id,
		logger:     cfg.logger.With("bus", id[:8]),
		phases:     phases,
		types:      cfg.types,
		transports: transport.NewRegistry(),
		bindings:   binding.NewRegistry(binding.NewJSONBindingFactory(cfg.types, cfg.logger)),
		beans:      cfg.beans,
		services:   service.NewRegistry(),
		metrics:    cfg.metrics,
	}

	if !cfg.noLocal {
		b.transports.Register(local.NewTransport(local.NewHub(), b.logger))
	}
	for _, f := range cfg.transports {
		b.transports.Register(f)
	}
	for _, f := range cfg.bindings {
		b.bindings.Register(f)
	}

	if cfg.metrics != nil {
		b.AddIn(interceptors.NewMetricsInterceptor(cfg.metrics))
		b.AddOut(interceptors.NewMetricsInterceptor(cfg.metrics, interceptors.InPhase(phase.Setup)))
	}
	return b, nil
}

// Logger returns the bus logger
func (b *Bus) Logger() *slog.Logger { return b.logger }

// Phases returns the phase registry
func (b *Bus) Phases() *phase.Registry { return b.phases }

// Types returns the type registry
func (b *Bus) Types() *databinding.TypeRegistry { return b.types }

// Transports returns the transport registry
func (b *Bus) Transports() *transport.Registry { return b.transports }

// Bindings returns the binding registry
func (b *Bus) Bindings() *binding.Registry { return b.bindings }

// Beans returns the bean registry
func (b *Bus) Beans() *invoker.BeanRegistry { return b.beans }

// Services returns the registry of published services
func (b *Bus) Services() *service.Registry { return b.services }

// Metrics returns the metrics collector, or nil
func (b *Bus) Metrics() interceptors.MetricsCollector { return b.metrics }

// Bind implements interceptors.ContextBinder. Chains re-bind the bus before
// every interceptor call.
func (b *Bus) Bind(ctx context.Context, msg *contracts.Message) context.Context {
	return NewContext(ctx, b)
}

// OnShutdown registers a function run by Shutdown. Functions run newest first.
func (b *Bus) OnShutdown(fn func(ctx context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closers = append(b.closers, fn)
}

// Shutdown runs the registered shutdown functions once
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return nil
	}
	b.shutdown = true
	closers := b.closers
	b.closers = nil
	b.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.logger.Info("bus shut down", "errors", len(errs))
	return errors.Join(errs...)
}

// NewContext returns a context carrying the bus
func NewContext(ctx context.Context, b *Bus) context.Context {
	return context.WithValue(ctx, contextKey{}, b)
}

// FromContext returns the bus bound to ctx
func FromContext(ctx context.Context) (*Bus, bool) {
	b, ok := ctx.Value(contextKey{}).(*Bus)
	return b, ok
}

// Of returns the bus attached to an exchange
func Of(ex *contracts.Exchange) (*Bus, bool) {
	return contracts.Attached[*Bus](ex)
}
