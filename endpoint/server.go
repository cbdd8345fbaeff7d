package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/databinding"
	"github.com/glimte/relay-go/interceptors"
	"github.com/glimte/relay-go/internal/reliability"
	"github.com/glimte/relay-go/internal/workpool"
	"github.com/glimte/relay-go/invoker"
	"github.com/glimte/relay-go/transport"
)

var (
	ErrServerStarted    = errors.New("endpoint: server already started")
	ErrServerNotStarted = errors.New("endpoint: server not started")
)

// Server publishes an endpoint on its transport and runs every request it
// receives through the endpoint's chains
type Server struct {
	endpoint *Endpoint
	invoker  invoker.Invoker
	cfg      serverConfig
	logger   *slog.Logger

	templates   *Templates
	faults      *OutFaultChainInitiator
	dispatch    *workpool.Pool
	invokePool  *workpool.Pool
	mu          sync.Mutex
	destination transport.Destination
}

type serverConfig struct {
	workers       int
	asyncInvoke   bool
	invokeTimeout time.Duration
	sendPolicy    reliability.RetryPolicy
	schemas       bool
	in            []interceptors.PhaseInterceptor
	out           []interceptors.PhaseInterceptor
	binders       []interceptors.ContextBinder
}

// ServerOption configures a Server
type ServerOption func(*serverConfig)

// WithWorkers bounds the number of requests processed at once. Zero runs
// each request on the goroutine that delivered it.
func WithWorkers(n int) ServerOption {
	return func(c *serverConfig) {
		c.workers = n
	}
}

// WithAsyncInvoke pauses the inbound chain while the bean runs on a
// separate pool
func WithAsyncInvoke(async bool) ServerOption {
	return func(c *serverConfig) {
		c.asyncInvoke = async
	}
}

// WithInvokeTimeout fails exchanges that take longer than d
func WithInvokeTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.invokeTimeout = d
	}
}

// WithSendPolicy sets the retry policy for responses
func WithSendPolicy(policy reliability.RetryPolicy) ServerOption {
	return func(c *serverConfig) {
		c.sendPolicy = policy
	}
}

// WithSchemaValidation validates request parts against their JSON schemas
func WithSchemaValidation() ServerOption {
	return func(c *serverConfig) {
		c.schemas = true
	}
}

// WithInInterceptors adds interceptors to the inbound chain
func WithInInterceptors(list ...interceptors.PhaseInterceptor) ServerOption {
	return func(c *serverConfig) {
		c.in = append(c.in, list...)
	}
}

// WithOutInterceptors adds interceptors to the response chain
func WithOutInterceptors(list ...interceptors.PhaseInterceptor) ServerOption {
	return func(c *serverConfig) {
		c.out = append(c.out, list...)
	}
}

// WithContextBinders re-binds extra per-exchange values into the context of
// every interceptor and of the bean
func WithContextBinders(binders ...interceptors.ContextBinder) ServerOption {
	return func(c *serverConfig) {
		c.binders = append(c.binders, binders...)
	}
}

// NewServer wires the provider side of an endpoint: decoding, invocation,
// the response chain and the fault chain
func NewServer(ep *Endpoint, inv invoker.Invoker, opts ...ServerOption) (*Server, error) {
	cfg := serverConfig{sendPolicy: reliability.NoRetry{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := ep.Bus().Logger().With("endpoint", ep.Info().Name)
	ep.AddBinders(cfg.binders...)
	s := &Server{
		endpoint: ep,
		invoker:  inv,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.workers > 0 {
		s.dispatch = workpool.New(cfg.workers)
	}

	invokeOpts := []invoker.InterceptorOption{invoker.WithLogger(logger)}
	if cfg.asyncInvoke {
		s.invokePool = workpool.New(cfg.workers)
		invokeOpts = append(invokeOpts, invoker.WithExecutor(s.invokePool))
	}

	sender := transport.NewMessageSenderInterceptor(cfg.sendPolicy, logger)
	if cfg.schemas {
		ep.AddIn(databinding.NewSchemaValidationInterceptor(logger))
	}
	ep.AddIn(
		databinding.NewUnmarshalInterceptor(ep.Bus().Types(), logger),
		invoker.NewServiceInvokerInterceptor(inv, invokeOpts...),
	)
	if cfg.invokeTimeout > 0 {
		ep.AddIn(interceptors.NewTimeoutInterceptor(cfg.invokeTimeout, logger))
	}
	ep.AddIn(cfg.in...)
	ep.AddOut(databinding.NewMarshalInterceptor(), sender)
	ep.AddOut(cfg.out...)
	ep.AddOutFault(sender)

	var t Templates
	var err error
	if t.Out, err = ep.template(interceptors.OutChain, contracts.Outbound); err != nil {
		return nil, err
	}
	if t.OutFault, err = ep.template(interceptors.OutFaultChain, contracts.Outbound); err != nil {
		return nil, err
	}
	s.faults = NewOutFaultChainInitiator(t.OutFault, logger)
	ep.AddIn(NewOutgoingChainInterceptor(t.Out, s.faults, logger))
	if t.In, err = ep.template(interceptors.InChain, contracts.Inbound); err != nil {
		return nil, err
	}
	if t.InFault, err = ep.template(interceptors.InFaultChain, contracts.Inbound); err != nil {
		return nil, err
	}
	s.templates = &t
	return s, nil
}

// Endpoint returns the served endpoint
func (s *Server) Endpoint() *Endpoint { return s.endpoint }

// Templates returns the chain prototypes the server runs
func (s *Server) Templates() *Templates { return s.templates }

// Running reports whether the server is between Start and Stop
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destination != nil
}

// Start obtains a destination for the endpoint address and begins accepting
// requests
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destination != nil {
		return ErrServerStarted
	}

	info := s.endpoint.Info()
	dest, err := s.endpoint.Bus().Transports().Destination(ctx, info)
	if err != nil {
		return fmt.Errorf("start endpoint %s: %w", info.Name, err)
	}

	var executor invoker.Executor
	if s.dispatch != nil {
		executor = s.dispatch
	}
	dest.SetMessageObserver(NewChainInitiationObserver(s.endpoint, dest, s.templates.In, s.faults, executor))
	s.destination = dest

	s.logger.Info("endpoint started",
		"transport", info.TransportID,
		"address", dest.Address(),
		"workers", s.cfg.workers,
		"asyncInvoke", s.cfg.asyncInvoke)
	return nil
}

// Stop shuts the destination down and waits for requests in progress
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	dest := s.destination
	s.destination = nil
	s.mu.Unlock()
	if dest == nil {
		return ErrServerNotStarted
	}

	err := dest.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		if s.dispatch != nil {
			s.dispatch.Wait()
		}
		if s.invokePool != nil {
			s.invokePool.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}

	s.logger.Info("endpoint stopped", "address", dest.Address())
	return err
}
