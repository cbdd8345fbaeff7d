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
	"github.com/glimte/relay-go/transport"
)

// ErrClientClosed is returned by calls made after Close
var ErrClientClosed = errors.New("endpoint: client closed")

// Callback receives the result of an asynchronous call. err is a *contracts.Fault.
type Callback func(result contracts.Parts, err error)

// Client calls the operations of a remote endpoint. Requests run through the
// outbound chain; responses are matched by correlation id and run through
// the inbound chain.
type Client struct {
	endpoint  *Endpoint
	conduit   transport.Conduit
	templates *Templates
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*call
	closed  bool
}

type clientConfig struct {
	timeout     time.Duration
	retryPolicy reliability.RetryPolicy
	out         []interceptors.PhaseInterceptor
	in          []interceptors.PhaseInterceptor
	binders     []interceptors.ContextBinder
}

// ClientOption configures a Client
type ClientOption func(*clientConfig)

// WithTimeout bounds calls whose context has no deadline
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithRetryPolicy sets the retry policy for sending requests
func WithRetryPolicy(policy reliability.RetryPolicy) ClientOption {
	return func(c *clientConfig) {
		c.retryPolicy = policy
	}
}

// WithRequestInterceptors adds interceptors to the request chain
func WithRequestInterceptors(list ...interceptors.PhaseInterceptor) ClientOption {
	return func(c *clientConfig) {
		c.out = append(c.out, list...)
	}
}

// WithResponseInterceptors adds interceptors to the response chain
func WithResponseInterceptors(list ...interceptors.PhaseInterceptor) ClientOption {
	return func(c *clientConfig) {
		c.in = append(c.in, list...)
	}
}

// WithCallBinders re-binds extra per-exchange values into the context of the
// request and response chains
func WithCallBinders(binders ...interceptors.ContextBinder) ClientOption {
	return func(c *clientConfig) {
		c.binders = append(c.binders, binders...)
	}
}

// call is one outstanding exchange of a client
type call struct {
	ex       *contracts.Exchange
	callback Callback

	mu    sync.Mutex
	chain *interceptors.PhaseInterceptorChain
	done  bool
	stop  func()
}

// setStop installs the function releasing the call's timer. A call that has
// already finished releases it at once.
func (c *call) setStop(stop func()) {
	c.mu.Lock()
	if !c.done {
		c.stop = stop
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	stop()
}

func (c *call) setChain(chain *interceptors.PhaseInterceptorChain) {
	c.mu.Lock()
	c.chain = chain
	c.mu.Unlock()
}

func (c *call) currentChain() *interceptors.PhaseInterceptorChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain
}

// NewClient opens a conduit to the endpoint and builds the request and
// response chains
func NewClient(ctx context.Context, ep *Endpoint, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{timeout: 30 * time.Second, retryPolicy: reliability.NoRetry{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := ep.Bus().Logger().With("endpoint", ep.Info().Name)
	ep.AddBinders(cfg.binders...)
	ep.AddOut(databinding.NewMarshalInterceptor(), transport.NewMessageSenderInterceptor(cfg.retryPolicy, logger))
	ep.AddOut(cfg.out...)
	ep.AddIn(databinding.NewUnmarshalInterceptor(ep.Bus().Types(), logger))
	ep.AddIn(cfg.in...)

	var t Templates
	var err error
	if t.Out, err = ep.template(interceptors.OutChain, contracts.Outbound); err != nil {
		return nil, err
	}
	if t.In, err = ep.template(interceptors.InChain, contracts.Inbound); err != nil {
		return nil, err
	}
	if t.InFault, err = ep.template(interceptors.InFaultChain, contracts.Inbound); err != nil {
		return nil, err
	}
	if t.OutFault, err = ep.template(interceptors.OutFaultChain, contracts.Outbound); err != nil {
		return nil, err
	}

	conduit, err := ep.Bus().Transports().Conduit(ctx, ep.Info())
	if err != nil {
		return nil, fmt.Errorf("connect endpoint %s: %w", ep.Info().Name, err)
	}

	c := &Client{
		endpoint:  ep,
		conduit:   conduit,
		templates: &t,
		timeout:   cfg.timeout,
		logger:    logger,
		pending:   make(map[string]*call),
	}
	conduit.SetMessageObserver(transport.MessageObserverFunc(c.onResponse))
	return c, nil
}

// Endpoint returns the endpoint the client calls
func (c *Client) Endpoint() *Endpoint { return c.endpoint }

// Invoke calls operation and waits for the result. Faults are returned as
// *contracts.Fault.
func (c *Client) Invoke(ctx context.Context, operation string, args ...interface{}) (contracts.Parts, error) {
	type result struct {
		parts contracts.Parts
		err   error
	}
	results := make(chan result, 1)
	err := c.InvokeAsync(ctx, operation, func(parts contracts.Parts, err error) {
		results <- result{parts, err}
	}, args...)
	if err != nil {
		return nil, err
	}
	r := <-results
	return r.parts, r.err
}

// InvokeAsync sends a request and returns once it has been handed to the
// transport. callback runs exactly once with the result, a fault, or a
// timeout fault when ctx ends first. For one-way operations it runs as soon
// as the request is sent.
func (c *Client) InvokeAsync(ctx context.Context, operation string, callback Callback, args ...interface{}) error {
	bop, ok := c.endpoint.Binding().Info().Operation(operation)
	if !ok {
		return contracts.WrapFault(contracts.FaultClient,
			fmt.Errorf("%w: %q", contracts.ErrUnknownOperation, operation))
	}

	var cancel context.CancelFunc = func() {}
	if _, has := ctx.Deadline(); !has && c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	ex := contracts.NewExchange()
	ex.SetSynchronous(false)
	ex.SetOneWay(bop.Operation.OneWay())
	ex.Put(contracts.PropOperation, operation)
	c.endpoint.attach(ex)
	contracts.Attach(ex, bop)
	contracts.Attach(ex, c.conduit)

	out := contracts.NewMessage(contracts.Outbound)
	out.SetRequestor(true)
	out.Put(contracts.PropOperation, operation)
	out.Put(contracts.PropCorrelationID, ex.ID)
	contracts.SetContent(out, contracts.Parts(args))
	ex.SetOutMessage(out)

	if err := ctx.Err(); err != nil {
		cancel()
		return contracts.WrapFault(contracts.FaultTimeout, err)
	}

	cl := &call{ex: ex, callback: callback}
	if err := c.track(cl); err != nil {
		cancel()
		return err
	}

	failCtx := context.WithoutCancel(ctx)
	stopWatch := context.AfterFunc(ctx, func() {
		c.cancelCall(failCtx, cl, contracts.WrapFault(contracts.FaultTimeout, ctx.Err()))
	})
	cl.setStop(func() {
		stopWatch()
		cancel()
	})

	chain := c.templates.Out.Clone(
		interceptors.WithLogger(c.logger),
		interceptors.WithContextBinders(c.endpoint.Binders()...),
		interceptors.WithFaultObserver(interceptors.FaultObserverFunc(func(ctx context.Context, msg *contracts.Message) {
			c.finish(cl, nil, msg.Fault())
		})),
	)
	cl.setChain(chain)

	switch chain.DoIntercept(failCtx, out) {
	case interceptors.OutcomeComplete:
		if ex.OneWay() {
			c.finish(cl, contracts.Parts{}, nil)
		}
	case interceptors.OutcomeAborted:
		c.finish(cl, nil, contracts.NewFault(contracts.FaultClient, "request aborted by an interceptor"))
	}
	return nil
}

func (c *Client) track(cl *call) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return contracts.WrapFault(contracts.FaultUnavailable, ErrClientClosed)
	}
	c.pending[cl.ex.ID] = cl
	return nil
}

// claim removes the call waiting for correlationID so a duplicate response
// is dropped
func (c *Client) claim(correlationID string) (*call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	return cl, ok
}

// Pending returns the number of calls waiting for a response
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// onResponse matches a response to its call and runs the response chain
func (c *Client) onResponse(ctx context.Context, msg *contracts.Message) {
	cid := msg.CorrelationID()
	cl, ok := c.claim(cid)
	if !ok {
		c.logger.Debug("dropping response with no pending call", "messageId", msg.ID, "correlationId", cid)
		return
	}

	ex := cl.ex
	msg.Direction = contracts.Inbound
	msg.SetRequestor(true)
	ex.SetInMessage(msg)

	chain := c.templates.In.Clone(
		interceptors.WithLogger(c.logger),
		interceptors.WithContextBinders(c.endpoint.Binders()...),
		interceptors.WithFaultObserver(interceptors.FaultObserverFunc(func(ctx context.Context, msg *contracts.Message) {
			c.onFault(ctx, cl, msg)
		})),
	)
	cl.setChain(chain)

	if chain.DoIntercept(ctx, msg) == interceptors.OutcomeComplete {
		parts, _ := contracts.Content[contracts.Parts](msg)
		if parts == nil {
			parts = contracts.Parts{}
		}
		c.finish(cl, parts, nil)
	}
}

// onFault runs the in-fault chain for a response that carried or raised a
// fault, then hands the fault to the caller
func (c *Client) onFault(ctx context.Context, cl *call, msg *contracts.Message) {
	fault := msg.Fault()

	faultMsg := contracts.NewMessage(contracts.Inbound)
	faultMsg.ID = msg.ID
	faultMsg.SetRequestor(true)
	faultMsg.SetFault(fault)
	faultMsg.Put(contracts.PropOperation, cl.ex.GetString(contracts.PropOperation))
	faultMsg.Put(contracts.PropCorrelationID, cl.ex.ID)
	cl.ex.SetInFaultMessage(faultMsg)

	chain := c.templates.InFault.Clone(
		interceptors.WithLogger(c.logger),
		interceptors.WithContextBinders(c.endpoint.Binders()...),
		interceptors.WithFaultObserver(interceptors.FaultObserverFunc(func(ctx context.Context, m *contracts.Message) {
			c.logger.Warn("in-fault chain faulted", "messageId", m.ID, "error", m.Fault())
		})),
	)
	chain.DoIntercept(ctx, faultMsg)

	if f := faultMsg.Fault(); f != nil {
		fault = f
	}
	c.finish(cl, nil, fault)
}

// cancelCall injects fault into whichever chain of the call is running. When
// no chain accepts it the call is finished directly.
func (c *Client) cancelCall(ctx context.Context, cl *call, fault *contracts.Fault) {
	if chain := cl.currentChain(); chain != nil && chain.Fail(ctx, fault) {
		return
	}
	c.finish(cl, nil, fault)
}

// finish completes the exchange of a call and runs its callback once
func (c *Client) finish(cl *call, parts contracts.Parts, fault *contracts.Fault) {
	cl.mu.Lock()
	if cl.done {
		cl.mu.Unlock()
		return
	}
	cl.done = true
	stop := cl.stop
	cl.mu.Unlock()

	c.mu.Lock()
	delete(c.pending, cl.ex.ID)
	c.mu.Unlock()
	if stop != nil {
		stop()
	}

	var err error
	if fault != nil {
		// the request may still be in a chain on another goroutine, so the
		// fault goes on a message of its own
		if cl.ex.Fault() == nil {
			faultMsg := contracts.NewMessage(contracts.Inbound)
			faultMsg.SetRequestor(true)
			faultMsg.SetFault(fault)
			faultMsg.Put(contracts.PropCorrelationID, cl.ex.ID)
			cl.ex.SetInFaultMessage(faultMsg)
		}
		err = fault
	}
	cl.ex.Complete()
	cl.callback(parts, err)
}

// Close fails every pending call and shuts the conduit down
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	calls := make([]*call, 0, len(c.pending))
	for _, cl := range c.pending {
		calls = append(calls, cl)
	}
	c.mu.Unlock()

	for _, cl := range calls {
		c.cancelCall(ctx, cl, contracts.WrapFault(contracts.FaultUnavailable, ErrClientClosed))
	}
	return c.conduit.Shutdown(ctx)
}
