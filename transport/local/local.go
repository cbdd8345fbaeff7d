package local

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/service"
	"github.com/glimte/relay-go/transport"
)

// TransportID identifies the in-process transport
const TransportID = "local"

const replyPrefix = "local:reply:"

// Transport creates destinations and conduits on a shared Hub. Every
// delivery runs on its own goroutine.
type Transport struct {
	hub    *Hub
	logger *slog.Logger
}

// NewTransport creates the local transport. A nil hub gets a private one.
func NewTransport(hub *Hub, logger *slog.Logger) *Transport {
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{hub: hub, logger: logger}
}

// Hub returns the hub the transport routes through
func (t *Transport) Hub() *Hub {
	return t.hub
}

// TransportID implements transport.DestinationFactory
func (t *Transport) TransportID() string {
	return TransportID
}

// Destination binds a destination to the endpoint's address
func (t *Transport) Destination(ctx context.Context, ep *service.EndpointInfo) (transport.Destination, error) {
	d := newDestination(t.hub, ep.Address, t.logger)
	if err := t.hub.bind(ep.Address, d.receive); err != nil {
		d.cancel()
		return nil, err
	}
	t.logger.Debug("local destination bound", "address", ep.Address)
	return d, nil
}

// Conduit creates a conduit to the endpoint's address
func (t *Transport) Conduit(ctx context.Context, ep *service.EndpointInfo) (transport.Conduit, error) {
	return newConduit(t.hub, ep.Address, t.logger), nil
}

// dispatcher delivers frames to an observer asynchronously
type dispatcher struct {
	mu       sync.RWMutex
	observer transport.MessageObserver
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	logger   *slog.Logger
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{ctx: ctx, cancel: cancel, logger: logger}
}

func (d *dispatcher) SetMessageObserver(observer transport.MessageObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = observer
}

func (d *dispatcher) MessageObserver() transport.MessageObserver {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.observer
}

func (d *dispatcher) receive(f frame) {
	observer := d.MessageObserver()
	if observer == nil || d.ctx.Err() != nil {
		d.logger.Warn("dropping local message with no observer", "correlationId", f.correlationID)
		return
	}
	msg := transport.NewInbound(f.payload, f.correlationID, f.replyTo, f.headers)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		observer.OnMessage(d.ctx, msg)
	}()
}

// wait blocks until in-flight deliveries return or ctx ends
func (d *dispatcher) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type destination struct {
	*dispatcher
	hub     *Hub
	address string
}

func newDestination(hub *Hub, address string, logger *slog.Logger) *destination {
	return &destination{dispatcher: newDispatcher(logger), hub: hub, address: address}
}

func (d *destination) Address() string {
	return d.address
}

func (d *destination) BackChannel(msg *contracts.Message) (transport.Conduit, error) {
	replyTo := msg.GetString(contracts.PropReplyTo)
	if replyTo == "" {
		return nil, transport.ErrNoReplyTo
	}
	return &backChannel{hub: d.hub, target: replyTo}, nil
}

func (d *destination) Shutdown(ctx context.Context) error {
	d.hub.unbind(d.address)
	defer d.cancel()
	return d.wait(ctx)
}

type conduit struct {
	*dispatcher
	hub     *Hub
	target  string
	replyTo string

	bindOnce sync.Once
	bindErr  error
}

func newConduit(hub *Hub, target string, logger *slog.Logger) *conduit {
	return &conduit{
		dispatcher: newDispatcher(logger),
		hub:        hub,
		target:     target,
		replyTo:    replyPrefix + uuid.New().String(),
	}
}

func (c *conduit) Target() string {
	return c.target
}

func (c *conduit) Prepare(ctx context.Context, msg *contracts.Message) error {
	if c.ctx.Err() != nil {
		return transport.ErrShutdown
	}
	transport.PrepareBuffer(msg)

	ex := msg.Exchange()
	if (ex != nil && ex.OneWay()) || c.MessageObserver() == nil {
		return nil
	}
	c.bindOnce.Do(func() {
		c.bindErr = c.hub.bind(c.replyTo, c.receive)
	})
	if c.bindErr != nil {
		return c.bindErr
	}
	msg.Put(contracts.PropReplyTo, c.replyTo)
	return nil
}

func (c *conduit) Close(ctx context.Context, msg *contracts.Message) error {
	payload, ok := transport.Payload(msg)
	if !ok {
		return contracts.NewFault(contracts.FaultServer, "nothing was written to the conduit")
	}
	return c.hub.send(c.target, frame{
		payload:       payload,
		correlationID: msg.CorrelationID(),
		replyTo:       msg.GetString(contracts.PropReplyTo),
		headers:       msg.Headers,
	})
}

func (c *conduit) Shutdown(ctx context.Context) error {
	c.hub.unbind(c.replyTo)
	defer c.cancel()
	return c.wait(ctx)
}

// backChannel carries a response to the reply address of a request
type backChannel struct {
	hub    *Hub
	target string
}

func (b *backChannel) Target() string { return b.target }

func (b *backChannel) Prepare(ctx context.Context, msg *contracts.Message) error {
	transport.PrepareBuffer(msg)
	return nil
}

func (b *backChannel) Close(ctx context.Context, msg *contracts.Message) error {
	payload, ok := transport.Payload(msg)
	if !ok {
		return contracts.NewFault(contracts.FaultServer, "nothing was written to the back channel")
	}
	return b.hub.send(b.target, frame{payload: payload, correlationID: msg.CorrelationID(), headers: msg.Headers})
}

func (b *backChannel) SetMessageObserver(transport.MessageObserver) {}

func (b *backChannel) Shutdown(ctx context.Context) error { return nil }
