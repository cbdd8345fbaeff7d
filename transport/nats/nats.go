package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/service"
	"github.com/glimte/relay-go/transport"
)

// TransportID identifies the NATS transport
const TransportID = "nats"

// Header names carrying message metadata
const (
	HeaderMessageID     = "Relay-Message-Id"
	HeaderCorrelationID = "Relay-Correlation-Id"
	HeaderContentType   = "Content-Type"
)

var ErrNotConnected = errors.New("nats: not connected")

// Transport carries messages over core NATS. Requests are published to the
// subject named by the endpoint address and consumed by a queue group;
// replies go to an inbox subject per conduit.
type Transport struct {
	url          string
	queueGroup   string
	flushTimeout time.Duration
	options      []natsgo.Option
	logger       *slog.Logger

	mu   sync.Mutex
	conn *natsgo.Conn
}

// Option configures the transport
type Option func(*Transport)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithQueueGroup sets the queue group destinations subscribe with
func WithQueueGroup(group string) Option {
	return func(t *Transport) {
		t.queueGroup = group
	}
}

// WithFlushTimeout bounds how long a send waits for the server to take it
func WithFlushTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.flushTimeout = timeout
	}
}

// WithNATSOptions passes options to nats.Connect
func WithNATSOptions(opts ...natsgo.Option) Option {
	return func(t *Transport) {
		t.options = append(t.options, opts...)
	}
}

// NewTransport creates the transport. It connects on first use.
func NewTransport(url string, opts ...Option) *Transport {
	if url == "" {
		url = natsgo.DefaultURL
	}
	t := &Transport{
		url:          url,
		queueGroup:   "relay",
		flushTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) connectionOptions() []natsgo.Option {
	opts := []natsgo.Option{
		natsgo.Name("relay"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				t.logger.Warn("nats disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			t.logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
		natsgo.ErrorHandler(func(_ *natsgo.Conn, sub *natsgo.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			t.logger.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	return append(opts, t.options...)
}

// Connect dials the server unless a connection is already open
func (t *Transport) Connect(ctx context.Context) error {
	_, err := t.connection(ctx)
	return err
}

func (t *Transport) connection(ctx context.Context) (*natsgo.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil && !t.conn.IsClosed() {
		return t.conn, nil
	}

	type result struct {
		conn *natsgo.Conn
		err  error
	}
	results := make(chan result, 1)
	go func() {
		conn, err := natsgo.Connect(t.url, t.connectionOptions()...)
		results <- result{conn, err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, fmt.Errorf("connect to %s: %w", t.url, r.err)
		}
		t.conn = r.conn
		t.logger.Info("connected to nats", "url", r.conn.ConnectedUrlRedacted())
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-results; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// IsConnected reports the connection status
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && t.conn.IsConnected()
}

// Close drains the connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Drain()
	t.conn = nil
	return err
}

// TransportID implements transport.DestinationFactory
func (t *Transport) TransportID() string {
	return TransportID
}

// Destination subscribes to the subject named by the endpoint address
func (t *Transport) Destination(ctx context.Context, ep *service.EndpointInfo) (transport.Destination, error) {
	conn, err := t.connection(ctx)
	if err != nil {
		return nil, err
	}
	d := newDestination(t, conn, ep.Address)
	sub, err := conn.QueueSubscribe(ep.Address, t.queueGroup, d.handle)
	if err != nil {
		d.cancel()
		return nil, fmt.Errorf("subscribe %s: %w", ep.Address, err)
	}
	d.sub = sub
	t.logger.Info("subscribed to subject", "subject", ep.Address, "queueGroup", t.queueGroup)
	return d, nil
}

// Conduit publishes to the subject named by the endpoint address
func (t *Transport) Conduit(ctx context.Context, ep *service.EndpointInfo) (transport.Conduit, error) {
	conn, err := t.connection(ctx)
	if err != nil {
		return nil, err
	}
	return newConduit(t, conn, ep.Address), nil
}

// publish sends payload and flushes so that a dead connection surfaces as an
// error of this send
func (t *Transport) publish(ctx context.Context, conn *natsgo.Conn, m *natsgo.Msg) error {
	if conn.IsClosed() {
		return ErrNotConnected
	}
	if err := conn.PublishMsg(m); err != nil {
		return fmt.Errorf("publish %s: %w", m.Subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.flushTimeout)
		defer cancel()
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", m.Subject, err)
	}
	return nil
}

// outbound builds the NATS message for msg
func outbound(subject string, msg *contracts.Message, payload []byte) *natsgo.Msg {
	m := natsgo.NewMsg(subject)
	m.Data = payload
	m.Reply = msg.GetString(contracts.PropReplyTo)
	for name, value := range msg.Headers {
		m.Header.Set(name, value)
	}
	m.Header.Set(HeaderMessageID, msg.ID)
	if cid := msg.CorrelationID(); cid != "" {
		m.Header.Set(HeaderCorrelationID, cid)
	}
	if ct := msg.GetString(contracts.PropContentType); ct != "" {
		m.Header.Set(HeaderContentType, ct)
	}
	return m
}

// inbound converts a received NATS message
func inbound(m *natsgo.Msg) *contracts.Message {
	headers := make(map[string]string, len(m.Header))
	for name := range m.Header {
		switch name {
		case HeaderMessageID, HeaderCorrelationID, HeaderContentType:
			continue
		}
		headers[name] = m.Header.Get(name)
	}
	msg := transport.NewInbound(m.Data, m.Header.Get(HeaderCorrelationID), m.Reply, headers)
	if id := m.Header.Get(HeaderMessageID); id != "" {
		msg.ID = id
	}
	return msg
}

type destination struct {
	t       *Transport
	conn    *natsgo.Conn
	subject string
	sub     *natsgo.Subscription

	mu       sync.RWMutex
	observer transport.MessageObserver

	ctx    context.Context
	cancel context.CancelFunc
}

func newDestination(t *Transport, conn *natsgo.Conn, subject string) *destination {
	ctx, cancel := context.WithCancel(context.Background())
	return &destination{t: t, conn: conn, subject: subject, ctx: ctx, cancel: cancel}
}

func (d *destination) Address() string { return d.subject }

func (d *destination) SetMessageObserver(observer transport.MessageObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observer = observer
}

func (d *destination) MessageObserver() transport.MessageObserver {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.observer
}

func (d *destination) handle(m *natsgo.Msg) {
	observer := d.MessageObserver()
	if observer == nil {
		d.t.logger.Warn("dropping nats message with no observer", "subject", d.subject)
		return
	}
	observer.OnMessage(d.ctx, inbound(m))
}

func (d *destination) BackChannel(msg *contracts.Message) (transport.Conduit, error) {
	replyTo := msg.GetString(contracts.PropReplyTo)
	if replyTo == "" {
		return nil, transport.ErrNoReplyTo
	}
	return &replyConduit{t: d.t, conn: d.conn, target: replyTo}, nil
}

func (d *destination) Shutdown(ctx context.Context) error {
	d.cancel()
	if d.sub == nil {
		return nil
	}
	if err := d.sub.Drain(); err != nil && !errors.Is(err, natsgo.ErrConnectionClosed) {
		return err
	}
	return nil
}

type conduit struct {
	t      *Transport
	conn   *natsgo.Conn
	target string

	mu       sync.Mutex
	observer transport.MessageObserver
	inbox    string
	sub      *natsgo.Subscription

	ctx    context.Context
	cancel context.CancelFunc
}

func newConduit(t *Transport, conn *natsgo.Conn, target string) *conduit {
	ctx, cancel := context.WithCancel(context.Background())
	return &conduit{t: t, conn: conn, target: target, ctx: ctx, cancel: cancel}
}

func (c *conduit) Target() string { return c.target }

func (c *conduit) SetMessageObserver(observer transport.MessageObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = observer
}

func (c *conduit) Prepare(ctx context.Context, msg *contracts.Message) error {
	if c.ctx.Err() != nil {
		return transport.ErrShutdown
	}
	transport.PrepareBuffer(msg)

	if ex := msg.Exchange(); ex != nil && ex.OneWay() {
		return nil
	}
	inbox, err := c.ensureInbox()
	if err != nil || inbox == "" {
		return err
	}
	msg.Put(contracts.PropReplyTo, inbox)
	return nil
}

func (c *conduit) ensureInbox() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observer == nil {
		return "", nil
	}
	if c.sub != nil {
		return c.inbox, nil
	}

	inbox := c.conn.NewRespInbox()
	observer := c.observer
	sub, err := c.conn.Subscribe(inbox, func(m *natsgo.Msg) {
		observer.OnMessage(c.ctx, inbound(m))
	})
	if err != nil {
		return "", fmt.Errorf("subscribe inbox: %w", err)
	}
	c.inbox = inbox
	c.sub = sub
	return inbox, nil
}

func (c *conduit) Close(ctx context.Context, msg *contracts.Message) error {
	payload, ok := transport.Payload(msg)
	if !ok {
		return contracts.NewFault(contracts.FaultServer, "nothing was written to the conduit")
	}
	return c.t.publish(ctx, c.conn, outbound(c.target, msg, payload))
}

func (c *conduit) Shutdown(ctx context.Context) error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil
	}
	err := c.sub.Unsubscribe()
	c.sub = nil
	if errors.Is(err, natsgo.ErrConnectionClosed) {
		return nil
	}
	return err
}

// replyConduit publishes a response to the inbox of a request
type replyConduit struct {
	t      *Transport
	conn   *natsgo.Conn
	target string
}

func (r *replyConduit) Target() string { return r.target }

func (r *replyConduit) Prepare(ctx context.Context, msg *contracts.Message) error {
	transport.PrepareBuffer(msg)
	return nil
}

func (r *replyConduit) Close(ctx context.Context, msg *contracts.Message) error {
	payload, ok := transport.Payload(msg)
	if !ok {
		return contracts.NewFault(contracts.FaultServer, "nothing was written to the back channel")
	}
	m := outbound(r.target, msg, payload)
	m.Reply = ""
	return r.t.publish(ctx, r.conn, m)
}

func (r *replyConduit) SetMessageObserver(transport.MessageObserver) {}

func (r *replyConduit) Shutdown(ctx context.Context) error { return nil }
