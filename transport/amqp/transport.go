package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/relay-go/service"
	"github.com/glimte/relay-go/transport"
)

// TransportID identifies the RabbitMQ transport
const TransportID = "amqp"

// Transport carries messages over RabbitMQ. Requests are published on the
// default exchange to a durable queue named by the endpoint address; replies
// go to an exclusive server-named queue per conduit.
type Transport struct {
	manager        *ConnectionManager
	pool           *ChannelPool
	logger         *slog.Logger
	prefetch       int
	confirmTimeout time.Duration

	connectionOptions []ConnectionOption
	poolOptions       []ChannelPoolOption
}

// TransportOption configures the transport
type TransportOption func(*Transport)

// WithTransportLogger sets the logger
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithPrefetch sets how many unacknowledged requests a destination holds
func WithPrefetch(count int) TransportOption {
	return func(t *Transport) {
		t.prefetch = count
	}
}

// WithConfirmTimeout bounds the wait for a publish confirmation
func WithConfirmTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) {
		t.confirmTimeout = timeout
	}
}

// WithConnectionOptions passes options to the connection manager
func WithConnectionOptions(opts ...ConnectionOption) TransportOption {
	return func(t *Transport) {
		t.connectionOptions = append(t.connectionOptions, opts...)
	}
}

// WithChannelPoolOptions passes options to the publishing channel pool
func WithChannelPoolOptions(opts ...ChannelPoolOption) TransportOption {
	return func(t *Transport) {
		t.poolOptions = append(t.poolOptions, opts...)
	}
}

// NewTransport creates the transport. It does not dial until Connect or the
// first destination or conduit.
func NewTransport(url string, options ...TransportOption) (*Transport, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: broker url is required", ErrInvalidConfiguration)
	}
	t := &Transport{
		logger:         slog.Default(),
		prefetch:       10,
		confirmTimeout: 5 * time.Second,
	}
	for _, opt := range options {
		opt(t)
	}

	t.manager = NewConnectionManager(url, append([]ConnectionOption{WithLogger(t.logger)}, t.connectionOptions...)...)
	pool, err := NewChannelPool(t.manager, t.poolOptions...)
	if err != nil {
		return nil, err
	}
	t.pool = pool
	return t, nil
}

// Connect dials the broker
func (t *Transport) Connect(ctx context.Context) error {
	return t.manager.Connect(ctx)
}

// IsConnected reports the connection status
func (t *Transport) IsConnected() bool {
	return t.manager.IsConnected()
}

// Close releases the channel pool and the connection
func (t *Transport) Close() error {
	t.pool.Close()
	return t.manager.Close()
}

// TransportID implements transport.DestinationFactory
func (t *Transport) TransportID() string {
	return TransportID
}

// Destination consumes the queue named by the endpoint address
func (t *Transport) Destination(ctx context.Context, ep *service.EndpointInfo) (transport.Destination, error) {
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	d := newDestination(t, ep.Address)
	if err := d.subscribe(); err != nil {
		d.cancel()
		return nil, err
	}
	t.manager.OnReconnect(d.resubscribe)
	return d, nil
}

// Conduit publishes to the queue named by the endpoint address
func (t *Transport) Conduit(ctx context.Context, ep *service.EndpointInfo) (transport.Conduit, error) {
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	return newConduit(t, ep.Address), nil
}
