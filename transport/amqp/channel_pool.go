package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

// ChannelPool lends confirm-mode channels for publishing
type ChannelPool struct {
	manager     *ConnectionManager
	channels    chan *pooledChannel
	maxSize     int
	waitTimeout time.Duration
	mu          sync.Mutex
	closed      bool
	activeCount int
}

type pooledChannel struct {
	*amqp091.Channel
	confirms <-chan amqp091.Confirmation
	returns  <-chan amqp091.Return
}

// ChannelPoolOption configures the channel pool
type ChannelPoolOption func(*ChannelPool)

// WithMaxChannels sets the maximum number of open channels
func WithMaxChannels(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.maxSize = size
	}
}

// WithWaitTimeout bounds how long Get waits for a free channel
func WithWaitTimeout(timeout time.Duration) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.waitTimeout = timeout
	}
}

// NewChannelPool creates a channel pool. Channels are opened lazily.
func NewChannelPool(manager *ConnectionManager, options ...ChannelPoolOption) (*ChannelPool, error) {
	if manager == nil {
		return nil, fmt.Errorf("%w: connection manager is required", ErrInvalidConfiguration)
	}
	pool := &ChannelPool{
		manager:     manager,
		maxSize:     10,
		waitTimeout: 5 * time.Second,
	}
	for _, opt := range options {
		opt(pool)
	}
	if pool.maxSize < 1 {
		return nil, fmt.Errorf("%w: max channels must be at least 1", ErrInvalidConfiguration)
	}
	pool.channels = make(chan *pooledChannel, pool.maxSize)
	return pool, nil
}

func (cp *ChannelPool) get(ctx context.Context) (*pooledChannel, error) {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil, ErrChannelPoolClosed
	}
	cp.mu.Unlock()

	for {
		select {
		case ch := <-cp.channels:
			if ch.IsClosed() {
				cp.release()
				continue
			}
			return ch, nil
		default:
		}

		cp.mu.Lock()
		if cp.activeCount < cp.maxSize {
			cp.activeCount++
			cp.mu.Unlock()
			ch, err := cp.open()
			if err != nil {
				cp.release()
				return nil, err
			}
			return ch, nil
		}
		cp.mu.Unlock()

		select {
		case ch := <-cp.channels:
			if ch.IsClosed() {
				cp.release()
				continue
			}
			return ch, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cp.waitTimeout):
			return nil, ErrChannelPoolExhausted
		}
	}
}

func (cp *ChannelPool) put(ch *pooledChannel) {
	cp.mu.Lock()
	closed := cp.closed
	cp.mu.Unlock()

	if closed || ch.IsClosed() {
		ch.Close()
		cp.release()
		return
	}
	select {
	case cp.channels <- ch:
	default:
		ch.Close()
		cp.release()
	}
}

func (cp *ChannelPool) release() {
	cp.mu.Lock()
	cp.activeCount--
	cp.mu.Unlock()
}

func (cp *ChannelPool) open() (*pooledChannel, error) {
	conn, err := cp.manager.Connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &pooledChannel{
		Channel:  ch,
		confirms: ch.NotifyPublish(make(chan amqp091.Confirmation, 1)),
		returns:  ch.NotifyReturn(make(chan amqp091.Return, 1)),
	}, nil
}

// Size returns the number of open channels
func (cp *ChannelPool) Size() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.activeCount
}

// Close closes every idle channel; lent channels close when returned
func (cp *ChannelPool) Close() error {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil
	}
	cp.closed = true
	cp.mu.Unlock()

	for {
		select {
		case ch := <-cp.channels:
			ch.Close()
			cp.release()
		default:
			return nil
		}
	}
}

// Publish sends one message on the default exchange and waits for the
// broker's confirmation. Mandatory publishing turns unroutable messages into
// ErrPublishReturned.
func (cp *ChannelPool) Publish(ctx context.Context, routingKey string, msg amqp091.Publishing, confirmTimeout time.Duration) error {
	ch, err := cp.get(ctx)
	if err != nil {
		return &PublishError{RoutingKey: routingKey, Err: err, Timestamp: time.Now()}
	}
	defer cp.put(ch)

	if err := ch.PublishWithContext(ctx, "", routingKey, true, false, msg); err != nil {
		return &PublishError{RoutingKey: routingKey, Err: err, Timestamp: time.Now()}
	}

	timer := time.NewTimer(confirmTimeout)
	defer timer.Stop()

	var returned bool
	for {
		select {
		case <-ch.returns:
			// a returned message is still confirmed afterwards
			returned = true
		case confirm, ok := <-ch.confirms:
			switch {
			case !ok:
				return &PublishError{RoutingKey: routingKey, Err: ErrConnectionClosed, Timestamp: time.Now()}
			case returned:
				return &PublishError{RoutingKey: routingKey, Err: ErrPublishReturned, Timestamp: time.Now()}
			case !confirm.Ack:
				return &PublishError{RoutingKey: routingKey, Err: ErrPublishNacked, Timestamp: time.Now()}
			}
			return nil
		case <-timer.C:
			ch.Close()
			return &PublishError{RoutingKey: routingKey, Err: ErrPublishNotConfirmed, Timestamp: time.Now()}
		case <-ctx.Done():
			ch.Close()
			return ctx.Err()
		}
	}
}
