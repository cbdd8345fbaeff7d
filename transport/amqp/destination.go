package amqp

import (
	"context"
	"sync"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/transport"
)

type destination struct {
	t     *Transport
	queue string

	mu       sync.RWMutex
	observer transport.MessageObserver
	ch       *amqp091.Channel

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func newDestination(t *Transport, queue string) *destination {
	ctx, cancel := context.WithCancel(context.Background())
	return &destination{t: t, queue: queue, ctx: ctx, cancel: cancel}
}

func (d *destination) Address() string {
	return d.queue
}

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

func (d *destination) subscribe() error {
	conn, err := d.t.manager.Connection()
	if err != nil {
		return &ConsumerError{Queue: d.queue, Op: "subscribe", Err: err, Timestamp: time.Now()}
	}
	ch, err := conn.Channel()
	if err != nil {
		return &ConsumerError{Queue: d.queue, Op: "open channel", Err: err, Timestamp: time.Now()}
	}
	if err := ch.Qos(d.t.prefetch, 0, false); err != nil {
		ch.Close()
		return &ConsumerError{Queue: d.queue, Op: "set qos", Err: err, Timestamp: time.Now()}
	}
	if _, err := ch.QueueDeclare(d.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return &ConsumerError{Queue: d.queue, Op: "declare queue", Err: err, Timestamp: time.Now()}
	}
	deliveries, err := ch.Consume(d.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return &ConsumerError{Queue: d.queue, Op: "consume", Err: err, Timestamp: time.Now()}
	}

	d.mu.Lock()
	d.ch = ch
	d.mu.Unlock()

	d.inflight.Add(1)
	go d.consume(deliveries)

	d.t.logger.Info("subscribed to queue",
		"queue", d.queue,
		"prefetchCount", d.t.prefetch)
	return nil
}

func (d *destination) resubscribe() {
	if d.ctx.Err() != nil {
		return
	}
	if err := d.subscribe(); err != nil {
		d.t.logger.Error("failed to resubscribe after reconnect", "queue", d.queue, "error", err)
	}
}

func (d *destination) consume(deliveries <-chan amqp091.Delivery) {
	defer d.inflight.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				d.t.logger.Warn("delivery channel closed", "queue", d.queue)
				return
			}
			d.handle(delivery)
		}
	}
}

// handle passes a delivery to the observer and acknowledges it once the
// observer has taken it. Without an observer the delivery is requeued.
func (d *destination) handle(delivery amqp091.Delivery) {
	observer := d.MessageObserver()
	if observer == nil {
		if err := delivery.Nack(false, true); err != nil {
			d.t.logger.Error("failed to nack message", "queue", d.queue, "error", err)
		}
		return
	}

	observer.OnMessage(d.ctx, inbound(delivery))
	if err := delivery.Ack(false); err != nil {
		d.t.logger.Error("failed to ack message",
			"queue", d.queue,
			"messageId", delivery.MessageId,
			"error", err)
	}
}

func (d *destination) BackChannel(msg *contracts.Message) (transport.Conduit, error) {
	replyTo := msg.GetString(contracts.PropReplyTo)
	if replyTo == "" {
		return nil, transport.ErrNoReplyTo
	}
	return &replyConduit{t: d.t, target: replyTo}, nil
}

func (d *destination) Shutdown(ctx context.Context) error {
	d.cancel()
	d.mu.Lock()
	if d.ch != nil {
		d.ch.Close()
		d.ch = nil
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.t.logger.Info("consumer stopped", "queue", d.queue)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// replyConduit publishes a response to the reply queue of a request
type replyConduit struct {
	t      *Transport
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
	pub := publishing(msg, payload)
	pub.ReplyTo = ""
	return r.t.pool.Publish(ctx, r.target, pub, r.t.confirmTimeout)
}

func (r *replyConduit) SetMessageObserver(transport.MessageObserver) {}

func (r *replyConduit) Shutdown(ctx context.Context) error { return nil }
