package amqp

import (
	"context"
	"fmt"
	"sync"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/transport"
)

type conduit struct {
	t      *Transport
	target string

	mu         sync.Mutex
	observer   transport.MessageObserver
	replyQueue string
	replyCh    *amqp091.Channel

	ctx    context.Context
	cancel context.CancelFunc
}

func newConduit(t *Transport, target string) *conduit {
	ctx, cancel := context.WithCancel(context.Background())
	return &conduit{t: t, target: target, ctx: ctx, cancel: cancel}
}

func (c *conduit) Target() string {
	return c.target
}

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
	replyQueue, err := c.ensureReplyQueue()
	if err != nil || replyQueue == "" {
		return err
	}
	msg.Put(contracts.PropReplyTo, replyQueue)
	return nil
}

// ensureReplyQueue declares the exclusive reply queue on first use and again
// after the connection was lost
func (c *conduit) ensureReplyQueue() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.observer == nil {
		return "", nil
	}
	if c.replyCh != nil && !c.replyCh.IsClosed() {
		return c.replyQueue, nil
	}

	conn, err := c.t.manager.Connection()
	if err != nil {
		return "", err
	}
	ch, err := conn.Channel()
	if err != nil {
		return "", fmt.Errorf("open reply channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return "", &ConsumerError{Queue: "reply", Op: "declare queue", Err: err}
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return "", &ConsumerError{Queue: q.Name, Op: "consume", Err: err}
	}

	c.replyCh = ch
	c.replyQueue = q.Name
	go c.consumeReplies(q.Name, deliveries, c.observer)
	c.t.logger.Debug("reply queue declared", "queue", q.Name, "target", c.target)
	return q.Name, nil
}

func (c *conduit) consumeReplies(queue string, deliveries <-chan amqp091.Delivery, observer transport.MessageObserver) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				c.t.logger.Debug("reply queue closed", "queue", queue)
				return
			}
			observer.OnMessage(c.ctx, inbound(delivery))
		}
	}
}

func (c *conduit) Close(ctx context.Context, msg *contracts.Message) error {
	payload, ok := transport.Payload(msg)
	if !ok {
		return contracts.NewFault(contracts.FaultServer, "nothing was written to the conduit")
	}
	return c.t.pool.Publish(ctx, c.target, publishing(msg, payload), c.t.confirmTimeout)
}

func (c *conduit) Shutdown(ctx context.Context) error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replyCh != nil {
		err := c.replyCh.Close()
		c.replyCh = nil
		return err
	}
	return nil
}
