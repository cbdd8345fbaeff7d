package contracts

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Exchange correlates the messages of one logical call. It owns the inbound,
// outbound and fault messages and carries contextual bindings as typed attachments.
type Exchange struct {
	ID string

	mu          sync.RWMutex
	in          *Message
	out         *Message
	inFault     *Message
	outFault    *Message
	props       Properties
	attachments map[reflect.Type]interface{}
	oneWay      bool
	synchronous bool
	dispatched  bool
	createdAt   time.Time

	onComplete []func()
	done       chan struct{}
	completed  bool
}

// NewExchange creates a new exchange
func NewExchange() *Exchange {
	return &Exchange{
		ID:          uuid.New().String(),
		attachments: make(map[reflect.Type]interface{}),
		synchronous: true,
		createdAt:   time.Now().UTC(),
		done:        make(chan struct{}),
	}
}

func (e *Exchange) setMessage(slot **Message, msg *Message) {
	e.mu.Lock()
	*slot = msg
	e.mu.Unlock()
	if msg != nil {
		msg.exchange = e
	}
}

func (e *Exchange) message(slot **Message) *Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return *slot
}

// InMessage returns the inbound message
func (e *Exchange) InMessage() *Message { return e.message(&e.in) }

// SetInMessage sets the inbound message and binds it to the exchange
func (e *Exchange) SetInMessage(msg *Message) { e.setMessage(&e.in, msg) }

// OutMessage returns the outbound message
func (e *Exchange) OutMessage() *Message { return e.message(&e.out) }

// SetOutMessage sets the outbound message and binds it to the exchange
func (e *Exchange) SetOutMessage(msg *Message) { e.setMessage(&e.out, msg) }

// InFaultMessage returns the inbound fault message
func (e *Exchange) InFaultMessage() *Message { return e.message(&e.inFault) }

// SetInFaultMessage sets the inbound fault message and binds it to the exchange
func (e *Exchange) SetInFaultMessage(msg *Message) { e.setMessage(&e.inFault, msg) }

// OutFaultMessage returns the outbound fault message
func (e *Exchange) OutFaultMessage() *Message { return e.message(&e.outFault) }

// SetOutFaultMessage sets the outbound fault message and binds it to the exchange
func (e *Exchange) SetOutFaultMessage(msg *Message) { e.setMessage(&e.outFault, msg) }

// Put stores an exchange property
func (e *Exchange) Put(key string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props.Put(key, value)
}

// Get retrieves an exchange property
func (e *Exchange) Get(key string) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.props.Get(key)
}

// GetString retrieves a string exchange property
func (e *Exchange) GetString(key string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.props.GetString(key)
}

// OneWay reports whether the exchange expects no response
func (e *Exchange) OneWay() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.oneWay
}

// SetOneWay marks the exchange as one-way
func (e *Exchange) SetOneWay(oneWay bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oneWay = oneWay
}

// Synchronous reports whether the caller blocks for completion
func (e *Exchange) Synchronous() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.synchronous
}

// SetSynchronous marks the exchange as synchronous or asynchronous
func (e *Exchange) SetSynchronous(synchronous bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synchronous = synchronous
}

// MarkDispatched records that a message of the exchange left through a
// conduit. It reports false when one already had.
func (e *Exchange) MarkDispatched() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dispatched {
		return false
	}
	e.dispatched = true
	return true
}

// Dispatched reports whether a message of the exchange was sent
func (e *Exchange) Dispatched() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dispatched
}

// CreatedAt returns when the exchange was created
func (e *Exchange) CreatedAt() time.Time {
	return e.createdAt
}

// OnComplete registers a callback run once when the exchange completes.
// A callback registered after completion runs immediately.
func (e *Exchange) OnComplete(fn func()) {
	e.mu.Lock()
	if e.completed {
		e.mu.Unlock()
		fn()
		return
	}
	e.onComplete = append(e.onComplete, fn)
	e.mu.Unlock()
}

// Complete marks the exchange as finished and runs completion callbacks.
// Calling Complete more than once has no further effect.
func (e *Exchange) Complete() {
	e.mu.Lock()
	if e.completed {
		e.mu.Unlock()
		return
	}
	e.completed = true
	callbacks := e.onComplete
	e.onComplete = nil
	e.mu.Unlock()

	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i]()
	}
	close(e.done)
}

// Done is closed when the exchange completes
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// IsComplete reports whether Complete has been called
func (e *Exchange) IsComplete() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.completed
}

// Fault returns the first fault found on the exchange's messages
func (e *Exchange) Fault() *Fault {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, msg := range []*Message{e.outFault, e.inFault, e.in, e.out} {
		if msg == nil {
			continue
		}
		if f := msg.Fault(); f != nil {
			return f
		}
	}
	return nil
}

// Failed reports whether the exchange carries a fault
func (e *Exchange) Failed() bool {
	return e.Fault() != nil
}

// Attach stores a contextual binding keyed by its type T
func Attach[T any](e *Exchange, value T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attachments[reflect.TypeFor[T]()] = value
}

// Attached retrieves the contextual binding of type T
func Attached[T any](e *Exchange) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	value, exists := e.attachments[reflect.TypeFor[T]()]
	if !exists {
		return zero, false
	}
	typed, ok := value.(T)
	return typed, ok
}

// Detach removes the contextual binding of type T
func Detach[T any](e *Exchange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.attachments, reflect.TypeFor[T]())
}
