package contracts

import (
	"context"
	"encoding/json"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
)

// Direction identifies which way a message travels through the pipeline
type Direction int

const (
	// Inbound messages arrive from a transport
	Inbound Direction = iota
	// Outbound messages leave through a transport
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Opposite returns the other direction
func (d Direction) Opposite() Direction {
	if d == Inbound {
		return Outbound
	}
	return Inbound
}

// Well-known message property keys
const (
	PropOperation     = "relay.operation"
	PropCorrelationID = "relay.correlationId"
	PropReplyTo       = "relay.replyTo"
	PropAddress       = "relay.address"
	PropContentType   = "relay.contentType"
)

// Body is the undecoded JSON payload of a message
type Body json.RawMessage

// Parts holds the decoded message parts in part order
type Parts []interface{}

// Chain is the view of an interceptor chain available to code holding a message
type Chain interface {
	// Pause stops the chain after the current interceptor returns
	Pause()
	// Resume continues a paused chain from the next unexecuted interceptor
	Resume(ctx context.Context) error
	// Abort stops the chain without raising a fault
	Abort()
}

// Message is one leg of a call: a property bag with typed content, headers,
// and a back-reference to its exchange
type Message struct {
	ID        string
	Direction Direction
	Headers   map[string]string

	props     Properties
	content   map[reflect.Type]interface{}
	exchange  *Exchange
	chain     Chain
	fault     atomic.Pointer[Fault]
	requestor bool
}

// NewMessage creates an empty message travelling in the given direction
func NewMessage(direction Direction) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Direction: direction,
		Headers:   make(map[string]string),
		content:   make(map[reflect.Type]interface{}),
	}
}

// Put stores a message property
func (m *Message) Put(key string, value interface{}) {
	m.props.Put(key, value)
}

// Get retrieves a message property
func (m *Message) Get(key string) (interface{}, bool) {
	return m.props.Get(key)
}

// GetString retrieves a string message property
func (m *Message) GetString(key string) string {
	return m.props.GetString(key)
}

// Remove deletes a message property
func (m *Message) Remove(key string) {
	m.props.Remove(key)
}

// Properties exposes the underlying property bag
func (m *Message) Properties() *Properties {
	return &m.props
}

// Header returns a header value
func (m *Message) Header(name string) string {
	return m.Headers[name]
}

// SetHeader sets a header value
func (m *Message) SetHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[name] = value
}

// Exchange returns the exchange this message belongs to, or nil
func (m *Message) Exchange() *Exchange {
	return m.exchange
}

// Chain returns the chain currently processing the message, or nil
func (m *Message) Chain() Chain {
	return m.chain
}

// SetChain records the chain processing the message
func (m *Message) SetChain(chain Chain) {
	m.chain = chain
}

// Fault returns the fault raised while processing the message. It is safe to
// call while another goroutine sets the fault.
func (m *Message) Fault() *Fault {
	return m.fault.Load()
}

// SetFault records a fault on the message
func (m *Message) SetFault(fault *Fault) {
	m.fault.Store(fault)
}

// IsRequestor reports whether the message belongs to the client side of an exchange
func (m *Message) IsRequestor() bool {
	return m.requestor
}

// SetRequestor marks the message as belonging to the client side
func (m *Message) SetRequestor(requestor bool) {
	m.requestor = requestor
}

// Operation returns the operation name recorded on the message
func (m *Message) Operation() string {
	return m.props.GetString(PropOperation)
}

// CorrelationID returns the correlation id recorded on the message
func (m *Message) CorrelationID() string {
	return m.props.GetString(PropCorrelationID)
}

// SetContent stores content of type T on the message
func SetContent[T any](m *Message, value T) {
	if m.content == nil {
		m.content = make(map[reflect.Type]interface{})
	}
	m.content[reflect.TypeFor[T]()] = value
}

// Content retrieves content of type T from the message
func Content[T any](m *Message) (T, bool) {
	var zero T
	value, exists := m.content[reflect.TypeFor[T]()]
	if !exists {
		return zero, false
	}
	typed, ok := value.(T)
	return typed, ok
}

// RemoveContent drops content of type T from the message
func RemoveContent[T any](m *Message) {
	delete(m.content, reflect.TypeFor[T]())
}
