package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/service"
)

var (
	// ErrUnknownTransport is returned when no factory serves a transport ID
	ErrUnknownTransport = errors.New("transport: unknown transport")
	// ErrShutdown is returned by destinations and conduits after Shutdown
	ErrShutdown = errors.New("transport: shut down")
	// ErrNoReplyTo is returned when a back channel is requested for a message
	// that names no reply address
	ErrNoReplyTo = errors.New("transport: message has no reply address")
)

// MessageObserver receives inbound messages from a Destination or the
// responses arriving on a Conduit
type MessageObserver interface {
	OnMessage(ctx context.Context, msg *contracts.Message)
}

// MessageObserverFunc is a function adapter for MessageObserver
type MessageObserverFunc func(ctx context.Context, msg *contracts.Message)

// OnMessage implements MessageObserver
func (f MessageObserverFunc) OnMessage(ctx context.Context, msg *contracts.Message) {
	f(ctx, msg)
}

// Destination is the inbound side of a transport. Messages it receives carry
// their raw payload as []byte content and the transport's correlation ID and
// reply address as properties.
type Destination interface {
	Address() string
	SetMessageObserver(observer MessageObserver)
	MessageObserver() MessageObserver
	// BackChannel returns a conduit that carries the response to msg
	BackChannel(msg *contracts.Message) (Conduit, error)
	Shutdown(ctx context.Context) error
}

// Conduit is the outbound side of a transport
type Conduit interface {
	Target() string
	// Prepare attaches an output buffer to msg and, for requests, the reply
	// address responses will arrive on
	Prepare(ctx context.Context, msg *contracts.Message) error
	// Close sends the buffered payload of msg
	Close(ctx context.Context, msg *contracts.Message) error
	SetMessageObserver(observer MessageObserver)
	Shutdown(ctx context.Context) error
}

// DestinationFactory creates destinations for endpoints of one transport
type DestinationFactory interface {
	TransportID() string
	Destination(ctx context.Context, ep *service.EndpointInfo) (Destination, error)
}

// ConduitFactory creates conduits to endpoints of one transport
type ConduitFactory interface {
	TransportID() string
	Conduit(ctx context.Context, ep *service.EndpointInfo) (Conduit, error)
}

// Factory serves both sides of a transport
type Factory interface {
	DestinationFactory
	ConduitFactory
}

// Registry maps transport IDs to destination and conduit factories
type Registry struct {
	mu           sync.RWMutex
	destinations map[string]DestinationFactory
	conduits     map[string]ConduitFactory
}

// NewRegistry creates a registry holding the given transports
func NewRegistry(factories ...Factory) *Registry {
	r := &Registry{
		destinations: make(map[string]DestinationFactory),
		conduits:     make(map[string]ConduitFactory),
	}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register adds both sides of a transport, replacing earlier registrations
func (r *Registry) Register(f Factory) {
	r.RegisterDestinationFactory(f)
	r.RegisterConduitFactory(f)
}

// RegisterDestinationFactory adds an inbound-only transport
func (r *Registry) RegisterDestinationFactory(f DestinationFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[f.TransportID()] = f
}

// RegisterConduitFactory adds an outbound-only transport
func (r *Registry) RegisterConduitFactory(f ConduitFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conduits[f.TransportID()] = f
}

// Destination creates the destination for an endpoint
func (r *Registry) Destination(ctx context.Context, ep *service.EndpointInfo) (Destination, error) {
	r.mu.RLock()
	f, ok := r.destinations[ep.TransportID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, ep.TransportID)
	}
	return f.Destination(ctx, ep)
}

// Conduit creates a conduit to an endpoint
func (r *Registry) Conduit(ctx context.Context, ep *service.EndpointInfo) (Conduit, error) {
	r.mu.RLock()
	f, ok := r.conduits[ep.TransportID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, ep.TransportID)
	}
	return f.Conduit(ctx, ep)
}

// TransportIDs lists every registered transport, sorted
func (r *Registry) TransportIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for id := range r.destinations {
		seen[id] = struct{}{}
	}
	for id := range r.conduits {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Payload returns the bytes written to msg's output buffer
func Payload(msg *contracts.Message) ([]byte, bool) {
	buf, ok := contracts.Content[*bytes.Buffer](msg)
	if !ok || buf == nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// NewInbound creates the inbound message a destination or conduit hands to
// its observer
func NewInbound(payload []byte, correlationID, replyTo string, headers map[string]string) *contracts.Message {
	msg := contracts.NewMessage(contracts.Inbound)
	contracts.SetContent(msg, payload)
	if correlationID != "" {
		msg.Put(contracts.PropCorrelationID, correlationID)
	}
	if replyTo != "" {
		msg.Put(contracts.PropReplyTo, replyTo)
	}
	for name, value := range headers {
		msg.SetHeader(name, value)
	}
	return msg
}

// PrepareBuffer attaches a fresh output buffer to msg
func PrepareBuffer(msg *contracts.Message) *bytes.Buffer {
	buf := &bytes.Buffer{}
	contracts.SetContent(msg, buf)
	return buf
}
