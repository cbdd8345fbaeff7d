package local

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAddressInUse is returned when two receivers bind the same address
	ErrAddressInUse = errors.New("local: address in use")
	// ErrNoRoute is returned when nothing listens on the target address
	ErrNoRoute = errors.New("local: no route to address")
)

type frame struct {
	payload       []byte
	correlationID string
	replyTo       string
	headers       map[string]string
}

type receiver func(f frame)

// Hub routes frames between destinations and conduits of one process by
// address. It plays the part of the broker.
type Hub struct {
	mu     sync.RWMutex
	routes map[string]receiver
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{routes: make(map[string]receiver)}
}

func (h *Hub) bind(address string, r receiver) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.routes[address]; exists {
		return fmt.Errorf("%w: %s", ErrAddressInUse, address)
	}
	h.routes[address] = r
	return nil
}

func (h *Hub) unbind(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.routes, address)
}

func (h *Hub) send(address string, f frame) error {
	h.mu.RLock()
	r, ok := h.routes[address]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRoute, address)
	}
	f.payload = append([]byte(nil), f.payload...)
	r(f)
	return nil
}

// Addresses lists the bound addresses
func (h *Hub) Addresses() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.routes))
	for address := range h.routes {
		out = append(out, address)
	}
	return out
}
