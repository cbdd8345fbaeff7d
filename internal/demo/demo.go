// Package demo is the inventory service served and called by relayctl.
package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/glimte/relay-go/invoker"
)

const (
	// ServiceName is the name the inventory is published under
	ServiceName = "inventory"
	// Namespace qualifies ServiceName
	Namespace = "urn:relay:demo"
	// OutOfStockFault is the declared fault of Reserve
	OutOfStockFault = "outOfStock"
)

// ErrUnknownSKU is returned for items the inventory has never stocked
var ErrUnknownSKU = errors.New("unknown sku")

// StockQuery asks for the level of one item
type StockQuery struct {
	SKU string `json:"sku" description:"stock keeping unit"`
}

// StockLevel is the available quantity of one item
type StockLevel struct {
	SKU       string `json:"sku"`
	Available int    `json:"available"`
}

// Reservation takes quantity items out of stock
type Reservation struct {
	SKU      string `json:"sku" description:"stock keeping unit"`
	Quantity int    `json:"quantity" description:"items to reserve"`
}

// Receipt confirms a reservation
type Receipt struct {
	SKU       string `json:"sku"`
	Reserved  int    `json:"reserved"`
	Remaining int    `json:"remaining"`
}

// Shipment restocks an item
type Shipment struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// OutOfStock is the detail of the outOfStock fault
type OutOfStock struct {
	SKU       string `json:"sku"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func (e *OutOfStock) Error() string {
	return fmt.Sprintf("sku %s: requested %d, only %d available", e.SKU, e.Requested, e.Available)
}

// FaultName routes the error to the declared fault
func (e *OutOfStock) FaultName() string { return OutOfStockFault }

// Inventory is an in-memory stock book
type Inventory struct {
	logger *slog.Logger

	mu    sync.Mutex
	stock map[string]int
}

// NewInventory creates an inventory with some stock
func NewInventory(logger *slog.Logger) *Inventory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inventory{
		logger: logger,
		stock: map[string]int{
			"widget":   12,
			"sprocket": 3,
			"gizmo":    0,
		},
	}
}

// Level returns the stock level of an item
func (i *Inventory) Level(ctx context.Context, q *StockQuery) (*StockLevel, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	available, ok := i.stock[q.SKU]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSKU, q.SKU)
	}
	return &StockLevel{SKU: q.SKU, Available: available}, nil
}

// Reserve takes items out of stock or fails with OutOfStock
func (i *Inventory) Reserve(ctx context.Context, r *Reservation) (*Receipt, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	available, ok := i.stock[r.SKU]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSKU, r.SKU)
	}
	if r.Quantity > available {
		return nil, &OutOfStock{SKU: r.SKU, Requested: r.Quantity, Available: available}
	}
	i.stock[r.SKU] = available - r.Quantity
	i.logger.Debug("stock reserved", "sku", r.SKU, "quantity", r.Quantity, "remaining", i.stock[r.SKU])
	return &Receipt{SKU: r.SKU, Reserved: r.Quantity, Remaining: i.stock[r.SKU]}, nil
}

// Restock adds a shipment. It has no response.
func (i *Inventory) Restock(ctx context.Context, s *Shipment) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stock[s.SKU] += s.Quantity
	i.logger.Info("stock received", "sku", s.SKU, "quantity", s.Quantity, "available", i.stock[s.SKU])
	return nil
}

// SKUs lists the stocked items
func (i *Inventory) SKUs() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	skus := make([]string, 0, len(i.stock))
	for sku := range i.stock {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

// BuildOptions declares the contract details BuildService cannot infer
func BuildOptions() []invoker.BuildOption {
	return []invoker.BuildOption{
		invoker.WithVersion("1.0.0"),
		invoker.WithSchemas(),
		invoker.WithFault("Reserve", OutOfStockFault, OutOfStock{}),
	}
}
