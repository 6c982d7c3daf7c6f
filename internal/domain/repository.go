package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderRepository is the only way orders are loaded and persisted.
//
// An implementation is a unit of work scoped to one caller: Add and GetByID
// register aggregates, and SaveChanges durably applies every pending change in
// a single atomic commit. Storage failures are returned as *PersistenceError.
type OrderRepository interface {
	// GetByID returns (nil, nil) when no order has the given id.
	GetByID(ctx context.Context, id OrderID) (*Order, error)
	Add(order *Order)
	SaveChanges(ctx context.Context) error
}

// OrderSummary is the listing projection of a stored order.
type OrderSummary struct {
	ID          OrderID
	TotalAmount decimal.Decimal
	Currency    string
	ItemCount   int
}

// OrderLister is implemented by adapters that can list stored orders.
type OrderLister interface {
	List(ctx context.Context) ([]OrderSummary, error)
}
