// Package domain holds the exchange's core value types: accounts,
// markets, orders and executed trades. Nothing in this package talks
// to a database or a socket; it is pure state shared by internal/book,
// internal/engine and internal/persistence.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Complete  OrderStatus = "COMPLETE"
	Cancelled OrderStatus = "CANCELLED"
)

// Order is a user's intent to trade on a market. The order_id is
// minted by the engine (its counter seeded from
// ExchangeStats.TotalOrders at recovery) before the order is ever shown
// to the book, so it is stable for the order's entire lifetime.
type Order struct {
	ID        int64
	Symbol    string
	Side      Side
	Quantity  decimal.Decimal
	Filled    decimal.Decimal
	Price     decimal.Decimal
	UserID    int64
	Status    OrderStatus
	PlacedAt  time.Time
	UpdatedAt time.Time
}

// Remaining is quantity minus filled; PENDING orders always have
// Remaining > 0, COMPLETE and CANCELLED orders never rest in a book.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

func (o *Order) IsComplete() bool {
	return o.Filled.Equal(o.Quantity)
}
