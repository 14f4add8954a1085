package domain

import "github.com/shopspring/decimal"

// Market is a tradable symbol's aggregate state. TotalBuys/TotalSells
// count submitted orders (cumulative, never decremented on cancel);
// FilledBuys/FilledSells count orders that transitioned to COMPLETE.
type Market struct {
	Symbol      string
	Name        string
	TotalBuys   int64
	TotalSells  int64
	FilledBuys  int64
	FilledSells int64
	LatestPrice *decimal.Decimal
}

// BookView is the read-only top-of-book rendering used by the `show`
// command and by the orderbook read-through cache; it is a point in
// time copy, never a live reference into the book's heaps.
type BookView struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
}

type BookLevel struct {
	OrderID   int64
	UserID    int64
	Price     decimal.Decimal
	Remaining decimal.Decimal
}
