package port

import (
	"context"

	"github.com/nkrasner/ledger-exchange/internal/domain"
)

// Cache is the read-through layer ahead of Repository: it exists so
// `account show` and `show` can serve a read without holding a
// market's mutex.
type Cache interface {
	// SetBookView caches a symbol's top-of-book rendering.
	SetBookView(ctx context.Context, symbol string, view *domain.BookView) error

	// GetBookView returns the cached rendering, or ok=false on a miss.
	GetBookView(ctx context.Context, symbol string) (view *domain.BookView, ok bool, err error)

	// SetPendingOrder caches one resting order for point lookups
	// (cancel ownership checks, `account show`).
	SetPendingOrder(ctx context.Context, o *domain.Order) error

	// GetPendingOrder returns a cached resting order by id, or
	// ok=false on a miss.
	GetPendingOrder(ctx context.Context, orderID int64) (o *domain.Order, ok bool, err error)

	// InvalidatePendingOrder drops a cached resting order once it
	// leaves PENDING status (filled, completed, or cancelled).
	InvalidatePendingOrder(ctx context.Context, orderID int64) error
}
