// Package port declares the boundaries the core engine talks through:
// a durable relational store and a read-through cache. Concrete
// adapters live under internal/adapter.
package port

import (
	"context"

	"github.com/nkrasner/ledger-exchange/internal/domain"
)

// Repository is the durable store's read surface, consulted outside
// the persistence buffer's write path: account lookups at
// authentication time, and the cold-start recovery scan. The write
// path (orders, trades, market counters) goes through
// internal/persistence instead, batched and transactional.
type Repository interface {
	// CreateAccount inserts a new Account, returning ErrUsernameTaken
	// if username is already registered.
	CreateAccount(ctx context.Context, username, passwordHash string) (*domain.Account, error)

	// GetAccountByUsername loads an Account by username, for
	// authentication and for `account show`.
	GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error)

	// ListOrdersByUser returns every order (any status) a user has
	// ever placed, for `account show`.
	ListOrdersByUser(ctx context.Context, userID int64) ([]*domain.Order, error)

	// ListTradesBySymbol returns the executed-trade history for a
	// symbol, for `history`.
	ListTradesBySymbol(ctx context.Context, symbol string) ([]*domain.ExecutedTrade, error)

	// GetMarket loads one market's aggregate counters.
	GetMarket(ctx context.Context, symbol string) (*domain.Market, error)

	// Recover reconstructs in-memory state at startup: every market
	// row, every still-PENDING order (joined against PendingOrders),
	// and the single ExchangeStats row that mints the next order id.
	Recover(ctx context.Context) (markets []*domain.Market, pending []*domain.Order, stats *domain.ExchangeStats, err error)

	// UpsertMarkets bulk-loads markets from upgrade_db, creating any
	// symbol that does not already exist and leaving existing rows
	// untouched.
	UpsertMarkets(ctx context.Context, markets []*domain.Market) error
}
