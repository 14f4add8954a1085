// Package memory provides in-process Repository and Cache
// implementations, adapted from the project's original in-memory
// adapter for use in tests, without a real Postgres or Redis nearby.
package memory

import (
	"context"
	"sync"

	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/port"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
)

type Repo struct {
	mu sync.Mutex

	accountsByID   map[int64]*domain.Account
	accountsByName map[string]*domain.Account
	nextAccountID  int64

	ordersByUser map[int64][]*domain.Order
	trades       map[string][]*domain.ExecutedTrade
	markets      map[string]*domain.Market
	pending      []*domain.Order
	stats        domain.ExchangeStats
}

var _ port.Repository = (*Repo)(nil)

func NewRepo() *Repo {
	return &Repo{
		accountsByID:   make(map[int64]*domain.Account),
		accountsByName: make(map[string]*domain.Account),
		ordersByUser:   make(map[int64][]*domain.Order),
		trades:         make(map[string][]*domain.ExecutedTrade),
		markets:        make(map[string]*domain.Market),
	}
}

func (r *Repo) CreateAccount(ctx context.Context, username, passwordHash string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accountsByName[username]; exists {
		return nil, xerrors.ErrUsernameTaken
	}
	r.nextAccountID++
	acct := &domain.Account{ID: r.nextAccountID, Username: username, PasswordHash: passwordHash}
	r.accountsByID[acct.ID] = acct
	r.accountsByName[username] = acct
	return acct, nil
}

func (r *Repo) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accountsByName[username]
	if !ok {
		return nil, xerrors.ErrAuth
	}
	return acct, nil
}

func (r *Repo) ListOrdersByUser(ctx context.Context, userID int64) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Order(nil), r.ordersByUser[userID]...), nil
}

func (r *Repo) ListTradesBySymbol(ctx context.Context, symbol string) ([]*domain.ExecutedTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.ExecutedTrade(nil), r.trades[symbol]...), nil
}

func (r *Repo) GetMarket(ctx context.Context, symbol string) (*domain.Market, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markets[symbol]
	if !ok {
		return nil, xerrors.ErrUnknownMarket
	}
	cp := *m
	return &cp, nil
}

func (r *Repo) Recover(ctx context.Context) ([]*domain.Market, []*domain.Order, *domain.ExchangeStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	markets := make([]*domain.Market, 0, len(r.markets))
	for _, m := range r.markets {
		cp := *m
		markets = append(markets, &cp)
	}
	stats := r.stats
	return markets, append([]*domain.Order(nil), r.pending...), &stats, nil
}

func (r *Repo) UpsertMarkets(ctx context.Context, markets []*domain.Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range markets {
		if _, exists := r.markets[m.Symbol]; exists {
			continue
		}
		cp := *m
		r.markets[m.Symbol] = &cp
	}
	return nil
}
