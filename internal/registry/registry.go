// Package registry holds the live, in-memory market state: one
// *Market per symbol, each guarding its own order book and self-trade
// guard behind its own mutex so two symbols never contend with each
// other (spec.md §4.B/§5: per-symbol serialization, cross-symbol
// concurrency).
package registry

import (
	"sync"

	"github.com/nkrasner/ledger-exchange/internal/book"
	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// Market bundles one symbol's live book, self-trade guard, and
// aggregate counters behind a single mutex. The engine acquires Mu for
// the duration of one request (submit or cancel) and holds it while
// handing the request's events to the persistence buffer, so one
// symbol's events reach the buffer in lock order.
type Market struct {
	Mu sync.Mutex

	Book  *book.Book
	Guard *book.Guard

	// Pending holds every order currently resting in this market,
	// mirroring the durable PendingOrders table. Removed the instant
	// an order transitions to COMPLETE or CANCELLED.
	Pending map[int64]*domain.Order

	Symbol      string
	Name        string
	TotalBuys   int64
	TotalSells  int64
	FilledBuys  int64
	FilledSells int64
	LatestPrice *decimal.Decimal
}

// Snapshot copies the market's counters into a domain.Market value,
// called with Mu held.
func (m *Market) Snapshot() domain.Market {
	return domain.Market{
		Symbol:      m.Symbol,
		Name:        m.Name,
		TotalBuys:   m.TotalBuys,
		TotalSells:  m.TotalSells,
		FilledBuys:  m.FilledBuys,
		FilledSells: m.FilledSells,
		LatestPrice: m.LatestPrice,
	}
}

// Registry is the process-wide symbol -> *Market map. Reads
// (Get) are lock-free (sync.Map); creating a brand-new market takes
// the coarse creation lock, the rare path.
type Registry struct {
	markets sync.Map // string -> *Market

	createMu sync.Mutex
}

func New() *Registry {
	return &Registry{}
}

// Get returns the market for symbol, or ok=false if it has never been
// created (spec.md's UNKNOWN_MARKET condition).
func (r *Registry) Get(symbol string) (*Market, bool) {
	v, ok := r.markets.Load(symbol)
	if !ok {
		return nil, false
	}
	return v.(*Market), true
}

// GetOrCreate returns the market for symbol, creating it (with name as
// its display name) if this is the first time symbol has been seen.
// Used by upgrade_db and by simulate's market setup (Recover installs
// markets through Restore instead); the trading commands (buy/sell/cancel/price/show/history)
// only ever call Get and surface UNKNOWN_MARKET on a miss, per
// spec.md's explicit contract that trading never silently creates a
// market.
func (r *Registry) GetOrCreate(symbol, name string) *Market {
	if v, ok := r.markets.Load(symbol); ok {
		return v.(*Market)
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()
	if v, ok := r.markets.Load(symbol); ok {
		return v.(*Market)
	}
	m := &Market{
		Symbol:  symbol,
		Name:    name,
		Book:    book.New(symbol),
		Guard:   book.NewGuard(),
		Pending: make(map[int64]*domain.Order),
	}
	r.markets.Store(symbol, m)
	return m
}

// Symbols returns every known symbol, in no particular order.
func (r *Registry) Symbols() []string {
	var out []string
	r.markets.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	return out
}

// Restore installs a market loaded from Recover, bypassing the normal
// creation path since the registry is still single-threaded at
// startup.
func (r *Registry) Restore(mkt *domain.Market) *Market {
	m := &Market{
		Symbol:      mkt.Symbol,
		Name:        mkt.Name,
		Book:        book.New(mkt.Symbol),
		Guard:       book.NewGuard(),
		Pending:     make(map[int64]*domain.Order),
		TotalBuys:   mkt.TotalBuys,
		TotalSells:  mkt.TotalSells,
		FilledBuys:  mkt.FilledBuys,
		FilledSells: mkt.FilledSells,
		LatestPrice: mkt.LatestPrice,
	}
	r.markets.Store(mkt.Symbol, m)
	return m
}
