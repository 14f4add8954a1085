// Package simulate drives randomized load against a live Engine: one
// goroutine per simulated trader, each submitting a random walk of
// buy/sell orders, grounded on the original implementation's
// simulate_market (random side, +/-5% price deviation, 2-13 share
// clips) but fanned out across concurrent traders instead of one
// sequential loop, exercising the engine's per-market locking under
// real contention (spec.md §5).
package simulate

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/nkrasner/ledger-exchange/internal/accounts"
	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/engine"
	"github.com/shopspring/decimal"
)

const (
	minShares      = 2
	maxShares      = 13
	priceDeviation = 5 // percent, +/-
	basePrice      = "100.00"
)

// Config is one `simulate NUSERS NMKTS NORDERS` request.
type Config struct {
	NUsers   int
	NMarkets int
	NOrders  int
}

// Report summarizes one simulation run for the CLI response.
type Report struct {
	Users   int
	Markets []string
	Orders  int
}

// Runner owns the engine and accounts service a simulation drives.
type Runner struct {
	engine   *engine.Engine
	accounts *accounts.Service
}

func New(eng *engine.Engine, acct *accounts.Service) *Runner {
	return &Runner{engine: eng, accounts: acct}
}

// Run creates cfg.NUsers throwaway accounts and cfg.NMarkets markets
// (named SIM0, SIM1, ...), then fans cfg.NOrders orders out across
// that many concurrent trader goroutines, each independently deciding
// side, market, quantity and price.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Report, error) {
	userIDs := make([]int64, cfg.NUsers)
	for i := 0; i < cfg.NUsers; i++ {
		acct, err := r.accounts.Register(ctx, fmt.Sprintf("sim_user_%d", i), "simulated")
		if err != nil {
			return nil, err
		}
		userIDs[i] = acct.ID
	}

	symbols := make([]string, cfg.NMarkets)
	for i := 0; i < cfg.NMarkets; i++ {
		symbol := fmt.Sprintf("SIM%d", i)
		r.engine.Registry().GetOrCreate(symbol, "Simulated Market")
		symbols[i] = symbol
	}

	var placed int64
	var wg sync.WaitGroup
	perTrader := cfg.NOrders / cfg.NUsers
	remainder := cfg.NOrders % cfg.NUsers

	for i, userID := range userIDs {
		n := perTrader
		if i < remainder {
			n++
		}
		wg.Add(1)
		go func(userID int64, n int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(userID) + 1))
			for j := 0; j < n; j++ {
				symbol := symbols[rng.Intn(len(symbols))]
				side := domain.Buy
				if rng.Float64() >= 0.5 {
					side = domain.Sell
				}
				quantity := decimal.NewFromInt(int64(minShares + rng.Intn(maxShares-minShares+1)))
				price := randomWalkPrice(r.engine, symbol, rng)
				if _, err := r.engine.Submit(ctx, symbol, side, quantity, price, userID); err == nil {
					atomic.AddInt64(&placed, 1)
				}
			}
		}(userID, n)
	}
	wg.Wait()

	return &Report{Users: cfg.NUsers, Markets: symbols, Orders: int(placed)}, nil
}

func randomWalkPrice(eng *engine.Engine, symbol string, rng *rand.Rand) decimal.Decimal {
	current, err := decimal.NewFromString(basePrice)
	if err != nil {
		current = decimal.NewFromInt(100)
	}
	if mkt, ok := eng.Registry().Get(symbol); ok {
		mkt.Mu.Lock()
		if mkt.LatestPrice != nil {
			current = *mkt.LatestPrice
		}
		mkt.Mu.Unlock()
	}
	deviationPct := decimal.NewFromInt(int64(rng.Intn(2*priceDeviation+1) - priceDeviation))
	delta := current.Mul(deviationPct).Div(decimal.NewFromInt(100))
	next := current.Add(delta)
	if next.Sign() <= 0 {
		return current
	}
	return next.Round(2)
}
