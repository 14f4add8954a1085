// Package engine implements the matching engine: order submission,
// cancellation, and startup recovery, wired to internal/book for the
// per-market priority queues and internal/persistence for durability.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/persistence"
	"github.com/nkrasner/ledger-exchange/internal/port"
	"github.com/nkrasner/ledger-exchange/internal/registry"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine owns the live registry and the persistence buffer. One Engine
// serves the whole process; concurrency safety comes from each
// Market's own mutex, never a lock on Engine itself.
type Engine struct {
	log      *zap.Logger
	registry *registry.Registry
	buf      *persistence.Buffer
	repo     port.Repository
	cache    port.Cache

	idMu        sync.Mutex
	nextOrderID int64
}

func New(log *zap.Logger, reg *registry.Registry, buf *persistence.Buffer, repo port.Repository, cache port.Cache) *Engine {
	return &Engine{log: log, registry: reg, buf: buf, repo: repo, cache: cache}
}

// Registry exposes the underlying market registry for read paths
// (price, show, history) that don't need the full Submit/Cancel
// machinery.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Cache exposes the read-through cache so request.Service can serve
// `account show` and `show` without reaching for a market's mutex.
// May be nil (no cache configured); callers must nil-check.
func (e *Engine) Cache() port.Cache { return e.cache }

// bookViewCacheDepth matches the top-of-book depth request.Service
// renders for `show`, so a cache hit there never needs re-rendering.
const bookViewCacheDepth = 10

// refreshBookViewCache re-renders and re-caches symbol's book view.
// Called with mkt.Mu already held, so the snapshot is consistent with
// whatever mutation (Submit or Cancel) just happened.
func (e *Engine) refreshBookViewCache(ctx context.Context, mkt *registry.Market, symbol string) {
	if e.cache == nil {
		return
	}
	view := mkt.Book.View(bookViewCacheDepth)
	if err := e.cache.SetBookView(ctx, symbol, &view); err != nil {
		e.log.Warn("book view cache refresh failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (e *Engine) mintOrderID() int64 {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	e.nextOrderID++
	return e.nextOrderID
}

// MatchResult is the outcome of one Submit call: the aggressor order
// in its final state, plus every trade it generated, in execution
// order.
type MatchResult struct {
	Order  *domain.Order
	Trades []domain.ExecutedTrade
}

// Submit places a new limit order against symbol's book, matching it
// against the opposite side in price/time priority, skipping the
// submitter's own resting orders (the self-trade guard), and resting
// whatever quantity is left unmatched.
func (e *Engine) Submit(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal, userID int64) (*MatchResult, error) {
	if quantity.Sign() <= 0 || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quantity and price must be positive", xerrors.ErrValidation)
	}
	mkt, ok := e.registry.Get(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrUnknownMarket, symbol)
	}

	mkt.Mu.Lock()
	defer mkt.Mu.Unlock()

	now := time.Now()
	order := &domain.Order{
		ID:        e.mintOrderID(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Filled:    decimal.Zero,
		Price:     price,
		UserID:    userID,
		Status:    domain.Pending,
		PlacedAt:  now,
		UpdatedAt: now,
	}

	if side == domain.Buy {
		mkt.TotalBuys++
	} else {
		mkt.TotalSells++
	}

	// OrderInserted takes a value copy: order is mutated in place for
	// the rest of this call (fills, status), and the buffer's writer
	// goroutine applies this event later, on another goroutine, without
	// the market's mutex. A pointer here would be a data race and would
	// persist whatever state order happens to be in by flush time
	// instead of the PENDING/filled=0 snapshot taken at submission.
	events := []persistence.Event{persistence.OrderInserted{Order: *order}}

	opposite := side.Opposite()
	crosses := func(restingPrice decimal.Decimal) bool {
		if side == domain.Buy {
			return restingPrice.LessThanOrEqual(price)
		}
		return restingPrice.GreaterThanOrEqual(price)
	}
	isSelf := func(restingUserID int64) bool { return restingUserID == userID }

	var (
		trades           []domain.ExecutedTrade
		tradeEvents      []persistence.Event
		filledBuysDelta  int64
		filledSellsDelta int64
	)

	for order.Remaining().Sign() > 0 {
		matched, tok, held, found := mkt.Book.Lift(opposite, crosses, isSelf)
		if !found {
			break
		}

		restOrder := mkt.Pending[matched.OrderID]
		tradeQty := decimal.Min(order.Remaining(), matched.Remaining)
		newRestRemaining := matched.Remaining.Sub(tradeQty)

		trade := domain.ExecutedTrade{
			ID:            uuid.New().String(),
			Symbol:        symbol,
			Side:          side,
			Price:         matched.Price,
			FilledOrderID: matched.OrderID,
			FilledUserID:  matched.UserID,
			FillerOrderID: order.ID,
			FillerUserID:  userID,
			Quantity:      tradeQty,
			ExecutedAt:    now,
		}

		if restOrder != nil {
			restOrder.Filled = restOrder.Quantity.Sub(newRestRemaining)
			restOrder.UpdatedAt = now
		}

		if newRestRemaining.Sign() == 0 {
			mkt.Book.Restore(opposite, held...)
			mkt.Guard.Remove(matched.UserID, matched.OrderID)
			delete(mkt.Pending, matched.OrderID)
			if opposite == domain.Buy {
				filledBuysDelta++
			} else {
				filledSellsDelta++
			}
			if restOrder != nil {
				events = append(events, persistence.OrderCompleted{OrderID: matched.OrderID, Filled: restOrder.Filled, UpdatedAt: now})
			}
			if e.cache != nil {
				if err := e.cache.InvalidatePendingOrder(ctx, matched.OrderID); err != nil {
					e.log.Warn("pending order cache invalidate failed", zap.Int64("order_id", matched.OrderID), zap.Error(err))
				}
			}
		} else {
			mkt.Book.Restore(opposite, append(held, tok.WithRemaining(newRestRemaining))...)
			if restOrder != nil {
				events = append(events, persistence.OrderFilled{OrderID: matched.OrderID, Filled: restOrder.Filled, UpdatedAt: now})
			}
			if e.cache != nil && restOrder != nil {
				if err := e.cache.SetPendingOrder(ctx, restOrder); err != nil {
					e.log.Warn("pending order cache refresh failed", zap.Int64("order_id", matched.OrderID), zap.Error(err))
				}
			}
		}

		order.Filled = order.Filled.Add(tradeQty)
		trades = append(trades, trade)
		tradeEvents = append(tradeEvents, persistence.TradeExecuted{Trade: &trade})
	}

	remaining := order.Remaining()
	switch {
	case remaining.Sign() == 0:
		order.Status = domain.Complete
		if side == domain.Buy {
			filledBuysDelta++
		} else {
			filledSellsDelta++
		}
		events = append(events, persistence.OrderCompleted{OrderID: order.ID, Filled: order.Filled, UpdatedAt: now})
	default:
		mkt.Book.Insert(side, order.ID, userID, price, remaining)
		mkt.Guard.Add(userID, order.ID)
		mkt.Pending[order.ID] = order
		if order.Filled.Sign() > 0 {
			events = append(events, persistence.OrderFilled{OrderID: order.ID, Filled: order.Filled, UpdatedAt: now})
		}
		if e.cache != nil {
			if err := e.cache.SetPendingOrder(ctx, order); err != nil {
				e.log.Warn("pending order cache set failed", zap.Int64("order_id", order.ID), zap.Error(err))
			}
		}
	}

	// Trades go after every order status event of this request, ahead
	// of the market stats and the minted id.
	events = append(events, tradeEvents...)

	mkt.FilledBuys += filledBuysDelta
	mkt.FilledSells += filledSellsDelta
	if len(trades) > 0 {
		mkt.LatestPrice = &trades[len(trades)-1].Price
	}

	events = append(events, persistence.MarketStatsDelta{
		Symbol:           symbol,
		TotalBuysDelta:   boolToInt64(side == domain.Buy),
		TotalSellsDelta:  boolToInt64(side == domain.Sell),
		FilledBuysDelta:  filledBuysDelta,
		FilledSellsDelta: filledSellsDelta,
		LatestPrice:      mkt.LatestPrice,
	})
	events = append(events, persistence.OrderIDMinted{NewTotal: order.ID})

	if e.buf != nil {
		if err := e.buf.Enqueue(ctx, events); err != nil {
			return nil, err
		}
	}

	e.refreshBookViewCache(ctx, mkt, symbol)

	return &MatchResult{Order: order, Trades: trades}, nil
}

// Cancel removes the remaining quantity of a resting order, provided
// userID owns it. A cancelled order's cumulative counters are never
// decremented: total_buys/total_sells count attempted volume, not
// outstanding volume.
func (e *Engine) Cancel(ctx context.Context, symbol string, orderID, userID int64) error {
	mkt, ok := e.registry.Get(symbol)
	if !ok {
		return fmt.Errorf("%w: %s", xerrors.ErrUnknownMarket, symbol)
	}

	// Ownership never changes for a given order id, so a cache hit can
	// reject a mismatched owner without taking the market's mutex. A
	// miss or a mismatch-free hit still falls through to the
	// mkt.Pending check below, which stays authoritative.
	if e.cache != nil {
		if cached, ok, err := e.cache.GetPendingOrder(ctx, orderID); err == nil && ok && cached.UserID != userID {
			return fmt.Errorf("%w: order %d", xerrors.ErrNotOwner, orderID)
		}
	}

	mkt.Mu.Lock()
	defer mkt.Mu.Unlock()

	order, ok := mkt.Pending[orderID]
	if !ok {
		return fmt.Errorf("%w: order %d", xerrors.ErrNotPending, orderID)
	}
	if order.UserID != userID {
		return fmt.Errorf("%w: order %d", xerrors.ErrNotOwner, orderID)
	}

	mkt.Book.MarkCancelled(orderID)
	mkt.Guard.Remove(userID, orderID)
	delete(mkt.Pending, orderID)

	now := time.Now()
	order.Status = domain.Cancelled
	order.UpdatedAt = now

	if e.buf != nil {
		err := e.buf.Enqueue(ctx, []persistence.Event{
			persistence.OrderCancelled{OrderID: orderID, UpdatedAt: now},
		})
		if err != nil {
			return err
		}
	}

	if e.cache != nil {
		if err := e.cache.InvalidatePendingOrder(ctx, orderID); err != nil {
			e.log.Warn("pending order cache invalidate failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}
	e.refreshBookViewCache(ctx, mkt, symbol)

	return nil
}

// Recover rebuilds every market's live book from the durable store's
// still-pending orders, and seeds the order-id minter from
// ExchangeStats. Called once at startup, before any request is
// serviced.
func (e *Engine) Recover(ctx context.Context) error {
	markets, pending, stats, err := e.repo.Recover(ctx)
	if err != nil {
		return err
	}
	for _, m := range markets {
		e.registry.Restore(m)
	}
	if stats != nil {
		e.nextOrderID = stats.TotalOrders
	}
	touched := make(map[string]*registry.Market, len(markets))
	for _, o := range pending {
		mkt, ok := e.registry.Get(o.Symbol)
		if !ok {
			mkt = e.registry.Restore(&domain.Market{Symbol: o.Symbol})
		}
		mkt.Book.Insert(o.Side, o.ID, o.UserID, o.Price, o.Remaining())
		mkt.Guard.Add(o.UserID, o.ID)
		mkt.Pending[o.ID] = o
		touched[o.Symbol] = mkt
		if e.cache != nil {
			if err := e.cache.SetPendingOrder(ctx, o); err != nil {
				e.log.Warn("pending order cache warm failed", zap.Int64("order_id", o.ID), zap.Error(err))
			}
		}
	}
	for symbol, mkt := range touched {
		e.refreshBookViewCache(ctx, mkt, symbol)
	}
	e.log.Info("recovery complete", zap.Int("markets", len(markets)), zap.Int("pending_orders", len(pending)))
	return nil
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
