package persistence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// Event is one durable-store mutation produced by a single request
// (submit or cancel). A batch of Events from possibly many requests is
// applied inside one pgx transaction, in the order they were
// generated within each request and across requests in enqueue order.
type Event interface {
	Apply(ctx context.Context, tx pgx.Tx) error
}

// OrderInserted records a brand-new resting order. Order is a value,
// not a pointer: the engine copies it at enqueue time so this event
// always applies the PENDING/filled=0 snapshot from submission, even
// though the live *domain.Order it was copied from keeps mutating
// (fills, status) on the engine side after the copy is made.
type OrderInserted struct {
	Order domain.Order
}

func (e OrderInserted) Apply(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (order_id, symbol, action, quantity, filled, price, user_id, status, time_placed, time_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.Order.ID, e.Order.Symbol, e.Order.Side, e.Order.Quantity, e.Order.Filled,
		e.Order.Price, e.Order.UserID, e.Order.Status, e.Order.PlacedAt, e.Order.UpdatedAt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO pending_orders (order_id) VALUES ($1)`, e.Order.ID)
	return err
}

// OrderFilled records a partial fill: quantity filled increases, the
// order stays PENDING and stays in pending_orders.
type OrderFilled struct {
	OrderID   int64
	Filled    decimal.Decimal
	UpdatedAt time.Time
}

func (e OrderFilled) Apply(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `UPDATE orders SET filled = $2, time_updated = $3 WHERE order_id = $1`,
		e.OrderID, e.Filled, e.UpdatedAt)
	return err
}

// OrderCompleted records an order's transition to COMPLETE: fully
// filled, dropped from pending_orders.
type OrderCompleted struct {
	OrderID   int64
	Filled    decimal.Decimal
	UpdatedAt time.Time
}

func (e OrderCompleted) Apply(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `UPDATE orders SET filled = $2, status = 'COMPLETE', time_updated = $3 WHERE order_id = $1`,
		e.OrderID, e.Filled, e.UpdatedAt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM pending_orders WHERE order_id = $1`, e.OrderID)
	return err
}

// OrderCancelled records a cancel: status flips, the order leaves
// pending_orders. quantity/filled are untouched.
type OrderCancelled struct {
	OrderID   int64
	UpdatedAt time.Time
}

func (e OrderCancelled) Apply(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `UPDATE orders SET status = 'CANCELLED', time_updated = $2 WHERE order_id = $1`,
		e.OrderID, e.UpdatedAt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM pending_orders WHERE order_id = $1`, e.OrderID)
	return err
}

// TradeExecuted records one match between an aggressor and one
// resting order it consumed.
type TradeExecuted struct {
	Trade *domain.ExecutedTrade
}

func (e TradeExecuted) Apply(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO executed_trades (symbol, action, price, filled_oid, filled_uid, filler_oid, filler_uid, exchanged, execution_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.Trade.Symbol, e.Trade.Side, e.Trade.Price, e.Trade.FilledOrderID, e.Trade.FilledUserID,
		e.Trade.FillerOrderID, e.Trade.FillerUserID, e.Trade.Quantity, e.Trade.ExecutedAt)
	return err
}

// MarketStatsDelta records one request's contribution to a market's
// cumulative counters. Deltas, not absolute values: multiple events
// for the same symbol in one batch simply add up at apply time.
type MarketStatsDelta struct {
	Symbol           string
	TotalBuysDelta   int64
	TotalSellsDelta  int64
	FilledBuysDelta  int64
	FilledSellsDelta int64
	LatestPrice      *decimal.Decimal
}

func (e MarketStatsDelta) Apply(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		UPDATE markets SET
			total_buys = total_buys + $2,
			total_sells = total_sells + $3,
			filled_buys = filled_buys + $4,
			filled_sells = filled_sells + $5,
			latest_price = COALESCE($6, latest_price)
		WHERE symbol = $1`,
		e.Symbol, e.TotalBuysDelta, e.TotalSellsDelta, e.FilledBuysDelta, e.FilledSellsDelta, e.LatestPrice)
	return err
}

// OrderIDMinted advances the single-row ExchangeStats counter that the
// engine used to mint order ids before this batch was flushed. The
// set is idempotent (GREATEST, not an overwrite): batches apply in
// enqueue order already, but a retried batch or an out-of-order
// redelivery must never walk the counter backwards.
type OrderIDMinted struct {
	NewTotal int64
}

func (e OrderIDMinted) Apply(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `UPDATE exchange_stats SET total_orders = GREATEST(total_orders, $1) WHERE key = 1`, e.NewTotal)
	return err
}
