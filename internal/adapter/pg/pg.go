// Package pg is the durable repository adapter backing internal/port.
// Tables follow the account/markets/orders/pending_orders/
// executed_trades/exchange_stats layout, int64 keyed throughout; the
// orders table carries a low fillfactor since its rows are mutated
// repeatedly as fills accumulate.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/port"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
)

var _ port.Repository = (*PgRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS account (
	id SERIAL PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	register_time TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS markets (
	symbol TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	total_buys BIGINT NOT NULL DEFAULT 0,
	total_sells BIGINT NOT NULL DEFAULT 0,
	filled_buys BIGINT NOT NULL DEFAULT 0,
	filled_sells BIGINT NOT NULL DEFAULT 0,
	latest_price NUMERIC
);

CREATE TABLE IF NOT EXISTS orders (
	order_id BIGINT PRIMARY KEY,
	symbol TEXT NOT NULL REFERENCES markets(symbol),
	action TEXT NOT NULL,
	quantity NUMERIC NOT NULL,
	filled NUMERIC NOT NULL DEFAULT 0,
	price NUMERIC NOT NULL,
	user_id BIGINT NOT NULL REFERENCES account(id),
	status TEXT NOT NULL,
	time_placed TIMESTAMPTZ NOT NULL,
	time_updated TIMESTAMPTZ NOT NULL
) WITH (fillfactor = 70);

CREATE TABLE IF NOT EXISTS pending_orders (
	order_id BIGINT PRIMARY KEY REFERENCES orders(order_id)
);

CREATE TABLE IF NOT EXISTS executed_trades (
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	price NUMERIC NOT NULL,
	filled_oid BIGINT NOT NULL REFERENCES orders(order_id),
	filled_uid BIGINT NOT NULL REFERENCES account(id),
	filler_oid BIGINT NOT NULL REFERENCES orders(order_id),
	filler_uid BIGINT NOT NULL REFERENCES account(id),
	exchanged NUMERIC NOT NULL,
	execution_time TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (filled_oid, filler_oid)
);

CREATE TABLE IF NOT EXISTS exchange_stats (
	key INT PRIMARY KEY,
	total_orders BIGINT NOT NULL DEFAULT 0
);
INSERT INTO exchange_stats (key, total_orders) VALUES (1, 0) ON CONFLICT DO NOTHING;
`

type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finished working with the database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

// Pool exposes the underlying pool so internal/persistence can begin
// its own batch transactions against the same connections.
func (p *PgRepo) Pool() *pgxpool.Pool { return p.pool }

func (p *PgRepo) Close(ctx context.Context) {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Bootstrap applies the schema; every statement is IF NOT EXISTS or
// ON CONFLICT DO NOTHING so it is safe to run on every startup.
func (p *PgRepo) Bootstrap(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return err
}

func (p *PgRepo) CreateAccount(ctx context.Context, username, passwordHash string) (*domain.Account, error) {
	var acct domain.Account
	err := p.pool.QueryRow(ctx, `
INSERT INTO account(username, password) VALUES ($1, $2)
RETURNING id, username, password, register_time
`, username, passwordHash).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.RegisteredAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: username %q taken", xerrors.ErrUsernameTaken, username)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (p *PgRepo) GetAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var acct domain.Account
	err := p.pool.QueryRow(ctx, `
SELECT id, username, password, register_time FROM account WHERE username = $1
`, username).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.RegisteredAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrAuth, err)
	}
	return &acct, nil
}

// ListOrdersByUser returns every order a user has ever placed, FIFO by
// placement time, regardless of status.
func (p *PgRepo) ListOrdersByUser(ctx context.Context, userID int64) ([]*domain.Order, error) {
	rows, err := p.pool.Query(ctx, `
SELECT order_id, symbol, action, quantity, filled, price, user_id, status, time_placed, time_updated
FROM orders WHERE user_id = $1 ORDER BY time_placed ASC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PgRepo) ListTradesBySymbol(ctx context.Context, symbol string) ([]*domain.ExecutedTrade, error) {
	rows, err := p.pool.Query(ctx, `
SELECT symbol, action, price, filled_oid, filled_uid, filler_oid, filler_uid, exchanged, execution_time
FROM executed_trades WHERE symbol = $1 ORDER BY execution_time ASC
`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ExecutedTrade
	for rows.Next() {
		var t domain.ExecutedTrade
		var side string
		if err := rows.Scan(&t.Symbol, &side, &t.Price, &t.FilledOrderID, &t.FilledUserID, &t.FillerOrderID, &t.FillerUserID, &t.Quantity, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (p *PgRepo) GetMarket(ctx context.Context, symbol string) (*domain.Market, error) {
	var m domain.Market
	err := p.pool.QueryRow(ctx, `
SELECT symbol, name, total_buys, total_sells, filled_buys, filled_sells, latest_price
FROM markets WHERE symbol = $1
`, symbol).Scan(&m.Symbol, &m.Name, &m.TotalBuys, &m.TotalSells, &m.FilledBuys, &m.FilledSells, &m.LatestPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrUnknownMarket, err)
	}
	return &m, nil
}

// Recover loads every market, every still-pending order (rebuilding a
// book requires the orders grouped by symbol, so they are returned
// ordered that way) and the order id counter, for replaying into a
// fresh registry and engine at startup.
func (p *PgRepo) Recover(ctx context.Context) ([]*domain.Market, []*domain.Order, *domain.ExchangeStats, error) {
	mrows, err := p.pool.Query(ctx, `
SELECT symbol, name, total_buys, total_sells, filled_buys, filled_sells, latest_price FROM markets
`)
	if err != nil {
		return nil, nil, nil, err
	}
	var markets []*domain.Market
	for mrows.Next() {
		var m domain.Market
		if err := mrows.Scan(&m.Symbol, &m.Name, &m.TotalBuys, &m.TotalSells, &m.FilledBuys, &m.FilledSells, &m.LatestPrice); err != nil {
			mrows.Close()
			return nil, nil, nil, err
		}
		markets = append(markets, &m)
	}
	mrows.Close()
	if err := mrows.Err(); err != nil {
		return nil, nil, nil, err
	}

	orows, err := p.pool.Query(ctx, `
SELECT o.order_id, o.symbol, o.action, o.quantity, o.filled, o.price, o.user_id, o.status, o.time_placed, o.time_updated
FROM pending_orders pe JOIN orders o ON o.order_id = pe.order_id
ORDER BY o.symbol, o.action, o.time_placed ASC
`)
	if err != nil {
		return nil, nil, nil, err
	}
	var pending []*domain.Order
	for orows.Next() {
		o, err := scanOrder(orows)
		if err != nil {
			orows.Close()
			return nil, nil, nil, err
		}
		pending = append(pending, o)
	}
	orows.Close()
	if err := orows.Err(); err != nil {
		return nil, nil, nil, err
	}

	var stats domain.ExchangeStats
	if err := p.pool.QueryRow(ctx, `SELECT total_orders FROM exchange_stats WHERE key = 1`).Scan(&stats.TotalOrders); err != nil {
		return nil, nil, nil, err
	}

	return markets, pending, &stats, nil
}

// UpsertMarkets bulk-registers markets from upgrade_db; existing
// symbols are left untouched so their accumulated counters survive a
// re-run of the same CSV.
func (p *PgRepo) UpsertMarkets(ctx context.Context, markets []*domain.Market) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, m := range markets {
		if _, err := tx.Exec(ctx, `
INSERT INTO markets(symbol, name) VALUES ($1, $2)
ON CONFLICT (symbol) DO NOTHING
`, m.Symbol, m.Name); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var side, status string
	if err := row.Scan(&o.ID, &o.Symbol, &side, &o.Quantity, &o.Filled, &o.Price, &o.UserID, &status, &o.PlacedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
