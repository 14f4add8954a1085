package engine

import (
	"context"
	"testing"

	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/registry"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine() *Engine {
	reg := registry.New()
	reg.GetOrCreate("ACME", "Acme Corp")
	return New(zap.NewNop(), reg, nil, nil, nil)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSubmitUnknownMarket(t *testing.T) {
	e := newTestEngine()
	_, err := e.Submit(context.Background(), "NOPE", domain.Buy, dec("1"), dec("10"), 1)
	require.ErrorIs(t, err, xerrors.ErrUnknownMarket)
}

func TestSubmitRejectsNonPositiveQuantityOrPrice(t *testing.T) {
	e := newTestEngine()
	_, err := e.Submit(context.Background(), "ACME", domain.Buy, dec("0"), dec("10"), 1)
	require.ErrorIs(t, err, xerrors.ErrValidation)

	_, err = e.Submit(context.Background(), "ACME", domain.Buy, dec("1"), dec("0"), 1)
	require.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestSubmitRestsWhenNoCross(t *testing.T) {
	e := newTestEngine()
	res, err := e.Submit(context.Background(), "ACME", domain.Buy, dec("10"), dec("9.00"), 1)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, domain.Pending, res.Order.Status)

	mkt, _ := e.Registry().Get("ACME")
	assert.True(t, mkt.Book.Has(res.Order.ID))
}

func TestSubmitFullMatchCompletesBothOrders(t *testing.T) {
	e := newTestEngine()
	sell, err := e.Submit(context.Background(), "ACME", domain.Sell, dec("5"), dec("10.00"), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Pending, sell.Order.Status)

	buy, err := e.Submit(context.Background(), "ACME", domain.Buy, dec("5"), dec("10.00"), 2)
	require.NoError(t, err)

	require.Len(t, buy.Trades, 1)
	assert.True(t, buy.Trades[0].Quantity.Equal(dec("5")))
	assert.Equal(t, domain.Complete, buy.Order.Status)

	mkt, _ := e.Registry().Get("ACME")
	assert.False(t, mkt.Book.Has(sell.Order.ID), "fully filled resting order must leave the book")
}

func TestSubmitPartialFillLeavesResidualResting(t *testing.T) {
	e := newTestEngine()
	_, err := e.Submit(context.Background(), "ACME", domain.Sell, dec("10"), dec("10.00"), 1)
	require.NoError(t, err)

	buy, err := e.Submit(context.Background(), "ACME", domain.Buy, dec("4"), dec("10.00"), 2)
	require.NoError(t, err)
	require.Len(t, buy.Trades, 1)
	assert.True(t, buy.Trades[0].Quantity.Equal(dec("4")))
	assert.Equal(t, domain.Complete, buy.Order.Status)

	mkt, _ := e.Registry().Get("ACME")
	top, ok := mkt.Book.PeekBest(domain.Sell)
	require.True(t, ok)
	assert.True(t, top.Remaining.Equal(dec("6")))
}

func TestSubmitSelfTradeRestsInsteadOfMatching(t *testing.T) {
	e := newTestEngine()
	_, err := e.Submit(context.Background(), "ACME", domain.Sell, dec("5"), dec("10.00"), 1)
	require.NoError(t, err)

	buy, err := e.Submit(context.Background(), "ACME", domain.Buy, dec("5"), dec("10.00"), 1)
	require.NoError(t, err)

	assert.Empty(t, buy.Trades, "self-trade must not generate a fill")
	assert.Equal(t, domain.Pending, buy.Order.Status)

	mkt, _ := e.Registry().Get("ACME")
	assert.True(t, mkt.Book.Has(buy.Order.ID))
	sellTop, ok := mkt.Book.PeekBest(domain.Sell)
	require.True(t, ok)
	assert.True(t, sellTop.Remaining.Equal(dec("5")), "the self-owned resting order must be untouched")
}

func TestSubmitSkipsSelfThenMatchesNextCandidate(t *testing.T) {
	e := newTestEngine()
	_, err := e.Submit(context.Background(), "ACME", domain.Sell, dec("5"), dec("10.00"), 1) // own order, better price/time
	require.NoError(t, err)
	_, err = e.Submit(context.Background(), "ACME", domain.Sell, dec("5"), dec("10.00"), 9) // counterparty
	require.NoError(t, err)

	buy, err := e.Submit(context.Background(), "ACME", domain.Buy, dec("5"), dec("10.00"), 1)
	require.NoError(t, err)

	require.Len(t, buy.Trades, 1)
	assert.Equal(t, int64(9), buy.Trades[0].FilledUserID)

	mkt, _ := e.Registry().Get("ACME")
	assert.True(t, mkt.Book.Has(1), "own order must still be resting, untouched")
}

func TestCancelUnknownMarket(t *testing.T) {
	e := newTestEngine()
	err := e.Cancel(context.Background(), "NOPE", 1, 1)
	require.ErrorIs(t, err, xerrors.ErrUnknownMarket)
}

func TestCancelNotPending(t *testing.T) {
	e := newTestEngine()
	err := e.Cancel(context.Background(), "ACME", 999, 1)
	require.ErrorIs(t, err, xerrors.ErrNotPending)
}

func TestCancelNotOwner(t *testing.T) {
	e := newTestEngine()
	res, err := e.Submit(context.Background(), "ACME", domain.Buy, dec("5"), dec("9.00"), 1)
	require.NoError(t, err)

	err = e.Cancel(context.Background(), "ACME", res.Order.ID, 2)
	require.ErrorIs(t, err, xerrors.ErrNotOwner)
}

func TestCancelRemovesFromBookAndDoesNotDecrementTotals(t *testing.T) {
	e := newTestEngine()
	res, err := e.Submit(context.Background(), "ACME", domain.Buy, dec("5"), dec("9.00"), 1)
	require.NoError(t, err)

	mkt, _ := e.Registry().Get("ACME")
	totalBefore := mkt.TotalBuys

	err = e.Cancel(context.Background(), "ACME", res.Order.ID, 1)
	require.NoError(t, err)

	assert.False(t, mkt.Book.Has(res.Order.ID))
	assert.Equal(t, totalBefore, mkt.TotalBuys, "cancel must not decrement cumulative totals")

	err = e.Cancel(context.Background(), "ACME", res.Order.ID, 1)
	require.ErrorIs(t, err, xerrors.ErrNotPending, "a cancelled order is no longer pending")
}

func TestSubmitPriceTimePriorityAcrossMultipleRestingOrders(t *testing.T) {
	e := newTestEngine()
	_, err := e.Submit(context.Background(), "ACME", domain.Sell, dec("3"), dec("10.50"), 1)
	require.NoError(t, err)
	_, err = e.Submit(context.Background(), "ACME", domain.Sell, dec("3"), dec("10.00"), 2)
	require.NoError(t, err)
	_, err = e.Submit(context.Background(), "ACME", domain.Sell, dec("3"), dec("10.00"), 3)
	require.NoError(t, err)

	buy, err := e.Submit(context.Background(), "ACME", domain.Buy, dec("6"), dec("10.50"), 4)
	require.NoError(t, err)

	require.Len(t, buy.Trades, 2)
	assert.Equal(t, int64(2), buy.Trades[0].FilledUserID, "best price, then earliest arrival, must fill first")
	assert.Equal(t, int64(3), buy.Trades[1].FilledUserID)
}
