package book

import (
	"testing"

	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBookPriceTimePriority(t *testing.T) {
	b := New("ACME")

	b.Insert(domain.Buy, 1, 100, dec("10.00"), dec("5"))
	b.Insert(domain.Buy, 2, 101, dec("10.50"), dec("5")) // better price, later arrival
	b.Insert(domain.Buy, 3, 102, dec("10.50"), dec("5")) // same price, later arrival than 2

	top, ok := b.PeekBest(domain.Buy)
	require.True(t, ok)
	assert.Equal(t, int64(2), top.OrderID, "higher price should win over earlier arrival")

	top, ok = b.PopTop(domain.Buy)
	require.True(t, ok)
	assert.Equal(t, int64(2), top.OrderID)

	top, ok = b.PopTop(domain.Buy)
	require.True(t, ok)
	assert.Equal(t, int64(3), top.OrderID, "equal price falls back to arrival order")

	top, ok = b.PopTop(domain.Buy)
	require.True(t, ok)
	assert.Equal(t, int64(1), top.OrderID)
}

func TestBookAskOrdering(t *testing.T) {
	b := New("ACME")

	b.Insert(domain.Sell, 1, 100, dec("11.00"), dec("5"))
	b.Insert(domain.Sell, 2, 101, dec("10.00"), dec("5"))

	top, ok := b.PeekBest(domain.Sell)
	require.True(t, ok)
	assert.Equal(t, int64(2), top.OrderID, "lowest ask should be best")
}

func TestMarkCancelledTopEntryDoesNotSurface(t *testing.T) {
	b := New("ACME")
	b.Insert(domain.Buy, 1, 100, dec("10.00"), dec("5"))
	b.Insert(domain.Buy, 2, 101, dec("9.00"), dec("5"))

	ok := b.MarkCancelled(1)
	require.True(t, ok)
	assert.False(t, b.Has(1))

	top, found := b.PeekBest(domain.Buy)
	require.True(t, found)
	assert.Equal(t, int64(2), top.OrderID, "cancelled top entry must not surface")
}

func TestMarkCancelledUnknownOrder(t *testing.T) {
	b := New("ACME")
	assert.False(t, b.MarkCancelled(999))
}

func TestCompactDropsCancelledEntries(t *testing.T) {
	b := New("ACME")
	b.Insert(domain.Buy, 1, 100, dec("10.00"), dec("5"))
	b.Insert(domain.Buy, 2, 101, dec("9.00"), dec("5"))
	b.MarkCancelled(2)

	b.Compact()

	assert.Equal(t, 1, b.bids.Len())
	top, ok := b.PeekBest(domain.Buy)
	require.True(t, ok)
	assert.Equal(t, int64(1), top.OrderID)
}

func TestLiftSkipsSelfOwnedAndMatchesNextCandidate(t *testing.T) {
	b := New("ACME")
	b.Insert(domain.Sell, 1, 7, dec("10.00"), dec("5")) // aggressor's own resting order
	b.Insert(domain.Sell, 2, 8, dec("10.00"), dec("5"))

	isSelf := func(userID int64) bool { return userID == 7 }
	crosses := func(price decimal.Decimal) bool { return price.LessThanOrEqual(dec("10.00")) }

	matched, tok, held, ok := b.Lift(domain.Sell, crosses, isSelf)
	require.True(t, ok)
	assert.Equal(t, int64(2), matched.OrderID)
	assert.Len(t, held, 1, "self-owned entry should be lifted aside, not matched")

	b.Restore(domain.Sell, held...)
	_ = tok

	assert.True(t, b.Has(1), "self-owned entry must be restored")
	assert.False(t, b.Has(2), "matched entry stays popped until caller restores it")
}

func TestLiftNoCrossRestoresHeldAndReturnsFalse(t *testing.T) {
	b := New("ACME")
	b.Insert(domain.Sell, 1, 7, dec("10.00"), dec("5"))
	b.Insert(domain.Sell, 2, 8, dec("11.00"), dec("5"))

	isSelf := func(userID int64) bool { return userID == 7 }
	crosses := func(price decimal.Decimal) bool { return price.LessThanOrEqual(dec("9.00")) }

	matched, _, held, ok := b.Lift(domain.Sell, crosses, isSelf)
	assert.False(t, ok)
	assert.Nil(t, matched)
	assert.Nil(t, held)

	assert.True(t, b.Has(1))
	assert.True(t, b.Has(2))
}

func TestLiftPartialFillRestoresMatchedWithNewRemaining(t *testing.T) {
	b := New("ACME")
	b.Insert(domain.Sell, 1, 8, dec("10.00"), dec("5"))

	isSelf := func(userID int64) bool { return userID == 7 }
	crosses := func(price decimal.Decimal) bool { return price.LessThanOrEqual(dec("10.00")) }

	matched, tok, held, ok := b.Lift(domain.Sell, crosses, isSelf)
	require.True(t, ok)
	assert.True(t, matched.Remaining.Equal(dec("5")))

	remaining := matched.Remaining.Sub(dec("3"))
	b.Restore(domain.Sell, append(held, tok.WithRemaining(remaining))...)

	top, found := b.PeekBest(domain.Sell)
	require.True(t, found)
	assert.True(t, top.Remaining.Equal(dec("2")))
}

func TestViewRendersTopLevelsWithoutMutatingBook(t *testing.T) {
	b := New("ACME")
	b.Insert(domain.Buy, 1, 100, dec("10.00"), dec("5"))
	b.Insert(domain.Buy, 2, 101, dec("10.50"), dec("5"))
	b.Insert(domain.Sell, 3, 102, dec("11.00"), dec("5"))

	view := b.View(1)
	require.Len(t, view.Bids, 1)
	assert.Equal(t, int64(2), view.Bids[0].OrderID)
	require.Len(t, view.Asks, 1)
	assert.Equal(t, int64(3), view.Asks[0].OrderID)

	top, ok := b.PeekBest(domain.Buy)
	require.True(t, ok)
	assert.Equal(t, int64(2), top.OrderID, "View must not consume the live heap")
}

func TestPopIfHonorsPredicate(t *testing.T) {
	b := New("ACME")
	b.Insert(domain.Buy, 1, 100, dec("10.00"), dec("5"))

	_, ok := b.PopIf(domain.Buy, func(e Entry) bool { return e.Price.GreaterThan(dec("11.00")) })
	assert.False(t, ok)
	assert.True(t, b.Has(1))

	e, ok := b.PopIf(domain.Buy, func(e Entry) bool { return e.Price.Equal(dec("10.00")) })
	require.True(t, ok)
	assert.Equal(t, int64(1), e.OrderID)
	assert.False(t, b.Has(1))
}

func TestGuardAddRemoveContains(t *testing.T) {
	g := NewGuard()
	assert.False(t, g.HasAny(7))

	g.Add(7, 1)
	g.Add(7, 2)
	assert.True(t, g.Contains(7, 1))
	assert.True(t, g.HasAny(7))
	assert.ElementsMatch(t, []int64{1, 2}, g.OrderIDs(7))

	g.Remove(7, 1)
	assert.False(t, g.Contains(7, 1))
	assert.True(t, g.HasAny(7))

	g.Remove(7, 2)
	assert.False(t, g.HasAny(7))
}
