// Package book implements the per-symbol order book: two
// container/heap priority queues (bids max-heap, asks min-heap) keyed
// by (price, arrival sequence), with lazy cancellation so a cancel
// never requires an O(n) heap rebuild.
package book

import (
	"container/heap"

	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// Entry is the externally visible view of a resting order: a copy of
// the internal heap entry's fields, so changing an Entry never changes
// the book (HeldEntry.WithRemaining and MutateRemaining do that).
type Entry struct {
	OrderID   int64
	UserID    int64
	Price     decimal.Decimal
	Remaining decimal.Decimal
}

// Book holds one symbol's bid and ask heaps plus the arrival-sequence
// counter and an order_id -> heap entry index for O(1) cancel lookup.
type Book struct {
	Symbol string

	bids *side
	asks *side
	seq  uint64

	byID map[int64]*entry
}

func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		bids:   newBidSide(),
		asks:   newAskSide(),
		byID:   make(map[int64]*entry),
	}
}

func (b *Book) sideFor(s domain.Side) *side {
	if s == domain.Buy {
		return b.bids
	}
	return b.asks
}

// Insert places a brand-new resting order, assigning it the book's
// next arrival sequence.
func (b *Book) Insert(s domain.Side, orderID, userID int64, price, remaining decimal.Decimal) *Entry {
	b.seq++
	e := &entry{
		orderID:   orderID,
		userID:    userID,
		price:     price,
		remaining: remaining,
		sequence:  b.seq,
	}
	heap.Push(b.sideFor(s), e)
	b.byID[orderID] = e
	return toEntry(e)
}

// HeldEntry is an opaque handle to a resting order lifted out of its
// heap by Lift. It carries no exported fields; the only thing a caller
// can do with one is pass it back to Restore or WithRemaining.
type HeldEntry struct{ e *entry }

// WithRemaining updates a held entry's remaining quantity before it is
// restored, for the partial-fill case where the matched resting order
// survives the trade.
func (h HeldEntry) WithRemaining(remaining decimal.Decimal) HeldEntry {
	h.e.remaining = remaining
	return h
}

// Lift walks the given side in priority order looking for the first
// entry that crosses (per the caller's price check) and is not the
// aggressor's own order. Cancelled entries are discarded as they are
// encountered. Self-owned entries that cross are popped and collected
// in held rather than matched against, implementing the self-trade
// guard: the aggressor's own resting orders are skipped, not matched,
// and never cancelled by the skip.
//
// If a match is found, it is popped too and returned as both an Entry
// snapshot and a HeldEntry token; the caller decides the matched
// order's fate (fully filled: drop it; partially filled: restore it
// with WithRemaining) and must call Restore with whatever should go
// back, held entries included. If no match is found (price stops
// crossing, or the side empties), every held entry is restored
// immediately and ok is false.
func (b *Book) Lift(s domain.Side, crosses func(price decimal.Decimal) bool, isSelf func(userID int64) bool) (matched *Entry, matchedTok HeldEntry, held []HeldEntry, ok bool) {
	sd := b.sideFor(s)
	for sd.Len() > 0 {
		top := sd.entries[0]
		if top.cancelled {
			heap.Pop(sd)
			delete(b.byID, top.orderID)
			continue
		}
		if !crosses(top.price) {
			break
		}
		heap.Pop(sd)
		delete(b.byID, top.orderID)
		if isSelf(top.userID) {
			held = append(held, HeldEntry{top})
			continue
		}
		return toEntry(top), HeldEntry{top}, held, true
	}
	b.Restore(s, held...)
	return nil, HeldEntry{}, nil, false
}

// Restore places lifted entries back onto their side's heap without
// minting new arrival sequences, preserving original time priority.
// Zero-value tokens (an unfilled matchedTok from a no-match Lift) are
// ignored.
func (b *Book) Restore(s domain.Side, toks ...HeldEntry) {
	sd := b.sideFor(s)
	for _, t := range toks {
		if t.e == nil {
			continue
		}
		heap.Push(sd, t.e)
		b.byID[t.e.orderID] = t.e
	}
}

// PeekBest returns the extreme non-cancelled entry on the given side
// without removing it, discarding any cancelled entries it must skip
// over to get there.
func (b *Book) PeekBest(s domain.Side) (*Entry, bool) {
	sd := b.sideFor(s)
	for sd.Len() > 0 {
		top := sd.entries[0]
		if !top.cancelled {
			return toEntry(top), true
		}
		heap.Pop(sd)
		delete(b.byID, top.orderID)
	}
	return nil, false
}

// popBest removes and returns the extreme non-cancelled entry,
// discarding cancelled entries on the way; it backs PopTop and PopIf.
func (b *Book) popBest(s domain.Side) (*entry, bool) {
	sd := b.sideFor(s)
	for sd.Len() > 0 {
		top := heap.Pop(sd).(*entry)
		delete(b.byID, top.orderID)
		if !top.cancelled {
			return top, true
		}
	}
	return nil, false
}

// PopTop pops the current best entry (after skipping any cancelled
// entries) and returns it, or false if the side is empty.
func (b *Book) PopTop(s domain.Side) (*Entry, bool) {
	e, ok := b.popBest(s)
	if !ok {
		return nil, false
	}
	return toEntry(e), true
}

// PopIf pops the extreme entry on the given side iff predicate holds
// for it, leaving the book untouched otherwise.
func (b *Book) PopIf(s domain.Side, predicate func(Entry) bool) (*Entry, bool) {
	top, ok := b.PeekBest(s)
	if !ok || !predicate(*top) {
		return nil, false
	}
	return b.PopTop(s)
}

// MarkCancelled sets the lazy-deletion marker on order_id's resting
// entry. If the entry is currently at the top of its side, it is
// discarded immediately; otherwise it is skipped the next time it
// would surface. Returns false if order_id is not resting.
func (b *Book) MarkCancelled(orderID int64) bool {
	e, ok := b.byID[orderID]
	if !ok {
		return false
	}
	e.cancelled = true
	delete(b.byID, orderID)
	// If it happens to be sitting at the top right now, drop it eagerly
	// so PeekBest doesn't do needless work later.
	for _, s := range []*side{b.bids, b.asks} {
		if s.Len() > 0 && s.entries[0] == e {
			heap.Pop(s)
			break
		}
	}
	return true
}

// Has reports whether order_id currently rests in this book.
func (b *Book) Has(orderID int64) bool {
	_, ok := b.byID[orderID]
	return ok
}

// MutateRemaining updates a resting entry's remaining quantity in
// place. Price is unchanged so the heap invariant still holds.
func (b *Book) MutateRemaining(orderID int64, remaining decimal.Decimal) {
	if e, ok := b.byID[orderID]; ok {
		e.remaining = remaining
	}
}

// Compact rebuilds both heaps dropping any cancelled markers still
// resident below the top, bounding memory under a dense-cancel
// workload. Safe to call between request batches; not scheduled here.
func (b *Book) Compact() {
	b.bids = compactSide(b.bids, bidLess)
	b.asks = compactSide(b.asks, askLess)
}

func compactSide(s *side, less func(a, b *entry) bool) *side {
	fresh := &side{less: less}
	for _, e := range s.entries {
		if !e.cancelled {
			fresh.entries = append(fresh.entries, e)
		}
	}
	heap.Init(fresh)
	return fresh
}

// View renders the top of both sides, in priority order, for the
// `show` command and the orderbook read-through cache. depth <= 0
// means "all levels".
func (b *Book) View(depth int) domain.BookView {
	return domain.BookView{
		Symbol: b.Symbol,
		Bids:   levels(b.bids, depth),
		Asks:   levels(b.asks, depth),
	}
}

func levels(s *side, depth int) []domain.BookLevel {
	ordered := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.cancelled {
			ordered = append(ordered, e)
		}
	}
	cp := &side{entries: ordered, less: s.less}
	heap.Init(cp)

	n := cp.Len()
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]domain.BookLevel, 0, n)
	for i := 0; i < n; i++ {
		top := heap.Pop(cp).(*entry)
		out = append(out, domain.BookLevel{
			OrderID:   top.orderID,
			UserID:    top.userID,
			Price:     top.price,
			Remaining: top.remaining,
		})
	}
	return out
}

func toEntry(e *entry) *Entry {
	return &Entry{
		OrderID:   e.orderID,
		UserID:    e.userID,
		Price:     e.price,
		Remaining: e.remaining,
	}
}
