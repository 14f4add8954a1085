package book

import (
	"container/heap"

	"github.com/shopspring/decimal"
)

// entry is one resting order on a single side of a single market's
// book. Price never changes after insert, so mutating Remaining in
// place (during a fill) never violates heap ordering. Cancelled is a
// lazy-deletion marker: the entry keeps its heap slot until it
// resurfaces at the top, where it is popped and discarded.
type entry struct {
	orderID   int64
	userID    int64
	price     decimal.Decimal
	remaining decimal.Decimal
	sequence  uint64
	cancelled bool
	index     int // maintained by container/heap, used for nothing externally
}

// side is a container/heap.Interface over *entry with a pluggable
// ordering, so bids (price desc, sequence asc) and asks (price asc,
// sequence asc) share one implementation instead of two near-duplicate
// heap types — following the MaxPriceHeap/MinPriceHeap split seen in
// the wider order-book corpus, collapsed into one comparator.
type side struct {
	entries []*entry
	less    func(a, b *entry) bool
}

func (s *side) Len() int { return len(s.entries) }

func (s *side) Less(i, j int) bool { return s.less(s.entries[i], s.entries[j]) }

func (s *side) Swap(i, j int) {
	s.entries[i], s.entries[j] = s.entries[j], s.entries[i]
	s.entries[i].index = i
	s.entries[j].index = j
}

func (s *side) Push(x any) {
	e := x.(*entry)
	e.index = len(s.entries)
	s.entries = append(s.entries, e)
}

func (s *side) Pop() any {
	old := s.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	s.entries = old[:n-1]
	return e
}

func bidLess(a, b *entry) bool {
	if !a.price.Equal(b.price) {
		return a.price.GreaterThan(b.price) // highest price first
	}
	return a.sequence < b.sequence // earliest-placed first
}

func askLess(a, b *entry) bool {
	if !a.price.Equal(b.price) {
		return a.price.LessThan(b.price) // lowest price first
	}
	return a.sequence < b.sequence // earliest-placed first
}

func newBidSide() *side { return &side{less: bidLess} }
func newAskSide() *side { return &side{less: askLess} }

var (
	_ heap.Interface = (*side)(nil)
)
