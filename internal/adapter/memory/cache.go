package memory

import (
	"context"
	"sync"

	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/port"
)

type Cache struct {
	mu      sync.Mutex
	views   map[string]*domain.BookView
	pending map[int64]*domain.Order
}

var _ port.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{
		views:   make(map[string]*domain.BookView),
		pending: make(map[int64]*domain.Order),
	}
}

func (c *Cache) SetBookView(ctx context.Context, symbol string, view *domain.BookView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *view
	c.views[symbol] = &cp
	return nil
}

func (c *Cache) GetBookView(ctx context.Context, symbol string) (*domain.BookView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[symbol]
	if !ok {
		return nil, false, nil
	}
	cp := *v
	return &cp, true, nil
}

func (c *Cache) SetPendingOrder(ctx context.Context, o *domain.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *o
	c.pending[o.ID] = &cp
	return nil
}

func (c *Cache) GetPendingOrder(ctx context.Context, orderID int64) (*domain.Order, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.pending[orderID]
	if !ok {
		return nil, false, nil
	}
	cp := *o
	return &cp, true, nil
}

func (c *Cache) InvalidatePendingOrder(ctx context.Context, orderID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, orderID)
	return nil
}
