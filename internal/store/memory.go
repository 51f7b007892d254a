package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"oms/internal/errors"
	"oms/internal/schema"
	"oms/pkg/exception"
)

var _ Store = (*Memory)(nil)

// Memory is a map-backed store for tests and paper runs.
type Memory struct {
	mu     sync.RWMutex
	orders map[string]Order
	trades []schema.Trade
	now    func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		orders: make(map[string]Order),
		now:    time.Now,
	}
}

func (m *Memory) SaveOrder(_ context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if existing, ok := m.orders[order.Key]; ok {
		order.CreatedAt = existing.CreatedAt
	} else if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	m.orders[order.Key] = order
	return nil
}

func (m *Memory) UpdateOrderStatus(_ context.Context, key string, update StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[key]
	if !ok {
		return errors.Wrapf(exception.ErrStoreNotFound, "order %s", key)
	}
	order.State = update.State
	order.Status = update.Status
	if !update.Filled.IsZero() {
		order.Filled = update.Filled
	}
	if !update.AvgPrice.IsZero() {
		order.AvgPrice = update.AvgPrice
	}
	order.UpdatedAt = m.now().UTC()
	m.orders[key] = order
	return nil
}

func (m *Memory) GetOrder(_ context.Context, key string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[key]
	if !ok {
		return Order{}, errors.Wrapf(exception.ErrStoreNotFound, "order %s", key)
	}
	return order, nil
}

func (m *Memory) SaveTrade(_ context.Context, trade schema.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *Memory) ListTrades(_ context.Context, since time.Time) ([]schema.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]schema.Trade, 0, len(m.trades))
	for _, t := range m.trades {
		if since.IsZero() || t.ExecutedAt >= since.UnixNano() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutedAt < out[j].ExecutedAt
	})
	return out, nil
}
