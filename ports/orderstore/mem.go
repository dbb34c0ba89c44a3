// Package orderstore provides an in-memory order.Store used in tests and in
// single-process setups. The Postgres-backed store lives in adapters/postgres.
package orderstore

import (
	"context"
	"sync"

	"github.com/slicework/choreo-go/core/order"
)

type MemStore struct {
	mu   sync.RWMutex
	data map[string]order.Order
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]order.Order{}}
}

func (m *MemStore) FindByOrderID(_ context.Context, orderID string) (order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.data[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (m *MemStore) Insert(_ context.Context, o order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[o.OrderID]; ok {
		return order.ErrAlreadyExists
	}
	o.Token = 1
	m.data[o.OrderID] = o
	return nil
}

func (m *MemStore) Update(_ context.Context, o order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.data[o.OrderID]
	if !ok {
		return order.ErrNotFound
	}
	if cur.Token != o.Token {
		return order.ErrConcurrencyConflict
	}
	o.Token++
	o.CreatedAt = cur.CreatedAt
	m.data[o.OrderID] = o
	return nil
}

var _ order.Store = (*MemStore)(nil)
