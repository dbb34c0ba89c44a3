package delivery

import (
	"context"
	"sync"
)

// MemFleet is the in-memory Fleet. The delivery service owns its records
// alone, so a map behind a mutex is all the persistence it needs here.
type MemFleet struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemFleet() *MemFleet {
	return &MemFleet{data: map[string]Record{}}
}

func (m *MemFleet) FindByOrderID(_ context.Context, orderID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[orderID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemFleet) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[rec.OrderID]; ok {
		return ErrAlreadyExists
	}
	m.data[rec.OrderID] = rec
	return nil
}

func (m *MemFleet) Update(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[rec.OrderID]; !ok {
		return ErrNotFound
	}
	m.data[rec.OrderID] = rec
	return nil
}

var _ Fleet = (*MemFleet)(nil)
