package payment

import (
	"context"
	"sync"
)

// MemLedger is the in-memory Ledger. The payment service owns its records
// alone, so a map behind a mutex is all the persistence it needs here.
type MemLedger struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemLedger() *MemLedger {
	return &MemLedger{data: map[string]Record{}}
}

func (m *MemLedger) FindByOrderID(_ context.Context, orderID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[orderID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemLedger) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[rec.OrderID]; ok {
		return ErrAlreadyExists
	}
	m.data[rec.OrderID] = rec
	return nil
}

func (m *MemLedger) Update(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[rec.OrderID]; !ok {
		return ErrNotFound
	}
	m.data[rec.OrderID] = rec
	return nil
}

var _ Ledger = (*MemLedger)(nil)
