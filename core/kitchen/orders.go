package kitchen

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound      = errors.New("kitchen order not found")
	ErrAlreadyExists = errors.New("kitchen order already exists")
)

const (
	StatusPending   = "Pending"
	StatusAccepted  = "Accepted"
	StatusRejected  = "Rejected"
	StatusReady     = "Ready"
	StatusCancelled = "Cancelled"
)

// Record is the kitchen's own view of an order, keyed by order id.
type Record struct {
	OrderID           string
	CorrelationID     string
	Status            string
	EstimatedPrepTime int // minutes
	CreatedAt         time.Time
	LastUpdated       time.Time
}

type Orders interface {
	FindByOrderID(ctx context.Context, orderID string) (Record, error)
	Insert(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
}

// MemOrders is the in-memory Orders store. The kitchen owns its records
// alone, so a map behind a mutex is all the persistence it needs here.
type MemOrders struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemOrders() *MemOrders {
	return &MemOrders{data: map[string]Record{}}
}

func (m *MemOrders) FindByOrderID(_ context.Context, orderID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[orderID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemOrders) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[rec.OrderID]; ok {
		return ErrAlreadyExists
	}
	m.data[rec.OrderID] = rec
	return nil
}

func (m *MemOrders) Update(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[rec.OrderID]; !ok {
		return ErrNotFound
	}
	m.data[rec.OrderID] = rec
	return nil
}

var _ Orders = (*MemOrders)(nil)
