package orderstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slicework/choreo-go/core/order"
)

func TestMemStore_InsertAndFind(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	o := order.New("o-1", "corr-1", time.Now().UTC())
	require.NoError(t, s.Insert(ctx, o))

	got, err := s.FindByOrderID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Token)
	assert.Equal(t, order.OrderPending, got.OrderStatus)

	_, err = s.FindByOrderID(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestMemStore_DuplicateInsert(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	o := order.New("o-1", "corr-1", time.Now().UTC())
	require.NoError(t, s.Insert(ctx, o))
	require.ErrorIs(t, s.Insert(ctx, o), order.ErrAlreadyExists)
}

func TestMemStore_UpdateBumpsToken(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, order.New("o-1", "corr-1", time.Now().UTC())))

	o, err := s.FindByOrderID(ctx, "o-1")
	require.NoError(t, err)
	o.OrderStatus = order.OrderProcessing
	require.NoError(t, s.Update(ctx, o))

	got, err := s.FindByOrderID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, order.OrderProcessing, got.OrderStatus)
	assert.Equal(t, uint64(2), got.Token)
}

func TestMemStore_StaleTokenConflicts(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, order.New("o-1", "corr-1", time.Now().UTC())))

	a, err := s.FindByOrderID(ctx, "o-1")
	require.NoError(t, err)
	b := a

	a.PaymentStatus = order.PaymentReserved
	require.NoError(t, s.Update(ctx, a))

	b.RestaurantStatus = order.RestaurantAccepted
	require.ErrorIs(t, s.Update(ctx, b), order.ErrConcurrencyConflict)
}

func TestMemStore_UpdateMissing(t *testing.T) {
	s := NewMemStore()
	o := order.New("ghost", "corr-1", time.Now().UTC())
	require.ErrorIs(t, s.Update(context.Background(), o), order.ErrNotFound)
}

func TestMemStore_CreatedAtPreserved(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.Insert(ctx, order.New("o-1", "corr-1", created)))

	o, err := s.FindByOrderID(ctx, "o-1")
	require.NoError(t, err)
	o.CreatedAt = time.Now().UTC()
	require.NoError(t, s.Update(ctx, o))

	got, err := s.FindByOrderID(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created))
}
