package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slicework/choreo-go/core/envelope"
	"github.com/slicework/choreo-go/core/events"
)

type fakePub struct {
	mu    sync.Mutex
	types []string
}

func (f *fakePub) Publish(_ context.Context, _ string, env envelope.Envelope, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, env.EventType)
	return nil
}

func newTestService(pub events.Publisher, fleet Fleet) *Service {
	return New(Config{
		Pub:     pub,
		Fleet:   fleet,
		Transit: time.Millisecond,
		Assign: func(string) (string, int) {
			return "driver-0001", 20
		},
	})
}

func TestHandleOrderCreated_OpensPendingRecord(t *testing.T) {
	fleet := NewMemFleet()
	s := newTestService(&fakePub{}, fleet)

	err := s.HandleOrderCreated(context.Background(), &events.OrderCreatedPayload{
		OrderID:         "o-1",
		CustomerAddress: "1 Demo Street",
	}, "corr-1")
	require.NoError(t, err)

	rec, err := fleet.FindByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "1 Demo Street", rec.CustomerAddress)
	assert.Equal(t, "corr-1", rec.CorrelationID)
}

func TestHandleOrderCreated_DuplicateSkipped(t *testing.T) {
	fleet := NewMemFleet()
	s := newTestService(&fakePub{}, fleet)

	evt := &events.OrderCreatedPayload{OrderID: "o-1"}
	require.NoError(t, s.HandleOrderCreated(context.Background(), evt, "corr-1"))
	require.NoError(t, s.HandleOrderCreated(context.Background(), evt, "corr-1"))
}

func TestHandleRestaurantAccepted_AssignsDriver(t *testing.T) {
	fleet := NewMemFleet()
	pub := &fakePub{}
	s := newTestService(pub, fleet)

	require.NoError(t, s.HandleOrderCreated(context.Background(), &events.OrderCreatedPayload{OrderID: "o-1"}, "corr-1"))
	require.NoError(t, s.HandleRestaurantAccepted(context.Background(), &events.RestaurantAcceptedPayload{OrderID: "o-1"}, "corr-1"))

	rec, err := fleet.FindByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, rec.Status)
	assert.Equal(t, "driver-0001", rec.DriverID)
	assert.Equal(t, 20, rec.ETAMinutes)
	assert.False(t, rec.AssignedAt.IsZero())

	assert.Equal(t, []string{events.DeliveryAssigned}, pub.types)
}

func TestHandleRestaurantAccepted_CreatesMissingRecord(t *testing.T) {
	fleet := NewMemFleet()
	pub := &fakePub{}
	s := newTestService(pub, fleet)

	// The acceptance can overtake the creation event on another queue; the
	// assignment must not depend on arrival order.
	require.NoError(t, s.HandleRestaurantAccepted(context.Background(), &events.RestaurantAcceptedPayload{OrderID: "o-late"}, "corr-1"))

	rec, err := fleet.FindByOrderID(context.Background(), "o-late")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, rec.Status)
	assert.Equal(t, []string{events.DeliveryAssigned}, pub.types)
}

func TestHandleRestaurantOrderReady_StartsAndCompletes(t *testing.T) {
	fleet := NewMemFleet()
	pub := &fakePub{}
	s := newTestService(pub, fleet)

	require.NoError(t, s.HandleOrderCreated(context.Background(), &events.OrderCreatedPayload{OrderID: "o-1"}, "corr-1"))
	require.NoError(t, s.HandleRestaurantAccepted(context.Background(), &events.RestaurantAcceptedPayload{OrderID: "o-1"}, "corr-1"))
	require.NoError(t, s.HandleRestaurantOrderReady(context.Background(), &events.RestaurantOrderReadyPayload{OrderID: "o-1"}, "corr-1"))

	rec, err := fleet.FindByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.False(t, rec.StartedAt.IsZero())
	assert.False(t, rec.CompletedAt.IsZero())

	assert.Equal(t, []string{events.DeliveryAssigned, events.DeliveryStarted, events.DeliveryCompleted}, pub.types)
}

func TestHandleRestaurantOrderReady_UnknownOrderDropped(t *testing.T) {
	pub := &fakePub{}
	s := newTestService(pub, NewMemFleet())

	require.NoError(t, s.HandleRestaurantOrderReady(context.Background(), &events.RestaurantOrderReadyPayload{OrderID: "missing"}, "corr-1"))
	assert.Empty(t, pub.types)
}

func TestHandleRestaurantOrderReady_CancelledDuringTransit(t *testing.T) {
	fleet := NewMemFleet()
	pub := &fakePub{}
	s := New(Config{
		Pub:     pub,
		Fleet:   fleet,
		Transit: time.Minute,
		Assign:  func(string) (string, int) { return "driver-0001", 20 },
	})

	require.NoError(t, s.HandleOrderCreated(context.Background(), &events.OrderCreatedPayload{OrderID: "o-1"}, "corr-1"))
	require.NoError(t, s.HandleRestaurantAccepted(context.Background(), &events.RestaurantAcceptedPayload{OrderID: "o-1"}, "corr-1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.HandleRestaurantOrderReady(ctx, &events.RestaurantOrderReadyPayload{OrderID: "o-1"}, "corr-1")
	}()
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{events.DeliveryAssigned, events.DeliveryStarted}, pub.types)

	rec, err := fleet.FindByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, rec.Status)
}

func TestHandlePaymentFailed_CancelsDelivery(t *testing.T) {
	fleet := NewMemFleet()
	pub := &fakePub{}
	s := newTestService(pub, fleet)

	require.NoError(t, s.HandleOrderCreated(context.Background(), &events.OrderCreatedPayload{OrderID: "o-1"}, "corr-1"))
	require.NoError(t, s.HandlePaymentFailed(context.Background(), &events.PaymentFailedPayload{OrderID: "o-1", Reason: "no funds"}, "corr-1"))

	rec, err := fleet.FindByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rec.Status)
	assert.Equal(t, []string{events.DeliveryCancelled}, pub.types)
}

func TestHandleRestaurantRejected_CancelsDelivery(t *testing.T) {
	fleet := NewMemFleet()
	pub := &fakePub{}
	s := newTestService(pub, fleet)

	require.NoError(t, s.HandleOrderCreated(context.Background(), &events.OrderCreatedPayload{OrderID: "o-1"}, "corr-1"))
	require.NoError(t, s.HandleRestaurantRejected(context.Background(), &events.RestaurantRejectedPayload{OrderID: "o-1", Reason: "kitchen closed"}, "corr-1"))

	rec, err := fleet.FindByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rec.Status)
}

func TestCancel_UnknownOrderDropped(t *testing.T) {
	pub := &fakePub{}
	s := newTestService(pub, NewMemFleet())

	require.NoError(t, s.HandlePaymentFailed(context.Background(), &events.PaymentFailedPayload{OrderID: "missing"}, "corr-1"))
	assert.Empty(t, pub.types)
}
