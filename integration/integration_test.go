package integration

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/slicework/choreo-go/adapters/amqp"
	"github.com/slicework/choreo-go/core/app"
	"github.com/slicework/choreo-go/core/delivery"
	"github.com/slicework/choreo-go/core/envelope"
	"github.com/slicework/choreo-go/core/events"
	"github.com/slicework/choreo-go/core/kitchen"
	"github.com/slicework/choreo-go/core/order"
	"github.com/slicework/choreo-go/core/payment"
	"github.com/slicework/choreo-go/core/route"
	"github.com/slicework/choreo-go/ports/orderstore"
)

// TestChoreography runs the whole workflow against a real broker: order
// tracking, payment, kitchen and delivery services, each on its own queue
// set, until the aggregate converges to Completed.
func TestChoreography(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)
	connect := amqp.NewTestContainer(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	trackApp, err := app.New(app.Config{
		Context: ctx,
		Service: "ordertrack",
		Connect: connect,
	})
	require.NoError(t, err)

	store := orderstore.NewMemStore()
	tracker, err := order.NewTracker(order.TrackerConfig{
		Store:     store,
		Publisher: trackApp.Publisher(),
	})
	require.NoError(t, err)
	tracker.Register(trackApp.Router())

	payApp, err := app.New(app.Config{
		Context:  ctx,
		Service:  "payment",
		Connect:  connect,
		Bindings: []string{"order.created", "restaurant.rejected", "delivery.started"},
	})
	require.NoError(t, err)
	payment.NewProcessor(nil, payment.NewMemLedger(), payApp.Publisher()).Register(payApp.Router())

	kitchenApp, err := app.New(app.Config{
		Context:  ctx,
		Service:  "kitchen",
		Connect:  connect,
		Bindings: []string{"order.created", "payment.reserved", "payment.failed"},
	})
	require.NoError(t, err)
	kitchen.New(kitchen.Config{
		Pub:   kitchenApp.Publisher(),
		Dwell: 50 * time.Millisecond,
	}).Register(kitchenApp.Router())

	deliveryApp, err := app.New(app.Config{
		Context:  ctx,
		Service:  "delivery",
		Connect:  connect,
		Bindings: []string{"order.created", "restaurant.accepted", "restaurant.order_ready", "restaurant.rejected", "payment.failed"},
	})
	require.NoError(t, err)
	fleet := delivery.NewMemFleet()
	delivery.New(delivery.Config{
		Fleet:   fleet,
		Pub:     deliveryApp.Publisher(),
		Transit: 50 * time.Millisecond,
	}).Register(deliveryApp.Router())

	for _, a := range []*app.App{trackApp, payApp, kitchenApp, deliveryApp} {
		require.NoError(t, a.Run())
		t.Cleanup(a.Stop)
	}

	require.NoError(t, tracker.CreateOrder(ctx, "corr-e2e", events.OrderCreatedPayload{
		OrderID:    "o-e2e",
		Items:      []events.Item{{ItemID: "i-1", ProductName: "Pizza", Quantity: 1, Price: 12}},
		TotalPrice: 12,
		Currency:   "EUR",
	}))

	require.Eventually(t, func() bool {
		o, err := store.FindByOrderID(ctx, "o-e2e")
		if err != nil {
			return false
		}
		return o.OrderStatus == order.OrderCompleted
	}, time.Minute, 100*time.Millisecond)

	o, err := store.FindByOrderID(ctx, "o-e2e")
	require.NoError(t, err)
	require.Equal(t, order.PaymentSucceeded, o.PaymentStatus)
	require.Equal(t, order.RestaurantCompleted, o.RestaurantStatus)
	require.Equal(t, order.DeliveryCompleted, o.DeliveryStatus)

	rec, err := fleet.FindByOrderID(ctx, "o-e2e")
	require.NoError(t, err)
	require.Equal(t, delivery.StatusCompleted, rec.Status)
	require.NotEmpty(t, rec.DriverID)
}

// TestRetryAndDeadLetter drives a poison message through the full broker
// retry cycle: three failed deliveries, then one copy in the DLQ.
func TestRetryAndDeadLetter(t *testing.T) {
	connect := amqp.NewTestContainer(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var attempts atomic.Int64
	flaky, err := app.New(app.Config{
		Context:  ctx,
		Service:  "flaky",
		Connect:  connect,
		Bindings: []string{"order.created"},
		RetryTTL: 300 * time.Millisecond,
	})
	require.NoError(t, err)
	route.Handle(flaky.Router(), events.OrderCreated,
		func(context.Context, *events.OrderCreatedPayload, string) error {
			attempts.Add(1)
			return errors.New("always fails")
		})
	require.NoError(t, flaky.Run())
	t.Cleanup(flaky.Stop)

	env, err := envelope.New(events.OrderCreated, events.OrderCreatedPayload{
		OrderID:    "o-poison",
		TotalPrice: 5,
		Currency:   "EUR",
	})
	require.NoError(t, err)
	require.NoError(t, flaky.Publisher().Publish(ctx, "order.created", env, "corr-poison"))

	// One initial delivery plus three redeliveries before dead-lettering.
	require.Eventually(t, func() bool {
		return attempts.Load() >= 4
	}, time.Minute, 100*time.Millisecond)

	// The poisoned message ends up in the DLQ exactly once, with its
	// original id and correlation id preserved.
	nc, closeConn, err := connect()
	require.NoError(t, err)
	defer closeConn()
	ch, err := nc.Channel()
	require.NoError(t, err)
	defer ch.Close()

	var parked amqp091.Delivery
	require.Eventually(t, func() bool {
		d, ok, err := ch.Get("flaky-dlq-queue", true)
		if err != nil || !ok {
			return false
		}
		parked = d
		return true
	}, time.Minute, 200*time.Millisecond)
	require.Equal(t, env.MessageID, parked.MessageId)
	require.Equal(t, "corr-poison", parked.CorrelationId)

	require.EqualValues(t, 4, attempts.Load())
}
