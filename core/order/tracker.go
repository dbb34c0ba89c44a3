package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slicework/choreo-go/core/events"
	"github.com/slicework/choreo-go/core/metrics"
	"github.com/slicework/choreo-go/core/route"
)

// AggType labels order metrics and logs.
const AggType = "order"

// Store is the persistence port for the order aggregate. Update must write
// o only when the stored token equals o.Token, bump the token on success and
// return ErrConcurrencyConflict otherwise.
type Store interface {
	FindByOrderID(ctx context.Context, orderID string) (Order, error)
	Insert(ctx context.Context, o Order) error
	Update(ctx context.Context, o Order) error
}

// Tracker holds the order-tracking service's event handlers: each consumed
// event updates one or two status dimensions of the aggregate, with lost
// concurrency races merged by the reconciler and the write retried once.
type Tracker struct {
	log       *slog.Logger
	store     Store
	pub       events.Publisher
	reconcile Reconciler
	metrics   metrics.Messaging
}

type TrackerConfig struct {
	Log        *slog.Logger
	Store      Store
	Publisher  events.Publisher
	Priorities *Priorities // nil means DefaultPriorities
	Metrics    metrics.Messaging
}

func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Store == nil {
		return nil, errors.New("tracker: store is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("tracker: publisher is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	pri := DefaultPriorities()
	if cfg.Priorities != nil {
		pri = *cfg.Priorities
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NopMessaging()
	}
	return &Tracker{
		log:       log.With(slog.String("component", "order-tracker")),
		store:     cfg.Store,
		pub:       cfg.Publisher,
		reconcile: NewReconciler(pri),
		metrics:   m,
	}, nil
}

// Register wires every event type the tracking service consumes.
func (t *Tracker) Register(r *route.Router) {
	route.Handle(r, events.PaymentReserved, t.HandlePaymentReserved)
	route.Handle(r, events.PaymentFailed, t.HandlePaymentFailed)
	route.Handle(r, events.PaymentSucceeded, t.HandlePaymentSucceeded)
	route.Handle(r, events.PaymentCancelled, t.HandlePaymentCancelled)
	route.Handle(r, events.RestaurantAccepted, t.HandleRestaurantAccepted)
	route.Handle(r, events.RestaurantRejected, t.HandleRestaurantRejected)
	route.Handle(r, events.RestaurantOrderReady, t.HandleRestaurantOrderReady)
	route.Handle(r, events.RestaurantCancelled, t.HandleRestaurantCancelled)
	route.Handle(r, events.DeliveryAssigned, t.HandleDeliveryAssigned)
	route.Handle(r, events.DeliveryStarted, t.HandleDeliveryStarted)
	route.Handle(r, events.DeliveryCompleted, t.HandleDeliveryCompleted)
	route.Handle(r, events.DeliveryCancelled, t.HandleDeliveryCancelled)
}

// CreateOrder inserts a fresh all-Pending aggregate and announces it. A
// duplicate order id is treated as a redelivered creation and skipped, so
// the announcement happens at most once per order.
func (t *Tracker) CreateOrder(ctx context.Context, correlationID string, p events.OrderCreatedPayload) error {
	o := New(p.OrderID, correlationID, time.Now().UTC())
	if err := t.store.Insert(ctx, o); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			t.log.WarnContext(ctx, "order already exists, skipping create",
				slog.String("order_id", p.OrderID))
			return nil
		}
		return fmt.Errorf("insert order %s: %w", p.OrderID, err)
	}
	t.log.InfoContext(ctx, "order created", slog.String("order_id", p.OrderID))
	return events.Emit(ctx, t.pub, events.OrderCreated, p, correlationID)
}

func (t *Tracker) HandlePaymentReserved(ctx context.Context, evt *events.PaymentReservedPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.PaymentStatus = PaymentReserved
		o.OrderStatus = OrderProcessing
	})
}

func (t *Tracker) HandlePaymentFailed(ctx context.Context, evt *events.PaymentFailedPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.PaymentStatus = PaymentFailed
		o.Comment = evt.Reason
	})
}

func (t *Tracker) HandlePaymentSucceeded(ctx context.Context, evt *events.PaymentSucceededPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.PaymentStatus = PaymentSucceeded
	})
}

func (t *Tracker) HandlePaymentCancelled(ctx context.Context, evt *events.PaymentCancelledPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.PaymentStatus = PaymentCancelled
		o.OrderStatus = OrderCancelled
	})
}

func (t *Tracker) HandleRestaurantAccepted(ctx context.Context, evt *events.RestaurantAcceptedPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.RestaurantStatus = RestaurantAccepted
	})
}

func (t *Tracker) HandleRestaurantRejected(ctx context.Context, evt *events.RestaurantRejectedPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.RestaurantStatus = RestaurantRejected
		o.Comment = evt.Reason
	})
}

func (t *Tracker) HandleRestaurantOrderReady(ctx context.Context, evt *events.RestaurantOrderReadyPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.RestaurantStatus = RestaurantReady
	})
}

func (t *Tracker) HandleRestaurantCancelled(ctx context.Context, evt *events.RestaurantCancelledPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.RestaurantStatus = RestaurantCancelled
		o.OrderStatus = OrderCancelled
	})
}

func (t *Tracker) HandleDeliveryAssigned(ctx context.Context, evt *events.DeliveryAssignedPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.DeliveryStatus = DeliveryAssigned
	})
}

func (t *Tracker) HandleDeliveryStarted(ctx context.Context, evt *events.DeliveryStartedPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.DeliveryStatus = DeliveryStarted
		o.RestaurantStatus = RestaurantCompleted
	})
}

func (t *Tracker) HandleDeliveryCompleted(ctx context.Context, evt *events.DeliveryCompletedPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.DeliveryStatus = DeliveryCompleted
		o.OrderStatus = OrderCompleted
	})
}

func (t *Tracker) HandleDeliveryCancelled(ctx context.Context, evt *events.DeliveryCancelledPayload, correlationID string) error {
	return t.apply(ctx, evt.OrderID, func(o *Order) {
		o.DeliveryStatus = DeliveryCancelled
		o.OrderStatus = OrderCancelled
	})
}

// apply loads the aggregate, mutates it and saves. An unknown order id is
// logged and dropped rather than retried: the creation event may simply not
// have arrived yet on another queue, and the retry cycle would not fix an
// id that never will.
func (t *Tracker) apply(ctx context.Context, orderID string, mutate func(*Order)) error {
	o, err := t.store.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			t.log.WarnContext(ctx, "order not found", slog.String("order_id", orderID))
			return nil
		}
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	mutate(&o)
	o.LastUpdated = time.Now().UTC()

	return t.save(ctx, o)
}

// save writes o under its token. On a lost race the attempted state is
// merged with what the winner stored and the write retried exactly once
// with the fresh token; a second conflict or an unresolvable merge
// propagates to the consumer's retry budget.
func (t *Tracker) save(ctx context.Context, o Order) error {
	err := t.store.Update(ctx, o)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrConcurrencyConflict) {
		return fmt.Errorf("update order %s: %w", o.OrderID, err)
	}

	t.metrics.ConcurrencyConflict(AggType)
	t.log.InfoContext(ctx, "concurrency conflict, reconciling",
		slog.String("order_id", o.OrderID))

	stored, err := t.store.FindByOrderID(ctx, o.OrderID)
	if err != nil {
		return fmt.Errorf("reload order %s: %w", o.OrderID, err)
	}

	merged, err := t.reconcile.Merge(o, stored)
	if err != nil {
		t.metrics.ConflictUnresolvable(AggType)
		t.log.ErrorContext(ctx, "failed to reconcile order",
			slog.String("order_id", o.OrderID),
			slog.Any("error", err))
		return err
	}

	if err := t.store.Update(ctx, merged); err != nil {
		return fmt.Errorf("update reconciled order %s: %w", o.OrderID, err)
	}
	return nil
}
