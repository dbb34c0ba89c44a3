// Package kitchen implements the restaurant side of the workflow: keep the
// kitchen's own order record, decide on a reserved order, announce
// acceptance, dwell while the kitchen prepares, then announce the order
// ready. Payment failures cancel the stored order. The dwell is a deliberate
// suspension point; with prefetch 1 it stalls intake on the channel instead
// of piling up concurrent handlers.
package kitchen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slicework/choreo-go/core/events"
	"github.com/slicework/choreo-go/core/route"
)

const (
	defaultDwell    = 10 * time.Second
	defaultPrepTime = 10 // minutes
)

type Service struct {
	log    *slog.Logger
	orders Orders
	pub    events.Publisher
	dwell  time.Duration
	accept func(orderID string) (bool, string) // returns decision and rejection reason
}

type Config struct {
	Log   *slog.Logger
	Store Orders // nil runs on the in-memory store
	Pub   events.Publisher
	Dwell time.Duration // preparation time before order_ready, default 10s
	// Accept decides whether the kitchen takes the order. Nil accepts
	// everything; production wiring plugs in capacity checks here.
	Accept func(orderID string) (bool, string)
}

func New(cfg Config) *Service {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	orders := cfg.Store
	if orders == nil {
		orders = NewMemOrders()
	}
	dwell := cfg.Dwell
	if dwell == 0 {
		dwell = defaultDwell
	}
	accept := cfg.Accept
	if accept == nil {
		accept = func(string) (bool, string) { return true, "" }
	}
	return &Service{
		log:    log.With(slog.String("component", "kitchen")),
		orders: orders,
		pub:    cfg.Pub,
		dwell:  dwell,
		accept: accept,
	}
}

func (s *Service) Register(r *route.Router) {
	route.Handle(r, events.OrderCreated, s.HandleOrderCreated)
	route.Handle(r, events.PaymentReserved, s.HandlePaymentReserved)
	route.Handle(r, events.PaymentFailed, s.HandlePaymentFailed)
}

// HandleOrderCreated stores the kitchen's own copy of the order. A duplicate
// order id is a redelivered creation and skipped.
func (s *Service) HandleOrderCreated(ctx context.Context, evt *events.OrderCreatedPayload, correlationID string) error {
	now := time.Now().UTC()
	rec := Record{
		OrderID:           evt.OrderID,
		CorrelationID:     correlationID,
		Status:            StatusPending,
		EstimatedPrepTime: defaultPrepTime,
		CreatedAt:         now,
		LastUpdated:       now,
	}
	if err := s.orders.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			s.log.WarnContext(ctx, "order already stored, skipping",
				slog.String("order_id", evt.OrderID))
			return nil
		}
		return fmt.Errorf("insert kitchen order %s: %w", evt.OrderID, err)
	}
	s.log.InfoContext(ctx, "order stored", slog.String("order_id", evt.OrderID))
	return nil
}

func (s *Service) HandlePaymentReserved(ctx context.Context, evt *events.PaymentReservedPayload, correlationID string) error {
	ok, reason := s.accept(evt.OrderID)
	if !ok {
		s.log.InfoContext(ctx, "order rejected",
			slog.String("order_id", evt.OrderID),
			slog.String("reason", reason))
		s.setStatus(ctx, evt.OrderID, StatusRejected)
		return events.Emit(ctx, s.pub, events.RestaurantRejected, events.RestaurantRejectedPayload{
			OrderID: evt.OrderID,
			Reason:  reason,
		}, correlationID)
	}

	s.log.InfoContext(ctx, "order accepted", slog.String("order_id", evt.OrderID))
	s.setStatus(ctx, evt.OrderID, StatusAccepted)
	if err := events.Emit(ctx, s.pub, events.RestaurantAccepted, events.RestaurantAcceptedPayload{
		OrderID: evt.OrderID,
	}, correlationID); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "preparing order", slog.String("order_id", evt.OrderID))
	select {
	case <-time.After(s.dwell):
	case <-ctx.Done():
		return ctx.Err()
	}

	s.setStatus(ctx, evt.OrderID, StatusReady)
	return events.Emit(ctx, s.pub, events.RestaurantOrderReady, events.RestaurantOrderReadyPayload{
		OrderID: evt.OrderID,
	}, correlationID)
}

// HandlePaymentFailed cancels the stored order and announces the
// cancellation so the aggregate converges even when the order never reached
// the kitchen's queue.
func (s *Service) HandlePaymentFailed(ctx context.Context, evt *events.PaymentFailedPayload, correlationID string) error {
	s.setStatus(ctx, evt.OrderID, StatusCancelled)
	return events.Emit(ctx, s.pub, events.RestaurantCancelled, events.RestaurantCancelledPayload{
		OrderID: evt.OrderID,
	}, correlationID)
}

// setStatus updates the stored record. A missing record is logged and
// skipped; the workflow events drive the peers either way.
func (s *Service) setStatus(ctx context.Context, orderID, status string) {
	rec, err := s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		s.log.WarnContext(ctx, "order not in kitchen store",
			slog.String("order_id", orderID),
			slog.String("status", status))
		return
	}
	rec.Status = status
	rec.LastUpdated = time.Now().UTC()
	if err := s.orders.Update(ctx, rec); err != nil {
		s.log.ErrorContext(ctx, "failed to update kitchen order",
			slog.String("order_id", orderID),
			slog.Any("error", err))
	}
}
