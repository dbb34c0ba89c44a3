// Package delivery implements the courier side of the workflow: keep a
// delivery record per order, assign a driver once the restaurant accepts,
// pick up when the order is ready, dwell while the courier is on the road,
// then announce completion. Payment failures and restaurant rejections
// cancel the delivery.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/slicework/choreo-go/core/events"
	"github.com/slicework/choreo-go/core/route"
)

var (
	ErrNotFound      = errors.New("delivery not found")
	ErrAlreadyExists = errors.New("delivery already exists")
)

const (
	StatusPending   = "Pending"
	StatusAssigned  = "Assigned"
	StatusStarted   = "Started"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
)

const defaultTransit = 10 * time.Second

// Record is one delivery, keyed by order id. Inserting the same order id
// twice fails with ErrAlreadyExists, making redelivered OrderCreated events
// idempotent.
type Record struct {
	OrderID         string
	CorrelationID   string
	CustomerAddress string
	DriverID        string
	Status          string
	ETAMinutes      int
	AssignedAt      time.Time
	StartedAt       time.Time
	CompletedAt     time.Time
	CreatedAt       time.Time
	LastUpdated     time.Time
}

type Fleet interface {
	FindByOrderID(ctx context.Context, orderID string) (Record, error)
	Insert(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
}

type Service struct {
	log     *slog.Logger
	fleet   Fleet
	pub     events.Publisher
	transit time.Duration
	assign  func(orderID string) (driverID string, etaMinutes int)
}

type Config struct {
	Log   *slog.Logger
	Fleet Fleet // nil runs on the in-memory fleet
	Pub   events.Publisher
	// Transit is the travel time between pickup and completion, default 10s.
	Transit time.Duration
	// Assign picks a driver and estimates the ETA in minutes. Nil picks a
	// random driver with an ETA between 15 and 30 minutes.
	Assign func(orderID string) (driverID string, etaMinutes int)
}

func New(cfg Config) *Service {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	fleet := cfg.Fleet
	if fleet == nil {
		fleet = NewMemFleet()
	}
	transit := cfg.Transit
	if transit == 0 {
		transit = defaultTransit
	}
	assign := cfg.Assign
	if assign == nil {
		assign = func(string) (string, int) {
			return fmt.Sprintf("driver-%04d", rand.IntN(10000)), 15 + rand.IntN(16)
		}
	}
	return &Service{
		log:     log.With(slog.String("component", "delivery")),
		fleet:   fleet,
		pub:     cfg.Pub,
		transit: transit,
		assign:  assign,
	}
}

// Register wires the event types the delivery service consumes.
func (s *Service) Register(r *route.Router) {
	route.Handle(r, events.OrderCreated, s.HandleOrderCreated)
	route.Handle(r, events.RestaurantAccepted, s.HandleRestaurantAccepted)
	route.Handle(r, events.RestaurantOrderReady, s.HandleRestaurantOrderReady)
	route.Handle(r, events.RestaurantRejected, s.HandleRestaurantRejected)
	route.Handle(r, events.PaymentFailed, s.HandlePaymentFailed)
}

// HandleOrderCreated opens a pending delivery record. A duplicate order id
// is a redelivered creation and skipped.
func (s *Service) HandleOrderCreated(ctx context.Context, evt *events.OrderCreatedPayload, correlationID string) error {
	now := time.Now().UTC()
	rec := Record{
		OrderID:         evt.OrderID,
		CorrelationID:   correlationID,
		CustomerAddress: evt.CustomerAddress,
		Status:          StatusPending,
		CreatedAt:       now,
		LastUpdated:     now,
	}
	if err := s.fleet.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			s.log.WarnContext(ctx, "delivery already created, skipping",
				slog.String("order_id", evt.OrderID))
			return nil
		}
		return fmt.Errorf("insert delivery for %s: %w", evt.OrderID, err)
	}
	s.log.InfoContext(ctx, "delivery record created", slog.String("order_id", evt.OrderID))
	return nil
}

// HandleRestaurantAccepted assigns a driver with an ETA and announces the
// assignment. A missing record is created on the spot; the creation event
// may still be in flight on the other queue.
func (s *Service) HandleRestaurantAccepted(ctx context.Context, evt *events.RestaurantAcceptedPayload, correlationID string) error {
	driverID, eta := s.assign(evt.OrderID)
	now := time.Now().UTC()

	rec, err := s.fleet.FindByOrderID(ctx, evt.OrderID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("load delivery for %s: %w", evt.OrderID, err)
		}
		rec = Record{OrderID: evt.OrderID, CreatedAt: now}
	}

	rec.CorrelationID = correlationID
	rec.Status = StatusAssigned
	rec.DriverID = driverID
	rec.ETAMinutes = eta
	rec.AssignedAt = now
	rec.LastUpdated = now
	if err := s.upsert(ctx, rec); err != nil {
		return fmt.Errorf("assign delivery for %s: %w", evt.OrderID, err)
	}

	s.log.InfoContext(ctx, "driver assigned",
		slog.String("order_id", evt.OrderID),
		slog.String("driver_id", driverID),
		slog.Int("eta_minutes", eta))

	return events.Emit(ctx, s.pub, events.DeliveryAssigned, events.DeliveryAssignedPayload{
		OrderID: evt.OrderID,
	}, correlationID)
}

// HandleRestaurantOrderReady picks the order up, announces the start, rides
// out the transit time and announces completion. The transit dwell is a
// deliberate suspension point; with prefetch 1 it stalls intake on the
// channel instead of piling up concurrent handlers.
func (s *Service) HandleRestaurantOrderReady(ctx context.Context, evt *events.RestaurantOrderReadyPayload, correlationID string) error {
	rec, err := s.fleet.FindByOrderID(ctx, evt.OrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.WarnContext(ctx, "no delivery to pick up", slog.String("order_id", evt.OrderID))
			return nil
		}
		return fmt.Errorf("load delivery for %s: %w", evt.OrderID, err)
	}

	now := time.Now().UTC()
	rec.Status = StatusStarted
	rec.StartedAt = now
	rec.LastUpdated = now
	if err := s.fleet.Update(ctx, rec); err != nil {
		return fmt.Errorf("start delivery for %s: %w", evt.OrderID, err)
	}
	s.log.InfoContext(ctx, "delivery started", slog.String("order_id", evt.OrderID))
	if err := events.Emit(ctx, s.pub, events.DeliveryStarted, events.DeliveryStartedPayload{
		OrderID: evt.OrderID,
	}, correlationID); err != nil {
		return err
	}

	select {
	case <-time.After(s.transit):
	case <-ctx.Done():
		return ctx.Err()
	}

	now = time.Now().UTC()
	rec.Status = StatusCompleted
	rec.CompletedAt = now
	rec.LastUpdated = now
	if err := s.fleet.Update(ctx, rec); err != nil {
		return fmt.Errorf("complete delivery for %s: %w", evt.OrderID, err)
	}
	s.log.InfoContext(ctx, "delivery completed", slog.String("order_id", evt.OrderID))
	return events.Emit(ctx, s.pub, events.DeliveryCompleted, events.DeliveryCompletedPayload{
		OrderID: evt.OrderID,
	}, correlationID)
}

func (s *Service) HandleRestaurantRejected(ctx context.Context, evt *events.RestaurantRejectedPayload, correlationID string) error {
	return s.cancel(ctx, evt.OrderID, correlationID)
}

func (s *Service) HandlePaymentFailed(ctx context.Context, evt *events.PaymentFailedPayload, correlationID string) error {
	return s.cancel(ctx, evt.OrderID, correlationID)
}

func (s *Service) cancel(ctx context.Context, orderID, correlationID string) error {
	rec, err := s.fleet.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.WarnContext(ctx, "no delivery to cancel", slog.String("order_id", orderID))
			return nil
		}
		return fmt.Errorf("load delivery for %s: %w", orderID, err)
	}

	rec.Status = StatusCancelled
	rec.LastUpdated = time.Now().UTC()
	if err := s.fleet.Update(ctx, rec); err != nil {
		return fmt.Errorf("cancel delivery for %s: %w", orderID, err)
	}

	s.log.InfoContext(ctx, "delivery cancelled", slog.String("order_id", orderID))
	return events.Emit(ctx, s.pub, events.DeliveryCancelled, events.DeliveryCancelledPayload{
		OrderID: orderID,
	}, correlationID)
}

func (s *Service) upsert(ctx context.Context, rec Record) error {
	err := s.fleet.Update(ctx, rec)
	if errors.Is(err, ErrNotFound) {
		return s.fleet.Insert(ctx, rec)
	}
	return err
}
