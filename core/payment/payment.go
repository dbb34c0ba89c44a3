// Package payment implements the payment service's workflow: reserve on
// order creation, cancel on restaurant rejection, finalize when delivery
// starts. Validation failures are business outcomes published as
// PaymentFailed events, not queue errors.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slicework/choreo-go/core/events"
	"github.com/slicework/choreo-go/core/route"
)

var (
	ErrNotFound      = errors.New("payment not found")
	ErrAlreadyExists = errors.New("payment already exists")
)

const (
	StatusReserved  = "Reserved"
	StatusCancelled = "Cancelled"
	StatusSucceeded = "Succeeded"
)

// Record is one payment, keyed by order id. Inserting the same order id
// twice fails with ErrAlreadyExists, which is what makes redelivered
// OrderCreated events idempotent.
type Record struct {
	OrderID       string
	CorrelationID string
	Amount        float64
	Currency      string
	Status        string
	CreatedAt     time.Time
	LastUpdated   time.Time
}

type Ledger interface {
	FindByOrderID(ctx context.Context, orderID string) (Record, error)
	Insert(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
}

type Processor struct {
	log    *slog.Logger
	ledger Ledger
	pub    events.Publisher
}

func NewProcessor(log *slog.Logger, ledger Ledger, pub events.Publisher) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		log:    log.With(slog.String("component", "payment")),
		ledger: ledger,
		pub:    pub,
	}
}

// Register wires the event types the payment service consumes.
func (p *Processor) Register(r *route.Router) {
	route.Handle(r, events.OrderCreated, p.HandleOrderCreated)
	route.Handle(r, events.RestaurantRejected, p.HandleRestaurantRejected)
	route.Handle(r, events.DeliveryStarted, p.HandleDeliveryStarted)
}

// HandleOrderCreated validates the order and reserves the amount. Invalid
// orders produce a PaymentFailed event and the handler still succeeds: the
// message was processed, just with a negative business outcome.
func (p *Processor) HandleOrderCreated(ctx context.Context, evt *events.OrderCreatedPayload, correlationID string) error {
	if evt.Currency == "" {
		p.log.WarnContext(ctx, "missing currency", slog.String("order_id", evt.OrderID))
		return events.Emit(ctx, p.pub, events.PaymentFailed, events.PaymentFailedPayload{
			OrderID: evt.OrderID,
			Reason:  "Missing currency information",
		}, correlationID)
	}
	if evt.TotalPrice <= 0 {
		p.log.WarnContext(ctx, "invalid payment amount",
			slog.String("order_id", evt.OrderID),
			slog.Float64("amount", evt.TotalPrice))
		return events.Emit(ctx, p.pub, events.PaymentFailed, events.PaymentFailedPayload{
			OrderID: evt.OrderID,
			Reason:  "Invalid payment amount",
		}, correlationID)
	}

	now := time.Now().UTC()
	rec := Record{
		OrderID:       evt.OrderID,
		CorrelationID: correlationID,
		Amount:        evt.TotalPrice,
		Currency:      evt.Currency,
		Status:        StatusReserved,
		CreatedAt:     now,
		LastUpdated:   now,
	}
	if err := p.ledger.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			p.log.WarnContext(ctx, "payment already reserved, skipping",
				slog.String("order_id", evt.OrderID))
			return nil
		}
		return fmt.Errorf("insert payment for %s: %w", evt.OrderID, err)
	}

	p.log.InfoContext(ctx, "payment reserved",
		slog.String("order_id", evt.OrderID),
		slog.Float64("amount", rec.Amount),
		slog.String("currency", rec.Currency))

	return events.Emit(ctx, p.pub, events.PaymentReserved, events.PaymentReservedPayload{
		OrderID: evt.OrderID,
	}, correlationID)
}

func (p *Processor) HandleRestaurantRejected(ctx context.Context, evt *events.RestaurantRejectedPayload, correlationID string) error {
	rec, err := p.ledger.FindByOrderID(ctx, evt.OrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.log.WarnContext(ctx, "no payment to cancel", slog.String("order_id", evt.OrderID))
			return nil
		}
		return fmt.Errorf("load payment for %s: %w", evt.OrderID, err)
	}

	rec.Status = StatusCancelled
	rec.LastUpdated = time.Now().UTC()
	if err := p.ledger.Update(ctx, rec); err != nil {
		return fmt.Errorf("cancel payment for %s: %w", evt.OrderID, err)
	}

	p.log.InfoContext(ctx, "payment cancelled",
		slog.String("order_id", evt.OrderID),
		slog.String("reason", evt.Reason))

	return events.Emit(ctx, p.pub, events.PaymentCancelled, events.PaymentCancelledPayload{
		OrderID: evt.OrderID,
		Reason:  fmt.Sprintf("Restaurant rejected order: %s", evt.Reason),
	}, correlationID)
}

func (p *Processor) HandleDeliveryStarted(ctx context.Context, evt *events.DeliveryStartedPayload, correlationID string) error {
	rec, err := p.ledger.FindByOrderID(ctx, evt.OrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.log.WarnContext(ctx, "no payment to finalize", slog.String("order_id", evt.OrderID))
			return nil
		}
		return fmt.Errorf("load payment for %s: %w", evt.OrderID, err)
	}

	rec.Status = StatusSucceeded
	rec.LastUpdated = time.Now().UTC()
	if err := p.ledger.Update(ctx, rec); err != nil {
		return fmt.Errorf("finalize payment for %s: %w", evt.OrderID, err)
	}

	p.log.InfoContext(ctx, "payment succeeded", slog.String("order_id", evt.OrderID))

	return events.Emit(ctx, p.pub, events.PaymentSucceeded, events.PaymentSucceededPayload{
		OrderID: evt.OrderID,
	}, correlationID)
}
