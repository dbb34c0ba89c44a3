// Package order owns the shared order aggregate: four independent status
// dimensions updated by racing event handlers, protected by an optimistic
// concurrency token and merged through a priority-based reconciler when two
// writers collide.
package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("order not found")
	ErrAlreadyExists       = errors.New("order already exists")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrUnresolvable        = errors.New("unresolvable conflict")
)

// Status values per dimension. Each dimension transitions only along its own
// edges; the reconciler's priority lists decide which value survives when two
// writers disagree.
const (
	OrderPending    = "Pending"
	OrderProcessing = "Processing"
	OrderCompleted  = "Completed"
	OrderCancelled  = "Cancelled"

	PaymentPending   = "Pending"
	PaymentReserved  = "Reserved"
	PaymentFailed    = "Failed"
	PaymentSucceeded = "Succeeded"
	PaymentCancelled = "Cancelled"

	RestaurantPending   = "Pending"
	RestaurantAccepted  = "Accepted"
	RestaurantRejected  = "Rejected"
	RestaurantReady     = "Ready"
	RestaurantCompleted = "Completed"
	RestaurantCancelled = "Cancelled"

	DeliveryPending   = "Pending"
	DeliveryAssigned  = "Assigned"
	DeliveryStarted   = "Started"
	DeliveryCompleted = "Completed"
	DeliveryCancelled = "Cancelled"
)

// Order is the aggregate persisted by the tracking service. Other services
// observe it only through published events. Token changes on every
// successful write; a writer holding a stale token must reconcile.
type Order struct {
	OrderID          string
	CorrelationID    string
	OrderStatus      string
	PaymentStatus    string
	RestaurantStatus string
	DeliveryStatus   string
	Comment          string
	CreatedAt        time.Time
	LastUpdated      time.Time
	Token            uint64
}

// New returns an order with every dimension Pending.
func New(orderID, correlationID string, now time.Time) Order {
	return Order{
		OrderID:          orderID,
		CorrelationID:    correlationID,
		OrderStatus:      OrderPending,
		PaymentStatus:    PaymentPending,
		RestaurantStatus: RestaurantPending,
		DeliveryStatus:   DeliveryPending,
		CreatedAt:        now,
		LastUpdated:      now,
	}
}
