package order

import "fmt"

// Priorities holds one list per status dimension ordered from most to least
// terminal. When two concurrent writers disagree on a dimension, the value
// appearing first in the list wins, so a terminal outcome recorded by either
// writer is never overwritten by a less final one. The orderings are
// configuration, not logic; DefaultPriorities matches the peer services.
type Priorities struct {
	Order      []string
	Payment    []string
	Restaurant []string
	Delivery   []string
}

func DefaultPriorities() Priorities {
	return Priorities{
		Order:      []string{OrderCancelled, OrderCompleted, OrderProcessing, OrderPending},
		Payment:    []string{PaymentCancelled, PaymentFailed, PaymentSucceeded, PaymentReserved, PaymentPending},
		Restaurant: []string{RestaurantCancelled, RestaurantRejected, RestaurantCompleted, RestaurantReady, RestaurantAccepted, RestaurantPending},
		Delivery:   []string{DeliveryCancelled, DeliveryCompleted, DeliveryStarted, DeliveryAssigned, DeliveryPending},
	}
}

// Reconciler merges an attempted write that lost an optimistic concurrency
// race with the state another writer stored in the meantime.
type Reconciler struct {
	pri Priorities
}

func NewReconciler(pri Priorities) Reconciler { return Reconciler{pri: pri} }

// Merge resolves attempted against stored. Status dimensions resolve by
// priority, LastUpdated keeps the later instant, the comment keeps the
// attempted value when one was written. Identity fields and the token come
// from stored so the caller can retry the write against the current version.
// A status value missing from its dimension's priority list means the merge
// has no defined outcome and yields ErrUnresolvable.
func (r Reconciler) Merge(attempted, stored Order) (Order, error) {
	merged := stored

	var err error
	if merged.OrderStatus, err = pick(r.pri.Order, attempted.OrderStatus, stored.OrderStatus); err != nil {
		return Order{}, fmt.Errorf("order status: %w", err)
	}
	if merged.PaymentStatus, err = pick(r.pri.Payment, attempted.PaymentStatus, stored.PaymentStatus); err != nil {
		return Order{}, fmt.Errorf("payment status: %w", err)
	}
	if merged.RestaurantStatus, err = pick(r.pri.Restaurant, attempted.RestaurantStatus, stored.RestaurantStatus); err != nil {
		return Order{}, fmt.Errorf("restaurant status: %w", err)
	}
	if merged.DeliveryStatus, err = pick(r.pri.Delivery, attempted.DeliveryStatus, stored.DeliveryStatus); err != nil {
		return Order{}, fmt.Errorf("delivery status: %w", err)
	}

	if attempted.LastUpdated.After(stored.LastUpdated) {
		merged.LastUpdated = attempted.LastUpdated
	}
	if attempted.Comment != "" {
		merged.Comment = attempted.Comment
	}

	return merged, nil
}

// pick returns whichever of a and b appears first in the priority list.
func pick(priority []string, a, b string) (string, error) {
	if a == b {
		return a, nil
	}
	for _, p := range priority {
		if a == p || b == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no priority defined for %q vs %q", ErrUnresolvable, a, b)
}
