// Package events defines the closed set of event types exchanged between the
// ordering services, their payload shapes and their routing keys. The mapping
// from event type to payload is fixed; anything outside it is rejected at
// decode time.
package events

import (
	"context"

	"github.com/slicework/choreo-go/core/envelope"
)

const (
	OrderCreated         = "OrderCreated"
	PaymentReserved      = "PaymentReserved"
	PaymentFailed        = "PaymentFailed"
	PaymentSucceeded     = "PaymentSucceeded"
	PaymentCancelled     = "PaymentCancelled"
	RestaurantAccepted   = "RestaurantAccepted"
	RestaurantRejected   = "RestaurantRejected"
	RestaurantOrderReady = "RestaurantOrderReady"
	RestaurantCancelled  = "RestaurantCancelled"
	DeliveryAssigned     = "DeliveryAssigned"
	DeliveryStarted      = "DeliveryStarted"
	DeliveryCompleted    = "DeliveryCompleted"
	DeliveryCancelled    = "DeliveryCancelled"
)

// routingKeys uses dot-separated noun.verb keys on the shared topic exchange.
// Peer services bind on these exact strings; do not rename.
var routingKeys = map[string]string{
	OrderCreated:         "order.created",
	PaymentReserved:      "payment.reserved",
	PaymentFailed:        "payment.failed",
	PaymentSucceeded:     "payment.succeeded",
	PaymentCancelled:     "payment.cancelled",
	RestaurantAccepted:   "restaurant.accepted",
	RestaurantRejected:   "restaurant.rejected",
	RestaurantOrderReady: "restaurant.order_ready",
	RestaurantCancelled:  "restaurant.cancelled",
	DeliveryAssigned:     "delivery.assigned",
	DeliveryStarted:      "delivery.started",
	DeliveryCompleted:    "delivery.completed",
	DeliveryCancelled:    "delivery.cancelled",
}

// RoutingKey returns the routing key for eventType, or "" if the type is not
// part of the closed set.
func RoutingKey(eventType string) string { return routingKeys[eventType] }

// All returns every event type in the closed set.
func All() []string {
	out := make([]string, 0, len(routingKeys))
	for t := range routingKeys {
		out = append(out, t)
	}
	return out
}

// AllKeys returns every routing key in the closed set.
func AllKeys() []string {
	out := make([]string, 0, len(routingKeys))
	for _, k := range routingKeys {
		out = append(out, k)
	}
	return out
}

type Item struct {
	ItemID      string  `json:"itemId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type OrderCreatedPayload struct {
	OrderID         string  `json:"orderId"`
	CustomerAddress string  `json:"customerAddress"`
	Items           []Item  `json:"items"`
	TotalPrice      float64 `json:"totalPrice"`
	Currency        string  `json:"currency"`
}

type PaymentReservedPayload struct {
	OrderID string `json:"orderId"`
}

type PaymentFailedPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

type PaymentSucceededPayload struct {
	OrderID string `json:"orderId"`
}

type PaymentCancelledPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

type RestaurantAcceptedPayload struct {
	OrderID string `json:"orderId"`
}

type RestaurantRejectedPayload struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

type RestaurantOrderReadyPayload struct {
	OrderID string `json:"orderId"`
}

type RestaurantCancelledPayload struct {
	OrderID string `json:"orderId"`
}

type DeliveryAssignedPayload struct {
	OrderID string `json:"orderId"`
}

type DeliveryStartedPayload struct {
	OrderID string `json:"orderId"`
}

type DeliveryCompletedPayload struct {
	OrderID string `json:"orderId"`
}

type DeliveryCancelledPayload struct {
	OrderID string `json:"orderId"`
}

// NewRegistry returns a payload registry covering the full closed set.
func NewRegistry() *envelope.Registry {
	r := envelope.NewRegistry()
	envelope.RegisterPayload[OrderCreatedPayload](r, OrderCreated)
	envelope.RegisterPayload[PaymentReservedPayload](r, PaymentReserved)
	envelope.RegisterPayload[PaymentFailedPayload](r, PaymentFailed)
	envelope.RegisterPayload[PaymentSucceededPayload](r, PaymentSucceeded)
	envelope.RegisterPayload[PaymentCancelledPayload](r, PaymentCancelled)
	envelope.RegisterPayload[RestaurantAcceptedPayload](r, RestaurantAccepted)
	envelope.RegisterPayload[RestaurantRejectedPayload](r, RestaurantRejected)
	envelope.RegisterPayload[RestaurantOrderReadyPayload](r, RestaurantOrderReady)
	envelope.RegisterPayload[RestaurantCancelledPayload](r, RestaurantCancelled)
	envelope.RegisterPayload[DeliveryAssignedPayload](r, DeliveryAssigned)
	envelope.RegisterPayload[DeliveryStartedPayload](r, DeliveryStarted)
	envelope.RegisterPayload[DeliveryCompletedPayload](r, DeliveryCompleted)
	envelope.RegisterPayload[DeliveryCancelledPayload](r, DeliveryCancelled)
	return r
}

// Publisher is the outbound port used by domain components to emit events.
// adapters/amqp.Publisher is the production implementation.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, env envelope.Envelope, correlationID string) error
}

// Emit wraps payload in a fresh envelope and publishes it under the event
// type's routing key.
func Emit(ctx context.Context, pub Publisher, eventType string, payload any, correlationID string) error {
	env, err := envelope.New(eventType, payload)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, RoutingKey(eventType), env, correlationID)
}
