// Package app provides a high-level API for building event-driven services
// that publish and consume domain events over RabbitMQ.
//
// The App type wires one service instance: broker connection, queue topology
// declaration, a confirming publisher and a consumer loop that feeds the
// event router.
//
// # Basic Usage
//
//	a, err := app.Run(app.Config{
//	    Service:  "payment",
//	    Bindings: []string{"order.created", "restaurant.rejected"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	route.Handle(a.Router(), events.OrderCreated,
//	    func(ctx context.Context, evt *events.OrderCreatedPayload, correlationID string) error {
//	        // handle the event, emit follow-ups via a.Publisher()
//	        return nil
//	    })
//
//	// Graceful shutdown
//	a.Stop()
//
// # Delivery Semantics
//
// Each service gets a work queue, a retry queue and a dead-letter queue.
// A failed handler rejects the message into the retry queue, where it sits
// for RetryTTL before the broker redelivers it. After the redelivery budget
// is exhausted the message is parked in the dead-letter queue for manual
// inspection. Handlers therefore see at-least-once delivery and must be
// idempotent.
package app
