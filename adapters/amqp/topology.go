package amqp

import (
	"fmt"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

const (
	// EventExchange is the topic exchange shared by all services.
	EventExchange = "events.topic"
	// DefaultExchange routes directly to the queue named by the routing key.
	DefaultExchange = ""

	defaultRetryTTL = 30 * time.Second
)

// Topology names one service's queues and bindings. Pure data except for
// Declare; peer services interoperate through these exact names, so the
// work queue dead-letters into the retry queue, and the retry queue
// dead-letters back after its TTL.
type Topology struct {
	Exchange        string
	WorkQueue       string
	RetryQueue      string
	DeadLetterQueue string
	Bindings        []string      // routing keys the work queue subscribes to
	RetryTTL        time.Duration // delay before a rejected message reappears
}

// ForService derives the conventional queue names for a service.
func ForService(service string, bindings ...string) Topology {
	return Topology{
		Exchange:        EventExchange,
		WorkQueue:       service + "-queue",
		RetryQueue:      service + "-retry-queue",
		DeadLetterQueue: service + "-dlq-queue",
		Bindings:        bindings,
		RetryTTL:        defaultRetryTTL,
	}
}

// Declare asserts the exchange, queues and bindings. All declarations are
// idempotent; every service declares the full topology it touches on boot.
func (t Topology) Declare(ch *amqp091.Channel) error {
	ttl := t.RetryTTL
	if ttl == 0 {
		ttl = defaultRetryTTL
	}

	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}

	if _, err := ch.QueueDeclare(t.WorkQueue, true, false, false, false, amqp091.Table{
		"x-dead-letter-exchange":    DefaultExchange,
		"x-dead-letter-routing-key": t.RetryQueue,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.WorkQueue, err)
	}

	for _, key := range t.Bindings {
		if err := ch.QueueBind(t.WorkQueue, key, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", t.WorkQueue, key, err)
		}
	}

	if _, err := ch.QueueDeclare(t.RetryQueue, true, false, false, false, amqp091.Table{
		"x-message-ttl":             ttl.Milliseconds(),
		"x-dead-letter-exchange":    DefaultExchange,
		"x-dead-letter-routing-key": t.WorkQueue,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.RetryQueue, err)
	}

	if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue, err)
	}

	return nil
}
