package amqp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/slicework/choreo-go/core/metrics"
)

const (
	DefaultMaxRetries     = 3
	defaultResubscribeGap = 5 * time.Second
)

// Handler processes one message body. A nil return acknowledges the
// message; an error sends it through the retry cycle until the delivery
// budget runs out, after which it is dead-lettered.
type Handler func(ctx context.Context, body []byte, correlationID string) error

// Source yields a stream of deliveries. stop cancels the subscription and
// releases its resources; the delivery channel closes afterwards.
type Source interface {
	Consume(ctx context.Context) (<-chan amqp091.Delivery, func(), error)
}

// DeadLetterer parks a poison message outside the retry cycle.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, d amqp091.Delivery) error
}

// Consumer pulls deliveries from a Source and drives them through a Handler
// with at-least-once semantics. A failed message is rejected without
// requeue, travels through the retry queue and reappears after its TTL;
// the broker counts each round trip in the x-death header, and once the
// count reaches MaxRetries the message is dead-lettered and acked.
type Consumer struct {
	log        *slog.Logger
	source     Source
	handler    Handler
	deadLetter DeadLetterer
	queue      string
	maxRetries int64
	resubGap   time.Duration
	metrics    metrics.Messaging
}

type ConsumerConfig struct {
	Log        *slog.Logger
	Source     Source
	Handler    Handler
	DeadLetter DeadLetterer
	// Queue names the work queue, for logs and metrics only.
	Queue string
	// MaxRetries caps redeliveries per message, default 3.
	MaxRetries int64
	Metrics    metrics.Messaging
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Source == nil {
		return nil, errors.New("consumer: source is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("consumer: handler is required")
	}
	if cfg.DeadLetter == nil {
		return nil, errors.New("consumer: dead letterer is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NopMessaging()
	}
	return &Consumer{
		log:        log.With(slog.String("component", "consumer"), slog.String("queue", cfg.Queue)),
		source:     cfg.Source,
		handler:    cfg.Handler,
		deadLetter: cfg.DeadLetter,
		queue:      cfg.Queue,
		maxRetries: maxRetries,
		resubGap:   defaultResubscribeGap,
		metrics:    m,
	}, nil
}

// Run consumes until ctx is cancelled. A dropped subscription (broker
// restart, closed channel) is resubscribed after a short pause; Run only
// returns the context error.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.log.WarnContext(ctx, "subscription lost, resubscribing",
				slog.Any("error", err),
				slog.Duration("after", c.resubGap))
		}
		select {
		case <-time.After(c.resubGap):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	deliveries, stop, err := c.source.Consume(ctx)
	if err != nil {
		return err
	}
	defer stop()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery stream closed")
			}
			c.process(ctx, d)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp091.Delivery) {
	ctx = extractTrace(ctx, d.Headers)
	retries := deliveryCount(d.Headers)

	log := c.log.With(
		slog.String("message_id", d.MessageId),
		slog.String("correlation_id", d.CorrelationId),
		slog.Int64("retries", retries),
	)

	var err error
	if d.CorrelationId == "" {
		// Tracing continuity is part of the contract; a message without a
		// correlation id goes through the same retry cycle as a handler
		// failure instead of being invented one here.
		err = errors.New("missing correlation id")
	} else {
		timer := c.metrics.ConsumeDuration(c.queue)
		err = c.handler(ctx, d.Body, d.CorrelationId)
		timer.ObserveDuration()
	}

	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.ErrorContext(ctx, "ack failed", slog.Any("error", ackErr))
			return
		}
		c.metrics.MessageProcessed(c.queue, true)
		return
	}

	c.metrics.MessageProcessed(c.queue, false)
	log.WarnContext(ctx, "message handling failed", slog.Any("error", err))

	if retries < c.maxRetries {
		// Reject without requeue routes through the retry queue; the
		// message reappears here after the TTL with a bumped x-death count.
		if rejErr := d.Reject(false); rejErr != nil {
			log.ErrorContext(ctx, "reject failed", slog.Any("error", rejErr))
			return
		}
		c.metrics.MessageRetried(c.queue)
		return
	}

	if dlErr := c.deadLetter.DeadLetter(ctx, d); dlErr != nil {
		// Could not park the message; leave it in the retry cycle so the
		// dead-letter publish gets another chance next round.
		log.ErrorContext(ctx, "dead-letter publish failed", slog.Any("error", dlErr))
		if rejErr := d.Reject(false); rejErr != nil {
			log.ErrorContext(ctx, "reject failed", slog.Any("error", rejErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		log.ErrorContext(ctx, "ack after dead-letter failed", slog.Any("error", ackErr))
		return
	}
	c.metrics.MessageDeadLettered(c.queue)
	log.ErrorContext(ctx, "message dead-lettered after exhausting deliveries")
}

// deliveryCount reads how many times the broker has already dead-lettered
// this message, from the first x-death entry. Zero on first delivery.
func deliveryCount(headers amqp091.Table) int64 {
	deaths, ok := headers["x-death"].([]any)
	if !ok || len(deaths) == 0 {
		return 0
	}
	death, ok := deaths[0].(amqp091.Table)
	if !ok {
		return 0
	}
	switch n := death["count"].(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
