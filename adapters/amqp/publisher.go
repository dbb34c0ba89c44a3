package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/slicework/choreo-go/core/envelope"
	"github.com/slicework/choreo-go/core/metrics"
)

const (
	DefaultMaxPublishRetries = 3
	DefaultBaseDelay         = time.Second
)

var (
	ErrUnroutable    = errors.New("message returned unroutable")
	ErrNotConfirmed  = errors.New("publish not confirmed by broker")
	ErrPublishFailed = errors.New("publish failed after retries")
)

// PublishChannel is a confirm-mode channel for a single logical publish.
// PublishWithConfirm resolves with the broker's verdict: nil once the
// message is durably accepted, ErrUnroutable if no queue matched a
// mandatory publish, ErrNotConfirmed on a broker nack.
type PublishChannel interface {
	PublishWithConfirm(ctx context.Context, exchange, routingKey string, mandatory bool, msg amqp091.Publishing) error
	Close() error
}

// ChannelFactory opens a fresh PublishChannel. A failed publish can leave
// the channel broken, so the publisher asks for a new one per attempt.
type ChannelFactory func() (PublishChannel, error)

// Channels builds a ChannelFactory on top of a Connector. Wrap the
// Connector with ReuseConnection to share the underlying connection.
func Channels(connect Connector) ChannelFactory {
	return func() (PublishChannel, error) {
		nc, closeConn, err := connect()
		if err != nil {
			return nil, err
		}
		ch, err := nc.Channel()
		if err != nil {
			closeConn()
			return nil, fmt.Errorf("open channel: %w", err)
		}
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			closeConn()
			return nil, fmt.Errorf("confirm mode: %w", err)
		}
		return &confirmChannel{
			ch:        ch,
			returns:   ch.NotifyReturn(make(chan amqp091.Return, 1)),
			closeConn: closeConn,
		}, nil
	}
}

type confirmChannel struct {
	ch        *amqp091.Channel
	returns   chan amqp091.Return
	closeConn closeFunc
}

func (c *confirmChannel) PublishWithConfirm(ctx context.Context, exchange, routingKey string, mandatory bool, msg amqp091.Publishing) error {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, mandatory, false, msg)
	if err != nil {
		return err
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	// An unroutable mandatory message is returned and then still positively
	// confirmed, so the return channel has to be checked even after an ack.
	// The basic.return precedes the ack on the wire, making the
	// non-blocking read reliable here.
	select {
	case ret := <-c.returns:
		return fmt.Errorf("%w: %s (code %d)", ErrUnroutable, ret.ReplyText, ret.ReplyCode)
	default:
	}
	if !acked {
		return ErrNotConfirmed
	}
	return nil
}

func (c *confirmChannel) Close() error {
	err := c.ch.Close()
	if c.closeConn != nil {
		c.closeConn()
	}
	return err
}

// Publisher sends envelopes with delivery confirmation, retrying with
// exponential backoff on a fresh channel per attempt and falling back to
// the dead-letter queue once retries exhaust. A nil return means the broker
// durably accepted the message for at least one bound queue.
type Publisher struct {
	log        *slog.Logger
	channels   ChannelFactory
	top        Topology
	maxRetries int
	baseDelay  time.Duration
	metrics    metrics.Messaging
}

type PublisherConfig struct {
	Log      *slog.Logger
	Channels ChannelFactory
	Topology Topology
	// MaxRetries and BaseDelay default to 3 and 1s.
	MaxRetries int
	BaseDelay  time.Duration
	Metrics    metrics.Messaging
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Channels == nil {
		return nil, errors.New("publisher: channel factory is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxPublishRetries
	}
	baseDelay := cfg.BaseDelay
	if baseDelay == 0 {
		baseDelay = DefaultBaseDelay
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NopMessaging()
	}
	return &Publisher{
		log:        log.With(slog.String("component", "publisher")),
		channels:   cfg.Channels,
		top:        cfg.Topology,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		metrics:    m,
	}, nil
}

// Publish sends env under routingKey on the topic exchange, persistent and
// mandatory. The correlation id travels as a transport property, never in
// the body.
func (p *Publisher) Publish(ctx context.Context, routingKey string, env envelope.Envelope, correlationID string) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}

	headers := amqp091.Table{}
	injectTrace(ctx, headers)

	msg := amqp091.Publishing{
		Headers:       headers,
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		CorrelationId: correlationID,
		MessageId:     env.MessageID,
		Timestamp:     env.Timestamp,
		Body:          body,
	}

	log := p.log.With(
		slog.String("routing_key", routingKey),
		slog.String("message_id", env.MessageID),
		slog.String("correlation_id", correlationID),
	)

	timer := p.metrics.PublishDuration(routingKey)
	defer timer.ObserveDuration()

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		lastErr = p.attempt(ctx, routingKey, msg)
		if lastErr == nil {
			log.DebugContext(ctx, "event published", slog.Int("attempt", attempt))
			return nil
		}

		log.WarnContext(ctx, "publish attempt failed",
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr))

		if attempt == p.maxRetries {
			break
		}
		p.metrics.PublishRetried(routingKey)
		select {
		case <-time.After(p.baseDelay << (attempt - 1)):
		case <-ctx.Done():
			log.ErrorContext(ctx, "publish abandoned during backoff, message lost",
				slog.Int("attempt", attempt),
				slog.Any("error", ctx.Err()))
			return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
		}
	}

	// Final fallback: park the raw payload in the DLQ, best effort. This
	// must not loop, so a DLQ failure is only logged.
	p.metrics.PublishDeadLettered(routingKey)
	if dlErr := p.deadLetter(ctx, env, correlationID, headers); dlErr != nil {
		log.ErrorContext(ctx, "failed to dead-letter after publish retries",
			slog.Any("error", dlErr))
	} else {
		log.ErrorContext(ctx, "event dead-lettered after publish retries",
			slog.String("dlq", p.top.DeadLetterQueue))
	}

	return fmt.Errorf("%w (%d attempts): %w", ErrPublishFailed, p.maxRetries, lastErr)
}

func (p *Publisher) attempt(ctx context.Context, routingKey string, msg amqp091.Publishing) error {
	ch, err := p.channels()
	if err != nil {
		return fmt.Errorf("open publish channel: %w", err)
	}
	defer func() { _ = ch.Close() }()
	return ch.PublishWithConfirm(ctx, p.top.Exchange, routingKey, true, msg)
}

func (p *Publisher) deadLetter(ctx context.Context, env envelope.Envelope, correlationID string, headers amqp091.Table) error {
	ch, err := p.channels()
	if err != nil {
		return fmt.Errorf("open dlq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	return ch.PublishWithConfirm(ctx, DefaultExchange, p.top.DeadLetterQueue, false, amqp091.Publishing{
		Headers:       headers,
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		CorrelationId: correlationID,
		MessageId:     env.MessageID,
		Timestamp:     env.Timestamp,
		Body:          env.Payload,
	})
}
