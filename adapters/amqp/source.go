package amqp

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// QueueSource subscribes to a work queue with prefetch 1, so a slow handler
// throttles intake instead of buffering deliveries client-side.
type QueueSource struct {
	connect Connector
	queue   string
}

func NewQueueSource(connect Connector, top Topology) *QueueSource {
	return &QueueSource{connect: connect, queue: top.WorkQueue}
}

func (s *QueueSource) Consume(ctx context.Context) (<-chan amqp091.Delivery, func(), error) {
	nc, closeConn, err := s.connect()
	if err != nil {
		return nil, nil, err
	}
	ch, err := nc.Channel()
	if err != nil {
		closeConn()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		closeConn()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	tag := "choreo-" + gonanoid.Must(6)
	deliveries, err := ch.ConsumeWithContext(ctx, s.queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		closeConn()
		return nil, nil, fmt.Errorf("consume %s: %w", s.queue, err)
	}

	stop := func() {
		_ = ch.Cancel(tag, false)
		_ = ch.Close()
		closeConn()
	}
	return deliveries, stop, nil
}

// ChannelDeadLetterer republishes a delivery to the dead-letter queue with
// its original headers and properties intact, so the parked copy still
// carries the x-death history and trace context.
type ChannelDeadLetterer struct {
	channels ChannelFactory
	queue    string
}

func NewDeadLetterer(channels ChannelFactory, top Topology) *ChannelDeadLetterer {
	return &ChannelDeadLetterer{channels: channels, queue: top.DeadLetterQueue}
}

func (dl *ChannelDeadLetterer) DeadLetter(ctx context.Context, d amqp091.Delivery) error {
	ch, err := dl.channels()
	if err != nil {
		return fmt.Errorf("open dlq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	return ch.PublishWithConfirm(ctx, DefaultExchange, dl.queue, false, amqp091.Publishing{
		Headers:       d.Headers,
		ContentType:   d.ContentType,
		DeliveryMode:  amqp091.Persistent,
		CorrelationId: d.CorrelationId,
		MessageId:     d.MessageId,
		Timestamp:     d.Timestamp,
		Body:          d.Body,
	})
}
