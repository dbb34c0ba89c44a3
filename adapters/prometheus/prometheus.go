// Package prometheus provides the Prometheus implementation of the
// messaging metrics interface.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slicework/choreo-go/core/metrics"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// messagingMetrics implements metrics.Messaging using Prometheus.
type messagingMetrics struct {
	// Publisher metrics
	publishDuration     *prometheus.HistogramVec
	publishRetries      *prometheus.CounterVec
	publishDeadLettered *prometheus.CounterVec

	// Consumer metrics
	consumeDuration    *prometheus.HistogramVec
	messagesProcessed  *prometheus.CounterVec
	messagesRetried    *prometheus.CounterVec
	messagesDeadLetter *prometheus.CounterVec

	// Aggregate write metrics
	concurrencyConflicts *prometheus.CounterVec
	conflictsUnresolved  *prometheus.CounterVec
}

// NewMessagingMetrics creates a new Prometheus implementation of
// metrics.Messaging registered on reg.
func NewMessagingMetrics(reg prometheus.Registerer) metrics.Messaging {
	m := &messagingMetrics{
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "choreo_publish_duration_seconds",
			Help:    "Publish latency in seconds, including retries",
			Buckets: defaultBuckets,
		}, []string{"routing_key"}),

		publishRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_publish_retries_total",
			Help: "Total number of publish attempt retries",
		}, []string{"routing_key"}),

		publishDeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_publish_dead_lettered_total",
			Help: "Total number of messages dead-lettered after publish retries",
		}, []string{"routing_key"}),

		consumeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "choreo_consume_duration_seconds",
			Help:    "Message handling time in seconds",
			Buckets: defaultBuckets,
		}, []string{"queue"}),

		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_messages_processed_total",
			Help: "Total number of messages processed",
		}, []string{"queue", "success"}),

		messagesRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_messages_retried_total",
			Help: "Total number of messages sent through the retry cycle",
		}, []string{"queue"}),

		messagesDeadLetter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_messages_dead_lettered_total",
			Help: "Total number of messages dead-lettered after exhausting retries",
		}, []string{"queue"}),

		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_concurrency_conflicts_total",
			Help: "Total number of optimistic lock failures",
		}, []string{"aggregate_type"}),

		conflictsUnresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choreo_conflicts_unresolvable_total",
			Help: "Total number of conflicts the reconciler could not merge",
		}, []string{"aggregate_type"}),
	}

	reg.MustRegister(
		m.publishDuration,
		m.publishRetries,
		m.publishDeadLettered,
		m.consumeDuration,
		m.messagesProcessed,
		m.messagesRetried,
		m.messagesDeadLetter,
		m.concurrencyConflicts,
		m.conflictsUnresolved,
	)

	return m
}

func (m *messagingMetrics) PublishDuration(routingKey string) metrics.Timer {
	return newTimer(m.publishDuration.WithLabelValues(routingKey))
}

func (m *messagingMetrics) PublishRetried(routingKey string) {
	m.publishRetries.WithLabelValues(routingKey).Inc()
}

func (m *messagingMetrics) PublishDeadLettered(routingKey string) {
	m.publishDeadLettered.WithLabelValues(routingKey).Inc()
}

func (m *messagingMetrics) ConsumeDuration(queue string) metrics.Timer {
	return newTimer(m.consumeDuration.WithLabelValues(queue))
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (m *messagingMetrics) MessageProcessed(queue string, success bool) {
	m.messagesProcessed.WithLabelValues(queue, boolToStr(success)).Inc()
}

func (m *messagingMetrics) MessageRetried(queue string) {
	m.messagesRetried.WithLabelValues(queue).Inc()
}

func (m *messagingMetrics) MessageDeadLettered(queue string) {
	m.messagesDeadLetter.WithLabelValues(queue).Inc()
}

func (m *messagingMetrics) ConcurrencyConflict(aggType string) {
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *messagingMetrics) ConflictUnresolvable(aggType string) {
	m.conflictsUnresolved.WithLabelValues(aggType).Inc()
}

var _ metrics.Messaging = (*messagingMetrics)(nil)
