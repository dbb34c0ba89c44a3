// Package metrics provides abstract metrics interfaces that allow pluggable
// instrumentation backends (Prometheus, StatsD, etc.) without coupling the
// messaging and aggregate components to any specific implementation.
package metrics

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time.
type Timer interface {
	// ObserveDuration records the elapsed time since the timer was created.
	ObserveDuration()
}

// Messaging covers the publish, consume and reconcile pipeline.
// Implementations must be safe for concurrent use.
type Messaging interface {
	// Publisher
	PublishDuration(routingKey string) Timer
	PublishRetried(routingKey string)
	PublishDeadLettered(routingKey string)

	// Consumer
	ConsumeDuration(queue string) Timer
	MessageProcessed(queue string, success bool)
	MessageRetried(queue string)
	MessageDeadLettered(queue string)

	// Aggregate writes
	ConcurrencyConflict(aggType string)
	ConflictUnresolvable(aggType string)
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// NopTimer returns a no-op Timer.
func NopTimer() Timer { return nopTimer{} }

type nopMessaging struct{}

func (nopMessaging) PublishDuration(string) Timer { return nopTimer{} }
func (nopMessaging) PublishRetried(string)        {}
func (nopMessaging) PublishDeadLettered(string)   {}
func (nopMessaging) ConsumeDuration(string) Timer { return nopTimer{} }
func (nopMessaging) MessageProcessed(string, bool) {}
func (nopMessaging) MessageRetried(string)         {}
func (nopMessaging) MessageDeadLettered(string)    {}
func (nopMessaging) ConcurrencyConflict(string)    {}
func (nopMessaging) ConflictUnresolvable(string)   {}

// NopMessaging returns a no-op Messaging implementation.
func NopMessaging() Messaging { return nopMessaging{} }
