package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessagingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMessagingMetrics(reg)

	require.NotNil(t, m)

	// Test publisher side
	timer := m.PublishDuration("order.created")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.PublishRetried("order.created")
	m.PublishDeadLettered("order.created")

	// Test consumer side
	timer = m.ConsumeDuration("ordertrack-queue")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.MessageProcessed("ordertrack-queue", true)
	m.MessageProcessed("ordertrack-queue", false)
	m.MessageRetried("ordertrack-queue")
	m.MessageDeadLettered("ordertrack-queue")

	// Test aggregate writes
	m.ConcurrencyConflict("order")
	m.ConflictUnresolvable("order")

	// Verify metrics were registered
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["choreo_publish_duration_seconds"])
	assert.True(t, names["choreo_messages_processed_total"])
	assert.True(t, names["choreo_messages_dead_lettered_total"])
	assert.True(t, names["choreo_concurrency_conflicts_total"])
}

func TestBoolToStr(t *testing.T) {
	assert.Equal(t, "true", boolToStr(true))
	assert.Equal(t, "false", boolToStr(false))
}
