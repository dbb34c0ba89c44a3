package amqp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForService(t *testing.T) {
	top := ForService("ordertrack", "order.created", "payment.reserved")

	assert.Equal(t, EventExchange, top.Exchange)
	assert.Equal(t, "ordertrack-queue", top.WorkQueue)
	assert.Equal(t, "ordertrack-retry-queue", top.RetryQueue)
	assert.Equal(t, "ordertrack-dlq-queue", top.DeadLetterQueue)
	assert.Equal(t, []string{"order.created", "payment.reserved"}, top.Bindings)
	assert.Equal(t, 30*time.Second, top.RetryTTL)
}
