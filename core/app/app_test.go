package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresService(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	a, err := New(Config{Service: "ordertrack"})
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.NotNil(t, a.Publisher())
	assert.NotNil(t, a.Router())
	assert.Equal(t, "ordertrack-queue", a.top.WorkQueue)
	assert.Equal(t, "ordertrack-dlq-queue", a.top.DeadLetterQueue)
	// Every known routing key is bound by default.
	assert.Len(t, a.top.Bindings, 13)
}

func TestNew_ExplicitBindings(t *testing.T) {
	a, err := New(Config{
		Service:  "payment",
		Bindings: []string{"order.created", "restaurant.rejected"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"order.created", "restaurant.rejected"}, a.top.Bindings)
}

func TestStop_BeforeRun(t *testing.T) {
	a, err := New(Config{Service: "ordertrack"})
	require.NoError(t, err)
	a.Stop()
	require.NoError(t, a.Wait())
}
