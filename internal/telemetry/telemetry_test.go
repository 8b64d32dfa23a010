package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "", "parley", "test", true)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMeterReturnsUsableMeter(t *testing.T) {
	counter, err := Meter("parley/test").Int64Counter("parley.test.count")
	require.NoError(t, err)
	assert.NotPanics(t, func() { counter.Add(context.Background(), 1) })
}
