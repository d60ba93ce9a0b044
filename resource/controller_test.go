package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	// Test with limit
	c := NewController(Config{MemoryLimitBytes: 100})

	// Acquire 50
	err := c.AcquireMemory(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.MemoryUsage())

	// Acquire 40
	err = c.AcquireMemory(context.Background(), 40)
	require.NoError(t, err)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// TryAcquire 20 (should fail)
	ok := c.TryAcquireMemory(20)
	assert.False(t, ok)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Acquire 20 (should block/timeout)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = c.AcquireMemory(ctx, 20)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Release 50
	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	// Now Acquire 20 should succeed
	err = c.AcquireMemory(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_OversizedReservation(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	// Larger than the whole budget: admitted alone.
	require.NoError(t, c.AcquireMemory(context.Background(), 1000))
	assert.Equal(t, int64(100), c.MemoryUsage())
	assert.False(t, c.TryAcquireMemory(1))

	c.ReleaseMemory(1000)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.True(t, c.TryAcquireMemory(1))
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 0})

	err := c.AcquireMemory(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())

	var nilController *Controller
	require.NoError(t, nilController.AcquireMemory(context.Background(), 10))
	assert.True(t, nilController.TryAcquireMemory(10))
	nilController.ReleaseMemory(10)
}

func TestController_Requests(t *testing.T) {
	c := NewController(Config{MaxInFlight: 2})

	// Acquire 2
	require.NoError(t, c.AcquireRequest(context.Background()))
	require.NoError(t, c.AcquireRequest(context.Background()))
	assert.Equal(t, int64(2), c.InFlight())

	// Try 3rd
	assert.False(t, c.TryAcquireRequest())

	// Blocking acquire honors the context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireRequest(ctx), context.DeadlineExceeded)

	// Release 1
	c.ReleaseRequest()
	assert.Equal(t, int64(1), c.InFlight())

	// Try 3rd again
	assert.True(t, c.TryAcquireRequest())
	assert.Equal(t, int64(2), c.InFlight())
}

func TestController_DefaultInFlight(t *testing.T) {
	c := NewController(Config{})
	assert.True(t, c.TryAcquireRequest())
	assert.False(t, c.TryAcquireRequest())
}

func TestController_RequestRate(t *testing.T) {
	c := NewController(Config{MaxInFlight: 10, RequestsPerSecond: 20})

	start := time.Now()
	for range 3 {
		require.NoError(t, c.AcquireRequest(context.Background()))
		c.ReleaseRequest()
	}
	// Burst of 20 covers all three.
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	slow := NewController(Config{MaxInFlight: 10, RequestsPerSecond: 1})
	require.NoError(t, slow.AcquireRequest(context.Background()))
	slow.ReleaseRequest()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, slow.AcquireRequest(ctx))
	assert.Equal(t, int64(0), slow.InFlight())
}
