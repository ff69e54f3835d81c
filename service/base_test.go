package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, within time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestBase_Lifecycle(t *testing.T) {
	b := NewBase("test-service",
		WithHealthInterval(10*time.Millisecond),
		WithHealthCheck(func() error { return nil }),
	)

	assert.Equal(t, StatusStopped, b.Status())
	assert.Equal(t, "test-service", b.Name())

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	assert.Equal(t, StatusRunning, b.Status())

	// Starting again is a no-op.
	require.NoError(t, b.Start(ctx))

	waitFor(t, time.Second, b.IsHealthy, "service never became healthy")
	assert.True(t, b.Health().IsHealthy())

	require.NoError(t, b.Stop(time.Second))
	assert.Equal(t, StatusStopped, b.Status())
	assert.False(t, b.IsHealthy())

	// Stopping again is a no-op.
	require.NoError(t, b.Stop(time.Second))
}

func TestBase_FailingHealthCheck(t *testing.T) {
	var flips atomic.Int32
	b := NewBase("flaky",
		WithHealthInterval(10*time.Millisecond),
		WithHealthCheck(func() error { return fmt.Errorf("backend unreachable") }),
		OnHealthChange(func(bool) { flips.Add(1) }),
	)

	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop(time.Second) }()

	waitFor(t, time.Second, func() bool {
		return b.Info().FailedHealthChecks > 0
	}, "failing check never recorded")

	assert.False(t, b.IsHealthy())
	st := b.Health()
	assert.True(t, st.IsUnhealthy())
	assert.Contains(t, st.Message, "unhealthy")
}

func TestBase_SetHealthCheckSwapsProbe(t *testing.T) {
	b := NewBase("swappable", WithHealthInterval(10*time.Millisecond))
	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop(time.Second) }()

	// No probe configured: checks pass vacuously.
	waitFor(t, time.Second, b.IsHealthy, "service never became healthy")

	b.SetHealthCheck(func() error { return fmt.Errorf("degraded dependency") })
	waitFor(t, time.Second, func() bool { return !b.IsHealthy() },
		"swapped probe never took effect")
}

func TestBase_Info(t *testing.T) {
	b := NewBase("info-service", WithHealthInterval(0))

	info := b.Info()
	assert.Equal(t, "info-service", info.Name)
	assert.Equal(t, "stopped", info.Status)
	assert.Zero(t, info.Uptime)

	require.NoError(t, b.Start(context.Background()))
	defer func() { _ = b.Stop(time.Second) }()

	b.RecordActivity()
	b.RecordActivity()

	info = b.Info()
	assert.Equal(t, "running", info.Status)
	assert.Equal(t, int64(2), info.EventsProcessed)
	assert.False(t, info.StartTime.IsZero())
	assert.False(t, info.LastActivity.IsZero())
}

func TestBase_ParentContextCancellation(t *testing.T) {
	b := NewBase("ctx-service", WithHealthInterval(0))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))
	assert.Equal(t, StatusRunning, b.Status())

	cancel()
	waitFor(t, time.Second, func() bool { return b.Status() == StatusStopped },
		"cancelled context never stopped the service")
}

func TestBase_HealthStatusByLifecycle(t *testing.T) {
	b := NewBase("states", WithHealthInterval(0))

	assert.True(t, b.Health().IsUnhealthy(), "stopped services are unhealthy")

	require.NoError(t, b.Start(context.Background()))
	st := b.Health()
	assert.True(t, st.IsHealthy(), "running with no failed checks reads healthy")

	require.NoError(t, b.Stop(time.Second))
	assert.True(t, b.Health().IsUnhealthy())
}
