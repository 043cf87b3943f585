package rest

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle_FirstDispatchIsImmediate(t *testing.T) {
	th := newThrottle(clockwork.NewRealClock(), 50*time.Millisecond)

	waited, err := th.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), waited)
}

func TestThrottle_SpacesSuccessiveDispatches(t *testing.T) {
	interval := 20 * time.Millisecond
	th := newThrottle(clockwork.NewRealClock(), interval)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := th.Wait(ctx)
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	// Three dispatches: first immediate, then two full intervals.
	assert.GreaterOrEqual(t, elapsed, 2*interval)
}

func TestThrottle_SecondCallerWaitsRemainder(t *testing.T) {
	interval := 30 * time.Millisecond
	th := newThrottle(clockwork.NewRealClock(), interval)
	ctx := context.Background()

	_, err := th.Wait(ctx)
	require.NoError(t, err)

	waited, err := th.Wait(ctx)
	require.NoError(t, err)
	assert.Greater(t, waited, time.Duration(0))
	assert.LessOrEqual(t, waited, interval)
}

func TestThrottle_IdleResetsSpacing(t *testing.T) {
	interval := 10 * time.Millisecond
	th := newThrottle(clockwork.NewRealClock(), interval)
	ctx := context.Background()

	_, err := th.Wait(ctx)
	require.NoError(t, err)

	time.Sleep(2 * interval)

	// The interval has long elapsed; no extra wait is owed.
	waited, err := th.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), waited)
}

func TestThrottle_CancelledWhileWaiting(t *testing.T) {
	th := newThrottle(clockwork.NewRealClock(), 10*time.Second)

	_, err := th.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = th.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThrottle_FakeClockReleasesInOrder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	th := newThrottle(clock, time.Second)
	ctx := context.Background()

	_, err := th.Wait(ctx)
	require.NoError(t, err)

	done := make(chan time.Duration, 1)
	go func() {
		waited, err := th.Wait(ctx)
		require.NoError(t, err)
		done <- waited
	}()

	// The queued caller is blocked until a full interval has passed.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	select {
	case <-done:
		t.Fatal("second dispatch released before interval elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	waited := <-done
	assert.Equal(t, time.Second, waited)
}
