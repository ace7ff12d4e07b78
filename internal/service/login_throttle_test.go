package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botops-console/internal/bucketing"
)

func newTestThrottle(t *testing.T, clock *testClock) *LoginThrottle {
	t.Helper()
	throttle := NewLoginThrottle(bucketing.NewBucketingManager(8, 8), 3, 15*time.Minute, time.Hour)
	throttle.now = clock.Now
	return throttle
}

func TestThrottleAllowsBelowLimit(t *testing.T) {
	clock := &testClock{t: time.Now()}
	throttle := newTestThrottle(t, clock)

	throttle.RecordFailure("1.2.3.4")
	throttle.RecordFailure("1.2.3.4")

	allowed, retryAfter := throttle.CheckAllowed("1.2.3.4")
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
}

func TestThrottleLocksOutAtLimit(t *testing.T) {
	clock := &testClock{t: time.Now()}
	throttle := newTestThrottle(t, clock)

	for i := 0; i < 3; i++ {
		throttle.RecordFailure("1.2.3.4")
	}

	allowed, retryAfter := throttle.CheckAllowed("1.2.3.4")
	require.False(t, allowed)
	assert.Equal(t, 15*time.Minute, retryAfter)

	// Unrelated address is untouched
	allowed, _ = throttle.CheckAllowed("5.6.7.8")
	assert.True(t, allowed)
}

func TestThrottleRetryAfterShrinksWithTime(t *testing.T) {
	clock := &testClock{t: time.Now()}
	throttle := newTestThrottle(t, clock)

	for i := 0; i < 3; i++ {
		throttle.RecordFailure("1.2.3.4")
	}

	clock.Advance(5 * time.Minute)

	allowed, retryAfter := throttle.CheckAllowed("1.2.3.4")
	require.False(t, allowed)
	assert.Equal(t, 10*time.Minute, retryAfter)
}

func TestThrottleWindowElapseResets(t *testing.T) {
	clock := &testClock{t: time.Now()}
	throttle := newTestThrottle(t, clock)

	for i := 0; i < 3; i++ {
		throttle.RecordFailure("1.2.3.4")
	}

	clock.Advance(15 * time.Minute)

	allowed, _ := throttle.CheckAllowed("1.2.3.4")
	assert.True(t, allowed)

	// The elapsed window also wiped the counter: one new failure
	// does not lock out again.
	throttle.RecordFailure("1.2.3.4")
	allowed, _ = throttle.CheckAllowed("1.2.3.4")
	assert.True(t, allowed)
}

func TestThrottleFailureDuringLockoutExtendsIt(t *testing.T) {
	clock := &testClock{t: time.Now()}
	throttle := newTestThrottle(t, clock)

	for i := 0; i < 3; i++ {
		throttle.RecordFailure("1.2.3.4")
	}

	clock.Advance(10 * time.Minute)
	throttle.RecordFailure("1.2.3.4")
	clock.Advance(10 * time.Minute)

	// 20 minutes after the original failures, but only 10 after the last one
	allowed, retryAfter := throttle.CheckAllowed("1.2.3.4")
	require.False(t, allowed)
	assert.Equal(t, 5*time.Minute, retryAfter)
}

func TestThrottleClear(t *testing.T) {
	clock := &testClock{t: time.Now()}
	throttle := newTestThrottle(t, clock)

	for i := 0; i < 3; i++ {
		throttle.RecordFailure("1.2.3.4")
	}
	throttle.Clear("1.2.3.4")

	allowed, _ := throttle.CheckAllowed("1.2.3.4")
	assert.True(t, allowed)
}

func TestThrottleSweepDropsStaleEntries(t *testing.T) {
	clock := &testClock{t: time.Now()}
	throttle := newTestThrottle(t, clock)

	throttle.RecordFailure("stale")
	clock.Advance(2 * time.Hour)
	throttle.RecordFailure("recent")

	assert.Equal(t, 1, throttle.Sweep())

	// Sweeping again removes nothing
	assert.Equal(t, 0, throttle.Sweep())
}
