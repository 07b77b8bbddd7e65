package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move the limiter through its windows.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(perMinute, perHour, perDay int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, perHour, perDay)
	rl.now = clock.now
	return rl, clock
}

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 100, 1000)

	assert.NotNil(t, rl)
	assert.Equal(t, 10, rl.requestsPerMinute)
	assert.Equal(t, 100, rl.requestsPerHour)
	assert.Equal(t, 1000, rl.maxRequestsPerDay)
	assert.NotNil(t, rl.clients)
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl, _ := newTestLimiter(0, 0, 0)

	for range 100 {
		require.NoError(t, rl.Allow("10.0.0.1"))
	}
	assert.Equal(t, 100, rl.Usage("10.0.0.1").RequestsToday)
}

func TestRateLimiter_RequestsPerMinute(t *testing.T) {
	rl, clock := newTestLimiter(2, 0, 0)

	require.NoError(t, rl.Allow("a"))
	clock.advance(20 * time.Second)
	require.NoError(t, rl.Allow("a"))

	err := rl.Allow("a")
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "minute", rle.Window)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 40*time.Second, rle.RetryAfter)

	// Other clients are unaffected.
	assert.NoError(t, rl.Allow("b"))

	clock.advance(41 * time.Second)
	assert.NoError(t, rl.Allow("a"))
}

func TestRateLimiter_RequestsPerHour(t *testing.T) {
	rl, clock := newTestLimiter(0, 3, 0)

	for range 3 {
		require.NoError(t, rl.Allow("a"))
		clock.advance(5 * time.Minute)
	}

	err := rl.Allow("a")
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "hour", rle.Window)
	assert.Equal(t, 45*time.Minute, rle.RetryAfter)

	clock.advance(46 * time.Minute)
	assert.NoError(t, rl.Allow("a"))
}

func TestRateLimiter_DailyQuota(t *testing.T) {
	rl, clock := newTestLimiter(0, 0, 2)

	require.NoError(t, rl.Allow("a"))
	require.NoError(t, rl.Allow("a"))

	err := rl.Allow("a")
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 2, qe.Limit)
	assert.Equal(t, 2, qe.Used)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), qe.Resets)
	assert.Contains(t, qe.Error(), "daily quota exceeded")

	clock.advance(14 * time.Hour)
	assert.NoError(t, rl.Allow("a"))
}

func TestRateLimiter_RejectedRequestsAreNotCounted(t *testing.T) {
	rl, _ := newTestLimiter(1, 0, 0)

	require.NoError(t, rl.Allow("a"))
	for range 5 {
		assert.Error(t, rl.Allow("a"))
	}
	assert.Equal(t, 1, rl.Usage("a").RequestsLastMinute)
}

func TestRateLimiter_UsageUnknownClient(t *testing.T) {
	rl, _ := newTestLimiter(1, 1, 1)
	assert.Equal(t, Usage{}, rl.Usage("nobody"))
}

func TestRateLimiter_Prune(t *testing.T) {
	rl, clock := newTestLimiter(0, 0, 0)

	require.NoError(t, rl.Allow("old"))
	clock.advance(2 * time.Hour)
	require.NoError(t, rl.Allow("new"))

	assert.Equal(t, 1, rl.Prune(time.Hour))
	assert.Equal(t, Usage{}, rl.Usage("old"))
	assert.Equal(t, 1, rl.Usage("new").RequestsToday)
}
