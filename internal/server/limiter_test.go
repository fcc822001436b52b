package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalLimiter_ConcurrentAcquire(t *testing.T) {
	l := &globalLimiter{max: 50}

	var wg sync.WaitGroup
	var successes atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.acquire() {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), successes.Load())

	for i := 0; i < 50; i++ {
		l.release()
	}
	assert.Equal(t, int64(0), l.current.Load())
}

func TestGlobalLimiter_CapacityPct(t *testing.T) {
	l := &globalLimiter{max: 4}
	assert.Equal(t, 0.0, l.capacityPct())

	require.True(t, l.acquire())
	assert.Equal(t, 25.0, l.capacityPct())

	require.True(t, l.acquire())
	require.True(t, l.acquire())
	require.True(t, l.acquire())
	assert.Equal(t, 100.0, l.capacityPct())
	assert.False(t, l.acquire())
}

func TestPerIPLimiter_IsolatesAddresses(t *testing.T) {
	l := &perIPLimiter{counts: make(map[string]int), maxPer: 2}

	assert.True(t, l.acquire("192.0.2.1"))
	assert.True(t, l.acquire("192.0.2.1"))
	assert.False(t, l.acquire("192.0.2.1"))
	assert.True(t, l.acquire("192.0.2.2"))

	l.release("192.0.2.1")
	assert.True(t, l.acquire("192.0.2.1"))
}

func TestPerIPLimiter_ReleaseDropsEmptyEntries(t *testing.T) {
	l := &perIPLimiter{counts: make(map[string]int), maxPer: 4}

	require.True(t, l.acquire("192.0.2.1"))
	l.release("192.0.2.1")

	l.mu.Lock()
	_, present := l.counts["192.0.2.1"]
	l.mu.Unlock()
	assert.False(t, present)

	// Release of an unknown address must not underflow.
	l.release("192.0.2.9")
	assert.True(t, l.acquire("192.0.2.9"))
}

func TestDialRateLimiter_BurstExhaustion(t *testing.T) {
	l := newDialRateLimiter(clockwork.NewFakeClock(), 2.0, 2)

	assert.True(t, l.allow("192.0.2.1"))
	assert.True(t, l.allow("192.0.2.1"))
	assert.False(t, l.allow("192.0.2.1"))

	// Another address has its own bucket.
	assert.True(t, l.allow("192.0.2.2"))
}

func TestDialRateLimiter_SweepDropsIdleBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newDialRateLimiter(clock, 10.0, 10)

	require.True(t, l.allow("192.0.2.1"))

	clock.Advance(limiterIdleCutoff + time.Minute)
	require.True(t, l.allow("192.0.2.2"))

	l.mu.Lock()
	_, stale := l.buckets["192.0.2.1"]
	total := len(l.buckets)
	l.mu.Unlock()
	assert.False(t, stale, "idle bucket should be swept")
	assert.Equal(t, 1, total)
}

func TestConnectionLimits_AcquireAndRelease(t *testing.T) {
	limits := newConnectionLimits(100, clockwork.NewFakeClock())

	ok, reason := limits.Acquire("192.0.2.1")
	require.True(t, ok)
	assert.Equal(t, LimitReason(""), reason)
	assert.Equal(t, int64(1), limits.global.current.Load())

	limits.Release("192.0.2.1")
	assert.Equal(t, int64(0), limits.global.current.Load())
}

func TestConnectionLimits_GlobalLimitExceeded(t *testing.T) {
	limits := newConnectionLimits(2, clockwork.NewFakeClock())

	ok1, _ := limits.Acquire("192.0.2.1")
	ok2, _ := limits.Acquire("192.0.2.2")
	require.True(t, ok1)
	require.True(t, ok2)

	ok3, reason := limits.Acquire("192.0.2.3")
	assert.False(t, ok3)
	assert.Equal(t, LimitReasonGlobal, reason)

	limits.Release("192.0.2.1")
	limits.Release("192.0.2.2")
}

func TestConnectionLimits_RateLimitExceeded(t *testing.T) {
	limits := newConnectionLimits(1000, clockwork.NewFakeClock())

	for i := 0; i < connBurstPerIP; i++ {
		ok, _ := limits.Acquire("192.0.2.1")
		require.True(t, ok)
	}

	ok, reason := limits.Acquire("192.0.2.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
}

func TestConnectionLimits_PerIPRollsBackGlobal(t *testing.T) {
	// Tiers built by hand so the per-IP cap trips before the rate tier.
	limits := &connectionLimits{
		global: &globalLimiter{max: 100},
		perIP:  &perIPLimiter{counts: make(map[string]int), maxPer: 1},
		rate:   newDialRateLimiter(clockwork.NewFakeClock(), 100.0, 100),
	}

	ok1, _ := limits.Acquire("192.0.2.1")
	require.True(t, ok1)

	ok2, reason := limits.Acquire("192.0.2.1")
	assert.False(t, ok2)
	assert.Equal(t, LimitReasonPerIP, reason)

	// The global slot taken before the per-IP rejection must be given back.
	assert.Equal(t, int64(1), limits.global.current.Load())

	limits.Release("192.0.2.1")
	assert.Equal(t, int64(0), limits.global.current.Load())
}
