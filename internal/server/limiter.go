package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// LimitReason says which admission tier rejected a connection attempt. The
// values are used verbatim as the reason label on
// metrics.WebSocketConnectionsRejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// Only the global cap is configurable; the per-IP tiers exist to keep one
// misbehaving source from eating the global budget and need no tuning per
// deployment.
const (
	maxConnsPerIP  = 64
	connRatePerIP  = 10.0
	connBurstPerIP = 20

	limiterSweepEvery = 5 * time.Minute
	limiterIdleCutoff = 10 * time.Minute
)

// globalLimiter caps total concurrent connections per instance. Lock-free;
// acquire retries only when it loses a CAS race against another acquire.
type globalLimiter struct {
	current atomic.Int64
	max     int64
}

func (l *globalLimiter) acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalLimiter) release() {
	l.current.Add(-1)
}

func (l *globalLimiter) capacityPct() float64 {
	if l.max == 0 {
		return 0
	}
	return float64(l.current.Load()) / float64(l.max) * 100
}

// perIPLimiter caps concurrent connections per remote address.
type perIPLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	maxPer int
}

func (l *perIPLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.counts[ip] >= l.maxPer {
		return false
	}
	l.counts[ip]++
	return true
}

func (l *perIPLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch n := l.counts[ip]; {
	case n > 1:
		l.counts[ip] = n - 1
	case n == 1:
		delete(l.counts, ip)
	}
}

// dialRateLimiter throttles new connection attempts per remote address with
// a token bucket. Buckets idle past limiterIdleCutoff are dropped during a
// periodic sweep so the map cannot grow without bound.
type dialRateLimiter struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	buckets map[string]*rateBucket
	rate    rate.Limit
	burst   int
	sweepAt time.Time
}

type rateBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newDialRateLimiter(clock clockwork.Clock, perSecond float64, burst int) *dialRateLimiter {
	return &dialRateLimiter{
		clock:   clock,
		buckets: make(map[string]*rateBucket),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		sweepAt: clock.Now().Add(limiterSweepEvery),
	}
}

func (l *dialRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.sweepAt) {
		l.sweep(now)
		l.sweepAt = now.Add(limiterSweepEvery)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &rateBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

// sweep drops buckets not seen since the cutoff. Caller holds mu.
func (l *dialRateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-limiterIdleCutoff)
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// connectionLimits runs the three admission tiers in order: dial rate, then
// the global cap, then the per-IP cap. A tier acquired before a later tier
// rejects is rolled back, so Acquire and Release stay balanced.
type connectionLimits struct {
	global *globalLimiter
	perIP  *perIPLimiter
	rate   *dialRateLimiter
}

func newConnectionLimits(globalMax int64, clock clockwork.Clock) *connectionLimits {
	return &connectionLimits{
		global: &globalLimiter{max: globalMax},
		perIP:  &perIPLimiter{counts: make(map[string]int), maxPer: maxConnsPerIP},
		rate:   newDialRateLimiter(clock, connRatePerIP, connBurstPerIP),
	}
}

func (l *connectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.rate.allow(ip) {
		return false, LimitReasonRate
	}
	if !l.global.acquire() {
		return false, LimitReasonGlobal
	}
	if !l.perIP.acquire(ip) {
		l.global.release()
		return false, LimitReasonPerIP
	}
	return true, ""
}

func (l *connectionLimits) Release(ip string) {
	l.perIP.release(ip)
	l.global.release()
}
