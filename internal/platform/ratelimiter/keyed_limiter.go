package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepEvery = 256

// KeyedLimiter keeps one token bucket per key, e.g. per daemon operation, and
// drops buckets that have been idle for longer than idleTTL.
type KeyedLimiter struct {
	every   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	calls   uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	dropped  int
}

// New allows burst events per key and then one event every interval.
// It returns nil for invalid arguments; a nil limiter allows everything.
func New(interval time.Duration, burst int, idleTTL time.Duration) *KeyedLimiter {
	if interval <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * interval
	}
	return &KeyedLimiter{
		every:   rate.Every(interval),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether an event for key may pass at now. When it passes, the
// number of events suppressed for key since the previous pass is returned.
func (l *KeyedLimiter) Allow(key string, now time.Time) (bool, int) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweepLocked(now)
	}

	if !b.limiter.AllowN(now, 1) {
		b.dropped++
		return false, 0
	}
	dropped := b.dropped
	b.dropped = 0
	return true, dropped
}

func (l *KeyedLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

func (l *KeyedLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
