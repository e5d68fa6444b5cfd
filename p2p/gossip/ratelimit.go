package gossip

import (
	"sync"

	"golang.org/x/time/rate"
)

// DefaultRatePerSecond and DefaultBurst are spec.md §4.13's inbound gossip
// budget: "per-IP token bucket on inbound gossip (default 16 req/s, burst
// 32)".
const (
	DefaultRatePerSecond = 16
	DefaultBurst         = 32
)

// DefaultAnnouncePerSecond is spec.md §4.13's "global cap on announce
// fan-out per second".
const DefaultAnnouncePerSecond = 32

// IPLimiter buckets inbound gossip requests per source IP, creating each
// peer's bucket lazily on first use.
type IPLimiter struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	buckets  map[string]*rate.Limiter
}

// NewIPLimiter builds a limiter with the given per-second rate and burst.
func NewIPLimiter(perSecond float64, burst int) *IPLimiter {
	return &IPLimiter{
		rate:    rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one more inbound gossip message from ip may be
// processed right now, consuming a token if so.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[ip] = b
	}
	l.mu.Unlock()
	return b.Allow()
}
