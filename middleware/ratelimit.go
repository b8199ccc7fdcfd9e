package middleware

import (
	"sync"

	"golang.org/x/time/rate"
)

// LimiterPair holds the two admission tiers for one client IP. The normal
// tier covers requests that may trigger upstream fetches; the cached tier
// admits a further budget of requests that must be answered from cache alone.
type LimiterPair struct {
	Normal *rate.Limiter
	Cached *rate.Limiter
}

// IPRateLimiter hands out a LimiterPair per client IP, created lazily on
// first sight. Pairs are never evicted; the key space is bounded by the
// set of distinct client addresses.
type IPRateLimiter struct {
	mu    sync.Mutex
	pairs map[string]*LimiterPair

	normalRate  rate.Limit
	normalBurst int
	cachedRate  rate.Limit
	cachedBurst int
}

// NewIPRateLimiter creates a two-tier per-IP limiter with the given refill
// rates and burst sizes.
func NewIPRateLimiter(normalRate rate.Limit, normalBurst int, cachedRate rate.Limit, cachedBurst int) *IPRateLimiter {
	return &IPRateLimiter{
		pairs:       make(map[string]*LimiterPair),
		normalRate:  normalRate,
		normalBurst: normalBurst,
		cachedRate:  cachedRate,
		cachedBurst: cachedBurst,
	}
}

// GetLimiter returns the limiter pair for an IP, creating it on first request.
func (i *IPRateLimiter) GetLimiter(ip string) *LimiterPair {
	i.mu.Lock()
	defer i.mu.Unlock()

	pair, ok := i.pairs[ip]
	if !ok {
		pair = &LimiterPair{
			Normal: rate.NewLimiter(i.normalRate, i.normalBurst),
			Cached: rate.NewLimiter(i.cachedRate, i.cachedBurst),
		}
		i.pairs[ip] = pair
	}
	return pair
}
