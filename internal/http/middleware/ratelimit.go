package middleware

import (
	"net/http"
	"sync"
	"time"
)

const (
	defaultIdleTTL       = 10 * time.Minute
	defaultSweepInterval = 5 * time.Minute
)

// RateLimitOptions tunes the per-client token bucket limiter.
type RateLimitOptions struct {
	PerSecond float64       // sustained requests per second per client
	Burst     int           // bucket capacity
	IdleTTL   time.Duration // how long an idle client's bucket survives
	Sweep     time.Duration // how often idle buckets are evicted
}

// RateLimiter applies a token bucket per client key.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*tokenBucket

	perSecond float64
	burst     float64
	idleTTL   time.Duration
	now       func() time.Time
}

type tokenBucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter builds the limiter and starts the idle-client sweeper.
// Zero IdleTTL and Sweep fall back to defaults.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.Sweep <= 0 {
		opts.Sweep = defaultSweepInterval
	}
	rl := &RateLimiter{
		clients:   make(map[string]*tokenBucket),
		perSecond: opts.PerSecond,
		burst:     float64(opts.Burst),
		idleTTL:   opts.IdleTTL,
		now:       time.Now,
	}
	go rl.sweep(opts.Sweep)
	return rl
}

// Allow reports whether the client may proceed, consuming one token.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.clients[key]
	if !ok {
		b = &tokenBucket{tokens: rl.burst, seen: now}
		rl.clients[key] = b
	}

	b.tokens += now.Sub(b.seen).Seconds() * rl.perSecond
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.seen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		rl.evictIdle()
	}
}

// evictIdle drops clients not seen within the idle TTL so the bookkeeping
// map cannot grow without bound. It returns how many were removed.
func (rl *RateLimiter) evictIdle() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	evicted := 0
	for key, b := range rl.clients {
		if b.seen.Before(cutoff) {
			delete(rl.clients, key)
			evicted++
		}
	}
	return evicted
}

// RateLimit rejects clients over their per-IP budget with 429 Too Many
// Requests.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			key := r.Header.Get("X-Real-Ip")
			if key == "" {
				key = r.RemoteAddr
			}
			if !limiter.Allow(key) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
