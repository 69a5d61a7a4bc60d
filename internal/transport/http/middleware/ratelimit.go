package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	sweepEvery = 5 * time.Minute
	staleAfter = 10 * time.Minute
)

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-caller token bucket. Idle callers are swept periodically.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*callerLimiter
	r        rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows r requests/second per caller with bursts up to burst.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	rl := newRateLimiter(r, burst, time.Now)
	go func() {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		for range t.C {
			rl.sweep()
		}
	}()
	return rl
}

func newRateLimiter(r rate.Limit, burst int, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*callerLimiter),
		r:        r,
		burst:    burst,
		now:      now,
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.limiters[key]; ok {
		v.lastSeen = rl.now()
		return v.limiter
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.limiters[key] = &callerLimiter{limiter: l, lastSeen: rl.now()}
	return l
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.limiters {
		if rl.now().Sub(v.lastSeen) > staleAfter {
			delete(rl.limiters, key)
		}
	}
}

// Limit rejects callers over their budget with 429.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.get(realIP(r)).Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// realIP prefers the first X-Forwarded-For hop, then X-Real-Ip, then the socket peer.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
