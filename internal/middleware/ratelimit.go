// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MsgTooManyRequests is the 429 message.
const MsgTooManyRequests = "Too many requests from this IP, please try again later."

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// ByClientIP counts requests per client address.
func ByClientIP(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// ByUser counts authenticated requests per account and anonymous ones per
// client address. It must run after Authenticate.
func ByUser(r *http.Request) string {
	if u := UserFromCtx(r.Context()); u != nil {
		return "user:" + u.ID.String()
	}
	return ByClientIP(r)
}

// RateLimiter allows limit hits per bucket within a sliding window. One
// limiter can serve several route groups; Limit namespaces their buckets.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter and starts its background sweeper.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.sweep()
			case <-rl.stopCh:
				return
			}
		}
	}()

	return rl
}

// Stop ends the sweeper. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// take records a hit on key. When the bucket is full the hit is not
// recorded and retryAfter is the time until the oldest hit leaves the
// window.
func (rl *RateLimiter) take(key string) (remaining int, retryAfter time.Duration, ok bool) {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	hits := rl.buckets[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]

	if len(hits) >= rl.limit {
		rl.buckets[key] = hits
		if len(hits) == 0 {
			return 0, rl.window, false
		}
		return 0, hits[0].Add(rl.window).Sub(now), false
	}

	hits = append(hits, now)
	rl.buckets[key] = hits
	return rl.limit - len(hits), 0, true
}

// sweep drops buckets whose hits have all left the window.
func (rl *RateLimiter) sweep() {
	cutoff := rl.now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, hits := range rl.buckets {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Limit returns middleware counting each request against scope plus the
// bucket chosen by key. Responses carry X-RateLimit-Limit and
// X-RateLimit-Remaining; refused requests get 429 with Retry-After.
func (rl *RateLimiter) Limit(scope string, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, retry, ok := rl.take(scope + "|" + key(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeFail(w, http.StatusTooManyRequests, MsgTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the originating client address, preferring the
// leftmost X-Forwarded-For entry, then X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
