package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HostRateLimiter enforces a minimum delay between requests to the same host.
type HostRateLimiter struct {
	mu       sync.Mutex
	next     map[string]time.Time // key: host, earliest time the next request may start
	minDelay time.Duration
}

// NewHostRateLimiter creates a rate limiter that enforces minDelay between
// consecutive requests to the same host.
func NewHostRateLimiter(minDelay time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		next:     make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until the caller may send a request to host.
// Concurrent callers for the same host are spaced minDelay apart.
// Returns an error if the context is cancelled while waiting.
func (r *HostRateLimiter) Wait(ctx context.Context, host string) error {
	r.mu.Lock()
	now := time.Now()
	slot, ok := r.next[host]
	if !ok || slot.Before(now) {
		slot = now
	}
	r.next[host] = slot.Add(r.minDelay)
	r.mu.Unlock()

	remaining := slot.Sub(now)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.release(host, slot)
		return fmt.Errorf("rate limiter wait for %s: %w", host, ctx.Err())
	case <-timer.C:
	}
	return nil
}

// release hands back an unused slot. Only the latest reservation for host can
// be returned; a slot with later callers queued behind it stays spent.
func (r *HostRateLimiter) release(host string, slot time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next[host].Equal(slot.Add(r.minDelay)) {
		r.next[host] = slot
	}
}

// Transport is an http.RoundTripper that waits on a HostRateLimiter before
// delegating to the wrapped transport.
type Transport struct {
	inner   http.RoundTripper
	limiter *HostRateLimiter
}

// NewTransport wraps inner with per-host rate limiting. A nil inner uses
// http.DefaultTransport. All clients talking to the same upstream should
// share the same limiter instance.
func NewTransport(inner http.RoundTripper, limiter *HostRateLimiter) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{inner: inner, limiter: limiter}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context(), req.URL.Host); err != nil {
		return nil, err
	}
	return t.inner.RoundTrip(req)
}
