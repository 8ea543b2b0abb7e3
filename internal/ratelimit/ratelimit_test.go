package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestWait_SameHost_EnforcesMinDelay(t *testing.T) {
	limiter := NewHostRateLimiter(100 * time.Millisecond)
	ctx := context.Background()

	// First call should return immediately.
	if err := limiter.Wait(ctx, "www.finn.no"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "www.finn.no"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	elapsed := time.Since(start)

	// Should have waited at least ~100ms (allow 80ms for timer jitter).
	if elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait, got %v", elapsed)
	}
}

func TestWait_DifferentHost_NoCrossBlocking(t *testing.T) {
	limiter := NewHostRateLimiter(200 * time.Millisecond)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "www.finn.no"); err != nil {
		t.Fatalf("finn wait: %v", err)
	}

	// Immediately call for nav, should NOT block.
	start := time.Now()
	if err := limiter.Wait(ctx, "pam-stilling-feed.nav.no"); err != nil {
		t.Fatalf("nav wait: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed > 50*time.Millisecond {
		t.Errorf("expected nav wait to be near-instant, got %v", elapsed)
	}
}

func TestWait_ConcurrentCallersAreSpaced(t *testing.T) {
	limiter := NewHostRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Wait(ctx, "www.finn.no"); err != nil {
				t.Errorf("wait: %v", err)
			}
		}()
	}
	wg.Wait()

	// Three callers need two gaps.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected >= 90ms for three concurrent callers, got %v", elapsed)
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	limiter := NewHostRateLimiter(5 * time.Second)

	if err := limiter.Wait(context.Background(), "www.finn.no"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx, "www.finn.no"); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

func TestTransport_WaitsBeforeDelegating(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport(nil, NewHostRateLimiter(100*time.Millisecond))}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if gap := hits[1].Sub(hits[0]); gap < 80*time.Millisecond {
		t.Errorf("expected >= 80ms between requests, got %v", gap)
	}
}

func TestWait_CancelledCallerReleasesSlot(t *testing.T) {
	limiter := NewHostRateLimiter(200 * time.Millisecond)

	start := time.Now()
	if err := limiter.Wait(context.Background(), "www.finn.no"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "www.finn.no"); err == nil {
		t.Fatal("expected cancelled wait to fail")
	}

	if err := limiter.Wait(context.Background(), "www.finn.no"); err != nil {
		t.Fatalf("third wait: %v", err)
	}
	elapsed := time.Since(start)

	// The abandoned slot goes to the next caller: ~200ms, not ~400ms.
	if elapsed < 180*time.Millisecond || elapsed > 320*time.Millisecond {
		t.Errorf("expected ~200ms total, got %v", elapsed)
	}
}
