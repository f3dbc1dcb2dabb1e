package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/halvard-dev/storefront/internal/httpmw"
)

// newTestWindow creates a window limiter with a short window and a
// cancel func to stop the cleanup goroutine.
func newTestWindow(opts ...WindowOption) (*WindowLimiter, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	defaults := []WindowOption{
		WithWindow(time.Minute),
		WithMax(5),
		WithWindowTTL(100 * time.Millisecond),
	}
	all := append(defaults, opts...)
	l := NewWindow(ctx, all...)
	return l, cancel
}

func windowRequestWithIP(handler http.Handler, clientIP string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if clientIP != "" {
		req = req.WithContext(httpmw.WithClientIP(req.Context(), clientIP))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestWindow_Defaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewWindow(ctx)

	if l.window != 15*time.Minute {
		t.Fatalf("window = %v, want 15m", l.window)
	}
	if l.max != 100 {
		t.Fatalf("max = %d, want 100", l.max)
	}
	if l.ttl != 15*time.Minute {
		t.Fatalf("ttl = %v, want window duration", l.ttl)
	}
	if l.maxEntries != 100_000 {
		t.Fatalf("maxEntries = %d, want 100000", l.maxEntries)
	}
}

func TestWindow_AllowsUpToMax(t *testing.T) {
	l, cancel := newTestWindow(WithMax(5))
	defer cancel()

	ip := "10.0.0.1"
	for i := 0; i < 5; i++ {
		ok, _ := l.allow(ip)
		if !ok {
			t.Fatalf("request %d should be allowed (within budget)", i+1)
		}
	}

	ok, retryAfter := l.allow(ip)
	if ok {
		t.Fatal("request 6 should be denied (budget exhausted)")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retryAfter = %v, want within (0, window]", retryAfter)
	}
}

func TestWindow_NoRefillWithinWindow(t *testing.T) {
	l, cancel := newTestWindow(WithMax(2), WithWindow(time.Hour))
	defer cancel()

	ip := "10.0.0.1"
	l.allow(ip)
	l.allow(ip)

	// unlike a token bucket, waiting inside the window buys nothing
	time.Sleep(20 * time.Millisecond)
	if ok, _ := l.allow(ip); ok {
		t.Fatal("budget must not refill mid-window")
	}
}

func TestWindow_ResetsAfterWindowElapses(t *testing.T) {
	l, cancel := newTestWindow(WithMax(2), WithWindow(50*time.Millisecond))
	defer cancel()

	ip := "10.0.0.1"
	l.allow(ip)
	l.allow(ip)
	if ok, _ := l.allow(ip); ok {
		t.Fatal("should be denied before window reset")
	}

	time.Sleep(60 * time.Millisecond)

	if ok, _ := l.allow(ip); !ok {
		t.Fatal("should be allowed after window reset")
	}
}

func TestWindow_SeparateIPsGetSeparateBudgets(t *testing.T) {
	l, cancel := newTestWindow(WithMax(2))
	defer cancel()

	l.allow("10.0.0.1")
	l.allow("10.0.0.1")
	if ok, _ := l.allow("10.0.0.1"); ok {
		t.Fatal("ip1 should be denied after budget")
	}

	if ok, _ := l.allow("10.0.0.2"); !ok {
		t.Fatal("ip2 should have its own budget")
	}
}

func TestWindow_OnFirstDenied_CalledOncePerWindow(t *testing.T) {
	var firstCount atomic.Int32

	l, cancel := newTestWindow(
		WithMax(1),
		WithWindow(50*time.Millisecond),
		WithWindowOnFirstDenied(func(ip string) {
			firstCount.Add(1)
		}),
	)
	defer cancel()

	ip := "10.0.0.1"
	l.allow(ip)
	l.allow(ip)
	l.allow(ip)
	l.allow(ip)

	if got := firstCount.Load(); got != 1 {
		t.Fatalf("OnFirstDenied count = %d, want 1", got)
	}

	// window rollover resets the dedupe
	time.Sleep(60 * time.Millisecond)
	l.allow(ip)
	l.allow(ip)

	if got := firstCount.Load(); got != 2 {
		t.Fatalf("OnFirstDenied count after rollover = %d, want 2", got)
	}
}

func TestWindow_OnDenied_CalledEveryDenial(t *testing.T) {
	var deniedCount atomic.Int32

	l, cancel := newTestWindow(
		WithMax(1),
		WithWindowOnDenied(func(ip string) {
			deniedCount.Add(1)
		}),
	)
	defer cancel()

	ip := "10.0.0.1"
	l.allow(ip)
	l.allow(ip)
	l.allow(ip)
	l.allow(ip)

	if got := deniedCount.Load(); got != 3 {
		t.Fatalf("OnDenied count = %d, want 3", got)
	}
}

func TestWindow_NilCallbacks_NoPanic(t *testing.T) {
	l, cancel := newTestWindow(WithMax(1))
	defer cancel()

	l.allow("10.0.0.1")
	// should not panic
	l.allow("10.0.0.1")
}

func TestWindow_Cleanup_EvictsIdleEntries(t *testing.T) {
	l, cancel := newTestWindow(WithWindowTTL(50 * time.Millisecond))
	defer cancel()

	l.allow("10.0.0.1")
	l.allow("10.0.0.2")

	time.Sleep(120 * time.Millisecond)

	l.mu.Lock()
	size := len(l.entries)
	l.mu.Unlock()
	if size != 0 {
		t.Fatalf("entries after TTL = %d, want 0", size)
	}
}

func TestWindow_Cleanup_TinyTTLDoesNotPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ttl/2 truncates to 0 here; the sweeper must clamp its interval
	// instead of handing NewTicker a non-positive duration
	l := NewWindow(ctx, WithWindow(time.Minute), WithMax(5), WithWindowTTL(1*time.Nanosecond))
	l.allow("10.0.0.9")

	time.Sleep(20 * time.Millisecond)

	l.mu.Lock()
	size := len(l.entries)
	l.mu.Unlock()
	if size != 0 {
		t.Fatalf("entries after tiny TTL sweep = %d, want 0", size)
	}
}

func TestWindow_MaxEntries_EvictsStalest(t *testing.T) {
	var capCount atomic.Int32

	l, cancel := newTestWindow(
		WithMaxEntries(2),
		WithWindowOnCapacity(func() {
			capCount.Add(1)
		}),
	)
	defer cancel()

	l.allow("10.0.0.1")
	time.Sleep(5 * time.Millisecond)
	l.allow("10.0.0.2")
	time.Sleep(5 * time.Millisecond)

	// third IP forces the stalest (ip1) out
	if ok, _ := l.allow("10.0.0.3"); !ok {
		t.Fatal("new IP should be admitted after eviction")
	}

	l.mu.Lock()
	_, ip1Present := l.entries["10.0.0.1"]
	_, ip3Present := l.entries["10.0.0.3"]
	size := len(l.entries)
	l.mu.Unlock()

	if ip1Present {
		t.Fatal("stalest entry should have been evicted")
	}
	if !ip3Present {
		t.Fatal("new entry should be tracked")
	}
	if size != 2 {
		t.Fatalf("map size = %d, want 2", size)
	}
	if got := capCount.Load(); got != 1 {
		t.Fatalf("OnCapacity count = %d, want 1", got)
	}
}

func TestWindow_Middleware_Returns429WithRetryAfter(t *testing.T) {
	l, cancel := newTestWindow(WithMax(2), WithWindow(time.Minute))
	defer cancel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := l.Middleware(inner)

	for i := 0; i < 2; i++ {
		w := windowRequestWithIP(handler, "203.0.113.1")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, w.Code)
		}
	}

	w := windowRequestWithIP(handler, "203.0.113.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3: got %d, want 429", w.Code)
	}

	if w.Header().Get("Content-Type") != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After = %q, want integer seconds", w.Header().Get("Retry-After"))
	}
	if secs < 1 || secs > 60 {
		t.Fatalf("Retry-After = %d, want within (0, 60]", secs)
	}

	want := `{"error":"Too many requests, please try again later."}`
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestWindow_Middleware_FullBudgetSequence(t *testing.T) {
	l, cancel := newTestWindow(WithMax(100), WithWindow(time.Minute))
	defer cancel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := l.Middleware(inner)

	for i := 0; i < 100; i++ {
		w := windowRequestWithIP(handler, "203.0.113.9")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, w.Code)
		}
	}

	w := windowRequestWithIP(handler, "203.0.113.9")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request 101: got %d, want 429", w.Code)
	}
}

func TestWindow_Middleware_DeniedRequestDoesNotReachHandler(t *testing.T) {
	l, cancel := newTestWindow(WithMax(1))
	defer cancel()

	var reachCount atomic.Int32
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reachCount.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	handler := l.Middleware(inner)

	windowRequestWithIP(handler, "203.0.113.1")
	windowRequestWithIP(handler, "203.0.113.1")
	windowRequestWithIP(handler, "203.0.113.1")

	if got := reachCount.Load(); got != 1 {
		t.Fatalf("inner handler reached %d times, want 1", got)
	}
}

func TestWindow_ConcurrentAccess(t *testing.T) {
	l, cancel := newTestWindow(WithMax(1))
	defer cancel()

	var wg sync.WaitGroup
	var allowed atomic.Int32

	// 50 goroutines share 10 IPs, budget of 1 each
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ip := fmt.Sprintf("10.0.0.%d", n%10)
			if ok, _ := l.allow(ip); ok {
				allowed.Add(1)
			}
		}(i)
	}

	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Fatalf("allowed = %d, want 10 (one per IP)", got)
	}
}
