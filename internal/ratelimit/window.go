package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/halvard-dev/storefront/internal/httpmw"
)

// windowEntry tracks a single client's count within its current window.
type windowEntry struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
	// logged tracks whether we have already emitted the first-denial log
	// resets when the entry is evicted and re-created
	logged bool
}

// WindowLimiter caps requests per client to a fixed count within a fixed
// wall-clock window. A client that sends its full budget in the first
// second keeps sailing through for the rest of the window; the budget
// does not refill until the window rolls over.
//
// Entries are evicted in the background after the TTL and the map is
// capped at maxEntries, so many distinct clients cannot grow it without
// bound.
type WindowLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry

	window time.Duration
	max    int

	// ttl controls how long an idle client stays in the map before cleanup evicts it
	ttl time.Duration

	// maxEntries caps the map size. When full, the stalest entry is
	// evicted to make room.
	maxEntries int

	// OnFirstDenied is called once per client per window on their first denial.
	// ip is the raw IP string (no port)
	OnFirstDenied func(ip string)

	// OnDenied is called on every denied request, used for incrementing prometheus counter
	OnDenied func(ip string)

	// OnCapacity is called each time an entry is force-evicted to make room
	OnCapacity func()
}

type WindowOption func(*WindowLimiter)

// WithWindow sets the wall-clock window duration.
func WithWindow(d time.Duration) WindowOption {
	return func(l *WindowLimiter) {
		l.window = d
	}
}

// WithMax sets the request budget per client per window.
func WithMax(n int) WindowOption {
	return func(l *WindowLimiter) {
		l.max = n
	}
}

// WithWindowTTL controls how long an idle client stays in the map before cleanup
func WithWindowTTL(d time.Duration) WindowOption {
	return func(l *WindowLimiter) {
		l.ttl = d
	}
}

// WithMaxEntries caps the number of tracked clients.
func WithMaxEntries(n int) WindowOption {
	return func(l *WindowLimiter) {
		l.maxEntries = n
	}
}

// WithWindowOnFirstDenied sets a callback for the first denial per client, used for logging.
// Intentionally separate from OnDenied to allow different handling - we log once, but increment prometheus counters on each denial
func WithWindowOnFirstDenied(fn func(ip string)) WindowOption {
	return func(l *WindowLimiter) {
		l.OnFirstDenied = fn
	}
}

// WithWindowOnDenied sets a callback for every denied request. used for incrementing prometheus counters
func WithWindowOnDenied(fn func(ip string)) WindowOption {
	return func(l *WindowLimiter) {
		l.OnDenied = fn
	}
}

// WithWindowOnCapacity sets a callback for forced evictions when the map is full.
func WithWindowOnCapacity(fn func()) WindowOption {
	return func(l *WindowLimiter) {
		l.OnCapacity = fn
	}
}

// NewWindow creates a WindowLimiter and starts the background cleanup goroutine.
// Defaults: 100 requests per client per 15 minutes, idle entries evicted
// after one full window, at most 100k tracked clients.
func NewWindow(ctx context.Context, opts ...WindowOption) *WindowLimiter {
	l := &WindowLimiter{
		entries:    make(map[string]*windowEntry),
		window:     15 * time.Minute,
		max:        100,
		maxEntries: 100_000,
	}
	for _, o := range opts {
		o(l)
	}
	if l.ttl == 0 {
		l.ttl = l.window
	}
	// background cleanup goroutine, cancelled on app shutdown
	go l.cleanup(ctx)
	return l
}

// allow checks whether the given client is within its window budget.
// Returns whether the request should proceed and, when denied, how long
// until the client's window resets.
func (l *WindowLimiter) allow(ip string) (bool, time.Duration) {
	now := time.Now()

	l.mu.Lock()
	e, exists := l.entries[ip]
	if !exists {
		if len(l.entries) >= l.maxEntries {
			l.evictStalestLocked()
		}
		e = &windowEntry{windowStart: now}
		l.entries[ip] = e
	}
	e.lastSeen = now

	// roll the window over if it has elapsed
	if now.Sub(e.windowStart) >= l.window {
		e.windowStart = now
		e.count = 0
		e.logged = false
	}

	e.count++
	if e.count <= l.max {
		l.mu.Unlock()
		return true, 0
	}

	retryAfter := l.window - now.Sub(e.windowStart)
	first := !e.logged
	e.logged = true
	// release lock before calling hooks, these may do slow work
	l.mu.Unlock()

	if first && l.OnFirstDenied != nil {
		l.OnFirstDenied(ip)
	}
	if l.OnDenied != nil {
		l.OnDenied(ip)
	}
	return false, retryAfter
}

// evictStalestLocked drops the least recently seen entry. Caller holds l.mu.
func (l *WindowLimiter) evictStalestLocked() {
	var stalest string
	var stalestSeen time.Time
	for ip, e := range l.entries {
		if stalest == "" || e.lastSeen.Before(stalestSeen) {
			stalest = ip
			stalestSeen = e.lastSeen
		}
	}
	if stalest != "" {
		delete(l.entries, stalest)
		if l.OnCapacity != nil {
			l.OnCapacity()
		}
	}
}

// cleanup periodically evicts clients that haven't been seen within the TTL.
func (l *WindowLimiter) cleanup(ctx context.Context) {
	interval := l.ttl / 2
	// NewTicker panics on non-positive durations; tiny TTLs from tests
	// still get a working sweeper
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, e := range l.entries {
				if now.Sub(e.lastSeen) > l.ttl {
					delete(l.entries, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Middleware returns middleware that rejects requests over the per-client
// window budget with 429 and a Retry-After hint.
func (l *WindowLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientIPFromContext(r.Context())

		ok, retryAfter := l.allow(ip)
		if !ok {
			secs := int(retryAfter / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.WriteHeader(http.StatusTooManyRequests)
			// intentionally not including the budget or the client's count
			w.Write([]byte(`{"error":"Too many requests, please try again later."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
