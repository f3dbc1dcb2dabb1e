package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
)

func TestWithRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "ord-checkout-41")
	if got := RequestIDFromContext(ctx); got != "ord-checkout-41" {
		t.Errorf("RequestIDFromContext = %q", got)
	}
}

func TestWithRequestID_EmptyLeavesContextAlone(t *testing.T) {
	parent := context.Background()
	if ctx := WithRequestID(parent, ""); ctx != parent {
		t.Error("empty ID should not allocate a new context")
	}
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("RequestIDFromContext = %q, want empty", got)
	}
}

func serveRequestID(t *testing.T, header string, mutate func(r *http.Request)) (ctxID string, rec *httptest.ResponseRecorder) {
	t.Helper()

	h := RequestID(header)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/orders", http.NoBody)
	if mutate != nil {
		mutate(req)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return ctxID, rec
}

func TestRequestID_HonorsClientSuppliedID(t *testing.T) {
	ctxID, rec := serveRequestID(t, "X-Request-Id", func(r *http.Request) {
		r.Header.Set("X-Request-Id", "launcher-7f3a")
	})
	if ctxID != "launcher-7f3a" {
		t.Errorf("context ID = %q", ctxID)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "launcher-7f3a" {
		t.Errorf("echoed ID = %q", got)
	}
}

func TestRequestID_MintsWhenAbsent(t *testing.T) {
	ctxID, rec := serveRequestID(t, "X-Request-Id", nil)
	if ctxID == "" {
		t.Fatal("no ID minted")
	}
	if got := rec.Header().Get("X-Request-Id"); got != ctxID {
		t.Errorf("response ID %q != context ID %q", got, ctxID)
	}
	// 16 random bytes hex-encoded
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(ctxID) {
		t.Errorf("minted ID %q is not 32 hex chars", ctxID)
	}
}

func TestRequestID_MintsUniqueIDs(t *testing.T) {
	a, _ := serveRequestID(t, "X-Request-Id", nil)
	b, _ := serveRequestID(t, "X-Request-Id", nil)
	if a == b {
		t.Errorf("two requests got the same minted ID %q", a)
	}
}

func TestRequestID_EmptyHeaderNameDefaults(t *testing.T) {
	ctxID, rec := serveRequestID(t, "", func(r *http.Request) {
		r.Header.Set("X-Request-Id", "support-ticket-9")
	})
	if ctxID != "support-ticket-9" {
		t.Errorf("context ID = %q", ctxID)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "support-ticket-9" {
		t.Errorf("echoed ID = %q", got)
	}
}

func TestRequestID_CustomHeaderName(t *testing.T) {
	ctxID, rec := serveRequestID(t, "X-Storefront-Request", func(r *http.Request) {
		r.Header.Set("X-Storefront-Request", "cart-add-3")
	})
	if ctxID != "cart-add-3" {
		t.Errorf("context ID = %q", ctxID)
	}
	if got := rec.Header().Get("X-Storefront-Request"); got != "cart-add-3" {
		t.Errorf("echoed ID = %q", got)
	}
}
