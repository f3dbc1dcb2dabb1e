package httpmw

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func readBodyThrough(t *testing.T, limit int64, body string) ([]byte, error) {
	t.Helper()

	var got []byte
	var readErr error
	h := MaxBody(limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/cart", strings.NewReader(body))
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got, readErr
}

func TestMaxBody_SmallCartPayloadPasses(t *testing.T) {
	payload := `{"sku":"HAT-01","quantity":2}`
	got, err := readBodyThrough(t, 1<<10, payload)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != payload {
		t.Errorf("body = %q", got)
	}
}

func TestMaxBody_ExactLimitPasses(t *testing.T) {
	payload := strings.Repeat("x", 64)
	got, err := readBodyThrough(t, 64, payload)
	if err != nil {
		t.Fatalf("read at exact limit: %v", err)
	}
	if len(got) != 64 {
		t.Errorf("read %d bytes", len(got))
	}
}

func TestMaxBody_OversizedBodySurfacesMaxBytesError(t *testing.T) {
	_, err := readBodyThrough(t, 32, strings.Repeat("x", 33))
	if err == nil {
		t.Fatal("oversized body read without error")
	}
	var mbe *http.MaxBytesError
	if !errors.As(err, &mbe) {
		t.Fatalf("err = %T, want *http.MaxBytesError", err)
	}
	if mbe.Limit != 32 {
		t.Errorf("reported limit = %d", mbe.Limit)
	}
}

func TestMaxBody_HandlerThatNeverReadsIsUnaffected(t *testing.T) {
	// the cap is lazy; a handler that ignores the body serves normally
	h := MaxBody(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/cart", strings.NewReader(strings.Repeat("x", 4096)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMaxBody_PartialReadUnderLimit(t *testing.T) {
	var err error
	h := MaxBody(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 8)
		_, err = io.ReadFull(r.Body, buf)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/cart", strings.NewReader(strings.Repeat("x", 1024)))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if err != nil {
		t.Errorf("partial read within the cap failed: %v", err)
	}
}
