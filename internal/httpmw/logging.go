package httpmw

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/halvard-dev/storefront/internal/log"
)

// observedWriter wraps the ResponseWriter to record status and bytes, and
// opens a response.write child span on first write so slow clients show up
// in traces as write-block time rather than handler time.
type observedWriter struct {
	http.ResponseWriter
	status int
	bytes  int64

	ctx      context.Context
	reqStart time.Time

	span        trace.Span
	spanStarted bool
	firstWrite  time.Duration
	blocked     time.Duration
	writeErr    error
}

func (ow *observedWriter) beginSpan() {
	if ow.spanStarted {
		return
	}
	ow.spanStarted = true
	ow.firstWrite = time.Since(ow.reqStart)

	parent := trace.SpanFromContext(ow.ctx)
	if parent == nil || !parent.IsRecording() {
		return
	}
	ow.ctx, ow.span = otel.Tracer("storefront/httpmw").Start(ow.ctx, "response.write",
		trace.WithAttributes(
			attribute.Float64("http.server.ttfb_seconds", ow.firstWrite.Seconds()),
		),
	)
}

func (ow *observedWriter) endSpan() {
	if ow.span == nil {
		return
	}
	ow.span.SetAttributes(
		attribute.Int("http.response.status_code", ow.statusOr200()),
		attribute.Int64("http.response.body.size", ow.bytes),
		attribute.Float64("http.server.write.block_seconds", ow.blocked.Seconds()),
	)
	if ow.writeErr != nil {
		ow.span.RecordError(ow.writeErr)
		ow.span.SetStatus(codes.Error, ow.writeErr.Error())
	}
	ow.span.End()
}

func (ow *observedWriter) statusOr200() int {
	if ow.status == 0 {
		return http.StatusOK
	}
	return ow.status
}

func (ow *observedWriter) WriteHeader(code int) {
	ow.beginSpan()
	ow.status = code
	start := time.Now()
	ow.ResponseWriter.WriteHeader(code)
	ow.blocked += time.Since(start)
}

func (ow *observedWriter) Write(b []byte) (int, error) {
	ow.beginSpan()
	if ow.status == 0 {
		ow.status = http.StatusOK
	}
	start := time.Now()
	n, err := ow.ResponseWriter.Write(b)
	ow.blocked += time.Since(start)
	ow.bytes += int64(n)
	if err != nil && ow.writeErr == nil {
		ow.writeErr = err
	}
	return n, err
}

func (ow *observedWriter) Flush() {
	if f, ok := ow.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (ow *observedWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := ow.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

// WithLogger derives a request-scoped logger carrying the request identity
// and stores it in the context for handlers and AccessLog. The client
// address comes from the ClientIP middleware, which has already applied the
// trusted-hops policy; forwarded headers are never read here.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			reqID := RequestIDFromContext(ctx)
			clientAddr := ClientIPFromContext(ctx)

			peerAddr := r.RemoteAddr
			if host, _, err := net.SplitHostPort(peerAddr); err == nil {
				peerAddr = host
			}
			if clientAddr == "" {
				clientAddr = peerAddr
			}

			scheme := schemeFromRequest(r)

			if span := trace.SpanFromContext(ctx); span != nil {
				if sc := span.SpanContext(); sc.IsValid() {
					span.SetAttributes(
						attribute.String("request_id", reqID),
						attribute.String("server.address", r.Host),
						attribute.String("client.address", clientAddr),
						attribute.String("network.peer.address", peerAddr),
						attribute.String("url.scheme", scheme),
					)
				}
			}

			// Host and query stay out of the logger fields: both are
			// user-controlled and the query can carry secrets.
			L := base.With(
				"request_id", reqID,
				"client.address", clientAddr,
				"network.peer.address", peerAddr,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// assetExtensions are fetches the access log drops: every page load fans
// out into these and they drown out the storefront traffic. APK downloads
// are not listed; those are worth a line each.
var assetExtensions = map[string]bool{
	".css": true, ".js": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true,
}

// AccessLog emits one line per completed request using the context logger
// WithLogger installed. Static asset fetches and the edge health probes
// are skipped; metrics still count them.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var reqBodySize int64
			if r.ContentLength > 0 {
				reqBodySize = r.ContentLength
			}

			ow := &observedWriter{
				ResponseWriter: w,
				ctx:            r.Context(),
				reqStart:       start,
			}

			next.ServeHTTP(ow, r)
			ow.endSpan()

			if assetExtensions[strings.ToLower(path.Ext(r.URL.Path))] {
				return
			}
			if r.URL.Path == "/-/ready" || r.URL.Path == "/-/healthy" {
				return
			}

			ctx := r.Context()
			pattern := ""
			if rc := chi.RouteContext(ctx); rc != nil {
				pattern = rc.RoutePattern()
			}
			if pattern == "" {
				pattern = r.URL.Path
			}

			log.FromContext(ctx).Info(ctx, "http request",
				"http.response.status_code", ow.statusOr200(),
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.response.body.size", ow.bytes,
				"http.request.body.size", reqBodySize,
				"http.route", pattern,
			)
		})
	}
}

var validSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// schemeFromRequest always returns "http" or "https". The forwarded header
// is attacker-controlled, so anything outside validSchemes is ignored
// rather than propagated into logs and spans.
func schemeFromRequest(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		s := strings.ToLower(strings.TrimSpace(strings.Split(xf, ",")[0]))
		if validSchemes[s] {
			return s
		}
	}
	if r.URL != nil && validSchemes[r.URL.Scheme] {
		return r.URL.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// Scope tags the context logger and the active span with a handler-group
// name ("pages", "api", "static") so log lines sort by surface.
func Scope(handler string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			L := log.FromContext(ctx).With("handler", handler)
			ctx = log.WithContext(ctx, L)

			if span := trace.SpanFromContext(ctx); span != nil && span.IsRecording() {
				span.SetAttributes(attribute.String("app.handler", handler))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
