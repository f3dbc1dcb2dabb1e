package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures how the rate limiter's client identity is
// resolved from a request.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies between the internet and
	// this process. 0 means directly exposed: X-Forwarded-For is ignored
	// outright. 1 selects the rightmost XFF entry (single load balancer),
	// 2 the second from the end (CDN in front of the balancer), and so on.
	TrustedHops int
}

// ClientIP is ClientIPWithOptions with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions resolves the caller's address once per request and
// stores it in the context. Everything keyed per client downstream — the
// window limiter, the auth throttle, access logs — reads the same value.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientAddr(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// resolveClientAddr picks the client address for rate limiting. Forwarded
// headers are only honored when the TCP peer is a private address AND
// proxies are configured; in every other case they are stripped so nothing
// downstream trusts a spoofable header. When the XFF list is shorter than
// the configured hop count the header is treated as hostile and ignored.
func resolveClientAddr(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// no port; tests and unusual transports hand us a bare value
		return r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return "0.0.0.0"
	}

	if !peer.IsPrivate() || trustedHops <= 0 {
		dropForwardHeaders(r)
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		idx := len(hops) - trustedHops
		if idx < 0 {
			// fewer entries than proxies: misconfiguration or tampering
			dropForwardHeaders(r)
			return host
		}
		if candidate := strings.TrimSpace(hops[idx]); net.ParseIP(candidate) != nil {
			return candidate
		}
	}
	return host
}

func dropForwardHeaders(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
