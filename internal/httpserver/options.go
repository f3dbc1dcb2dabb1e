package httpserver

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halvard-dev/storefront/internal/health"
	"github.com/halvard-dev/storefront/internal/httpmw"
	"github.com/halvard-dev/storefront/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// UseRecoverMW wraps the stack in panic recovery. Some tests disable
	// it so a panic fails loudly instead of turning into a 500.
	UseRecoverMW bool
	OnPanic      func()

	// ExposeErrors returns panic detail in 500 bodies. Development only.
	ExposeErrors bool

	SecurityHeaders httpmw.SecurityHeaderOptions
	ClientIPOpts    httpmw.ClientIPOptions

	// RateLimitMW is the global fixed-window limiter, applied to every
	// request including static assets and /api/health. Nil disables.
	RateLimitMW func(http.Handler) http.Handler

	// MetricsMW is the prometheus instrumentation middleware. Nil disables.
	MetricsMW func(http.Handler) http.Handler

	// CORSOrigins is the exact-match origin allow-list for credentialed
	// cross-origin requests. Empty disables CORS handling entirely.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies before any handler reads them.
	// Zero means the 10 MB default.
	MaxBodyBytes int64

	// StaticFS is the on-disk static document root. A file found here is
	// served ahead of every dynamic route with the same path. Nil disables.
	StaticFS fs.FS

	// PagesFS backs the page routes when StaticFS does not carry the
	// document. Defaults to the embedded copies.
	PagesFS fs.FS

	// APIRoutes mounts the API route groups under /api.
	APIRoutes func(chi.Router)

	Health    health.Probe
	Readiness health.Probe
}

const DefaultMaxBodyBytes = 10 << 20 // 10 MB

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Port == 0 {
		o.Port = 3000
	}
	if o.MaxBodyBytes == 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
}
