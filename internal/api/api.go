// Package api implements the /api route groups: auth, products, orders,
// users, credit cards, apk downloads, sync, and the admin surface.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/halvard-dev/storefront/internal/apkstore"
	"github.com/halvard-dev/storefront/internal/auth"
	"github.com/halvard-dev/storefront/internal/log"
	"github.com/halvard-dev/storefront/internal/metrics"
	"github.com/halvard-dev/storefront/internal/ratelimit"
	"github.com/halvard-dev/storefront/internal/store"
	"github.com/halvard-dev/storefront/internal/xerrors"
)

type Options struct {
	Logger log.Logger
	Store  *store.Store
	Tokens *auth.TokenIssuer

	// APK is optional; when nil the apk endpoints report 404.
	APK *apkstore.Store

	// AuthLimiter throttles the credential endpoints. Optional.
	AuthLimiter *ratelimit.IPLimiter

	// Metrics is optional; domain counters are skipped when nil.
	Metrics *metrics.ServerMetrics

	// ExposeErrors switches 500 bodies from a generic message to the
	// raw error text. Only enabled outside production.
	ExposeErrors bool
}

type API struct {
	opts Options
}

func New(opts Options) (*API, error) {
	if opts.Store == nil {
		return nil, xerrors.New("api: Store is required")
	}
	if opts.Tokens == nil {
		return nil, xerrors.New("api: Tokens is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &API{opts: opts}, nil
}

// RegisterRoutes mounts every API group on r. The caller mounts r itself
// under /api.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		if a.opts.AuthLimiter != nil {
			r.Use(a.opts.AuthLimiter.Middleware)
		}
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
		r.With(a.requireAuth).Get("/me", a.handleMe)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", a.handleListProducts)
		r.Get("/{id}", a.handleGetProduct)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", a.handleCreateOrder)
		r.With(a.requireAuth).Get("/", a.handleMyOrders)
		r.Get("/{id}", a.handleGetOrder)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Get("/me", a.handleGetProfile)
		r.Put("/me", a.handleUpdateProfile)
	})

	r.Route("/creditcards", func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Get("/", a.handleListCards)
		r.Post("/", a.handleSaveCard)
		r.Delete("/{id}", a.handleDeleteCard)
	})

	r.Route("/apk", func(r chi.Router) {
		r.Get("/version", a.handleAPKVersion)
		r.Get("/latest", a.handleDownloadAPK)
	})

	r.Route("/sync", func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Get("/", a.handleSync)
		r.Post("/", a.handleSyncAck)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.requireAdmin)
		r.Get("/stats", a.handleAdminStats)
		r.Get("/orders", a.handleAdminListOrders)
		r.Put("/orders/{id}/status", a.handleAdminOrderStatus)
		r.Get("/users", a.handleAdminListUsers)
		r.Post("/products", a.handleAdminCreateProduct)
		r.Put("/products/{id}", a.handleAdminUpdateProduct)
		r.Delete("/products/{id}", a.handleAdminDeleteProduct)
	})
}
