package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/halvard-dev/storefront/internal/version"
)

// registerPages wires the server-rendered page routes. Each document is
// taken from the on-disk static root when present, else from the
// embedded copy, so a fresh checkout serves a working storefront.
func registerPages(r chi.Router, opts *Options) {
	r.Get("/", servePage(opts, "index.html"))
	r.Get("/launcher", servePage(opts, "launcher.html"))
	r.Get("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/launcher", http.StatusFound)
	})

	// admin login is reachable under all three historical paths
	login := servePage(opts, "admin/login.html")
	r.Get("/admin", login)
	r.Get("/admin/", login)
	r.Get("/admin/login.html", login)

	// The dashboard page itself is served without a server-side auth
	// check; everything it renders comes from the token-gated /api/admin
	// group, so an unauthenticated visitor gets an empty shell.
	r.Get("/admin/dashboard", servePage(opts, "admin/dashboard.html"))

	r.Get("/order-confirmation", servePage(opts, "order-confirmation.html"))
}

func servePage(opts *Options, doc string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if opts.StaticFS != nil {
			if f, err := opts.StaticFS.Open(doc); err == nil {
				_ = f.Close()
				http.ServeFileFS(w, r, opts.StaticFS, doc)
				return
			}
		}
		http.ServeFileFS(w, r, opts.PagesFS, doc)
	}
}

type healthPayload struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// handleAPIHealth is the public liveness endpoint. The timestamp is taken
// fresh per call so consecutive responses are strictly increasing.
func handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthPayload{
		Status:    "OK",
		Message:   "Storefront API is running",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Version:   version.Version,
	})
}
