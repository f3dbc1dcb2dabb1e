package staticsrv

import (
	"net/http"
)

// Handler serves files that exist in the configured FS and passes every
// other request through to the next handler. It runs ahead of the page
// and API routes so an on-disk file always wins over a dynamic route
// with the same path.
type Handler struct {
	opts Options
}

func New(opts *Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: *opts}, nil
}

func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// only GET/HEAD can be satisfied from disk, everything else is
		// someone else's request
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		file, redirectTo, found := resolvePath(r.URL.Path, h.opts.FS)
		if redirectTo != "" {
			// use 308 redirect to keep method even though we only use GET/HEAD
			http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
			return
		}
		if !found {
			next.ServeHTTP(w, r)
			return
		}

		if cc := cacheControlForFile(file, &h.opts); cc != "" {
			w.Header().Set("Cache-Control", cc)
		}

		http.ServeFileFS(w, r, h.opts.FS, file)
	})
}
