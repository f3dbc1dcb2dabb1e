package httpmw

import (
	"encoding/json"
	"net/http"

	"github.com/halvard-dev/storefront/internal/log"
	"github.com/halvard-dev/storefront/internal/xerrors"
)

// RecoverOptions configures the panic recovery middleware.
type RecoverOptions struct {
	// OnPanic is an optional callback invoked once per recovered panic,
	// e.g. to increment a prometheus counter.
	OnPanic func()

	// ExposeDetail controls the "message" field of the 500 response body.
	// When true (development) the raw panic detail is returned to the
	// caller; when false (production) a generic message is substituted.
	// The full detail is always logged server-side either way.
	ExposeDetail bool
}

// Recover catches panics from downstream handlers, logs them with stack
// detail, and converts them into a 500 JSON response. The process never
// crashes on a handler fault.
func Recover(lg log.Logger, opts RecoverOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// connection-level abort, let the server handle it
					panic(rec)
				}

				var err error
				switch v := rec.(type) {
				case error:
					err = xerrors.EnsureTrace(v)
				default:
					err = xerrors.Newf("panic: %v", v)
				}

				lg.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				).Error(r.Context(), err, "httpserver panic recovered")

				if opts.OnPanic != nil {
					opts.OnPanic()
				}

				msg := "An unexpected error occurred"
				if opts.ExposeDetail {
					msg = err.Error()
				}

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "Internal server error",
					"message": msg,
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
