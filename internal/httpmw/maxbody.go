package httpmw

import "net/http"

// MaxBody caps every request body at the given ceiling. The cap is enforced
// lazily by MaxBytesReader: handlers that never read the body never pay,
// and oversized bodies surface as a *http.MaxBytesError on read, which the
// API layer turns into a 413 JSON response.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
