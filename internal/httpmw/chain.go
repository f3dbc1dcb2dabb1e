package httpmw

import "net/http"

// Chain wraps h so that mws[0] runs outermost and mws[len-1] innermost,
// matching the order the server lists its pipeline in. Nil entries are
// skipped, which lets optional middleware (rate limiter, metrics) be left
// unset in tests.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mw := mws[i]; mw != nil {
			h = mw(h)
		}
	}
	return h
}
