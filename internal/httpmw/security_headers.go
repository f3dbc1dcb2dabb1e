package httpmw

import "net/http"

// SecurityHeaderOptions controls optional relaxations of the baseline
// security headers.
type SecurityHeaderOptions struct {
	// DisableCSP suppresses the Content-Security-Policy header entirely.
	// The storefront pages load inline bootstrap scripts that a same-origin
	// policy would block. Operators enabling this must not assume CSP
	// protection is active; every other header is still emitted.
	DisableCSP bool
}

// SecurityHeaders is middleware that adds common security headers to HTTP
// responses, with CSP enforcement on.
func SecurityHeaders(next http.Handler) http.Handler {
	return SecurityHeadersWith(SecurityHeaderOptions{})(next)
}

// SecurityHeadersWith returns middleware that adds the baseline security
// headers, honoring the given relaxations. Purely additive header injection,
// no error conditions.
func SecurityHeadersWith(opts SecurityHeaderOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Require HTTPS for one year, including subdomains, and allow preload
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")

			// Content Security Policy to restrict resource loading to same origin
			if !opts.DisableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self'; font-src 'self'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'; object-src 'none'; upgrade-insecure-requests")
			}

			// Disable MIME type sniffing for integrity/security
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Old Clickjacking protection - dont allow embedding in frames
			w.Header().Set("X-Frame-Options", "DENY")

			// Referrer policy to control information sent in Referer header
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Permissions policy to disable various powerful (in)security features
			w.Header().Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")

			// Prevent Adobe Flash and Acrobat from loading content
			w.Header().Set("X-Permitted-Cross-Domain-Policies", "none")

			// Cross-Origin Embedder-Policy to control resource embedding
			w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")

			// Cross-Origin-Opener-Policy to isolate browsing context
			w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

			// Cross-Origin-Resource-Policy to restrict resource.. "sharing"
			w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")

			next.ServeHTTP(w, r)
		})
	}
}
