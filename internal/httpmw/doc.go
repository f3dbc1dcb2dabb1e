// Package httpmw holds the middleware stack for the storefront's public
// server.
//
// httpserver.NewHandler assembles the stack in a fixed order: security
// headers, panic recovery, request ID, client IP resolution, rate limiting,
// OTEL tracing, metrics, structured logging, then the chi router.
//
// Each middleware stands alone and can be tested or reordered on its own.
// Shopper-supplied data (query strings, user-agent, arbitrary headers) never
// reaches the logs; that keeps PII and log-injection payloads out of the
// pipeline.
package httpmw
