// Package ratelimit provides per-client rate limiting with background
// eviction of stale entries.
//
// Two flavors are available. WindowLimiter caps requests per client to a
// fixed count within a fixed wall-clock window and is the storefront's
// global limiter. IPLimiter is a token bucket that smooths sustained rates
// while permitting short bursts, used on the credential endpoints where a
// tighter sustained rate matters more than a generous window.
//
// Both are single-instance, in-memory limiters intended for basic abuse
// prevention on a single server. They do not protect against distributed
// attacks, bandwidth-bill attacks, or application-layer DoS that stays under
// the rate limit. For those, use an upstream WAF or CDN-level rate limiting.
package ratelimit
