// Package rate implements the Redis-backed failed-login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - loginfail:    per username
//   - loginfail-ip: per client IP
//
// # What this package must NOT do
//
//   - Touch the session namespaces (token:, session:, refresh:, tokenlist:).
//   - Be imported outside the tokenauth module.
package rate
