// Package internal contains helper utilities that are intentionally private
// to tokenauth: secure token generation, token shape checks and log-safe
// fingerprints.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for issuance, authentication, renewal, revocation and login
//   - rate: Redis-backed failed-login throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public tokenauth API.
//   - Be imported by any package outside the tokenauth module.
package internal
