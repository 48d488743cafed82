// Package tokenauth provides token-based session authentication backed by a
// shared session store.
//
// A login runs the grant strategy registered for its login type, then issues
// an access token, a refresh token and a session record under the client's
// policy, evicting the user's oldest sessions beyond the concurrent-login
// cap. Every request resolves its bearer token through the store, so a
// revoked or evicted session is rejected on the next call. Sessions close to
// expiry are extended in the background (sliding renewal).
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// tokenauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Flow orchestration, rate limiting and audit dispatch live
// under internal/. The key/value contract lives in store.
//
// # What this package must NOT do
//
//   - Cache session state in process. A store outage fails closed with
//     [ErrStoreUnavailable].
//   - Close the Redis client or store it was given.
//   - Log raw tokens. Logs and audit events carry fingerprints only.
package tokenauth
