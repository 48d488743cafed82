// Package store provides the TTL-aware key/value and key/list cache that
// backs session state.
//
// # Backends
//
// [Redis] is the shared backend: TTLs are authoritative across processes,
// [Redis.Extend] and [Redis.PushCapped] run as Lua scripts so that the
// read-then-write steps are atomic on the server.
//
// [Local] is a process-local bounded cache built on an expirable LRU. Entries
// are evicted least-recently-written once the entry limit is reached and
// never outlive the configured maximum age. It supports true TTL extension.
//
// # Key namespaces
//
// Keys are built with [TokenKey], [SessionKey], [RefreshKey] and
// [TokenListKey]. No other code should read or write these namespaces.
//
// # What this package must NOT do
//
//   - Decode session payloads (see package session).
//   - Conflate backend failures with missing keys: outages wrap [ErrUnavailable].
package store
