// Package session defines the persisted [Session] schema and its compact
// binary encoding.
//
// # Binary encoding
//
// The first byte is the schema version. Versions are append-only: a new
// version may add fields after the existing ones but never reinterprets old
// bytes. [Decode] reads every version up to [CurrentSchemaVersion] and
// rejects anything newer, so readers must be deployed before writers.
//
// # What this package must NOT do
//
//   - Talk to a cache backend (see package store).
//   - Make authentication or authorization decisions.
package session
