// Package permission decides whether a request may proceed.
//
// Two inputs drive the decision: an [AllowList] of path patterns that are
// exempt from authentication (one set per HTTP method plus a set that applies
// to every method), and a [RoleSet] of recognized role names of which an
// authenticated principal must hold at least one.
//
// Patterns use doublestar syntax, so a trailing "/**" exempts a whole subtree.
// Request paths are cleaned before matching so dot segments cannot escape a
// pattern.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import tokenauth, jwt, session or store.
//   - Model permissions beyond a flat role-name set.
package permission
