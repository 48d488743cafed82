// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssueSession, RunAuthenticate, RunRevoke, RunLogin)
// accepts a typed dependency struct and returns results without side-effects
// beyond those dependencies. Engine holds the wiring; flows hold the order of
// store calls and the failure classification.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, token generators,
// rate limiter, audit dispatcher and metrics. They do NOT own any of these
// resources; ownership stays with the Engine. [Renewer] is the one stateful
// type: it tracks detached renewals so the Engine can drain them on Close.
//
// # What this package must NOT do
//
//   - Import tokenauth (to avoid import cycles).
//   - Return a partially persisted session.
//   - Let a renewal failure reach the request that triggered it.
package flows
