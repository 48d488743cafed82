// Package middleware adapts [tokenauth.Engine] to net/http.
//
// [Guard] runs Engine.Check for every request and translates the error
// taxonomy into status codes: 401 for a missing or invalid session, 403
// for a principal without a recognized role, 503 when the session store is
// unavailable. Authentication itself stays in the engine; this package only
// reads the header and writes the response.
package middleware
