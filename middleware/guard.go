package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/tokenauth"
)

// PrincipalFromContext returns the principal stored by [Guard]. Exempt
// requests carry no principal.
func PrincipalFromContext(ctx context.Context) (*tokenauth.Principal, bool) {
	return tokenauth.PrincipalFromContext(ctx)
}

// Guard authenticates and authorizes every request through
// [tokenauth.Engine.Check] using the configured credential header. A missing
// or invalid session is 401, a principal without a recognized role is 403
// and a store outage is 503.
func Guard(engine *tokenauth.Engine) func(http.Handler) http.Handler {
	header := "Authorization"
	if engine != nil {
		header = engine.Config().Header.Name
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			p, err := engine.Check(r.Context(), r.Method, r.URL.Path, r.Header.Get(header))
			if err != nil {
				status := StatusCode(err)
				http.Error(w, http.StatusText(status), status)
				return
			}

			if p != nil {
				r = r.WithContext(tokenauth.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StatusCode maps an engine error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tokenauth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, tokenauth.ErrUnauthenticated),
		errors.Is(err, tokenauth.ErrInvalidCredentials),
		errors.Is(err, tokenauth.ErrInvalidLoginPayload):
		return http.StatusUnauthorized
	case errors.Is(err, tokenauth.ErrLoginRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}
