package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*tokenauth.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := tokenauth.DefaultConfig()
	cfg.Store.Backend = tokenauth.BackendRedis
	cfg.Authorization.Roles = []string{"user"}
	cfg.Authorization.Allow = []tokenauth.AllowRule{{Method: "GET", Pattern: "/health"}}

	engine, err := tokenauth.New().WithConfig(cfg).WithRedis(rdb).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, mr
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(p.Username))
	})
}

func serve(h http.Handler, method, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuard(t *testing.T) {
	engine, mr := newEngine(t)
	ctx := context.Background()
	policy := tokenauth.DefaultClientPolicy()

	user, err := engine.IssueSession(ctx, tokenauth.Principal{UserID: "u1", Username: "alice", Roles: []string{"user"}}, policy)
	require.NoError(t, err)
	guest, err := engine.IssueSession(ctx, tokenauth.Principal{UserID: "u2", Username: "bob", Roles: []string{"guest"}}, policy)
	require.NoError(t, err)

	h := Guard(engine)(echoPrincipal())

	rec := serve(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "anonymous", rec.Body.String())

	rec = serve(h, http.MethodGet, "/orders", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "/orders", "Bearer not-a-session")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "/orders", "Bearer "+guest.AccessToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(h, http.MethodGet, "/orders", "Bearer "+user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", rec.Body.String())

	mr.SetError("READONLY")
	rec = serve(h, http.MethodGet, "/orders", "Bearer "+user.AccessToken)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	mr.SetError("")

	require.NoError(t, engine.Revoke(ctx, user.AccessToken))
	rec = serve(h, http.MethodGet, "/orders", "Bearer "+user.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardNilEngine(t *testing.T) {
	rec := serve(Guard(nil)(echoPrincipal()), http.MethodGet, "/", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusCode(t *testing.T) {
	require.Equal(t, http.StatusOK, StatusCode(nil))
	require.Equal(t, http.StatusUnauthorized, StatusCode(tokenauth.ErrUnauthenticated))
	require.Equal(t, http.StatusUnauthorized, StatusCode(tokenauth.ErrUnknownLoginType))
	require.Equal(t, http.StatusForbidden, StatusCode(tokenauth.ErrForbidden))
	require.Equal(t, http.StatusTooManyRequests, StatusCode(tokenauth.ErrLoginRateLimited))
	require.Equal(t, http.StatusServiceUnavailable, StatusCode(errors.Join(store.ErrUnavailable, context.DeadlineExceeded)))
	require.Equal(t, http.StatusServiceUnavailable, StatusCode(errors.Join(tokenauth.ErrStoreUnavailable, errors.New("user db down"))))
	require.Equal(t, http.StatusServiceUnavailable, StatusCode(tokenauth.ErrSessionPersist))
	require.Equal(t, http.StatusServiceUnavailable, StatusCode(tokenauth.ErrEngineNotReady))
}
