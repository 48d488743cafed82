package permission

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPolicy(t *testing.T) Policy {
	t.Helper()
	allow := NewAllowList()
	require.NoError(t, allow.Add(http.MethodPost, "/auth/login"))
	require.NoError(t, allow.Add(http.MethodGet, "/public/**"))
	require.NoError(t, allow.Add(AnyMethod, "/health"))
	require.NoError(t, allow.Add("", "/docs/**"))
	allow.Freeze()
	return Policy{Allow: allow, Roles: NewRoleSet("admin", "user")}
}

func TestDecideOptionsAlwaysAllowed(t *testing.T) {
	p := newTestPolicy(t)
	require.Equal(t, AllowPreflight, p.Decide(http.MethodOptions, "/admin/secret", false, nil))
	require.Equal(t, AllowPreflight, p.Decide("options", "/anything", false, nil))
	require.False(t, p.RequiresAuthentication(http.MethodOptions, "/admin"))
}

func TestDecideMethodSpecificExemption(t *testing.T) {
	p := newTestPolicy(t)
	require.Equal(t, AllowExempt, p.Decide(http.MethodPost, "/auth/login", false, nil))
	require.Equal(t, Deny, p.Decide(http.MethodGet, "/auth/login", false, nil))

	require.Equal(t, AllowExempt, p.Decide(http.MethodGet, "/public/a/b/c.png", false, nil))
	require.Equal(t, Deny, p.Decide(http.MethodDelete, "/public/a", false, nil))
}

func TestDecideAllMethodsExemption(t *testing.T) {
	p := newTestPolicy(t)
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		require.Equal(t, AllowExempt, p.Decide(m, "/health", false, nil), m)
		require.Equal(t, AllowExempt, p.Decide(m, "/docs/v1/index.html", false, nil), m)
	}
}

func TestDecideDotSegmentsCannotEscapePattern(t *testing.T) {
	p := newTestPolicy(t)
	require.Equal(t, Deny, p.Decide(http.MethodGet, "/public/../admin", false, nil))
	require.True(t, p.RequiresAuthentication(http.MethodGet, "/public/../admin"))
}

func TestDecideRequiresAuthenticatedRecognizedRole(t *testing.T) {
	p := newTestPolicy(t)
	require.Equal(t, AllowRole, p.Decide(http.MethodGet, "/orders", true, []string{"guest", "user"}))
	require.Equal(t, Deny, p.Decide(http.MethodGet, "/orders", true, []string{"guest"}))
	require.Equal(t, Deny, p.Decide(http.MethodGet, "/orders", true, nil))
	require.Equal(t, Deny, p.Decide(http.MethodGet, "/orders", false, []string{"admin"}))
}

func TestAllowListRejectsBadPatternsAndFreezes(t *testing.T) {
	a := NewAllowList()
	require.Error(t, a.Add(http.MethodGet, ""))
	require.Error(t, a.Add(http.MethodGet, "relative/path"))
	require.Error(t, a.Add(http.MethodGet, "/bad/[pattern"))
	require.NoError(t, a.Add(http.MethodGet, "/ok"))
	a.Freeze()
	require.Error(t, a.Add(http.MethodGet, "/late"))
	require.Equal(t, 1, a.Len())
}

func TestNilAllowListExemptsNothing(t *testing.T) {
	p := Policy{Roles: NewRoleSet("user")}
	require.Equal(t, Deny, p.Decide(http.MethodGet, "/health", false, nil))
	require.Equal(t, AllowPreflight, p.Decide(http.MethodOptions, "/health", false, nil))
}

func TestRoleSet(t *testing.T) {
	r := NewRoleSet("user", " ", "admin", "user")
	require.Equal(t, 2, r.Len())
	require.Equal(t, []string{"admin", "user"}, r.Names())
	require.False(t, NewRoleSet().Intersects([]string{"admin"}))
	require.Equal(t, "deny", Deny.String())
	require.True(t, AllowRole.Allowed())
}
