package tokenauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/session"
)

// Session is the persisted session record returned by Login and IssueSession.
type Session = session.Session

// Principal is the verified identity bound to a request.
type Principal struct {
	UserID        string
	Username      string
	Roles         []string
	ClientType    int32
	Authenticated bool
}

// HasRole reports whether p carries role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func principalFromSession(s *Session) *Principal {
	return &Principal{
		UserID:        s.UserID,
		Username:      s.Username,
		Roles:         append([]string(nil), s.Roles...),
		ClientType:    s.ClientType,
		Authenticated: true,
	}
}

// ClientPolicy is the per-client session policy resolved once per login.
type ClientPolicy struct {
	AccessExpire         time.Duration
	RefreshExpire        time.Duration
	ConcurrentLoginCount int
	AutoApprove          bool
	ClientType           int32
}

func (p ClientPolicy) validate() error {
	if p.AccessExpire <= 0 {
		return errors.New("AccessExpire must be > 0")
	}
	if p.RefreshExpire < p.AccessExpire {
		return errors.New("RefreshExpire must be >= AccessExpire")
	}
	if p.ConcurrentLoginCount < 1 {
		return errors.New("ConcurrentLoginCount must be >= 1")
	}
	return nil
}

// Credentials are the raw fields of a login request, interpreted only by the
// grant strategy registered for the login type.
type Credentials map[string]string

// LoginRequest is the login body: a login type selecting the grant strategy,
// the calling client and its credentials.
type LoginRequest struct {
	LoginType   string      `json:"login_type"`
	ClientID    string      `json:"client_id"`
	Credentials Credentials `json:"credentials"`
}

const maxLoginBody = 64 << 10

// ParseLoginRequest decodes a JSON login body. Any malformed body, including
// unknown fields and trailing data, is [ErrInvalidLoginPayload].
func ParseLoginRequest(r io.Reader) (LoginRequest, error) {
	var req LoginRequest
	dec := json.NewDecoder(io.LimitReader(r, maxLoginBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return LoginRequest{}, fmt.Errorf("%w: %v", ErrInvalidLoginPayload, err)
	}
	if dec.More() {
		return LoginRequest{}, fmt.Errorf("%w: trailing data", ErrInvalidLoginPayload)
	}
	if strings.TrimSpace(req.LoginType) == "" || req.Credentials == nil {
		return LoginRequest{}, ErrInvalidLoginPayload
	}
	return req, nil
}

// GrantStrategy turns raw credentials into a verified principal. A strategy
// returns [ErrInvalidCredentials] or [ErrInvalidLoginPayload] on rejection.
// Any other error is treated as an outage behind the strategy and surfaces
// as [ErrStoreUnavailable]; it does not count against the login throttle.
type GrantStrategy interface {
	Verify(ctx context.Context, creds Credentials) (*Principal, error)
}

// GrantStrategyFunc adapts a function to [GrantStrategy].
type GrantStrategyFunc func(ctx context.Context, creds Credentials) (*Principal, error)

// Verify calls f.
func (f GrantStrategyFunc) Verify(ctx context.Context, creds Credentials) (*Principal, error) {
	return f(ctx, creds)
}

// PolicyResolver supplies the [ClientPolicy] for a client id. ok=false means
// the client is unknown and the configured default applies.
type PolicyResolver interface {
	ResolvePolicy(ctx context.Context, clientID string) (ClientPolicy, bool, error)
}

// PolicyResolverFunc adapts a function to [PolicyResolver].
type PolicyResolverFunc func(ctx context.Context, clientID string) (ClientPolicy, bool, error)

// ResolvePolicy calls f.
func (f PolicyResolverFunc) ResolvePolicy(ctx context.Context, clientID string) (ClientPolicy, bool, error) {
	return f(ctx, clientID)
}

// StaticPolicies is an in-memory [PolicyResolver].
type StaticPolicies map[string]ClientPolicy

// ResolvePolicy looks clientID up in the map.
func (s StaticPolicies) ResolvePolicy(_ context.Context, clientID string) (ClientPolicy, bool, error) {
	p, ok := s[clientID]
	return p, ok, nil
}

// RenewalEvent reports the outcome of one detached sliding renewal.
// AccessToken is a fingerprint.
type RenewalEvent struct {
	AccessToken string
	Remaining   time.Duration
	Added       time.Duration
	Extended    bool
	Attempts    int
	Err         error
}

// RenewalHook observes renewal outcomes. It runs on the renewal goroutine
// and must not block.
type RenewalHook func(RenewalEvent)
