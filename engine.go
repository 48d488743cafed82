package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/tokenauth/internal"
	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/permission"
	"github.com/MrEthical07/tokenauth/store"
	"go.uber.org/zap"
)

// Engine is the runtime session authentication engine.
//
// It is immutable after [Builder.Build] and safe for concurrent use. Every
// request resolves through the session store; nothing about a session is
// cached in process.
type Engine struct {
	config      Config
	store       store.Store
	flow        flows.Service
	renewer     *flows.Renewer
	rateLimiter *rate.Limiter
	jwtManager  *jwt.Manager
	policy      permission.Policy
	strategies  map[string]GrantStrategy
	resolver    PolicyResolver
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      *zap.Logger
	now         func() time.Time

	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

func (e *Engine) ready() bool {
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed && e.flow.Initialized()
}

// Login verifies req through its grant strategy and issues a session under
// the client's policy. A missing or unknown login type, malformed
// credentials, rejected credentials, throttling and persistence failures
// each map to their own sentinel error.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.flow.Login(ctx, flows.LoginRequest{
		LoginType:   req.LoginType,
		ClientID:    req.ClientID,
		Credentials: req.Credentials,
	})
}

// IssueSession issues a session for an already verified principal. The
// oldest sessions of the same user are evicted to keep at most
// policy.ConcurrentLoginCount live.
func (e *Engine) IssueSession(ctx context.Context, p Principal, policy ClientPolicy) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if err := policy.validate(); err != nil {
		return nil, fmt.Errorf("invalid client policy: %w", err)
	}
	return e.flow.Issue(ctx, toFlowPrincipal(p), toFlowPolicy(policy))
}

// Authenticate resolves the configured credential header value to a
// principal. It fails closed: a store outage or timeout is
// [ErrStoreUnavailable], never a success.
func (e *Engine) Authenticate(ctx context.Context, header string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.principal(e.flow.AuthenticateHeader(ctx, header))
}

// AuthenticateToken resolves a bare access token to a principal.
func (e *Engine) AuthenticateToken(ctx context.Context, token string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.principal(e.flow.Authenticate(ctx, token))
}

func (e *Engine) principal(res flows.AuthenticateResult) (*Principal, error) {
	switch {
	case res.Failure == flows.AuthFailureNone:
		return principalFromSession(res.Session), nil
	case res.Failure.Unauthenticated():
		return nil, ErrUnauthenticated
	case res.Failure == flows.AuthFailureUnavailable:
		if errors.Is(res.Err, ErrStoreUnavailable) {
			return nil, res.Err
		}
		return nil, errors.Join(ErrStoreUnavailable, res.Err)
	default:
		return nil, ErrEngineNotReady
	}
}

// Authorize decides whether p may perform method on path. Preflight and
// allow-listed requests are always allowed; anything else needs an
// authenticated principal holding a recognized role.
func (e *Engine) Authorize(method, path string, p *Principal) bool {
	if e == nil {
		return false
	}
	authenticated := p != nil && p.Authenticated
	var roles []string
	if p != nil {
		roles = p.Roles
	}
	d := e.policy.Decide(method, path, authenticated, roles)
	if !d.Allowed() {
		e.metricInc(MetricAuthorizeDenied)
	}
	return d.Allowed()
}

// RequiresAuthentication reports whether method and path are outside the
// allow list.
func (e *Engine) RequiresAuthentication(method, path string) bool {
	if e == nil {
		return true
	}
	return e.policy.RequiresAuthentication(method, path)
}

// Check runs the whole request guard: exempt requests pass with a nil
// principal, everything else is authenticated from header and then
// authorized. It returns [ErrUnauthenticated], [ErrForbidden] or
// [ErrStoreUnavailable] on rejection.
func (e *Engine) Check(ctx context.Context, method, path, header string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !e.policy.RequiresAuthentication(method, path) {
		return nil, nil
	}
	p, err := e.Authenticate(ctx, header)
	if err != nil {
		return nil, err
	}
	if !e.Authorize(method, path, p) {
		return p, ErrForbidden
	}
	return p, nil
}

// Revoke destroys the session behind access. Revoking an unknown, expired
// or already revoked token succeeds. Only a failure to delete the token
// pointer itself is reported.
func (e *Engine) Revoke(ctx context.Context, access string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.Revoke(ctx, access)
}

// Logout revokes the session named by a credential header value.
func (e *Engine) Logout(ctx context.Context, header string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	token, ok := flows.ParseAuthorization(header, e.config.Header.Scheme)
	if !ok {
		return ErrUnauthenticated
	}
	return e.flow.Revoke(ctx, token)
}

// RevokeAll revokes every tracked session of username. Every session is
// attempted; the joined errors of the failed ones are returned.
func (e *Engine) RevokeAll(ctx context.Context, username string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	tokens, err := e.sessionTokens(ctx, username)
	if err != nil {
		return err
	}
	var errs []error
	for _, token := range tokens {
		if err := e.flow.Revoke(ctx, token); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ActiveSessions lists the fingerprints of the tracked sessions of
// username, oldest first.
func (e *Engine) ActiveSessions(ctx context.Context, username string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	tokens, err := e.sessionTokens(ctx, username)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, internal.Fingerprint(token))
	}
	return out, nil
}

func (e *Engine) sessionTokens(ctx context.Context, username string) ([]string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()
	return e.store.Members(callCtx, store.TokenListKey(username))
}

// Health pings the session store and returns its round-trip latency.
func (e *Engine) Health(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	callCtx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()
	return e.store.Ping(callCtx)
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Close drains in-flight renewals and flushes the audit dispatcher. The
// engine rejects every operation afterwards. The store and Redis client are
// owned by the caller and are not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		if e.renewer != nil {
			e.renewer.Close()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
