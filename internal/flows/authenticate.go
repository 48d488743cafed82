package flows

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/internal"
	"github.com/MrEthical07/tokenauth/session"
	"github.com/MrEthical07/tokenauth/store"
	"go.uber.org/zap"
)

// AuthFailureKind classifies authentication failures for root-level mapping.
type AuthFailureKind int

const (
	AuthFailureNone AuthFailureKind = iota
	AuthFailureMissing
	AuthFailureMalformed
	AuthFailureSignature
	AuthFailureNotFound
	AuthFailureCorrupt
	AuthFailureUnavailable
	AuthFailureNotReady
)

// Unauthenticated reports whether the failure should surface as a plain
// authentication failure rather than an infrastructure error.
func (k AuthFailureKind) Unauthenticated() bool {
	switch k {
	case AuthFailureMissing, AuthFailureMalformed, AuthFailureSignature, AuthFailureNotFound, AuthFailureCorrupt:
		return true
	default:
		return false
	}
}

// AuthenticateResult carries either the loaded session or a classified failure.
type AuthenticateResult struct {
	Failure        AuthFailureKind
	Err            error
	Session        *session.Session
	Remaining      time.Duration
	RenewScheduled bool
}

// AuthenticateMetrics carries metric IDs used by the authenticate flow.
type AuthenticateMetrics struct {
	Success     int
	Failure     int
	Unavailable int
	Latency     int
}

// AuthenticateDeps captures per-request authentication dependencies.
type AuthenticateDeps struct {
	Store       store.Store
	Scheme      string
	OpTimeout   time.Duration
	VerifyToken func(string) error
	Renewer     *Renewer

	Observer
	Metrics AuthenticateMetrics
}

// ParseAuthorization extracts the token from an Authorization header value.
// The scheme comparison is case-insensitive; an empty scheme accepts the raw
// header as the token.
func ParseAuthorization(header, scheme string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if scheme == "" {
		return header, true
	}
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) || header[len(scheme)] != ' ' {
		return "", false
	}
	token := strings.TrimSpace(header[len(scheme)+1:])
	return token, token != ""
}

// RunAuthenticateHeader parses header and authenticates the bearer token.
// A header without the configured scheme never reaches the store.
func RunAuthenticateHeader(ctx context.Context, header string, deps AuthenticateDeps) AuthenticateResult {
	token, ok := ParseAuthorization(header, deps.Scheme)
	if !ok {
		deps.Observer = deps.Observer.withDefaults()
		deps.MetricInc(deps.Metrics.Failure)
		return AuthenticateResult{Failure: AuthFailureMissing}
	}
	return RunAuthenticate(ctx, token, deps)
}

// RunAuthenticate resolves token to its session. It fails closed: a missing,
// expired or undecodable session is a failure, and a store error or timeout
// is reported as unavailable rather than unauthenticated. The critical path
// makes at most two sequential store calls; renewal runs detached.
func RunAuthenticate(ctx context.Context, token string, deps AuthenticateDeps) AuthenticateResult {
	deps.Observer = deps.Observer.withDefaults()
	if deps.Store == nil {
		return AuthenticateResult{Failure: AuthFailureNotReady}
	}
	start := time.Now()
	defer func() { deps.Observe(deps.Metrics.Latency, time.Since(start)) }()

	fail := func(kind AuthFailureKind, err error) AuthenticateResult {
		if kind == AuthFailureUnavailable {
			deps.MetricInc(deps.Metrics.Unavailable)
		} else {
			deps.MetricInc(deps.Metrics.Failure)
		}
		return AuthenticateResult{Failure: kind, Err: err}
	}

	if !internal.WellFormedToken(token) {
		return fail(AuthFailureMalformed, nil)
	}
	if deps.VerifyToken != nil {
		if err := deps.VerifyToken(token); err != nil {
			return fail(AuthFailureSignature, err)
		}
	}

	callCtx, cancel := callContext(ctx, deps.OpTimeout)
	owner, remaining, found, err := deps.Store.GetWithTTL(callCtx, store.TokenKey(token))
	cancel()
	if err != nil {
		return fail(AuthFailureUnavailable, err)
	}
	// A pointer without expiry is treated as absent.
	if !found || remaining < 0 {
		return fail(AuthFailureNotFound, nil)
	}

	callCtx, cancel = callContext(ctx, deps.OpTimeout)
	raw, found, err := deps.Store.Get(callCtx, store.SessionKey(token))
	cancel()
	if err != nil {
		return fail(AuthFailureUnavailable, err)
	}
	if !found {
		return fail(AuthFailureNotFound, nil)
	}

	sess, err := session.Decode(raw)
	if err != nil {
		deps.Logger.Warn("session payload rejected",
			zap.String("token", internal.Fingerprint(token)),
			zap.Error(err),
		)
		return fail(AuthFailureCorrupt, err)
	}
	if sess.AccessToken != token || sess.Username != string(owner) {
		deps.Logger.Warn("session payload does not match token pointer",
			zap.String("token", internal.Fingerprint(token)),
		)
		return fail(AuthFailureCorrupt, nil)
	}

	// Only a pointer backed by a matching session is renewed.
	scheduled := false
	if deps.Renewer.Due(remaining) {
		scheduled = deps.Renewer.Schedule(ctx, token, remaining)
	}

	deps.MetricInc(deps.Metrics.Success)
	return AuthenticateResult{Session: sess, Remaining: remaining, RenewScheduled: scheduled}
}
