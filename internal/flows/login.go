package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/tokenauth/session"
	"go.uber.org/zap"
)

// LoginRequest is the flow-local login request shape.
type LoginRequest struct {
	LoginType   string
	ClientID    string
	Credentials map[string]string
}

// VerifyFunc checks credentials and returns the verified identity.
type VerifyFunc func(context.Context, map[string]string) (Principal, error)

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	LookupStrategy      func(loginType string) (VerifyFunc, bool)
	ResolvePolicy       func(ctx context.Context, clientID string) Policy
	ClientIPFromContext func(context.Context) string
	IssueSession        func(context.Context, Principal, Policy) (*session.Session, error)

	// Throttle hooks are optional; nil disables failed-login throttling.
	CheckLoginRate     func(ctx context.Context, username, ip string) error
	IncrementLoginRate func(ctx context.Context, username, ip string) error
	ResetLoginRate     func(ctx context.Context, username string) error
	IsRateLimited      func(error) bool

	Observer
	Metrics LoginMetrics
	Events  LoginEvents
	Errors  Errors
}

// UsernameCredential is the credential key used to throttle failed logins.
const UsernameCredential = "username"

// RunLogin validates the request, verifies credentials through the grant
// strategy registered for its login type, resolves the client policy and
// issues a session.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) (*session.Session, error) {
	if deps.LookupStrategy == nil || deps.ResolvePolicy == nil || deps.IssueSession == nil {
		return nil, deps.Errors.EngineNotReady
	}
	deps.Observer = deps.Observer.withDefaults()
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}

	loginType := strings.TrimSpace(req.LoginType)
	if loginType == "" || req.Credentials == nil {
		return nil, loginFailure(ctx, "", deps.Errors.InvalidLoginPayload, "invalid_payload", deps)
	}
	verify, ok := deps.LookupStrategy(loginType)
	if !ok {
		return nil, loginFailure(ctx, "", deps.Errors.UnknownLoginType, "unknown_login_type", deps)
	}

	username := strings.TrimSpace(req.Credentials[UsernameCredential])
	ip := deps.ClientIPFromContext(ctx)
	throttled := username != "" && deps.CheckLoginRate != nil

	if throttled {
		if err := deps.CheckLoginRate(ctx, username, ip); err != nil {
			return nil, throttleError(ctx, username, err, deps)
		}
	}

	p, err := verify(ctx, req.Credentials)
	if err == nil && strings.TrimSpace(p.Username) == "" {
		err = deps.Errors.InvalidCredentials
	}
	if err != nil {
		err = credentialError(err, deps.Errors)
		if throttled && deps.IncrementLoginRate != nil && countsAsFailedAttempt(err, deps.Errors) {
			if incErr := deps.IncrementLoginRate(ctx, username, ip); incErr != nil && !deps.IsRateLimited(incErr) {
				deps.Logger.Warn("login throttle increment failed", zap.Error(incErr))
			}
		}
		return nil, loginFailure(ctx, username, err, "verify", deps)
	}

	if throttled && deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, username); err != nil {
			deps.Logger.Warn("login throttle reset failed", zap.Error(err))
		}
	}

	sess, err := deps.IssueSession(ctx, p, deps.ResolvePolicy(ctx, req.ClientID))
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, err
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.LoginSuccess,
		Success:  true,
		UserID:   p.UserID,
		Username: p.Username,
		Metadata: map[string]string{"login_type": loginType, "client_id": req.ClientID},
	})
	return sess, nil
}

func throttleError(ctx context.Context, username string, err error, deps LoginDeps) error {
	if !deps.IsRateLimited(err) {
		// Throttle store outage: fail closed.
		deps.MetricInc(deps.Metrics.LoginFailure)
		return unavailable(deps.Errors.StoreUnavailable, err)
	}
	deps.MetricInc(deps.Metrics.LoginRateLimited)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.LoginRateLimited,
		Success:  false,
		Username: username,
		Err:      deps.Errors.LoginRateLimited,
	})
	return deps.Errors.LoginRateLimited
}

// credentialError keeps taxonomy errors returned by a strategy. Anything
// else is an infrastructure failure behind the strategy (a user database
// outage, say) and maps to store unavailable.
func credentialError(err error, e Errors) error {
	for _, known := range []error{e.InvalidCredentials, e.InvalidLoginPayload, e.StoreUnavailable, e.LoginRateLimited} {
		if known != nil && errors.Is(err, known) {
			return err
		}
	}
	return unavailable(e.StoreUnavailable, err)
}

// countsAsFailedAttempt reports whether err was caused by the caller's
// credentials and should count against the login throttle.
func countsAsFailedAttempt(err error, e Errors) bool {
	if e.StoreUnavailable != nil && errors.Is(err, e.StoreUnavailable) {
		return false
	}
	return errors.Is(err, e.InvalidCredentials) || errors.Is(err, e.InvalidLoginPayload)
}

func loginFailure(ctx context.Context, username string, err error, reason string, deps LoginDeps) error {
	deps.MetricInc(deps.Metrics.LoginFailure)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.LoginFailure,
		Success:  false,
		Username: username,
		Err:      err,
		Metadata: map[string]string{"reason": reason},
	})
	return err
}
