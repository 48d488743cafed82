package tokenauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/internal"
	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/jwt"
	"go.uber.org/zap"
)

// initFlows wires every flow once. Flows only see host sentinels, metric
// IDs and event names through their deps, so they never import this
// package.
func (e *Engine) initFlows(hook RenewalHook) {
	observer := flows.Observer{
		Logger:    e.logger,
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		Observe:   func(id int, d time.Duration) { e.metrics.Observe(MetricID(id), d) },
		EmitAudit: e.emitAudit,
	}
	errs := flows.Errors{
		EngineNotReady:      ErrEngineNotReady,
		Unauthenticated:     ErrUnauthenticated,
		StoreUnavailable:    ErrStoreUnavailable,
		SessionPersist:      ErrSessionPersist,
		InvalidLoginPayload: ErrInvalidLoginPayload,
		UnknownLoginType:    ErrUnknownLoginType,
		InvalidCredentials:  ErrInvalidCredentials,
		LoginRateLimited:    ErrLoginRateLimited,
	}
	opTimeout := e.config.Store.OperationTimeout

	if e.config.Renewal.Enabled {
		e.renewer = flows.NewRenewer(flows.RenewerConfig{
			Store:     e.store,
			Threshold: e.config.Renewal.Threshold,
			OpTimeout: e.config.Renewal.Timeout,
			OnOutcome: renewalOutcomeHook(hook),
			Observer:  observer,
			Metrics: flows.RenewalMetrics{
				Scheduled: int(MetricRenewalScheduled),
				Succeeded: int(MetricRenewalSuccess),
				Failed:    int(MetricRenewalFailure),
			},
			Events: flows.RenewalEvents{Failed: auditEventRenewalFailed},
		})
	}

	issue := flows.IssueDeps{
		Store:           e.store,
		NewAccessToken:  e.newAccessToken,
		NewRefreshToken: e.newRefreshToken,
		Now:             e.now,
		OpTimeout:       opTimeout,
		Observer:        observer,
		Metrics: flows.IssueMetrics{
			SessionIssued:         int(MetricSessionIssued),
			SessionEvicted:        int(MetricSessionEvicted),
			SessionPersistFailure: int(MetricSessionPersistFailure),
		},
		Events: flows.IssueEvents{
			SessionIssued:         auditEventSessionIssued,
			SessionEvicted:        auditEventSessionEvicted,
			SessionPersistFailure: auditEventSessionPersistFailure,
		},
		Errors: errs,
	}

	authenticate := flows.AuthenticateDeps{
		Store:     e.store,
		Scheme:    e.config.Header.Scheme,
		OpTimeout: opTimeout,
		Renewer:   e.renewer,
		Observer:  observer,
		Metrics: flows.AuthenticateMetrics{
			Success:     int(MetricAuthenticateSuccess),
			Failure:     int(MetricAuthenticateFailure),
			Unavailable: int(MetricAuthenticateUnavailable),
			Latency:     int(MetricAuthenticateLatency),
		},
	}
	if e.jwtManager != nil {
		authenticate.VerifyToken = e.verifyToken
	}

	revoke := flows.RevokeDeps{
		Store:     e.store,
		OpTimeout: opTimeout,
		Observer:  observer,
		Metrics: flows.RevokeMetrics{
			Logout:        int(MetricLogout),
			LogoutPartial: int(MetricLogoutPartial),
		},
		Events: flows.RevokeEvents{Logout: auditEventLogout},
		Errors: errs,
	}

	login := flows.LoginDeps{
		LookupStrategy:      e.lookupStrategy,
		ResolvePolicy:       e.resolvePolicy,
		ClientIPFromContext: clientIPFromContext,
		IssueSession: func(ctx context.Context, p flows.Principal, policy flows.Policy) (*Session, error) {
			return flows.RunIssueSession(ctx, p, policy, issue)
		},
		Observer: observer,
		Metrics: flows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
		},
		Events: flows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LoginRateLimited: auditEventLoginRateLimited,
		},
		Errors: errs,
	}
	if e.rateLimiter != nil {
		login.CheckLoginRate = e.rateLimiter.CheckLogin
		login.IncrementLoginRate = e.rateLimiter.IncrementLogin
		login.ResetLoginRate = e.rateLimiter.ResetLogin
		login.IsRateLimited = func(err error) bool { return errors.Is(err, rate.ErrRateLimited) }
	}

	e.flow = flows.New(flows.Deps{
		Issue:        issue,
		Authenticate: authenticate,
		Revoke:       revoke,
		Login:        login,
	})
}

func renewalOutcomeHook(hook RenewalHook) func(flows.RenewalOutcome) {
	if hook == nil {
		return nil
	}
	return func(out flows.RenewalOutcome) {
		hook(RenewalEvent{
			AccessToken: internal.Fingerprint(out.AccessToken),
			Remaining:   out.Remaining,
			Added:       out.Added,
			Extended:    out.Extended,
			Attempts:    out.Attempts,
			Err:         out.Err,
		})
	}
}

func (e *Engine) lookupStrategy(loginType string) (flows.VerifyFunc, bool) {
	s, ok := e.strategies[loginType]
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, creds map[string]string) (flows.Principal, error) {
		p, err := s.Verify(ctx, Credentials(creds))
		if err != nil {
			return flows.Principal{}, err
		}
		if p == nil {
			return flows.Principal{}, ErrInvalidCredentials
		}
		return toFlowPrincipal(*p), nil
	}, true
}

// resolvePolicy never fails a login: resolver errors and invalid policies
// fall back to the configured default.
func (e *Engine) resolvePolicy(ctx context.Context, clientID string) flows.Policy {
	policy := e.config.DefaultPolicy
	if e.resolver == nil {
		return toFlowPolicy(policy)
	}
	resolved, ok, err := e.resolver.ResolvePolicy(ctx, clientID)
	switch {
	case err != nil:
		e.logger.Warn("client policy lookup failed, using default",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
	case !ok:
	default:
		if verr := resolved.validate(); verr != nil {
			e.logger.Warn("client policy invalid, using default",
				zap.String("client_id", clientID),
				zap.Error(verr),
			)
		} else {
			policy = resolved
		}
	}
	return toFlowPolicy(policy)
}

func (e *Engine) newAccessToken(p flows.Principal, policy flows.Policy) (string, error) {
	if e.jwtManager == nil {
		return internal.NewAccessToken()
	}
	// Sliding renewal can keep the pointer alive up to the refresh horizon,
	// so the signature must not expire before it.
	return e.jwtManager.Mint(jwt.KindAccess, p.Username, policy.ClientType, policy.RefreshExpire)
}

func (e *Engine) newRefreshToken(p flows.Principal, policy flows.Policy) (string, error) {
	if e.jwtManager == nil {
		return internal.NewRefreshToken()
	}
	return e.jwtManager.Mint(jwt.KindRefresh, p.Username, policy.ClientType, policy.RefreshExpire)
}

func (e *Engine) verifyToken(token string) error {
	_, err := e.jwtManager.Parse(token, jwt.KindAccess)
	return err
}

func toFlowPrincipal(p Principal) flows.Principal {
	return flows.Principal{
		UserID:   p.UserID,
		Username: strings.TrimSpace(p.Username),
		Roles:    append([]string(nil), p.Roles...),
	}
}

func toFlowPolicy(p ClientPolicy) flows.Policy {
	return flows.Policy{
		AccessExpire:         p.AccessExpire,
		RefreshExpire:        p.RefreshExpire,
		ConcurrentLoginCount: p.ConcurrentLoginCount,
		ClientType:           p.ClientType,
	}
}
