package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenauth/internal"
	"github.com/MrEthical07/tokenauth/session"
	"github.com/MrEthical07/tokenauth/store"
	"go.uber.org/zap"
)

// IssueMetrics carries metric IDs used by the issue flow.
type IssueMetrics struct {
	SessionIssued         int
	SessionEvicted        int
	SessionPersistFailure int
}

// IssueEvents carries audit event names used by the issue flow.
type IssueEvents struct {
	SessionIssued         string
	SessionEvicted        string
	SessionPersistFailure string
}

// IssueDeps captures session issuance dependencies.
type IssueDeps struct {
	Store           store.Store
	NewAccessToken  func(Principal, Policy) (string, error)
	NewRefreshToken func(Principal, Policy) (string, error)
	Now             func() time.Time
	OpTimeout       time.Duration

	Observer
	Metrics IssueMetrics
	Events  IssueEvents
	Errors  Errors
}

var errEmptyUsername = errors.New("principal username is empty")

type pendingWrite struct {
	key   string
	value []byte
	ttl   time.Duration
}

// RunIssueSession mints tokens for p, enforces the per-user session cap and
// persists the session. On any failure nothing usable is returned and the
// already-written keys are removed on a best-effort basis.
func RunIssueSession(ctx context.Context, p Principal, policy Policy, deps IssueDeps) (*session.Session, error) {
	if deps.Store == nil || deps.NewAccessToken == nil || deps.NewRefreshToken == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Observer = deps.Observer.withDefaults()

	if p.Username == "" {
		return nil, issueFailure(ctx, p, "", errEmptyUsername, "validate", deps)
	}

	access, err := deps.NewAccessToken(p, policy)
	if err != nil {
		return nil, issueFailure(ctx, p, "", err, "generate_access", deps)
	}
	refresh, err := deps.NewRefreshToken(p, policy)
	if err != nil {
		return nil, issueFailure(ctx, p, access, err, "generate_refresh", deps)
	}

	sess := &session.Session{
		SchemaVersion:    session.CurrentSchemaVersion,
		AccessToken:      access,
		RefreshToken:     refresh,
		UserID:           p.UserID,
		Username:         p.Username,
		Roles:            append([]string(nil), p.Roles...),
		ClientType:       policy.ClientType,
		AccessExpiresIn:  policy.AccessExpire,
		RefreshExpiresIn: policy.RefreshExpire,
		IssuedAt:         deps.Now().Unix(),
	}
	payload, err := session.Encode(sess)
	if err != nil {
		return nil, issueFailure(ctx, p, access, err, "encode", deps)
	}

	listKey := store.TokenListKey(p.Username)
	callCtx, cancel := callContext(ctx, deps.OpTimeout)
	evicted, err := deps.Store.PushCapped(callCtx, listKey, access, policy.ConcurrentLoginCount, policy.RefreshExpire)
	cancel()
	if err != nil {
		return nil, issueFailure(ctx, p, access, err, "token_list", deps)
	}

	for i, old := range evicted {
		if err := evictSession(ctx, p, old, deps); err != nil {
			// The evicted tokens are still valid: undo our push and put them
			// back at the head, where the next login evicts them first.
			rollbackIssue(ctx, listKey, access, nil, deps)
			retrack(ctx, listKey, evicted[i:], policy.RefreshExpire, deps)
			return nil, issueFailure(ctx, p, access, err, "evict", deps)
		}
	}

	writes := []pendingWrite{
		{key: store.TokenKey(access), value: []byte(p.Username), ttl: policy.AccessExpire},
		{key: store.SessionKey(access), value: payload, ttl: policy.RefreshExpire},
		{key: store.RefreshKey(refresh), value: []byte(p.Username), ttl: policy.RefreshExpire},
	}
	written := make([]string, 0, len(writes))
	for _, w := range writes {
		callCtx, cancel := callContext(ctx, deps.OpTimeout)
		err := deps.Store.Put(callCtx, w.key, w.value, w.ttl)
		cancel()
		if err != nil {
			rollbackIssue(ctx, listKey, access, written, deps)
			return nil, issueFailure(ctx, p, access, err, "persist", deps)
		}
		written = append(written, w.key)
	}

	deps.MetricInc(deps.Metrics.SessionIssued)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.SessionIssued,
		Success:  true,
		UserID:   p.UserID,
		Username: p.Username,
		Token:    internal.Fingerprint(access),
		Metadata: map[string]string{"evicted": itoa(len(evicted))},
	})
	return sess, nil
}

// evictSession removes the state of an access token pushed out of the
// token list. Only the token pointer is required; the session payload and
// refresh pointer are removed on a best-effort basis.
func evictSession(ctx context.Context, p Principal, old string, deps IssueDeps) error {
	var refresh string
	callCtx, cancel := callContext(ctx, deps.OpTimeout)
	if raw, found, err := deps.Store.Get(callCtx, store.SessionKey(old)); err == nil && found {
		if sess, err := session.Decode(raw); err == nil {
			refresh = sess.RefreshToken
		}
	}
	cancel()

	callCtx, cancel = callContext(ctx, deps.OpTimeout)
	_, err := deps.Store.Delete(callCtx, store.TokenKey(old))
	cancel()
	if err != nil {
		return err
	}

	secondary := []string{store.SessionKey(old)}
	if refresh != "" {
		secondary = append(secondary, store.RefreshKey(refresh))
	}
	for _, key := range secondary {
		callCtx, cancel := cleanupContext(ctx, deps.OpTimeout)
		if _, err := deps.Store.Delete(callCtx, key); err != nil {
			deps.Logger.Warn("evicted session cleanup failed",
				zap.String("token", internal.Fingerprint(old)),
				zap.Error(err),
			)
		}
		cancel()
	}

	deps.MetricInc(deps.Metrics.SessionEvicted)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.SessionEvicted,
		Success:  true,
		UserID:   p.UserID,
		Username: p.Username,
		Token:    internal.Fingerprint(old),
		Metadata: map[string]string{"reason": "concurrent_login_cap"},
	})
	return nil
}

func rollbackIssue(ctx context.Context, listKey, access string, written []string, deps IssueDeps) {
	for _, key := range written {
		callCtx, cancel := cleanupContext(ctx, deps.OpTimeout)
		if _, err := deps.Store.Delete(callCtx, key); err != nil {
			deps.Logger.Warn("issue rollback delete failed", zap.String("key_namespace", namespaceOf(key)), zap.Error(err))
		}
		cancel()
	}
	callCtx, cancel := cleanupContext(ctx, deps.OpTimeout)
	if _, err := deps.Store.RemoveMember(callCtx, listKey, access); err != nil {
		deps.Logger.Warn("issue rollback token list cleanup failed", zap.Error(err))
	}
	cancel()
}

func retrack(ctx context.Context, listKey string, tokens []string, ttl time.Duration, deps IssueDeps) {
	callCtx, cancel := cleanupContext(ctx, deps.OpTimeout)
	defer cancel()
	if err := deps.Store.Restore(callCtx, listKey, tokens, ttl); err != nil {
		deps.Logger.Warn("evicted tokens could not be re-tracked",
			zap.Int("tokens", len(tokens)),
			zap.Error(err),
		)
	}
}

func issueFailure(ctx context.Context, p Principal, access string, cause error, stage string, deps IssueDeps) error {
	deps.MetricInc(deps.Metrics.SessionPersistFailure)
	deps.Logger.Warn("session issuance failed",
		zap.String("stage", stage),
		zap.String("username", p.Username),
		zap.Error(cause),
	)
	deps.EmitAudit(ctx, AuditRecord{
		Event:    deps.Events.SessionPersistFailure,
		Success:  false,
		UserID:   p.UserID,
		Username: p.Username,
		Token:    internal.Fingerprint(access),
		Err:      deps.Errors.SessionPersist,
		Metadata: map[string]string{"stage": stage},
	})
	return errors.Join(deps.Errors.SessionPersist, cause)
}

func namespaceOf(key string) string {
	for _, prefix := range []string{store.TokenPrefix, store.SessionPrefix, store.RefreshPrefix, store.TokenListPrefix} {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return prefix
		}
	}
	return ""
}
