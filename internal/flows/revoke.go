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

// RevokeMetrics carries metric IDs used by the revoke flow.
type RevokeMetrics struct {
	Logout        int
	LogoutPartial int
}

// RevokeEvents carries audit event names used by the revoke flow.
type RevokeEvents struct {
	Logout string
}

// RevokeDeps captures revocation dependencies.
type RevokeDeps struct {
	Store     store.Store
	OpTimeout time.Duration

	Observer
	Metrics RevokeMetrics
	Events  RevokeEvents
	Errors  Errors
}

// RunRevoke deletes every key belonging to access. Each key is attempted
// independently and runs to completion even if ctx is cancelled. The token
// pointer is the key that makes the token unusable, so only its failure is
// returned; the rest are logged. Revoking an unknown or malformed token
// succeeds.
func RunRevoke(ctx context.Context, access string, deps RevokeDeps) error {
	if deps.Store == nil {
		return deps.Errors.EngineNotReady
	}
	deps.Observer = deps.Observer.withDefaults()
	if !internal.WellFormedToken(access) {
		return nil
	}
	fp := internal.Fingerprint(access)

	// Best-effort lookups to find the refresh pointer and token list.
	var username, refresh string
	callCtx, cancel := cleanupContext(ctx, deps.OpTimeout)
	if raw, found, err := deps.Store.Get(callCtx, store.SessionKey(access)); err == nil && found {
		if sess, err := session.Decode(raw); err == nil {
			username, refresh = sess.Username, sess.RefreshToken
		}
	}
	cancel()
	if username == "" {
		callCtx, cancel := cleanupContext(ctx, deps.OpTimeout)
		if owner, found, err := deps.Store.Get(callCtx, store.TokenKey(access)); err == nil && found {
			username = string(owner)
		}
		cancel()
	}

	callCtx, cancel = cleanupContext(ctx, deps.OpTimeout)
	_, primaryErr := deps.Store.Delete(callCtx, store.TokenKey(access))
	cancel()

	var secondary []error
	keys := []string{store.SessionKey(access)}
	if refresh != "" {
		keys = append(keys, store.RefreshKey(refresh))
	}
	for _, key := range keys {
		callCtx, cancel := cleanupContext(ctx, deps.OpTimeout)
		if _, err := deps.Store.Delete(callCtx, key); err != nil {
			secondary = append(secondary, err)
		}
		cancel()
	}
	if username != "" {
		callCtx, cancel := cleanupContext(ctx, deps.OpTimeout)
		if _, err := deps.Store.RemoveMember(callCtx, store.TokenListKey(username), access); err != nil {
			secondary = append(secondary, err)
		}
		cancel()
	}

	if len(secondary) > 0 {
		deps.MetricInc(deps.Metrics.LogoutPartial)
		deps.Logger.Warn("session revocation left secondary keys",
			zap.String("token", fp),
			zap.Error(errors.Join(secondary...)),
		)
	}

	record := AuditRecord{
		Event:    deps.Events.Logout,
		Success:  primaryErr == nil,
		Username: username,
		Token:    fp,
	}
	if primaryErr != nil {
		record.Err = primaryErr
		deps.EmitAudit(ctx, record)
		return unavailable(deps.Errors.StoreUnavailable, primaryErr)
	}
	deps.MetricInc(deps.Metrics.Logout)
	deps.EmitAudit(ctx, record)
	return nil
}
