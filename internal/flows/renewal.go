package flows

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/tokenauth/internal"
	"github.com/MrEthical07/tokenauth/store"
	"go.uber.org/zap"
)

// RenewalOutcome describes one finished sliding renewal attempt.
type RenewalOutcome struct {
	AccessToken string
	Remaining   time.Duration
	Added       time.Duration
	Extended    bool
	Attempts    int
	Err         error
}

// RenewalMetrics carries metric IDs used by the renewer.
type RenewalMetrics struct {
	Scheduled int
	Succeeded int
	Failed    int
}

// RenewalEvents carries audit event names used by the renewer.
type RenewalEvents struct {
	Failed string
}

// RenewerConfig wires a [Renewer].
type RenewerConfig struct {
	Store     store.Store
	Threshold time.Duration
	OpTimeout time.Duration
	OnOutcome func(RenewalOutcome)

	Observer
	Metrics RenewalMetrics
	Events  RenewalEvents
}

// Renewer runs detached sliding renewals of access-token pointers.
//
// Renewal never blocks or fails the request that triggered it. Callers get no
// handle to the scheduled work; outcomes surface only through logs, metrics,
// audit and the OnOutcome hook. The Renewer tracks in-flight work so the
// engine can drain it on shutdown.
type Renewer struct {
	cfg    RenewerConfig
	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed bool
}

// NewRenewer returns a ready [Renewer].
func NewRenewer(cfg RenewerConfig) *Renewer {
	cfg.Observer = cfg.Observer.withDefaults()
	return &Renewer{cfg: cfg}
}

// Threshold is the low-water mark at or below which a session is renewed.
func (r *Renewer) Threshold() time.Duration {
	return r.cfg.Threshold
}

// Due reports whether a pointer with the given remaining TTL should be renewed.
func (r *Renewer) Due(remaining time.Duration) bool {
	return r != nil && r.cfg.Threshold > 0 && remaining >= 0 && remaining <= r.cfg.Threshold
}

// Amount is min(threshold, remaining): never extend by more than is left.
func (r *Renewer) Amount(remaining time.Duration) time.Duration {
	if remaining < r.cfg.Threshold {
		return remaining
	}
	return r.cfg.Threshold
}

// Schedule launches a detached renewal of token:<access>. It returns false
// when the renewer is closed or nothing would be added.
func (r *Renewer) Schedule(ctx context.Context, access string, remaining time.Duration) bool {
	if r == nil || r.cfg.Store == nil {
		return false
	}
	added := r.Amount(remaining)
	if added <= 0 {
		return false
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return false
	}
	r.wg.Add(1)
	r.mu.RUnlock()

	r.cfg.MetricInc(r.cfg.Metrics.Scheduled)
	detached := context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		r.finish(detached, r.run(detached, access, remaining, added))
	}()
	return true
}

// run extends once and retries a single time when the first call timed out.
func (r *Renewer) run(ctx context.Context, access string, remaining, added time.Duration) RenewalOutcome {
	out := RenewalOutcome{AccessToken: access, Remaining: remaining, Added: added}
	key := store.TokenKey(access)
	for out.Attempts < 2 {
		out.Attempts++
		callCtx, cancel := callContext(ctx, r.cfg.OpTimeout)
		ok, err := r.cfg.Store.Extend(callCtx, key, added)
		cancel()
		out.Extended, out.Err = ok, err
		if err == nil || !isTimeout(err) {
			break
		}
	}
	return out
}

func (r *Renewer) finish(ctx context.Context, out RenewalOutcome) {
	fp := internal.Fingerprint(out.AccessToken)
	switch {
	case out.Err != nil:
		r.cfg.MetricInc(r.cfg.Metrics.Failed)
		r.cfg.Logger.Warn("session renewal failed",
			zap.String("token", fp),
			zap.Duration("remaining", out.Remaining),
			zap.Int("attempts", out.Attempts),
			zap.Error(out.Err),
		)
		r.cfg.EmitAudit(ctx, AuditRecord{
			Event:    r.cfg.Events.Failed,
			Success:  false,
			Token:    fp,
			Err:      out.Err,
			Metadata: map[string]string{"attempts": itoa(out.Attempts)},
		})
	case !out.Extended:
		// Expired between lookup and extend; the session ends on schedule.
		r.cfg.Logger.Debug("session renewal skipped, key gone", zap.String("token", fp))
	default:
		r.cfg.MetricInc(r.cfg.Metrics.Succeeded)
		r.cfg.Logger.Debug("session renewed",
			zap.String("token", fp),
			zap.Duration("remaining", out.Remaining),
			zap.Duration("added", out.Added),
		)
	}
	if r.cfg.OnOutcome != nil {
		r.cfg.OnOutcome(out)
	}
}

// Wait blocks until every scheduled renewal has finished.
func (r *Renewer) Wait() {
	r.wg.Wait()
}

// Close stops accepting new renewals and drains in-flight ones.
func (r *Renewer) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
