package flows

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/tokenauth/internal"
	"github.com/MrEthical07/tokenauth/store"
)

var (
	errUnauthenticated = errors.New("unauthenticated")
	errUnavailable     = store.ErrUnavailable
	errPersist         = errors.New("session persist failed")
	errPayload         = errors.New("invalid login payload")
	errUnknownType     = errors.New("unknown login type")
	errBadCredentials  = errors.New("invalid credentials")
	errRateLimited     = errors.New("login rate limited")
	errNotReady        = errors.New("engine not initialized")
	errInjected        = errors.New("injected failure")
)

var testErrors = Errors{
	EngineNotReady:      errNotReady,
	Unauthenticated:     errUnauthenticated,
	StoreUnavailable:    errUnavailable,
	SessionPersist:      errPersist,
	InvalidLoginPayload: errPayload,
	UnknownLoginType:    errUnknownType,
	InvalidCredentials:  errBadCredentials,
	LoginRateLimited:    errRateLimited,
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// faultStore wraps a real store and injects failures per operation and key
// namespace.
type faultStore struct {
	store.Store

	mu    sync.Mutex
	fail  map[string]error
	block map[string]bool
	calls atomic.Int64
}

func newFaultStore(inner store.Store) *faultStore {
	return &faultStore{Store: inner, fail: map[string]error{}, block: map[string]bool{}}
}

// failOn makes op fail for keys starting with prefix ("" matches all keys).
func (f *faultStore) failOn(op, prefix string, err error) {
	f.mu.Lock()
	f.fail[op+" "+prefix] = err
	f.mu.Unlock()
}

// blockOn makes op wait for context cancellation.
func (f *faultStore) blockOn(op, prefix string) {
	f.mu.Lock()
	f.block[op+" "+prefix] = true
	f.mu.Unlock()
}

func (f *faultStore) inject(ctx context.Context, op, key string) error {
	f.calls.Add(1)
	f.mu.Lock()
	var injected error
	blocked := false
	for rule, err := range f.fail {
		rop, prefix, _ := strings.Cut(rule, " ")
		if rop == op && strings.HasPrefix(key, prefix) {
			injected = err
		}
	}
	for rule := range f.block {
		rop, prefix, _ := strings.Cut(rule, " ")
		if rop == op && strings.HasPrefix(key, prefix) {
			blocked = true
		}
	}
	f.mu.Unlock()
	if blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	return injected
}

func (f *faultStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.inject(ctx, "put", key); err != nil {
		return err
	}
	return f.Store.Put(ctx, key, value, ttl)
}

func (f *faultStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := f.inject(ctx, "get", key); err != nil {
		return nil, false, err
	}
	return f.Store.Get(ctx, key)
}

func (f *faultStore) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	if err := f.inject(ctx, "getttl", key); err != nil {
		return nil, 0, false, err
	}
	return f.Store.GetWithTTL(ctx, key)
}

func (f *faultStore) Delete(ctx context.Context, key string) (int64, error) {
	if err := f.inject(ctx, "delete", key); err != nil {
		return 0, err
	}
	return f.Store.Delete(ctx, key)
}

func (f *faultStore) Extend(ctx context.Context, key string, added time.Duration) (bool, error) {
	if err := f.inject(ctx, "extend", key); err != nil {
		return false, err
	}
	return f.Store.Extend(ctx, key, added)
}

func (f *faultStore) PushCapped(ctx context.Context, key, member string, capacity int, ttl time.Duration) ([]string, error) {
	if err := f.inject(ctx, "push", key); err != nil {
		return nil, err
	}
	return f.Store.PushCapped(ctx, key, member, capacity, ttl)
}

func (f *faultStore) Restore(ctx context.Context, key string, members []string, ttl time.Duration) error {
	if err := f.inject(ctx, "restore", key); err != nil {
		return err
	}
	return f.Store.Restore(ctx, key, members, ttl)
}

// clear drops every injected failure and block.
func (f *faultStore) clear() {
	f.mu.Lock()
	f.fail = map[string]error{}
	f.block = map[string]bool{}
	f.mu.Unlock()
}

func (f *faultStore) RemoveMember(ctx context.Context, key, member string) (int64, error) {
	if err := f.inject(ctx, "remove", key); err != nil {
		return 0, err
	}
	return f.Store.RemoveMember(ctx, key, member)
}

type counters struct {
	mu sync.Mutex
	n  map[int]int
}

func (c *counters) inc(id int) {
	c.mu.Lock()
	if c.n == nil {
		c.n = map[int]int{}
	}
	c.n[id]++
	c.mu.Unlock()
}

func (c *counters) get(id int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[id]
}

type auditLog struct {
	mu      sync.Mutex
	records []AuditRecord
}

func (a *auditLog) emit(_ context.Context, r AuditRecord) {
	a.mu.Lock()
	a.records = append(a.records, r)
	a.mu.Unlock()
}

func (a *auditLog) events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r.Event)
	}
	return out
}

const (
	mIssued = iota + 1
	mEvicted
	mPersistFailure
	mAuthSuccess
	mAuthFailure
	mAuthUnavailable
	mAuthLatency
	mRenewScheduled
	mRenewSucceeded
	mRenewFailed
	mLogout
	mLogoutPartial
	mLoginSuccess
	mLoginFailure
	mLoginRateLimited
)

type harness struct {
	clock   *testClock
	local   *store.Local
	store   *faultStore
	metrics *counters
	audit   *auditLog
	renewer *Renewer
}

func newHarness(t *testing.T, threshold time.Duration) *harness {
	t.Helper()
	clock := newTestClock()
	local := store.NewLocal(1024, 24*time.Hour, store.WithClock(clock.Now))
	h := &harness{
		clock:   clock,
		local:   local,
		store:   newFaultStore(local),
		metrics: &counters{},
		audit:   &auditLog{},
	}
	h.renewer = NewRenewer(RenewerConfig{
		Store:     h.store,
		Threshold: threshold,
		OpTimeout: 50 * time.Millisecond,
		Observer:  h.observer(),
		Metrics:   RenewalMetrics{Scheduled: mRenewScheduled, Succeeded: mRenewSucceeded, Failed: mRenewFailed},
		Events:    RenewalEvents{Failed: "renewal_failed"},
	})
	t.Cleanup(h.renewer.Close)
	return h
}

func (h *harness) observer() Observer {
	return Observer{MetricInc: h.metrics.inc, EmitAudit: h.audit.emit}
}

func (h *harness) issueDeps() IssueDeps {
	return IssueDeps{
		Store:           h.store,
		NewAccessToken:  func(Principal, Policy) (string, error) { return internal.NewAccessToken() },
		NewRefreshToken: func(Principal, Policy) (string, error) { return internal.NewRefreshToken() },
		Now:             h.clock.Now,
		OpTimeout:       50 * time.Millisecond,
		Observer:        h.observer(),
		Metrics:         IssueMetrics{SessionIssued: mIssued, SessionEvicted: mEvicted, SessionPersistFailure: mPersistFailure},
		Events:          IssueEvents{SessionIssued: "session_issued", SessionEvicted: "session_evicted", SessionPersistFailure: "session_persist_failure"},
		Errors:          testErrors,
	}
}

func (h *harness) authDeps() AuthenticateDeps {
	return AuthenticateDeps{
		Store:     h.store,
		Scheme:    "Bearer",
		OpTimeout: 50 * time.Millisecond,
		Renewer:   h.renewer,
		Observer:  h.observer(),
		Metrics:   AuthenticateMetrics{Success: mAuthSuccess, Failure: mAuthFailure, Unavailable: mAuthUnavailable, Latency: mAuthLatency},
	}
}

func (h *harness) revokeDeps() RevokeDeps {
	return RevokeDeps{
		Store:     h.store,
		OpTimeout: 50 * time.Millisecond,
		Observer:  h.observer(),
		Metrics:   RevokeMetrics{Logout: mLogout, LogoutPartial: mLogoutPartial},
		Events:    RevokeEvents{Logout: "logout"},
		Errors:    testErrors,
	}
}

func testPolicy(capacity int) Policy {
	return Policy{
		AccessExpire:         time.Hour,
		RefreshExpire:        2 * time.Hour,
		ConcurrentLoginCount: capacity,
		ClientType:           1,
	}
}

var alice = Principal{UserID: "u-1", Username: "alice", Roles: []string{"user"}}
