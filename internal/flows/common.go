package flows

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Principal is the flow-local verified identity.
type Principal struct {
	UserID   string
	Username string
	Roles    []string
}

// Policy is the flow-local, already-normalized client policy.
type Policy struct {
	AccessExpire         time.Duration
	RefreshExpire        time.Duration
	ConcurrentLoginCount int
	ClientType           int32
}

// Errors carries host-level sentinel errors so flows can return them without
// importing the root package.
type Errors struct {
	EngineNotReady      error
	Unauthenticated     error
	StoreUnavailable    error
	SessionPersist      error
	InvalidLoginPayload error
	UnknownLoginType    error
	InvalidCredentials  error
	LoginRateLimited    error
}

// AuditRecord is the flow-local audit shape; the host stamps IP, id and time.
type AuditRecord struct {
	Event    string
	Success  bool
	UserID   string
	Username string
	Token    string
	Err      error
	Metadata map[string]string
}

// Observer groups the side channels every flow reports to.
type Observer struct {
	Logger    *zap.Logger
	MetricInc func(int)
	Observe   func(int, time.Duration)
	EmitAudit func(context.Context, AuditRecord)
}

func (o Observer) withDefaults() Observer {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MetricInc == nil {
		o.MetricInc = func(int) {}
	}
	if o.Observe == nil {
		o.Observe = func(int, time.Duration) {}
	}
	if o.EmitAudit == nil {
		o.EmitAudit = func(context.Context, AuditRecord) {}
	}
	return o
}

// callContext bounds a single store call.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// cleanupContext outlives the caller so best-effort deletes still run after
// the request was cancelled.
func cleanupContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return callContext(context.WithoutCancel(ctx), timeout)
}

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func itoa(n int) string { return strconv.Itoa(n) }

// unavailable normalizes an infrastructure failure onto the host sentinel.
func unavailable(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return errors.Join(sentinel, err)
}
