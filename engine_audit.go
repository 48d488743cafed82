package tokenauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenauth/internal/flows"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventSessionIssued         = "session_issued"
	auditEventSessionEvicted        = "session_evicted"
	auditEventSessionPersistFailure = "session_persist_failure"
	auditEventRenewalFailed         = "renewal_failed"
	auditEventLogout                = "logout"
)

// AuditErrorCode is the stable error label written into [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrInvalidPayload     AuditErrorCode = "invalid_payload"
	auditErrUnknownLoginType   AuditErrorCode = "unknown_login_type"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrSessionPersist     AuditErrorCode = "session_persist_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit stamps a flow record with request context and hands it to the
// dispatcher. It never blocks when DropIfFull is set.
func (e *Engine) emitAudit(ctx context.Context, rec flows.AuditRecord) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		EventType: rec.Event,
		UserID:    rec.UserID,
		Username:  rec.Username,
		Token:     rec.Token,
		IP:        clientIPFromContext(ctx),
		Success:   rec.Success,
		Metadata:  rec.Metadata,
	}
	if code := auditErrorCode(rec.Err); code != "" {
		event.Error = string(code)
	}
	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrUnknownLoginType):
		return auditErrUnknownLoginType
	case errors.Is(err, ErrInvalidLoginPayload):
		return auditErrInvalidPayload
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrSessionPersist):
		return auditErrSessionPersist
	case errors.Is(err, context.DeadlineExceeded):
		return auditErrTimeout
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
