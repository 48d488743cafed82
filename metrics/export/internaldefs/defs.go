package internaldefs

import (
	"github.com/MrEthical07/tokenauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: tokenauth.MetricLoginSuccess, Name: "tokenauth_login_success_total", Help: "Logins that issued a session."},
	{ID: tokenauth.MetricLoginFailure, Name: "tokenauth_login_failure_total", Help: "Rejected or failed logins."},
	{ID: tokenauth.MetricLoginRateLimited, Name: "tokenauth_login_rate_limited_total", Help: "Logins refused by the failed-login throttle."},
	{ID: tokenauth.MetricSessionIssued, Name: "tokenauth_session_issued_total", Help: "Fully persisted sessions."},
	{ID: tokenauth.MetricSessionEvicted, Name: "tokenauth_session_evicted_total", Help: "Sessions evicted by the concurrent-login cap."},
	{ID: tokenauth.MetricSessionPersistFailure, Name: "tokenauth_session_persist_failure_total", Help: "Session issuance attempts that failed to persist."},
	{ID: tokenauth.MetricAuthenticateSuccess, Name: "tokenauth_authenticate_success_total", Help: "Requests resolved to a session."},
	{ID: tokenauth.MetricAuthenticateFailure, Name: "tokenauth_authenticate_failure_total", Help: "Requests rejected as unauthenticated."},
	{ID: tokenauth.MetricAuthenticateUnavailable, Name: "tokenauth_authenticate_unavailable_total", Help: "Requests failed by a session store outage or timeout."},
	{ID: tokenauth.MetricAuthorizeDenied, Name: "tokenauth_authorize_denied_total", Help: "Authorization decisions that denied access."},
	{ID: tokenauth.MetricRenewalScheduled, Name: "tokenauth_renewal_scheduled_total", Help: "Sliding renewals launched."},
	{ID: tokenauth.MetricRenewalSuccess, Name: "tokenauth_renewal_success_total", Help: "Sliding renewals that extended a session."},
	{ID: tokenauth.MetricRenewalFailure, Name: "tokenauth_renewal_failure_total", Help: "Sliding renewals abandoned after an error."},
	{ID: tokenauth.MetricLogout, Name: "tokenauth_logout_total", Help: "Revoked sessions."},
	{ID: tokenauth.MetricLogoutPartial, Name: "tokenauth_logout_partial_total", Help: "Revocations that left secondary keys behind."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: tokenauth.MetricAuthenticateLatency, Name: "tokenauth_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// AuditDroppedName is the counter of audit events dropped under backpressure.
const AuditDroppedName = "tokenauth_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds, matching
// the engine's latency buckets. The last engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each engine bucket, +Inf included, for
// exporters that publish one series per bucket.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// BucketCount is the number of engine latency buckets including +Inf.
const BucketCount = 8

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
