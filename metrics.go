package elderauth

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by elderauth APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricOTPIssued is an exported constant or variable used by the authentication engine.
	MetricOTPIssued MetricID = iota
	// MetricOTPVerified is an exported constant or variable used by the authentication engine.
	MetricOTPVerified
	// MetricOTPFailed is an exported constant or variable used by the authentication engine.
	MetricOTPFailed
	// MetricOTPRateLimited is an exported constant or variable used by the authentication engine.
	MetricOTPRateLimited
	// MetricOTPDispatchFailure is an exported constant or variable used by the authentication engine.
	MetricOTPDispatchFailure
	// MetricOTPSwept is an exported constant or variable used by the authentication engine.
	MetricOTPSwept
	// MetricSignupElderStarted is an exported constant or variable used by the authentication engine.
	MetricSignupElderStarted
	// MetricSignupElderPhoneVerified is an exported constant or variable used by the authentication engine.
	MetricSignupElderPhoneVerified
	// MetricSignupElderPendingCreated is an exported constant or variable used by the authentication engine.
	MetricSignupElderPendingCreated
	// MetricSignupElderCompleted is an exported constant or variable used by the authentication engine.
	MetricSignupElderCompleted
	// MetricSignupFamilySuccess is an exported constant or variable used by the authentication engine.
	MetricSignupFamilySuccess
	// MetricSignupDuplicate is an exported constant or variable used by the authentication engine.
	MetricSignupDuplicate
	// MetricLoginSuccess is an exported constant or variable used by the authentication engine.
	MetricLoginSuccess
	// MetricLoginFailure is an exported constant or variable used by the authentication engine.
	MetricLoginFailure
	// MetricFederatedLoginNewUser is an exported constant or variable used by the authentication engine.
	MetricFederatedLoginNewUser
	// MetricAccountLocked is an exported constant or variable used by the authentication engine.
	MetricAccountLocked
	// MetricAccountUnlocked is an exported constant or variable used by the authentication engine.
	MetricAccountUnlocked
	// MetricAccountStatusChanged is an exported constant or variable used by the authentication engine.
	MetricAccountStatusChanged
	// MetricRefreshSuccess is an exported constant or variable used by the authentication engine.
	MetricRefreshSuccess
	// MetricRefreshFailure is an exported constant or variable used by the authentication engine.
	MetricRefreshFailure
	// MetricRefreshReuseDetected is an exported constant or variable used by the authentication engine.
	MetricRefreshReuseDetected
	// MetricLogout is an exported constant or variable used by the authentication engine.
	MetricLogout
	// MetricLogoutAll is an exported constant or variable used by the authentication engine.
	MetricLogoutAll
	// MetricPasswordResetRequest is an exported constant or variable used by the authentication engine.
	MetricPasswordResetRequest
	// MetricPasswordResetSuccess is an exported constant or variable used by the authentication engine.
	MetricPasswordResetSuccess
	// MetricPasswordResetFailure is an exported constant or variable used by the authentication engine.
	MetricPasswordResetFailure
	// MetricRateLimitHit is an exported constant or variable used by the authentication engine.
	MetricRateLimitHit
	// MetricVerifyLatency is an exported constant or variable used by the authentication engine.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by elderauth APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled    bool
	counters   [metricIDCount]paddedCounter
	histograms [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by elderauth APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics may return an error when input validation, dependency calls, or security checks fail.
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
	}
}

// Enabled describes the enabled operation and its observable behavior.
//
// Enabled may return an error when input validation, dependency calls, or security checks fail.
// Enabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc describes the inc operation and its observable behavior.
//
// Inc may return an error when input validation, dependency calls, or security checks fail.
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add describes the add operation and its observable behavior.
//
// Add may return an error when input validation, dependency calls, or security checks fail.
// Add does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe describes the observe operation and its observable behavior.
//
// Observe may return an error when input validation, dependency calls, or security checks fail.
// Observe does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	if id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value describes the value operation and its observable behavior.
//
// Value may return an error when input validation, dependency calls, or security checks fail.
// Value does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot may return an error when input validation, dependency calls, or security checks fail.
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	buckets := make([]uint64, histBucketCount)
	for i := 0; i < histBucketCount; i++ {
		buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
	}
	s.Histograms[MetricVerifyLatency] = buckets

	return s
}

// MetricName describes the metricname operation and its observable behavior.
//
// MetricName may return an error when input validation, dependency calls, or security checks fail.
// MetricName does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func MetricName(id MetricID) string {
	switch id {
	case MetricOTPIssued:
		return "otp_issued_total"
	case MetricOTPVerified:
		return "otp_verified_total"
	case MetricOTPFailed:
		return "otp_failed_total"
	case MetricOTPRateLimited:
		return "otp_rate_limited_total"
	case MetricOTPDispatchFailure:
		return "otp_dispatch_failure_total"
	case MetricOTPSwept:
		return "otp_swept_total"
	case MetricSignupElderStarted:
		return "signup_elder_started_total"
	case MetricSignupElderPhoneVerified:
		return "signup_elder_phone_verified_total"
	case MetricSignupElderPendingCreated:
		return "signup_elder_pending_created_total"
	case MetricSignupElderCompleted:
		return "signup_elder_completed_total"
	case MetricSignupFamilySuccess:
		return "signup_family_success_total"
	case MetricSignupDuplicate:
		return "signup_duplicate_total"
	case MetricLoginSuccess:
		return "login_success_total"
	case MetricLoginFailure:
		return "login_failure_total"
	case MetricFederatedLoginNewUser:
		return "federated_login_new_user_total"
	case MetricAccountLocked:
		return "account_locked_total"
	case MetricAccountUnlocked:
		return "account_unlocked_total"
	case MetricAccountStatusChanged:
		return "account_status_changed_total"
	case MetricRefreshSuccess:
		return "refresh_success_total"
	case MetricRefreshFailure:
		return "refresh_failure_total"
	case MetricRefreshReuseDetected:
		return "refresh_reuse_detected_total"
	case MetricLogout:
		return "logout_total"
	case MetricLogoutAll:
		return "logout_all_total"
	case MetricPasswordResetRequest:
		return "password_reset_request_total"
	case MetricPasswordResetSuccess:
		return "password_reset_success_total"
	case MetricPasswordResetFailure:
		return "password_reset_failure_total"
	case MetricRateLimitHit:
		return "rate_limit_hit_total"
	case MetricVerifyLatency:
		return "otp_verify_latency"
	default:
		return "unknown"
	}
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

// HistogramBucketBounds describes the histogrambucketbounds operation and its observable behavior.
//
// HistogramBucketBounds may return an error when input validation, dependency calls, or security checks fail.
// HistogramBucketBounds does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func HistogramBucketBounds() []float64 {
	return []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}
}
