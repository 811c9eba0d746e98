package elderauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eldernest/elderauth/internal"
	"github.com/eldernest/elderauth/internal/rate"
	"github.com/eldernest/elderauth/internal/stores"
	"github.com/eldernest/elderauth/jwt"
	"github.com/eldernest/elderauth/password"
)

// Engine defines a public type used by elderauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	redis        redis.UniversalClient
	otpStore     *stores.OTPStore
	pendingStore *stores.PendingStore
	stepTokens   *stores.StepTokenStore
	rateLimiter  *rate.Limiter
	users        UserStore
	refresh      RefreshStore
	jwtManager   *jwt.Manager
	passwordHash *password.Argon2
	sms          SMSSender
	identity     IdentityVerifier
	audit        *auditDispatcher
	metrics      *Metrics
	logger       *zap.Logger
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping describes the ping operation and its observable behavior.
//
// Ping may return an error when input validation, dependency calls, or security checks fail.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.redis == nil {
		return fmt.Errorf("%w: redis client", ErrNotConfigured)
	}
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeVerify(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))
}

// purposeWire maps the public purpose enum onto the store's wire values.
// Exhaustive over the closed set; an unknown purpose maps to zero, which no
// store key uses.
func purposeWire(p OTPPurpose) uint8 {
	switch p {
	case PurposeLogin:
		return stores.PurposeLogin
	case PurposeSignup:
		return stores.PurposeSignup
	case PurposeFamilyVerification:
		return stores.PurposeFamilyVerification
	case PurposePasswordReset:
		return stores.PurposePasswordReset
	default:
		return 0
	}
}

func mapOTPErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOTPNotFound):
		return ErrOTPNotFound
	case errors.Is(err, stores.ErrOTPExpired):
		return ErrOTPExpired
	case errors.Is(err, stores.ErrOTPMismatch):
		return ErrOTPMismatch
	case errors.Is(err, stores.ErrOTPAttemptsExceeded):
		return ErrOTPAttemptsExceeded
	case errors.Is(err, stores.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	default:
		return err
	}
}

func mapPendingErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrPendingNotFound):
		return ErrPendingNotFound
	case errors.Is(err, stores.ErrPendingConflict):
		return ErrPendingConsumed
	case errors.Is(err, stores.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	default:
		return err
	}
}

func mapRateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, rate.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	default:
		return err
	}
}

// issueTokens mints the access/refresh pair for a user and persists the
// refresh record. The refresh record id doubles as the token's jti so the
// exchange path can find the record without a secondary index.
func (e *Engine) issueTokens(ctx context.Context, user *User) (*AuthResponse, error) {
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	accessToken, err := e.jwtManager.CreateAccess(user.ID, string(user.Role), accessJTI)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	refreshToken, err := e.jwtManager.CreateRefresh(user.ID, refreshJTI)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	now := time.Now().UTC()
	rec := &RefreshRecord{
		ID:        refreshJTI,
		UserID:    user.ID,
		TokenHash: internal.HashToken(refreshToken),
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.RefreshToken.TTL),
		ClientIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
	if err := e.refresh.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &AuthResponse{
		User:         user.View(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(e.config.AccessToken.TTL.Seconds()),
	}, nil
}

func (e *Engine) clientMeta(ctx context.Context) ClientMeta {
	return ClientMeta{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
}

func (e *Engine) log() *zap.Logger {
	if e == nil || e.logger == nil {
		return zap.NewNop()
	}
	return e.logger
}
