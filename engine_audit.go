package elderauth

import (
	"context"
	"errors"
	"time"

	"github.com/eldernest/elderauth/internal/validate"
)

const (
	auditEventOTPIssued          = "otp.issued"
	auditEventOTPVerified        = "otp.verified"
	auditEventOTPFailed          = "otp.failed"
	auditEventOTPRateLimited     = "otp.rate_limited"
	auditEventSignupElderStep1   = "signup.elder.step1"
	auditEventSignupElderStep2   = "signup.elder.step2"
	auditEventSignupElderStep3   = "signup.elder.step3"
	auditEventSignupElderStep4   = "signup.elder.step4"
	auditEventSignupFamily       = "signup.family"
	auditEventLoginSuccess       = "login.success"
	auditEventLoginFailure       = "login.failure"
	auditEventAccountLocked      = "account.locked"
	auditEventAccountUnlocked    = "account.unlocked"
	auditEventAccountStatus      = "account.status_changed"
	auditEventTokenRefreshed     = "token.refreshed"
	auditEventTokenReuseDetected = "token.reuse_detected"
	auditEventPasswordReset      = "password.reset"
	auditEventLogout             = "logout"
	auditEventLogoutAll          = "logout.all"
)

// AuditErrorCode defines a public type used by elderauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrAlreadyRegistered  AuditErrorCode = "already_registered"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountSuspended   AuditErrorCode = "account_suspended"
	auditErrCodeNotFound       AuditErrorCode = "code_not_found"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrCodeMismatch       AuditErrorCode = "code_mismatch"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrSMSDispatch        AuditErrorCode = "sms_dispatch_failed"
	auditErrStepToken          AuditErrorCode = "step_token_invalid"
	auditErrPendingNotFound    AuditErrorCode = "pending_not_found"
	auditErrPendingExpired     AuditErrorCode = "pending_expired"
	auditErrPendingConsumed    AuditErrorCode = "pending_consumed"
	auditErrTokenInvalid       AuditErrorCode = "token_invalid"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrIdentityProvider   AuditErrorCode = "identity_provider_rejected"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	phone string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		At:        time.Now().UTC(),
		Type:      eventType,
		UserID:    userID,
		Phone:     validate.Mask(phone),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, phone string, metadataBuilder func() map[string]string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventOTPRateLimited, false, "", phone, ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidPhone),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrDisposableEmail),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrSamePhone),
		errors.Is(err, ErrInvalidAge),
		errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrAlreadyRegistered):
		return auditErrAlreadyRegistered
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountSuspended):
		return auditErrAccountSuspended
	case errors.Is(err, ErrOTPNotFound):
		return auditErrCodeNotFound
	case errors.Is(err, ErrOTPExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrOTPMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrSMSDispatch):
		return auditErrSMSDispatch
	case errors.Is(err, ErrStepTokenInvalid):
		return auditErrStepToken
	case errors.Is(err, ErrPendingNotFound):
		return auditErrPendingNotFound
	case errors.Is(err, ErrPendingExpired):
		return auditErrPendingExpired
	case errors.Is(err, ErrPendingConsumed):
		return auditErrPendingConsumed
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrIdentityProvider):
		return auditErrIdentityProvider
	case errors.Is(err, ErrIdentityProviderUnavailable),
		errors.Is(err, ErrRedisUnavailable),
		errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
