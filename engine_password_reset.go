package elderauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/eldernest/elderauth/internal"
	"github.com/eldernest/elderauth/internal/rate"
	"github.com/eldernest/elderauth/internal/validate"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The acknowledgement is identical whether or not the phone belongs to an
// account. For unknown or non-resettable phones the same rate-limit budget
// is consumed and the same code-generation work is burned, so neither the
// response shape nor its timing says which case occurred.
func (e *Engine) RequestPasswordReset(ctx context.Context, rawPhone, countryCode string) error {
	phone, err := validate.Phone(rawPhone, countryCode)
	if err != nil {
		return ErrInvalidPhone
	}

	user, err := e.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return e.passwordResetDecoy(ctx, phone, "user_not_found")
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.AccountStatus == StatusSuspended {
		return e.passwordResetDecoy(ctx, phone, "suspended")
	}

	meta := PasswordResetMeta{Client: e.clientMeta(ctx), UserID: user.ID}
	if _, err := e.issueOTP(ctx, phone, meta); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordReset, true, user.ID, phone, nil, func() map[string]string {
		return map[string]string{"stage": "request"}
	})

	return nil
}

// passwordResetDecoy walks the same externally visible path as a real
// request: the limiter is charged and a code is generated and hashed, then
// discarded. Only the audit stream records that nothing was sent.
func (e *Engine) passwordResetDecoy(ctx context.Context, phone, reason string) error {
	if retryAfter, err := e.rateLimiter.Allow(ctx, phone); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricOTPRateLimited)
			e.emitRateLimit(ctx, "otp_issue", phone, nil)
			return &RateLimitError{RetryAfter: retryAfter}
		}
		return mapRateErr(err)
	}

	code, err := internal.NewOTPCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	_ = internal.HashOTPCode(code)

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordReset, true, "", phone, nil, func() map[string]string {
		return map[string]string{
			"stage":            "request",
			"enumeration_safe": "true",
			"noop":             reason,
		}
	})

	return nil
}

// ConfirmPasswordReset describes the confirmpasswordreset operation and its observable behavior.
//
// ConfirmPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// ConfirmPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// On success every refresh token the user holds is revoked; a reset is a
// compromise-recovery action, so surviving sessions would defeat it.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawPhone, countryCode, code, newPassword string) error {
	phone, err := validate.Phone(rawPhone, countryCode)
	if err != nil {
		return ErrInvalidPhone
	}
	if err := validate.Password(newPassword, e.config.Password.MinLength); err != nil {
		return ErrWeakPassword
	}

	otpRecord, err := e.verifyOTP(ctx, phone, PurposePasswordReset, code)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return err
	}

	user, err := e.users.GetByID(ctx, otpRecord.Ref)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.AccountStatus == StatusSuspended {
		e.metricInc(MetricPasswordResetFailure)
		return ErrAccountSuspended
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return fmt.Errorf("hash password: %w", err)
	}
	if err := e.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.refresh.RevokeAllForUser(ctx, user.ID); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordReset, false, user.ID, phone, err, func() map[string]string {
			return map[string]string{"stage": "confirm", "reason": "revoke_all_failed"}
		})
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordReset, true, user.ID, phone, nil, func() map[string]string {
		return map[string]string{"stage": "confirm"}
	})

	return nil
}
