package elderauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/eldernest/elderauth/internal/validate"
)

// PhoneLoginStart describes the phoneloginstart operation and its observable behavior.
//
// PhoneLoginStart may return an error when input validation, dependency calls, or security checks fail.
// PhoneLoginStart does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) PhoneLoginStart(ctx context.Context, rawPhone, countryCode string) (string, error) {
	phone, err := validate.Phone(rawPhone, countryCode)
	if err != nil {
		return "", ErrInvalidPhone
	}

	user, err := e.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventLoginFailure, false, "", phone, ErrUserNotFound, nil)
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.checkLockout(ctx, user); err != nil {
		return "", err
	}

	meta := LoginMeta{Client: e.clientMeta(ctx), UserID: user.ID}
	if _, err := e.issueOTP(ctx, phone, meta); err != nil {
		return "", err
	}

	return validate.Display(phone), nil
}

// PhoneLoginVerify describes the phoneloginverify operation and its observable behavior.
//
// PhoneLoginVerify may return an error when input validation, dependency calls, or security checks fail.
// PhoneLoginVerify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) PhoneLoginVerify(ctx context.Context, rawPhone, countryCode, code string) (*AuthResponse, error) {
	phone, err := validate.Phone(rawPhone, countryCode)
	if err != nil {
		return nil, ErrInvalidPhone
	}

	user, err := e.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.checkLockout(ctx, user); err != nil {
		return nil, err
	}

	if _, err := e.verifyOTP(ctx, phone, PurposeLogin, code); err != nil {
		// Only an actual wrong code counts toward account lockout. Missing
		// or expired codes are request-flow problems, not credential guesses.
		if errors.Is(err, ErrOTPMismatch) {
			e.recordLoginFailure(ctx, user)
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, phone, err, nil)
		return nil, err
	}

	e.recordLoginSuccess(ctx, user)

	resp, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, phone, nil, func() map[string]string {
		return map[string]string{"method": "phone"}
	})

	return resp, nil
}
