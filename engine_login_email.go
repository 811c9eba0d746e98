package elderauth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eldernest/elderauth/internal/validate"
)

// EmailLogin describes the emaillogin operation and its observable behavior.
//
// EmailLogin may return an error when input validation, dependency calls, or security checks fail.
// EmailLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Unknown email and wrong password produce the same [ErrInvalidCredentials];
// the distinguishing reason lives only in the audit stream.
func (e *Engine) EmailLogin(ctx context.Context, rawEmail, password string) (*AuthResponse, error) {
	email, err := validate.Email(rawEmail)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if password == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"method": "email", "reason": "empty_password"}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"method": "email", "reason": "user_not_found"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.checkLockout(ctx, user); err != nil {
		return nil, err
	}

	ok, verr := e.passwordHash.Verify(password, user.PasswordHash)
	if verr != nil || !ok {
		e.recordLoginFailure(ctx, user)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, user.Phone, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"method": "email", "reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}

	// Cost parameters tighten over time; a hash minted under weaker ones is
	// replaced here, while the plaintext is in hand. Failure never blocks
	// the login.
	if needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
		if upgraded, err := e.passwordHash.Hash(password); err == nil {
			if err := e.users.SetPasswordHash(ctx, user.ID, upgraded); err != nil {
				e.log().Warn("password hash upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
			} else {
				user.PasswordHash = upgraded
			}
		} else {
			e.log().Warn("password hash upgrade generation failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	e.recordLoginSuccess(ctx, user)

	resp, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, user.Phone, nil, func() map[string]string {
		return map[string]string{"method": "email"}
	})

	return resp, nil
}
