package elderauth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// checkLockout gates a login attempt on the account's lockout state.
// A lock whose deadline has passed is cleared in place (self-healing read);
// no background unlock job exists. Suspended accounts never proceed.
func (e *Engine) checkLockout(ctx context.Context, user *User) error {
	if user.AccountStatus == StatusSuspended {
		return ErrAccountSuspended
	}
	if user.AccountStatus != StatusLocked {
		return nil
	}

	now := time.Now().UTC()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return &LockedError{Until: *user.LockedUntil}
	}

	cleared, err := e.users.ClearExpiredLock(ctx, user.ID, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if cleared {
		user.AccountStatus = StatusActive
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
		e.metricInc(MetricAccountUnlocked)
		e.emitAudit(ctx, auditEventAccountUnlocked, true, user.ID, user.Phone, nil, nil)
		return nil
	}

	// A lost race means another request already cleared or re-locked the row.
	// Proceed; the per-attempt failure bookkeeping still enforces the cap.
	user.AccountStatus = StatusActive
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	return nil
}

// recordLoginFailure counts one failed credential attempt. Crossing the
// threshold locks the account for the configured duration.
func (e *Engine) recordLoginFailure(ctx context.Context, user *User) {
	count, lockedUntil, err := e.users.RecordLoginFailure(ctx, user.ID,
		e.config.Lockout.MaxLoginAttempts, e.config.Lockout.LockDuration)
	if err != nil {
		e.log().Warn("login failure bookkeeping failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return
	}

	if lockedUntil != nil {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, false, user.ID, user.Phone, ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"failed_attempts": strconv.Itoa(count),
				"locked_until":    lockedUntil.UTC().Format(time.RFC3339),
			}
		})
	}
}

// recordLoginSuccess resets the failure counter and stamps last login.
// Bookkeeping failure must not turn a correct credential into a login error.
func (e *Engine) recordLoginSuccess(ctx context.Context, user *User) {
	now := time.Now().UTC()
	if err := e.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		e.log().Warn("login success bookkeeping failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	if user.AccountStatus == StatusLocked {
		user.AccountStatus = StatusActive
	}
}
