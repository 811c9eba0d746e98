package elderauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Suspend describes the suspend operation and its observable behavior.
//
// Suspend may return an error when input validation, dependency calls, or security checks fail.
// Suspend does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Accounts are never hard-deleted; suspension is the terminal administrative
// state. Every live refresh token is revoked, including when the account was
// already suspended, so a retried call still cuts off any session that
// slipped through.
func (e *Engine) Suspend(ctx context.Context, userID string) error {
	revoked, err := e.setAccountStatus(ctx, userID, StatusSuspended, true)
	if err == nil {
		e.metricInc(MetricAccountStatusChanged)
	}
	e.emitAudit(ctx, auditEventAccountStatus, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{
			"action":  "suspend",
			"revoked": strconv.Itoa(revoked),
		}
	})
	return err
}

// Reactivate describes the reactivate operation and its observable behavior.
//
// Reactivate may return an error when input validation, dependency calls, or security checks fail.
// Reactivate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Reactivate(ctx context.Context, userID string) error {
	_, err := e.setAccountStatus(ctx, userID, StatusActive, false)
	if err == nil {
		e.metricInc(MetricAccountStatusChanged)
	}
	e.emitAudit(ctx, auditEventAccountStatus, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{"action": "reactivate"}
	})
	return err
}

func (e *Engine) setAccountStatus(ctx context.Context, userID string, status AccountStatus, revokeAll bool) (int, error) {
	if userID == "" {
		return 0, ErrUserNotFound
	}

	current, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if current.AccountStatus != status {
		if err := e.users.SetStatus(ctx, userID, status); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if !revokeAll {
		return 0, nil
	}
	revoked, err := e.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		e.log().Error("revoke-all on suspend failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return revoked, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return revoked, nil
}
