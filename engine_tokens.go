package elderauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eldernest/elderauth/internal"
	"github.com/eldernest/elderauth/jwt"
)

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The exchange requires both layers to agree: the signature must verify and
// the persisted record must exist, match the token hash, and be unrevoked
// and unexpired. Every successful exchange rotates: the old record is
// revoked and a new pair issued in one transaction. Presenting an
// already-rotated token is treated as theft and revokes every live token
// the user owns.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if jwt.IsExpired(err) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	rec, err := e.refresh.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash := internal.HashToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(hash)) != 1 || rec.UserID != claims.Subject {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}
	if rec.Revoked {
		return nil, e.handleRefreshReuse(ctx, rec)
	}
	if time.Now().After(rec.ExpiresAt) {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenExpired
	}

	user, err := e.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.checkLockout(ctx, user); err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	accessJTI := uuid.NewString()
	nextJTI := uuid.NewString()
	accessToken, err := e.jwtManager.CreateAccess(user.ID, string(user.Role), accessJTI)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	nextToken, err := e.jwtManager.CreateRefresh(user.ID, nextJTI)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	now := time.Now().UTC()
	next := &RefreshRecord{
		ID:        nextJTI,
		UserID:    user.ID,
		TokenHash: internal.HashToken(nextToken),
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.RefreshToken.TTL),
		ClientIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
	if err := e.refresh.Rotate(ctx, rec.ID, next); err != nil {
		switch {
		case errors.Is(err, ErrTokenRevoked):
			// Lost the rotation race: someone else spent this token first.
			return nil, e.handleRefreshReuse(ctx, rec)
		case errors.Is(err, ErrTokenInvalid):
			e.metricInc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventTokenRefreshed, true, user.ID, user.Phone, nil, func() map[string]string {
		return map[string]string{"rotated_from": rec.ID}
	})

	return &AuthResponse{
		User:         user.View(),
		AccessToken:  accessToken,
		RefreshToken: nextToken,
		ExpiresIn:    int64(e.config.AccessToken.TTL.Seconds()),
	}, nil
}

// handleRefreshReuse is the compromise response: a structurally valid token
// whose record was already spent means the token leaked, so every live
// token for the owner is revoked before the caller is refused.
func (e *Engine) handleRefreshReuse(ctx context.Context, rec *RefreshRecord) error {
	revoked, err := e.refresh.RevokeAllForUser(ctx, rec.UserID)
	if err != nil {
		e.log().Error("revoke-all after reuse failed",
			zap.String("user_id", rec.UserID),
			zap.Error(err),
		)
	}

	e.metricInc(MetricRefreshReuseDetected)
	e.metricInc(MetricRefreshFailure)
	e.log().Warn("refresh token reuse detected",
		zap.String("user_id", rec.UserID),
		zap.String("token_id", rec.ID),
		zap.Int("revoked", revoked),
	)
	e.emitAudit(ctx, auditEventTokenReuseDetected, false, rec.UserID, "", ErrTokenRevoked, func() map[string]string {
		return map[string]string{
			"token_id": rec.ID,
			"revoked":  strconv.Itoa(revoked),
		}
	})

	return ErrTokenRevoked
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Revoking an already-revoked token is a no-op success so client retries
// stay harmless.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		if jwt.IsExpired(err) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	rec, err := e.refresh.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash := internal.HashToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(hash)) != 1 || rec.UserID != claims.Subject {
		return ErrTokenInvalid
	}
	if rec.Revoked {
		return nil
	}

	if err := e.refresh.Revoke(ctx, rec.ID); err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, rec.UserID, "", nil, nil)

	return nil
}

// LogoutAll describes the logoutall operation and its observable behavior.
//
// LogoutAll may return an error when input validation, dependency calls, or security checks fail.
// LogoutAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The caller is responsible for having authenticated userID, normally via
// [Engine.AccessTokenClaims] on a bearer token. Returns how many live
// tokens were revoked.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id", ErrInvalidInput)
	}

	revoked, err := e.refresh.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(revoked)}
	})

	return revoked, nil
}

// AccessTokenClaims describes the accesstokenclaims operation and its observable behavior.
//
// AccessTokenClaims may return an error when input validation, dependency calls, or security checks fail.
// AccessTokenClaims does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// This is the zero-I/O verification path: signature, expiry, and type are
// checked but no store is consulted, so a suspension that post-dates the
// token is not visible here. Use [Engine.Me] when current account state
// matters.
func (e *Engine) AccessTokenClaims(accessToken string) (*jwt.AccessClaims, error) {
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		if jwt.IsExpired(err) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Me describes the me operation and its observable behavior.
//
// Me may return an error when input validation, dependency calls, or security checks fail.
// Me does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Me(ctx context.Context, accessToken string) (*UserView, error) {
	claims, err := e.AccessTokenClaims(accessToken)
	if err != nil {
		return nil, err
	}

	user, err := e.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.AccountStatus == StatusSuspended {
		return nil, ErrAccountSuspended
	}

	view := user.View()
	return &view, nil
}
