package elderauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eldernest/elderauth/internal/validate"
)

// FederatedLogin describes the federatedlogin operation and its observable behavior.
//
// FederatedLogin may return an error when input validation, dependency calls, or security checks fail.
// FederatedLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Resolution order: by provider subject, then by verified email (which links
// the subject to the existing account), then account creation with the
// declared role. The response reports IsNewUser on the create path.
func (e *Engine) FederatedLogin(ctx context.Context, idToken string, declaredRole Role) (*AuthResponse, error) {
	if e.identity == nil {
		return nil, ErrNotConfigured
	}
	if idToken == "" {
		return nil, ErrIdentityProvider
	}

	claims, err := e.identity.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, ErrIdentityProvider) || errors.Is(err, ErrIdentityProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrIdentityProvider, err)
	}
	if claims.Subject == "" {
		return nil, ErrIdentityProvider
	}

	user, err := e.users.GetByProviderSubject(ctx, ProviderGoogle, claims.Subject)
	switch {
	case err == nil:
		return e.federatedExisting(ctx, user, false)
	case errors.Is(err, ErrUserNotFound):
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	email, err := validate.Email(claims.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: email", ErrIdentityProvider)
	}

	// An existing password account is only claimed when the provider vouches
	// for the email; an unverified claim must not take over someone's login.
	if claims.EmailVerified {
		user, err = e.users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			if err := e.users.SetProviderSubject(ctx, user.ID, ProviderGoogle, claims.Subject); err != nil {
				e.log().Warn("provider subject link failed", zap.String("user_id", user.ID), zap.Error(err))
			} else {
				user.ProviderSubject = claims.Subject
			}
			return e.federatedExisting(ctx, user, true)
		case errors.Is(err, ErrUserNotFound):
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if !declaredRole.Valid() {
		return nil, fmt.Errorf("%w: role", ErrInvalidInput)
	}

	now := time.Now().UTC()
	user = &User{
		ID:              uuid.NewString(),
		Role:            declaredRole,
		Email:           email,
		FullName:        claims.FullName,
		AccountStatus:   StatusActive,
		AuthProvider:    ProviderGoogle,
		ProviderSubject: claims.Subject,
		EmailVerified:   claims.EmailVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastLoginAt:     &now,
	}
	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	resp, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	resp.IsNewUser = true

	e.metricInc(MetricFederatedLoginNewUser)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, user.Phone, nil, func() map[string]string {
		return map[string]string{"method": "google", "is_new_user": "true"}
	})

	return resp, nil
}

func (e *Engine) federatedExisting(ctx context.Context, user *User, linked bool) (*AuthResponse, error) {
	if err := e.checkLockout(ctx, user); err != nil {
		return nil, err
	}

	e.recordLoginSuccess(ctx, user)

	resp, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, user.Phone, nil, func() map[string]string {
		meta := map[string]string{"method": "google"}
		if linked {
			meta["subject_linked"] = "true"
		}
		return meta
	})

	return resp, nil
}
