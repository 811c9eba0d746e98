package elderauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eldernest/elderauth/internal/validate"
)

// FamilySignupInput defines a public type used by elderauth APIs.
//
// FamilySignupInput instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type FamilySignupInput struct {
	Email       string
	Password    string
	FullName    string
	Phone       string
	CountryCode string
}

// FamilySignup describes the familysignup operation and its observable behavior.
//
// FamilySignup may return an error when input validation, dependency calls, or security checks fail.
// FamilySignup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) FamilySignup(ctx context.Context, in FamilySignupInput) (*AuthResponse, error) {
	email, err := validate.Email(in.Email)
	if err != nil {
		if errors.Is(err, validate.ErrDisposableDomain) {
			return nil, ErrDisposableEmail
		}
		return nil, ErrInvalidEmail
	}
	if err := validate.Password(in.Password, e.config.Password.MinLength); err != nil {
		return nil, ErrWeakPassword
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" || len(fullName) > 120 {
		return nil, fmt.Errorf("%w: full name", ErrInvalidInput)
	}

	// Phone is optional for family accounts; when present it is normalized
	// and stored unverified. A later phone login verifies it.
	phone := ""
	if strings.TrimSpace(in.Phone) != "" {
		phone, err = validate.Phone(in.Phone, in.CountryCode)
		if err != nil {
			return nil, ErrInvalidPhone
		}
	}

	if _, err := e.users.GetByEmail(ctx, email); err == nil {
		e.metricInc(MetricSignupDuplicate)
		e.emitAudit(ctx, auditEventSignupFamily, false, "", phone, ErrAlreadyRegistered, nil)
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.passwordHash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &User{
		ID:            uuid.NewString(),
		Role:          RoleFamily,
		Email:         email,
		PasswordHash:  hash,
		FullName:      fullName,
		Phone:         phone,
		AccountStatus: StatusActive,
		AuthProvider:  ProviderEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastLoginAt:   &now,
	}
	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			e.metricInc(MetricSignupDuplicate)
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	resp, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignupFamilySuccess)
	e.emitAudit(ctx, auditEventSignupFamily, true, user.ID, phone, nil, func() map[string]string {
		return map[string]string{"email_domain": email[strings.LastIndexByte(email, '@')+1:]}
	})

	return resp, nil
}
