package elderauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/eldernest/elderauth/internal/stores"
	"github.com/eldernest/elderauth/internal/validate"
)

// Elder ages outside this range are treated as input mistakes, not policy.
const (
	minElderAge = 40
	maxElderAge = 120
)

// ElderSignupStep3Input defines a public type used by elderauth APIs.
//
// ElderSignupStep3Input instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ElderSignupStep3Input struct {
	Phone             string
	CountryCode       string
	FullName          string
	Age               int
	FamilyPhone       string
	FamilyCountryCode string
	FamilyRelation    string
	VerificationToken string
}

// ElderSignupStep3Result defines a public type used by elderauth APIs.
//
// ElderSignupStep3Result instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ElderSignupStep3Result struct {
	PendingID          string
	FamilyPhoneDisplay string
}

// ElderSignupStep1 describes the eldersignupstep1 operation and its observable behavior.
//
// ElderSignupStep1 may return an error when input validation, dependency calls, or security checks fail.
// ElderSignupStep1 does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ElderSignupStep1(ctx context.Context, rawPhone, countryCode string) (string, error) {
	phone, err := validate.Phone(rawPhone, countryCode)
	if err != nil {
		return "", ErrInvalidPhone
	}

	// Registration is checked before the rate limiter so an already-registered
	// phone does not burn issuance budget on a request that can never succeed.
	if _, err := e.users.GetByPhone(ctx, phone); err == nil {
		e.metricInc(MetricSignupDuplicate)
		e.emitAudit(ctx, auditEventSignupElderStep1, false, "", phone, ErrAlreadyRegistered, nil)
		return "", ErrAlreadyRegistered
	} else if !errors.Is(err, ErrUserNotFound) {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.issueOTP(ctx, phone, SignupMeta{Client: e.clientMeta(ctx)}); err != nil {
		return "", err
	}

	e.metricInc(MetricSignupElderStarted)
	e.emitAudit(ctx, auditEventSignupElderStep1, true, "", phone, nil, nil)

	return validate.Display(phone), nil
}

// ElderSignupStep2 describes the eldersignupstep2 operation and its observable behavior.
//
// ElderSignupStep2 may return an error when input validation, dependency calls, or security checks fail.
// ElderSignupStep2 does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ElderSignupStep2(ctx context.Context, rawPhone, countryCode, code string) (string, error) {
	phone, err := validate.Phone(rawPhone, countryCode)
	if err != nil {
		return "", ErrInvalidPhone
	}

	if _, err := e.verifyOTP(ctx, phone, PurposeSignup, code); err != nil {
		return "", err
	}

	// The step token is both signed and stored: the signature binds it to
	// this elder phone, the Redis entry makes it single-use. Step 3 needs
	// both halves to pass.
	jti := uuid.NewString()
	signed, err := e.jwtManager.CreateStep(phone, jti)
	if err != nil {
		return "", fmt.Errorf("create step token: %w", err)
	}
	if err := e.stepTokens.Save(ctx, jti, phone, e.config.StepToken.TTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	e.metricInc(MetricSignupElderPhoneVerified)
	e.emitAudit(ctx, auditEventSignupElderStep2, true, "", phone, nil, nil)

	return signed, nil
}

// ElderSignupStep3 describes the eldersignupstep3 operation and its observable behavior.
//
// ElderSignupStep3 may return an error when input validation, dependency calls, or security checks fail.
// ElderSignupStep3 does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ElderSignupStep3(ctx context.Context, in ElderSignupStep3Input) (*ElderSignupStep3Result, error) {
	elderPhone, err := validate.Phone(in.Phone, in.CountryCode)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	familyPhone, err := validate.Phone(in.FamilyPhone, in.FamilyCountryCode)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	if elderPhone == familyPhone {
		return nil, ErrSamePhone
	}

	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" || len(fullName) > 120 {
		return nil, fmt.Errorf("%w: full name", ErrInvalidInput)
	}
	if in.Age < minElderAge || in.Age > maxElderAge {
		return nil, ErrInvalidAge
	}
	relation := strings.TrimSpace(in.FamilyRelation)
	if relation == "" || len(relation) > 60 {
		return nil, fmt.Errorf("%w: family relation", ErrInvalidInput)
	}

	stepJTI, err := e.consumeStepToken(ctx, in.VerificationToken, elderPhone)
	if err != nil {
		e.emitAudit(ctx, auditEventSignupElderStep3, false, "", elderPhone, err, nil)
		return nil, err
	}

	// Re-check: the phone may have registered between step 1 and now.
	if _, err := e.users.GetByPhone(ctx, elderPhone); err == nil {
		e.metricInc(MetricSignupDuplicate)
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, ErrUserNotFound) {
		e.restoreStepToken(ctx, stepJTI, elderPhone)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now()
	expiresAt := now.Add(e.config.Pending.TTL)
	record := &stores.PendingRecord{
		ID:             ksuid.New().String(),
		ElderPhone:     elderPhone,
		ElderName:      fullName,
		ElderAge:       in.Age,
		FamilyPhone:    familyPhone,
		FamilyRelation: relation,
		CreatedAt:      now.Unix(),
		ExpiresAt:      expiresAt.Unix(),
	}
	retention := e.config.Pending.TTL + e.config.Pending.RetentionSlack
	if err := e.pendingStore.Create(ctx, record, retention); err != nil {
		e.restoreStepToken(ctx, stepJTI, elderPhone)
		return nil, mapPendingErr(err)
	}

	meta := FamilyVerificationMeta{
		Client:    e.clientMeta(ctx),
		PendingID: record.ID,
	}
	if _, err := e.issueOTP(ctx, familyPhone, meta); err != nil {
		// No orphaned pending state: a connection whose family never got a
		// code is dead on arrival.
		if cancelErr := e.pendingStore.Cancel(ctx, record.ID); cancelErr != nil {
			e.log().Warn("pending rollback failed",
				zap.String("pending_id", record.ID),
				zap.Error(cancelErr),
			)
		}
		e.restoreStepToken(ctx, stepJTI, elderPhone)
		e.emitAudit(ctx, auditEventSignupElderStep3, false, "", elderPhone, err, func() map[string]string {
			return map[string]string{"pending_id": record.ID}
		})
		return nil, err
	}

	e.metricInc(MetricSignupElderPendingCreated)
	e.emitAudit(ctx, auditEventSignupElderStep3, true, "", elderPhone, nil, func() map[string]string {
		return map[string]string{"pending_id": record.ID}
	})

	return &ElderSignupStep3Result{
		PendingID:          record.ID,
		FamilyPhoneDisplay: validate.Mask(familyPhone),
	}, nil
}

// ElderSignupStep4 describes the eldersignupstep4 operation and its observable behavior.
//
// ElderSignupStep4 may return an error when input validation, dependency calls, or security checks fail.
// ElderSignupStep4 does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ElderSignupStep4(ctx context.Context, pendingID, code string) (*AuthResponse, error) {
	record, err := e.pendingStore.Get(ctx, pendingID)
	if err != nil {
		return nil, mapPendingErr(err)
	}

	switch record.Status {
	case stores.StatusPending:
	case stores.StatusExpired:
		e.emitAudit(ctx, auditEventSignupElderStep4, false, "", record.ElderPhone, ErrPendingExpired, nil)
		return nil, ErrPendingExpired
	default:
		return nil, ErrPendingConsumed
	}

	otpRecord, err := e.verifyOTP(ctx, record.FamilyPhone, PurposeFamilyVerification, code)
	if err != nil {
		return nil, err
	}
	// The live family code may belong to a newer pending record when the same
	// family phone vouches for two elders; a code from a different record
	// must not settle this one.
	if otpRecord.Ref != pendingID {
		return nil, ErrOTPNotFound
	}

	if err := e.pendingStore.MarkVerified(ctx, pendingID, otpRecord.ID); err != nil {
		return nil, mapPendingErr(err)
	}

	now := time.Now().UTC()
	elder := &User{
		ID:            uuid.NewString(),
		Role:          RoleElder,
		Phone:         record.ElderPhone,
		FullName:      record.ElderName,
		Age:           record.ElderAge,
		AccountStatus: StatusActive,
		AuthProvider:  ProviderPhone,
		PhoneVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastLoginAt:   &now,
	}
	if err := e.users.Create(ctx, elder); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			e.metricInc(MetricSignupDuplicate)
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// If the vouching family phone already has an account, both sides get
	// linked here; otherwise the family app claims the verified record after
	// its own signup.
	familyUID := ""
	if family, err := e.users.GetByPhone(ctx, record.FamilyPhone); err == nil {
		familyUID = family.ID
		if err := e.users.LinkAccounts(ctx, elder.ID, family.ID); err != nil {
			e.log().Warn("account link failed",
				zap.String("elder_id", elder.ID),
				zap.String("family_id", family.ID),
				zap.Error(err),
			)
		} else {
			elder.ConnectedFamily = append(elder.ConnectedFamily, family.ID)
		}
	} else if !errors.Is(err, ErrUserNotFound) {
		e.log().Warn("family lookup failed", zap.Error(err))
	}

	if err := e.pendingStore.AttachUsers(ctx, pendingID, elder.ID, familyUID); err != nil {
		e.log().Warn("pending attach failed",
			zap.String("pending_id", pendingID),
			zap.Error(err),
		)
	}

	resp, err := e.issueTokens(ctx, elder)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSignupElderCompleted)
	e.emitAudit(ctx, auditEventSignupElderStep4, true, elder.ID, elder.Phone, nil, func() map[string]string {
		return map[string]string{"pending_id": pendingID}
	})

	return resp, nil
}

// consumeStepToken checks both halves of the step-2 verification token: the
// signature must parse with the step secret, the embedded phone must match
// the elder phone submitted now, and the Redis entry must still exist (it is
// deleted on first use). Every failure collapses to [ErrStepTokenInvalid].
// On success it returns the token id so a later dependency failure in the
// same step can put the entry back.
func (e *Engine) consumeStepToken(ctx context.Context, token, elderPhone string) (string, error) {
	if token == "" {
		return "", ErrStepTokenInvalid
	}

	claims, err := e.jwtManager.ParseStep(token)
	if err != nil {
		return "", ErrStepTokenInvalid
	}
	if claims.Subject != elderPhone {
		return "", ErrStepTokenInvalid
	}

	phone, err := e.stepTokens.Consume(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, stores.ErrStepTokenNotFound) {
			return "", ErrStepTokenInvalid
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if phone != elderPhone {
		return "", ErrStepTokenInvalid
	}
	return claims.ID, nil
}

// restoreStepToken re-saves a consumed single-use entry after a dependency
// failure, so step 3 can be retried with the same token instead of forcing
// the elder back through steps 1-2. The signed half still bounds the
// token's overall lifetime.
func (e *Engine) restoreStepToken(ctx context.Context, jti, phone string) {
	if err := e.stepTokens.Save(ctx, jti, phone, e.config.StepToken.TTL); err != nil {
		e.log().Warn("step token restore failed",
			zap.String("token_id", jti),
			zap.Error(err),
		)
	}
}
