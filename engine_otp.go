package elderauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/eldernest/elderauth/internal"
	"github.com/eldernest/elderauth/internal/rate"
	"github.com/eldernest/elderauth/internal/stores"
)

// issueOTP is the issuance path shared by every flow: rate-limit check,
// uniform code generation, hashed record write, purpose-formatted SMS
// dispatch. A failed dispatch rolls the record back so no live code exists
// that was never delivered.
func (e *Engine) issueOTP(ctx context.Context, phone string, meta OTPMetadata) (*OTPIssueResult, error) {
	purpose := meta.Purpose()

	retryAfter, err := e.rateLimiter.Allow(ctx, phone)
	if err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricOTPRateLimited)
			e.emitRateLimit(ctx, "otp_issue", phone, func() map[string]string {
				return map[string]string{"purpose": string(purpose)}
			})
			return nil, &RateLimitError{RetryAfter: retryAfter}
		}
		return nil, mapRateErr(err)
	}

	code, err := internal.NewOTPCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	var (
		ref    string
		client ClientMeta
	)
	switch m := meta.(type) {
	case SignupMeta:
		client = m.Client
	case LoginMeta:
		client, ref = m.Client, m.UserID
	case FamilyVerificationMeta:
		client, ref = m.Client, m.PendingID
	case PasswordResetMeta:
		client, ref = m.Client, m.UserID
	default:
		return nil, fmt.Errorf("unsupported otp metadata %T", meta)
	}

	now := time.Now()
	expiresAt := now.Add(e.config.OTP.TTL)
	record := &stores.OTPRecord{
		ID:          ksuid.New().String(),
		Purpose:     purposeWire(purpose),
		CodeHash:    internal.HashOTPCode(code),
		CreatedAt:   now.Unix(),
		ExpiresAt:   expiresAt.Unix(),
		MaxAttempts: uint16(e.config.OTP.MaxAttempts),
		IP:          client.IP,
		UserAgent:   client.UserAgent,
		Ref:         ref,
	}

	if err := e.otpStore.Save(ctx, phone, record, e.config.OTP.TTL+e.config.OTP.RetentionSlack); err != nil {
		return nil, mapOTPErr(err)
	}

	message := FormatOTPMessage(purpose, code, e.config.OTP.TTL)
	if err := e.dispatchSMS(ctx, phone, message); err != nil {
		if delErr := e.otpStore.Delete(ctx, phone, record.Purpose); delErr != nil {
			e.log().Warn("otp rollback failed",
				zap.String("otp_id", record.ID),
				zap.Error(delErr),
			)
		}
		e.metricInc(MetricOTPDispatchFailure)
		e.emitAudit(ctx, auditEventOTPFailed, false, "", phone, err, func() map[string]string {
			return map[string]string{
				"purpose": string(purpose),
				"stage":   "dispatch",
			}
		})
		return nil, err
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, "", phone, nil, func() map[string]string {
		return map[string]string{
			"purpose": string(purpose),
			"otp_id":  record.ID,
		}
	})

	return &OTPIssueResult{OTPID: record.ID, ExpiresAt: expiresAt}, nil
}

// verifyOTP runs one attempt against the live record for (purpose, phone).
// A wrong code returns [OTPMismatchError] with the remaining budget; the
// attempt cap is terminal even for a later correct code.
func (e *Engine) verifyOTP(ctx context.Context, phone string, purpose OTPPurpose, code string) (*stores.OTPRecord, error) {
	start := time.Now()
	defer e.observeVerify(start)

	record, remaining, err := e.otpStore.Consume(ctx, phone, purposeWire(purpose), internal.HashOTPCode(code))
	if err != nil {
		e.metricInc(MetricOTPFailed)
		if errors.Is(err, stores.ErrOTPMismatch) {
			e.emitAudit(ctx, auditEventOTPFailed, false, "", phone, ErrOTPMismatch, func() map[string]string {
				return map[string]string{
					"purpose":   string(purpose),
					"remaining": strconv.Itoa(remaining),
				}
			})
			return nil, &OTPMismatchError{Remaining: remaining}
		}
		mapped := mapOTPErr(err)
		e.emitAudit(ctx, auditEventOTPFailed, false, "", phone, mapped, func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		})
		return nil, mapped
	}

	e.metricInc(MetricOTPVerified)
	e.emitAudit(ctx, auditEventOTPVerified, true, "", phone, nil, func() map[string]string {
		return map[string]string{
			"purpose": string(purpose),
			"otp_id":  record.ID,
		}
	})

	return record, nil
}

// InvalidateOTPs describes the invalidateotps operation and its observable behavior.
//
// InvalidateOTPs may return an error when input validation, dependency calls, or security checks fail.
// InvalidateOTPs does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) InvalidateOTPs(ctx context.Context, phone string, purposes ...OTPPurpose) error {
	wire := make([]uint8, 0, len(purposes))
	for _, p := range purposes {
		if !p.Valid() {
			continue
		}
		wire = append(wire, purposeWire(p))
	}
	if len(purposes) > 0 && len(wire) == 0 {
		return nil
	}
	if err := e.otpStore.InvalidateAll(ctx, phone, wire...); err != nil {
		return mapOTPErr(err)
	}
	return nil
}
