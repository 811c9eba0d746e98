package elderauth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eldernest/elderauth/internal/validate"
)

// SMSSender hands one text message to a delivery carrier. Implementations
// must respect ctx cancellation and return an error whenever the message was
// not accepted for delivery; the engine treats any error as dispatch failure
// and rolls back the OTP record it just issued.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// FormatOTPMessage describes the formatotpmessage operation and its observable behavior.
//
// FormatOTPMessage may return an error when input validation, dependency calls, or security checks fail.
// FormatOTPMessage does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func FormatOTPMessage(purpose OTPPurpose, code string, ttl time.Duration) string {
	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	switch purpose {
	case PurposeSignup:
		return fmt.Sprintf("Your ElderNest signup code is %s. It expires in %d minutes. Never share this code.", code, minutes)
	case PurposeLogin:
		return fmt.Sprintf("Your ElderNest login code is %s. It expires in %d minutes. Never share this code.", code, minutes)
	case PurposeFamilyVerification:
		return fmt.Sprintf("A family member is registering you as their contact on ElderNest. Confirmation code: %s. It expires in %d minutes. If this is unexpected, ignore this message.", code, minutes)
	case PurposePasswordReset:
		return fmt.Sprintf("Your ElderNest password reset code is %s. It expires in %d minutes. Never share this code.", code, minutes)
	default:
		return fmt.Sprintf("Your ElderNest verification code is %s. It expires in %d minutes.", code, minutes)
	}
}

// LogSMSSender is the development stand-in for a carrier integration. It
// writes the recipient (masked) and the complete message, verification code
// included, to the log. Do not wire it in production.
type LogSMSSender struct {
	logger *zap.Logger
}

// NewLogSMSSender describes the newlogsmssender operation and its observable behavior.
//
// NewLogSMSSender may return an error when input validation, dependency calls, or security checks fail.
// NewLogSMSSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewLogSMSSender(logger *zap.Logger) *LogSMSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSMSSender{logger: logger}
}

// Send describes the send operation and its observable behavior.
//
// Send may return an error when input validation, dependency calls, or security checks fail.
// Send does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *LogSMSSender) Send(ctx context.Context, phone, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("sms dispatched",
		zap.String("phone", validate.Mask(phone)),
		zap.String("message", message),
	)
	return nil
}

func (e *Engine) dispatchSMS(ctx context.Context, phone, message string) error {
	if e.sms == nil {
		return fmt.Errorf("%w: sms sender", ErrNotConfigured)
	}

	sendCtx := ctx
	if e.config.SMS.Timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, e.config.SMS.Timeout)
		defer cancel()
	}

	if err := e.sms.Send(sendCtx, phone, message); err != nil {
		return fmt.Errorf("%w: %v", ErrSMSDispatch, err)
	}
	return nil
}
