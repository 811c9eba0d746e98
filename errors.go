package elderauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPhone is an exported constant or variable used by the authentication engine.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidEmail is an exported constant or variable used by the authentication engine.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrDisposableEmail is an exported constant or variable used by the authentication engine.
	ErrDisposableEmail = errors.New("disposable email domains are not accepted")
	// ErrWeakPassword is an exported constant or variable used by the authentication engine.
	ErrWeakPassword = errors.New("password does not meet the strength policy")
	// ErrSamePhone is an exported constant or variable used by the authentication engine.
	ErrSamePhone = errors.New("elder and family phone must differ")
	// ErrInvalidAge is an exported constant or variable used by the authentication engine.
	ErrInvalidAge = errors.New("invalid age")
	// ErrInvalidInput is an exported constant or variable used by the authentication engine.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyRegistered is an exported constant or variable used by the authentication engine.
	ErrAlreadyRegistered = errors.New("phone or email already registered")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountSuspended is an exported constant or variable used by the authentication engine.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrOTPNotFound is an exported constant or variable used by the authentication engine.
	ErrOTPNotFound = errors.New("no active verification code")
	// ErrOTPExpired is an exported constant or variable used by the authentication engine.
	ErrOTPExpired = errors.New("verification code expired")
	// ErrOTPMismatch is an exported constant or variable used by the authentication engine.
	ErrOTPMismatch = errors.New("incorrect verification code")
	// ErrOTPAttemptsExceeded is an exported constant or variable used by the authentication engine.
	ErrOTPAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("too many code requests")
	// ErrSMSDispatch is an exported constant or variable used by the authentication engine.
	ErrSMSDispatch = errors.New("sms dispatch failed")
	// ErrStepTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrStepTokenInvalid = errors.New("phone verification token invalid")
	// ErrPendingNotFound is an exported constant or variable used by the authentication engine.
	ErrPendingNotFound = errors.New("pending connection not found")
	// ErrPendingExpired is an exported constant or variable used by the authentication engine.
	ErrPendingExpired = errors.New("pending connection expired")
	// ErrPendingConsumed is an exported constant or variable used by the authentication engine.
	ErrPendingConsumed = errors.New("pending connection already resolved")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is an exported constant or variable used by the authentication engine.
	ErrTokenRevoked = errors.New("refresh token revoked")
	// ErrIdentityProvider is an exported constant or variable used by the authentication engine.
	ErrIdentityProvider = errors.New("identity provider rejected the token")
	// ErrIdentityProviderUnavailable is an exported constant or variable used by the authentication engine.
	ErrIdentityProviderUnavailable = errors.New("identity provider unavailable")
	// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrNotConfigured is an exported constant or variable used by the authentication engine.
	ErrNotConfigured = errors.New("engine dependency not configured")
	// ErrNilContext is an exported constant or variable used by the authentication engine.
	ErrNilContext = errors.New("nil context")
)

// RateLimitError is the throttled-issuance failure. It unwraps to
// [ErrRateLimited] and carries the wait until the window reopens so callers
// can surface a Retry-After.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error describes the error operation and its observable behavior.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many code requests, retry in %s", e.RetryAfter.Round(time.Second))
}

// Unwrap describes the unwrap operation and its observable behavior.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// LockedError is the locked-account failure. It unwraps to
// [ErrAccountLocked] and carries the unlock time.
type LockedError struct {
	Until time.Time
}

// Error describes the error operation and its observable behavior.
func (e *LockedError) Error() string {
	return fmt.Sprintf("account temporarily locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Unwrap describes the unwrap operation and its observable behavior.
func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// OTPMismatchError is the wrong-code failure. It unwraps to [ErrOTPMismatch]
// and carries the attempts remaining before the cap becomes terminal.
type OTPMismatchError struct {
	Remaining int
}

// Error describes the error operation and its observable behavior.
func (e *OTPMismatchError) Error() string {
	return fmt.Sprintf("incorrect verification code, %d attempts remaining", e.Remaining)
}

// Unwrap describes the unwrap operation and its observable behavior.
func (e *OTPMismatchError) Unwrap() error { return ErrOTPMismatch }
