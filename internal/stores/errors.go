package stores

import "errors"

var (
	// ErrOTPNotFound is an exported constant or variable used by the authentication engine.
	ErrOTPNotFound = errors.New("otp record not found")
	// ErrOTPExpired is an exported constant or variable used by the authentication engine.
	ErrOTPExpired = errors.New("otp record expired")
	// ErrOTPMismatch is an exported constant or variable used by the authentication engine.
	ErrOTPMismatch = errors.New("otp code mismatch")
	// ErrOTPAttemptsExceeded is an exported constant or variable used by the authentication engine.
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")

	// ErrPendingNotFound is an exported constant or variable used by the authentication engine.
	ErrPendingNotFound = errors.New("pending connection not found")
	// ErrPendingConflict is an exported constant or variable used by the authentication engine.
	ErrPendingConflict = errors.New("pending connection status conflict")

	// ErrStepTokenNotFound is an exported constant or variable used by the authentication engine.
	ErrStepTokenNotFound = errors.New("step token not found")

	// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
	ErrRedisUnavailable = errors.New("stores redis unavailable")
)
