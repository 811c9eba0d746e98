package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	elderauth "github.com/eldernest/elderauth"
)

// errorBody is the uniform failure envelope. Rich fields are populated only
// when the underlying error carries them.
type errorBody struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
	LockedUntil       string `json:"lockedUntil,omitempty"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorStatus(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// decodeJSON reads a bounded JSON body into v. A malformed or oversized body
// is a caller error, reported as 400 with the decode already handled.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return false
	}
	return true
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
//
// Validation and OTP failures are 400 (caller-fixable), credential and token
// failures 401, lockout and suspension 403, missing records 404, throttling
// 429 with a Retry-After header. Dependency failures collapse to a generic
// 503; their detail stays in the server log unless ExposeErrorDetail is set.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *elderauth.RateLimitError
	if errors.As(err, &rle) {
		secs := int64(rle.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:             "too many requests, slow down",
			Code:              "rate_limited",
			RetryAfterSeconds: secs,
		})
		return
	}

	var le *elderauth.LockedError
	if errors.As(err, &le) {
		writeJSON(w, http.StatusForbidden, errorBody{
			Error:       "account temporarily locked",
			Code:        "account_locked",
			LockedUntil: le.Until.UTC().Format(time.RFC3339),
		})
		return
	}

	var me *elderauth.OTPMismatchError
	if errors.As(err, &me) {
		remaining := me.Remaining
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:             "incorrect verification code",
			Code:              "code_mismatch",
			RemainingAttempts: &remaining,
		})
		return
	}

	status, code, message := errorShape(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed on a dependency",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if s.exposeDetail {
			message = err.Error()
		}
	}
	writeErrorStatus(w, status, code, message)
}

func errorShape(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, elderauth.ErrInvalidPhone):
		return http.StatusBadRequest, "invalid_phone", "invalid phone number"
	case errors.Is(err, elderauth.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email", "invalid email address"
	case errors.Is(err, elderauth.ErrDisposableEmail):
		return http.StatusBadRequest, "disposable_email", "disposable email domains are not accepted"
	case errors.Is(err, elderauth.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password", "password does not meet the strength policy"
	case errors.Is(err, elderauth.ErrSamePhone):
		return http.StatusBadRequest, "same_phone", "elder and family phone must differ"
	case errors.Is(err, elderauth.ErrInvalidAge):
		return http.StatusBadRequest, "invalid_age", "invalid age"
	case errors.Is(err, elderauth.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", "invalid input"
	case errors.Is(err, elderauth.ErrAlreadyRegistered):
		return http.StatusBadRequest, "already_registered", "phone or email already registered"
	case errors.Is(err, elderauth.ErrStepTokenInvalid):
		return http.StatusBadRequest, "step_token_invalid", "phone verification token invalid, restart signup"
	case errors.Is(err, elderauth.ErrOTPNotFound):
		return http.StatusBadRequest, "code_not_found", "no active verification code, request a new one"
	case errors.Is(err, elderauth.ErrOTPExpired):
		return http.StatusBadRequest, "code_expired", "verification code expired, request a new one"
	case errors.Is(err, elderauth.ErrOTPMismatch):
		return http.StatusBadRequest, "code_mismatch", "incorrect verification code"
	case errors.Is(err, elderauth.ErrOTPAttemptsExceeded):
		return http.StatusBadRequest, "attempts_exceeded", "verification attempts exceeded, request a new code"
	case errors.Is(err, elderauth.ErrPendingExpired):
		return http.StatusBadRequest, "pending_expired", "connection request expired, restart signup"
	case errors.Is(err, elderauth.ErrPendingConsumed):
		return http.StatusBadRequest, "pending_consumed", "connection request already resolved"
	case errors.Is(err, elderauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, elderauth.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired", "token expired"
	case errors.Is(err, elderauth.ErrTokenRevoked):
		return http.StatusUnauthorized, "token_revoked", "session no longer valid, sign in again"
	case errors.Is(err, elderauth.ErrTokenInvalid):
		return http.StatusUnauthorized, "token_invalid", "token invalid"
	case errors.Is(err, elderauth.ErrIdentityProvider):
		return http.StatusUnauthorized, "identity_provider_rejected", "identity token rejected"
	case errors.Is(err, elderauth.ErrAccountLocked):
		return http.StatusForbidden, "account_locked", "account temporarily locked"
	case errors.Is(err, elderauth.ErrAccountSuspended):
		return http.StatusForbidden, "account_suspended", "account suspended"
	case errors.Is(err, elderauth.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "no account found"
	case errors.Is(err, elderauth.ErrPendingNotFound):
		return http.StatusNotFound, "pending_not_found", "connection request not found"
	case errors.Is(err, elderauth.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "too many requests, slow down"
	case errors.Is(err, elderauth.ErrSMSDispatch),
		errors.Is(err, elderauth.ErrRedisUnavailable),
		errors.Is(err, elderauth.ErrStoreUnavailable),
		errors.Is(err, elderauth.ErrIdentityProviderUnavailable):
		return http.StatusServiceUnavailable, "backend_unavailable", "service temporarily unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}
