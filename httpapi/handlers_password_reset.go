package httpapi

import (
	"net/http"
)

// handlePasswordResetRequest acknowledges every well-formed request the same
// way whether or not the phone maps to an account; the engine runs its decoy
// path for unknown phones so the responses are indistinguishable.
func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.RequestPasswordReset(r.Context(), req.Phone, req.CountryCode); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{true, "if an account exists for this phone, a reset code has been sent"})
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone       string `json:"phone"`
		CountryCode string `json:"countryCode"`
		OTP         string `json:"otp"`
		NewPassword string `json:"newPassword"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Phone, req.CountryCode, req.OTP, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{true, "password updated, all sessions signed out"})
}
