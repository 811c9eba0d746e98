package httpapi

import (
	"net/http"

	elderauth "github.com/eldernest/elderauth"
)

func (s *Server) handlePhoneLoginStart(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	display, err := s.engine.PhoneLoginStart(r.Context(), req.Phone, req.CountryCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Phone   string `json:"phone"`
	}{true, "login code sent", display})
}

func (s *Server) handlePhoneLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req phoneCodeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.PhoneLoginVerify(r.Context(), req.Phone, req.CountryCode, req.OTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeAuthResponse(w, res)
}

func (s *Server) handleEmailLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.EmailLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeAuthResponse(w, res)
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
		Role    string `json:"role"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.FederatedLogin(r.Context(), req.IDToken, elderauth.Role(req.Role))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeAuthResponse(w, res)
}
