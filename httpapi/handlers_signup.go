package httpapi

import (
	"net/http"

	elderauth "github.com/eldernest/elderauth"
)

type phoneRequest struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"countryCode"`
}

type phoneCodeRequest struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"countryCode"`
	OTP         string `json:"otp"`
}

func (s *Server) handleElderSignupStep1(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	display, err := s.engine.ElderSignupStep1(r.Context(), req.Phone, req.CountryCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Phone   string `json:"phone"`
	}{true, "verification code sent", display})
}

func (s *Server) handleElderSignupStep2(w http.ResponseWriter, r *http.Request) {
	var req phoneCodeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	token, err := s.engine.ElderSignupStep2(r.Context(), req.Phone, req.CountryCode, req.OTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success           bool   `json:"success"`
		VerificationToken string `json:"verificationToken"`
	}{true, token})
}

func (s *Server) handleElderSignupStep3(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone             string `json:"phone"`
		CountryCode       string `json:"countryCode"`
		FullName          string `json:"fullName"`
		Age               int    `json:"age"`
		FamilyPhone       string `json:"familyPhone"`
		FamilyCountryCode string `json:"familyCountryCode"`
		FamilyRelation    string `json:"familyRelation"`
		VerificationToken string `json:"verificationToken"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.ElderSignupStep3(r.Context(), elderauth.ElderSignupStep3Input{
		Phone:             req.Phone,
		CountryCode:       req.CountryCode,
		FullName:          req.FullName,
		Age:               req.Age,
		FamilyPhone:       req.FamilyPhone,
		FamilyCountryCode: req.FamilyCountryCode,
		FamilyRelation:    req.FamilyRelation,
		VerificationToken: req.VerificationToken,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success             bool   `json:"success"`
		PendingConnectionID string `json:"pendingConnectionId"`
		FamilyPhoneDisplay  string `json:"familyPhoneDisplay"`
	}{true, res.PendingID, res.FamilyPhoneDisplay})
}

func (s *Server) handleElderSignupStep4(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PendingConnectionID string `json:"pendingConnectionId"`
		OTP                 string `json:"otp"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.ElderSignupStep4(r.Context(), req.PendingConnectionID, req.OTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeAuthResponse(w, res)
}

func (s *Server) handleFamilySignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		FullName    string `json:"fullName"`
		Phone       string `json:"phone"`
		CountryCode string `json:"countryCode"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.FamilySignup(r.Context(), elderauth.FamilySignupInput{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		Phone:       req.Phone,
		CountryCode: req.CountryCode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeAuthResponse(w, res)
}

// writeAuthResponse renders the shared login/signup success envelope.
func writeAuthResponse(w http.ResponseWriter, res *elderauth.AuthResponse) {
	writeJSON(w, http.StatusOK, struct {
		Success      bool               `json:"success"`
		User         elderauth.UserView `json:"user"`
		AccessToken  string             `json:"accessToken"`
		RefreshToken string             `json:"refreshToken"`
		ExpiresIn    int64              `json:"expiresIn"`
		IsNewUser    bool               `json:"isNewUser,omitempty"`
	}{true, res.User, res.AccessToken, res.RefreshToken, res.ExpiresIn, res.IsNewUser})
}
