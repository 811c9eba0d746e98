package httpapi

import (
	"net/http"

	elderauth "github.com/eldernest/elderauth"
)

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Rotation: the response always carries the replacement refresh token;
	// the one just presented is already revoked.
	writeJSON(w, http.StatusOK, struct {
		Success      bool   `json:"success"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	}{true, res.AccessToken, res.RefreshToken, res.ExpiresIn})
}

// handleLogout revokes the presented refresh token, or every session of the
// authenticated user when the body carries no token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ac, ok := AuthFromContext(r.Context())
	if !ok {
		writeErrorStatus(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	// An empty body is a valid logout-all request.
	if r.ContentLength != 0 {
		if !s.decodeJSON(w, r, &req) {
			return
		}
	}

	if req.RefreshToken != "" {
		if err := s.engine.Logout(r.Context(), req.RefreshToken); err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		if _, err := s.engine.LogoutAll(r.Context(), ac.Claims.Subject); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ac, ok := AuthFromContext(r.Context())
	if !ok {
		writeErrorStatus(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	view, err := s.engine.Me(r.Context(), ac.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool                `json:"success"`
		User    *elderauth.UserView `json:"user"`
	}{true, view})
}
