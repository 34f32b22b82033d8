package app

import (
	"errors"
	"net/http"

	"canvasvault/api/internal/store"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func userPayload(user store.User) map[string]any {
	return map[string]any{"id": user.ID, "email": user.Email}
}

func sessionPayload(sess *Session) any {
	if sess == nil {
		return nil
	}
	return map[string]any{
		"accessToken":  sess.AccessToken,
		"refreshToken": sess.RefreshToken,
		"tokenType":    "bearer",
		"expiresAt":    sess.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, action string) {
	switch {
	case action == "signup" && r.Method == http.MethodPost:
		s.handleSignup(w, r)
	case action == "login" && r.Method == http.MethodPost:
		s.handleLogin(w, r)
	case action == "verify-email" && r.Method == http.MethodPost:
		s.handleVerifyEmail(w, r)
	case action == "refresh" && r.Method == http.MethodPost:
		s.handleRefresh(w, r)
	case action == "logout" && r.Method == http.MethodPost:
		s.handleLogout(w, r)
	case action == "session" && r.Method == http.MethodGet:
		s.handleSession(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
		return
	}
	user, sess, _, err := s.service.Signup(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeAuthError(w, r, http.StatusBadRequest, err)
		return
	}
	payload := map[string]any{
		"user":    userPayload(user),
		"session": sessionPayload(sess),
	}
	if sess == nil {
		payload["message"] = "Check your email to confirm your account"
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
		return
	}
	user, sess, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeAuthError(w, r, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user), "session": sessionPayload(&sess)})
}

func (s *HTTPServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
		return
	}
	user, sess, err := s.service.VerifyEmail(r.Context(), body.Token)
	if err != nil {
		s.writeAuthError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user), "session": sessionPayload(&sess)})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid body", nil)
		return
	}
	user, sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.writeAuthError(w, r, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user), "session": sessionPayload(&sess)})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeStrict(r, &body)

	var sess Session
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			sess = parsed
		}
	}
	if err := s.service.Logout(r.Context(), sess, body.RefreshToken); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	empty := map[string]any{"user": nil, "session": nil}
	token := bearerToken(r)
	if token == "" || !s.service.AuthAvailable() {
		writeJSON(w, http.StatusOK, empty)
		return
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, empty)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{"id": sess.UserID, "email": sess.Email},
		"session": map[string]any{
			"accessToken": sess.AccessToken,
			"tokenType":   "bearer",
			"expiresAt":   sess.ExpiresAt.Unix(),
		},
	})
}

// writeAuthError keeps the mapped code but reports credential failures
// with the endpoint's status. Unavailable and server errors pass through.
func (s *HTTPServer) writeAuthError(w http.ResponseWriter, r *http.Request, status int, err error) {
	var domain *DomainError
	if errors.As(err, &domain) {
		s.writeServiceError(w, r, err)
		return
	}
	mapped, code, message, details := mapError(err)
	if mapped >= http.StatusInternalServerError {
		s.writeServiceError(w, r, err)
		return
	}
	writeError(w, status, code, message, details)
}
