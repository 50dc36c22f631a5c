package main

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
	"github.com/md-rashed-zaman/advisoryoffice/libs/auth"
	"github.com/md-rashed-zaman/advisoryoffice/libs/httpx"
)

// loginHandler exchanges the back-office credentials for an admin session token. There is
// a single admin account, configured through ADMIN_EMAIL and ADMIN_PASSWORD_HASH.
type loginHandler struct {
	signer       *auth.Signer
	logger       *slog.Logger
	email        string
	passwordHash string
	ttl          time.Duration
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *loginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if h.passwordHash == "" {
		httpx.WriteError(w, r, h.logger, apperr.Unauthorized("admin login is disabled"))
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	// The hash is always compared, also for an unknown email.
	pwErr := auth.VerifyPassword(h.passwordHash, req.Password)
	if email != strings.ToLower(h.email) || pwErr != nil {
		h.logger.Warn("admin login rejected", "email", email)
		httpx.WriteError(w, r, h.logger, apperr.Unauthorized("invalid email or password"))
		return
	}

	token, err := h.signer.AdminToken(email, h.ttl)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	h.logger.Info("admin login", "email", email)
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.ttl.Seconds()),
	})
}
