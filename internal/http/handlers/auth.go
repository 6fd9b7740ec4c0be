package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/astralhq/identity/internal/app"
	httpx "github.com/astralhq/identity/internal/http"
	"github.com/astralhq/identity/internal/metrics"
	"github.com/astralhq/identity/internal/observability/logger"
	"github.com/astralhq/identity/internal/security/password"
	"github.com/astralhq/identity/internal/store"
)

// AuthHandler serves the password-credential surface: login and register.
type AuthHandler struct {
	C         *app.Container
	BaseURL   string
	VerifyTTL time.Duration
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/register", h.register)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// genericAuthFailure is shared by every login failure mode so a caller cannot
// tell "no such account" from "wrong password".
func genericAuthFailure(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "email and password are required")
		return
	}

	if limited(w, r, h.C.LoginLimiter, "login:"+req.Email) {
		return
	}

	ctx := r.Context()
	u, err := h.C.Store.FindByEmail(ctx, req.Email)
	if err != nil {
		if err != store.ErrNotFound {
			logger.Named("auth").Error("login lookup", zap.Error(err))
			metrics.Logins.WithLabelValues("error").Inc()
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
			return
		}
		metrics.Logins.WithLabelValues("invalid").Inc()
		genericAuthFailure(w)
		return
	}
	if !h.C.CheckPassword(u.PasswordHash, req.Password) {
		metrics.Logins.WithLabelValues("invalid").Inc()
		genericAuthFailure(w)
		return
	}

	token, exp, err := h.C.Codec.Encode(u.ID, u.Email)
	if err != nil {
		logger.Named("auth").Error("token issue", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "issue_failed", "")
		return
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	metrics.TokensIssued.WithLabelValues("password").Inc()
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(exp).Seconds()),
	})
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	}
	if err := password.CheckPolicy(req.Password); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	}

	hash, err := password.Hash(h.C.Hash, req.Password)
	if err != nil {
		logger.Named("auth").Error("hash", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(req.Email, "@")
	}
	u := &store.User{
		Email:        req.Email,
		DisplayName:  name,
		PasswordHash: hash,
	}
	if err := h.C.Store.Create(r.Context(), u); err != nil {
		if err == store.ErrConflict {
			httpx.WriteError(w, http.StatusConflict, "email_taken", "an account with that email already exists")
			return
		}
		logger.Named("auth").Error("create user", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	metrics.Registrations.Inc()

	startEmailVerification(r.Context(), h.C, u, h.BaseURL, h.VerifyTTL)

	token, exp, err := h.C.Codec.Encode(u.ID, u.Email)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "issue_failed", "")
		return
	}
	metrics.TokensIssued.WithLabelValues("password").Inc()
	httpx.WriteJSON(w, http.StatusCreated, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(exp).Seconds()),
	})
}
