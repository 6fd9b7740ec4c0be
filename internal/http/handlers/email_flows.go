package handlers

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/astralhq/identity/internal/app"
	"github.com/astralhq/identity/internal/cache"
	"github.com/astralhq/identity/internal/email"
	httpx "github.com/astralhq/identity/internal/http"
	"github.com/astralhq/identity/internal/metrics"
	"github.com/astralhq/identity/internal/observability/logger"
	"github.com/astralhq/identity/internal/rate"
	"github.com/astralhq/identity/internal/security/password"
	tokens "github.com/astralhq/identity/internal/security/token"
	"github.com/astralhq/identity/internal/store"
)

// EmailFlowsHandler serves forgot/reset password and email verification.
// Both flows hand out an opaque single-use token by mail; only its sha256
// digest is kept server-side.
type EmailFlowsHandler struct {
	C         *app.Container
	BaseURL   string
	LoginURL  string
	ResetTTL  time.Duration
	VerifyTTL time.Duration
}

func (h *EmailFlowsHandler) Register(r chi.Router) {
	r.Post("/forgot-password", h.forgot)
	r.Post("/reset-password", h.reset)
	r.Get("/verify-email", h.verifyEmail)
}

// limited enforces a limiter and writes the 429 itself. A nil limiter allows
// everything.
func limited(w http.ResponseWriter, r *http.Request, l rate.Limiter, key string) bool {
	if l == nil {
		return false
	}
	res, err := l.Allow(r.Context(), key)
	if err != nil {
		// a broken limiter backend must not take auth down with it
		logger.Named("rate").Warn("limiter error", zap.Error(err))
		return false
	}
	if res.Allowed {
		return false
	}
	if res.RetryAfter > 0 {
		secs := int(math.Ceil(res.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
	return true
}

func resetKey(digest string) string  { return "reset:" + digest }
func verifyKey(digest string) string { return "verify:" + digest }

// startEmailVerification issues a verify token and mails the link. Failures
// never propagate into the calling flow.
func startEmailVerification(ctx context.Context, c *app.Container, u *store.User, baseURL string, ttl time.Duration) {
	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		logger.Named("email").Error("verify token", zap.Error(err))
		return
	}
	if err := c.Cache.Set(ctx, verifyKey(tokens.SHA256Base64URL(raw)), u.ID, ttl); err != nil {
		logger.Named("email").Error("verify token store", zap.Error(err))
		return
	}
	link := strings.TrimRight(baseURL, "/") + "/verify-email?token=" + url.QueryEscape(raw)
	subject, html, text := email.RenderVerify(email.LinkVars{
		DisplayName: u.DisplayName,
		Link:        link,
		TTL:         ttl.String(),
	})
	email.SendAsync(c.Mailer, u.Email, subject, html, text)
}

type forgotRequest struct {
	Email string `json:"email"`
}

// forgotAccepted is the byte-identical body returned whether or not the
// email exists; the endpoint must not leak which addresses have accounts.
var forgotAccepted = map[string]any{
	"ok":      true,
	"message": "If that email has an account, a reset link is on its way.",
}

func (h *EmailFlowsHandler) forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "email is required")
		return
	}
	if limited(w, r, h.C.ForgotLimiter, "forgot:"+req.Email) {
		return
	}

	ctx := r.Context()
	u, err := h.C.Store.FindByEmail(ctx, req.Email)
	if err == nil {
		raw, terr := tokens.GenerateOpaqueToken(32)
		if terr == nil {
			if cerr := h.C.Cache.Set(ctx, resetKey(tokens.SHA256Base64URL(raw)), u.ID, h.ResetTTL); cerr == nil {
				link := strings.TrimRight(h.BaseURL, "/") + "/reset-password?token=" + url.QueryEscape(raw)
				subject, html, text := email.RenderReset(email.LinkVars{
					DisplayName: u.DisplayName,
					Link:        link,
					TTL:         h.ResetTTL.String(),
				})
				email.SendAsync(h.C.Mailer, u.Email, subject, html, text)
			}
		}
	} else if err != store.ErrNotFound {
		logger.Named("auth").Error("forgot lookup", zap.Error(err))
	}

	// same response on every path
	httpx.WriteJSON(w, http.StatusOK, forgotAccepted)
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *EmailFlowsHandler) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "token is required")
		return
	}
	if err := password.CheckPolicy(req.Password); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	}

	ctx := r.Context()
	userID, err := h.C.Cache.GetDelete(ctx, resetKey(tokens.SHA256Base64URL(req.Token)))
	if err != nil {
		if err != cache.ErrNotFound {
			logger.Named("auth").Error("reset token lookup", zap.Error(err))
		}
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "reset link is invalid or expired")
		return
	}

	hash, err := password.Hash(h.C.Hash, req.Password)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	// the credential is replaced wholesale, never patched piecemeal
	if err := h.C.Store.Update(ctx, userID, store.Patch{PasswordHash: &hash}); err != nil {
		logger.Named("auth").Error("reset update", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}

	u, err := h.C.Store.FindByID(ctx, userID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	token, exp, err := h.C.Codec.Encode(u.ID, u.Email)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "issue_failed", "")
		return
	}
	metrics.TokensIssued.WithLabelValues("reset").Inc()
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(exp).Seconds()),
	})
}

func (h *EmailFlowsHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "token is required")
		return
	}
	ctx := r.Context()
	userID, err := h.C.Cache.GetDelete(ctx, verifyKey(tokens.SHA256Base64URL(raw)))
	if err != nil {
		http.Redirect(w, r, h.LoginURL+"?error=invalid_verification", http.StatusFound)
		return
	}
	verified := true
	if err := h.C.Store.Update(ctx, userID, store.Patch{EmailVerified: &verified}); err != nil {
		logger.Named("auth").Error("verify update", zap.Error(err))
		http.Redirect(w, r, h.LoginURL+"?error=verification_failed", http.StatusFound)
		return
	}
	http.Redirect(w, r, h.LoginURL+"?verified=1", http.StatusFound)
}
