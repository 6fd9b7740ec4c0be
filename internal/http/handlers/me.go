package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/astralhq/identity/internal/app"
	httpx "github.com/astralhq/identity/internal/http"
	"github.com/astralhq/identity/internal/store"
)

// MeHandler resolves the bearer token back to a profile. It is the one
// read path that exercises token verification end to end.
type MeHandler struct {
	C *app.Container
}

func (h *MeHandler) Register(r chi.Router) {
	r.Get("/me", h.me)
}

type meResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name"`
	Provider      string `json:"provider,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

func (h *MeHandler) me(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || raw == "" {
		genericTokenFailure(w)
		return
	}
	claims := h.C.Codec.Decode(raw)
	if claims == nil {
		// expired, tampered, absent: all the same to the caller
		genericTokenFailure(w)
		return
	}
	u, err := h.C.Store.FindByID(r.Context(), claims.Subject)
	if err != nil {
		if err == store.ErrNotFound {
			genericTokenFailure(w)
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.DisplayName,
		Provider:      u.Provider,
		AvatarURL:     u.AvatarURL,
	})
}

func genericTokenFailure(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "")
}
