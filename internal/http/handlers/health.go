package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/astralhq/identity/internal/app"
	httpx "github.com/astralhq/identity/internal/http"
)

type HealthHandler struct {
	C *app.Container
}

func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/healthz", h.healthz)
}

func (h *HealthHandler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.C.Store.Ping(ctx); err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
		return
	}
	if err := h.C.Cache.Ping(ctx); err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "cache unavailable"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
