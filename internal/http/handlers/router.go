package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/astralhq/identity/internal/app"
	"github.com/astralhq/identity/internal/config"
	"github.com/astralhq/identity/internal/metrics"
)

// NewRouter assembles the full inbound surface.
func NewRouter(cfg *config.Config, c *app.Container) http.Handler {
	_ = metrics.Register(nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	auth := &AuthHandler{C: c, BaseURL: cfg.Server.BaseURL, VerifyTTL: cfg.Auth.VerifyTTL}
	flows := &EmailFlowsHandler{
		C:         c,
		BaseURL:   cfg.Server.BaseURL,
		LoginURL:  cfg.Server.LoginURL,
		ResetTTL:  cfg.Auth.ResetTTL,
		VerifyTTL: cfg.Auth.VerifyTTL,
	}
	oauthH := &OAuthHandler{C: c, BaseURL: cfg.Server.BaseURL, LoginURL: cfg.Server.LoginURL}
	me := &MeHandler{C: c}
	health := &HealthHandler{C: c}

	auth.Register(r)
	flows.Register(r)
	oauthH.Register(r)
	me.Register(r)
	health.Register(r)

	r.Method("GET", "/metrics", promhttp.Handler())

	return r
}
