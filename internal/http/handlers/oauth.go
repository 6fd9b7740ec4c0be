package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/astralhq/identity/internal/app"
	httpx "github.com/astralhq/identity/internal/http"
	"github.com/astralhq/identity/internal/metrics"
	"github.com/astralhq/identity/internal/oauth"
	"github.com/astralhq/identity/internal/observability/logger"
	"github.com/astralhq/identity/internal/store"
)

// OAuthHandler drives the authorization-code flow: redirect out on
// /oauth/authorize, finish on /oauth/callback. Which adapter handles the
// callback is recovered from the state parameter, not from a session.
type OAuthHandler struct {
	C        *app.Container
	BaseURL  string
	LoginURL string
}

func (h *OAuthHandler) Register(r chi.Router) {
	r.Get("/oauth/authorize", h.authorize)
	r.Get("/oauth/callback", h.callback)
	// Apple posts the callback (response_mode=form_post)
	r.Post("/oauth/callback", h.callback)
}

func (h *OAuthHandler) redirectURI() string {
	return strings.TrimRight(h.BaseURL, "/") + "/oauth/callback"
}

func (h *OAuthHandler) authorize(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("provider")
	p, ok := h.C.Providers.Get(name)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "unknown_provider", "provider must be one of the configured adapters")
		return
	}

	st, err := oauth.NewState(p.Name())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	if err := h.C.Nonces.Issue(r.Context(), st); err != nil {
		logger.Named("oauth").Error("nonce store", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}

	target, err := p.AuthorizeURL(h.redirectURI(), st.Encode())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// loginRedirect sends the browser back to the application's login page with
// either an error code or a token. Upstream detail never leaks into the
// query string.
func (h *OAuthHandler) loginRedirect(w http.ResponseWriter, r *http.Request, params url.Values) {
	u, err := url.Parse(h.LoginURL)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func (h *OAuthHandler) failRedirect(w http.ResponseWriter, r *http.Request, code string) {
	h.loginRedirect(w, r, url.Values{"error": {code}})
}

func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	// Apple arrives as a form post, Google/Facebook as query params.
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.failRedirect(w, r, "invalid_callback")
			return
		}
	}
	code := r.FormValue("code")
	rawState := r.FormValue("state")
	if upstream := r.FormValue("error"); upstream != "" {
		// user denied, or the provider refused; both sanitized
		h.failRedirect(w, r, "provider_denied")
		return
	}
	if code == "" || rawState == "" {
		h.failRedirect(w, r, "invalid_callback")
		return
	}

	st, err := oauth.ParseState(rawState)
	if err != nil {
		h.failRedirect(w, r, "invalid_state")
		return
	}
	if !h.C.Nonces.Consume(r.Context(), st) {
		// replayed, expired, or never issued here
		h.failRedirect(w, r, "invalid_state")
		return
	}
	p, ok := h.C.Providers.Get(st.Provider)
	if !ok {
		h.failRedirect(w, r, "invalid_state")
		return
	}

	log := logger.Named("oauth").With(zap.String("provider", p.Name()))

	// single attempt: the code is single-use and expires in seconds
	tk, err := p.ExchangeCode(r.Context(), code, h.redirectURI())
	if err != nil {
		log.Warn("code exchange failed", zap.Error(err))
		metrics.OAuthExchanges.WithLabelValues(p.Name(), "exchange_failed").Inc()
		h.failRedirect(w, r, "exchange_failed")
		return
	}
	profile, err := p.FetchProfile(r.Context(), tk)
	if err != nil {
		log.Warn("profile fetch failed", zap.Error(err))
		metrics.OAuthExchanges.WithLabelValues(p.Name(), "profile_failed").Inc()
		h.failRedirect(w, r, "profile_failed")
		return
	}

	u, created, err := h.resolveUser(r, profile)
	if err != nil {
		log.Error("user resolve", zap.Error(err))
		metrics.OAuthExchanges.WithLabelValues(p.Name(), "store_failed").Inc()
		h.failRedirect(w, r, "internal")
		return
	}

	token, _, err := h.C.Codec.Encode(u.ID, u.Email)
	if err != nil {
		h.failRedirect(w, r, "internal")
		return
	}
	metrics.OAuthExchanges.WithLabelValues(p.Name(), "ok").Inc()
	metrics.TokensIssued.WithLabelValues("oauth").Inc()

	params := url.Values{"token": {token}}
	if created {
		params.Set("needs_profile", "1")
	}
	h.loginRedirect(w, r, params)
}

// resolveUser links the fetched profile to an existing account by email, or
// creates one. Nothing is written until exchange and fetch both succeeded.
func (h *OAuthHandler) resolveUser(r *http.Request, p *oauth.Profile) (*store.User, bool, error) {
	ctx := r.Context()
	u, err := h.C.Store.FindByEmail(ctx, p.Email)
	if err == nil {
		patch := store.Patch{}
		if u.Provider == "" {
			// first federated login on a password account: link it
			patch.Provider = &p.Provider
			patch.ProviderID = &p.ProviderID
		}
		if !u.EmailVerified && p.EmailVerified {
			v := true
			patch.EmailVerified = &v
		}
		if u.AvatarURL == "" && p.AvatarURL != "" {
			patch.AvatarURL = &p.AvatarURL
		}
		if patch != (store.Patch{}) {
			if err := h.C.Store.Update(ctx, u.ID, patch); err != nil {
				return nil, false, err
			}
		}
		return u, false, nil
	}
	if err != store.ErrNotFound {
		return nil, false, err
	}

	u = &store.User{
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		DisplayName:   p.DisplayName,
		Provider:      p.Provider,
		ProviderID:    p.ProviderID,
		AvatarURL:     p.AvatarURL,
	}
	if err := h.C.Store.Create(ctx, u); err != nil {
		if err == store.ErrConflict {
			// raced with a concurrent first login; the row exists now
			if existing, ferr := h.C.Store.FindByEmail(ctx, p.Email); ferr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	return u, true, nil
}
