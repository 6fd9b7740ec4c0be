// Package google implements OAuth 2.0 authentication with Google. The profile
// comes from the userinfo endpoint over the exchanged access token.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/astralhq/identity/internal/oauth"
)

const (
	authEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	tokenEndpoint    = "https://oauth2.googleapis.com/token"
	userinfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
)

type Adapter struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	http *http.Client
}

func New(clientID, clientSecret string) *Adapter {
	return &Adapter{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{"openid", "email", "profile"},
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *Adapter) Name() string { return "google" }

func (g *Adapter) AuthorizeURL(redirectURI, state string) (string, error) {
	u, err := url.Parse(authEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", g.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(g.Scopes, " "))
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (g *Adapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", g.ClientID)
	form.Set("client_secret", g.ClientSecret)
	form.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, "POST", tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("google token http %d: %s %s", resp.StatusCode, body.Error, body.ErrorDescription)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("google token decode: %w", err)
	}
	return &oauth.Tokens{
		AccessToken: tr.AccessToken,
		IDToken:     tr.IDToken,
		TokenType:   tr.TokenType,
		ExpiresIn:   tr.ExpiresIn,
	}, nil
}

// userInfo is Google's userinfo shape, decoded once and mapped.
type userInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (g *Adapter) FetchProfile(ctx context.Context, tk *oauth.Tokens) (*oauth.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", userinfoEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tk.AccessToken)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo http %d", resp.StatusCode)
	}
	var ui userInfo
	if err := json.NewDecoder(resp.Body).Decode(&ui); err != nil {
		return nil, fmt.Errorf("google userinfo decode: %w", err)
	}
	if ui.Email == "" {
		return nil, oauth.ErrNoEmail
	}
	name := ui.Name
	if name == "" {
		name, _, _ = strings.Cut(ui.Email, "@")
	}
	return &oauth.Profile{
		Email:         ui.Email,
		DisplayName:   name,
		ProviderID:    ui.ID,
		Provider:      g.Name(),
		EmailVerified: ui.VerifiedEmail,
		AvatarURL:     ui.Picture,
	}, nil
}
