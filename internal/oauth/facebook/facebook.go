// Package facebook implements OAuth 2.0 authentication with Facebook. Like
// GitHub-style providers there is no ID token; the profile is a separate
// Graph API call over the exchanged access token.
package facebook

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
	authEndpoint  = "https://www.facebook.com/v18.0/dialog/oauth"
	tokenEndpoint = "https://graph.facebook.com/v18.0/oauth/access_token"
	meEndpoint    = "https://graph.facebook.com/me"
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
		Scopes:       []string{"email", "public_profile"},
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *Adapter) Name() string { return "facebook" }

func (f *Adapter) AuthorizeURL(redirectURI, state string) (string, error) {
	u, err := url.Parse(authEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", f.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(f.Scopes, ","))
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (f *Adapter) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", f.ClientID)
	form.Set("client_secret", f.ClientSecret)
	form.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, "POST", tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var body struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("facebook token http %d: %s %s", resp.StatusCode, body.Error.Type, body.Error.Message)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("facebook token decode: %w", err)
	}
	return &oauth.Tokens{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		ExpiresIn:   tr.ExpiresIn,
	}, nil
}

// me is the Graph API profile shape for the fields requested below.
type me struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (f *Adapter) FetchProfile(ctx context.Context, tk *oauth.Tokens) (*oauth.Profile, error) {
	u, err := url.Parse(meEndpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("fields", "id,name,email,picture")
	q.Set("access_token", tk.AccessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facebook graph http %d", resp.StatusCode)
	}
	var m me
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("facebook graph decode: %w", err)
	}
	if m.Email == "" {
		return nil, oauth.ErrNoEmail
	}
	return &oauth.Profile{
		Email:       m.Email,
		DisplayName: m.Name,
		ProviderID:  m.ID,
		Provider:    f.Name(),
		// the Graph API does not expose a verified flag distinctly;
		// Facebook only returns confirmed emails
		EmailVerified: true,
		AvatarURL:     m.Picture.Data.URL,
	}, nil
}
