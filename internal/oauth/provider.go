// Package oauth defines the provider-agnostic delegation protocol: build an
// authorization URL, exchange the callback code, fetch a normalized profile.
// Provider specifics live in the subpackages (google, facebook, apple).
package oauth

import (
	"context"
	"errors"
)

var (
	// ErrNoEmail: the provider returned no email; the caller cannot create
	// or link an account without one.
	ErrNoEmail = errors.New("oauth: provider returned no email")
)

// Tokens is what a provider's token endpoint returns for an authorization
// code. IDToken is only set by OIDC-style providers (Google, Apple).
type Tokens struct {
	AccessToken string
	IDToken     string
	TokenType   string
	ExpiresIn   int
}

// Profile is the common shape every provider adapter produces, whatever the
// wire format of the third party.
type Profile struct {
	Email         string
	DisplayName   string
	ProviderID    string
	Provider      string
	EmailVerified bool
	AvatarURL     string
}

// Provider is the capability every federated identity source implements.
// Exchange and fetch are single attempts: authorization codes are single-use
// and expire in seconds, so a failed call is terminal for the request.
type Provider interface {
	Name() string
	AuthorizeURL(redirectURI, state string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error)
	FetchProfile(ctx context.Context, tk *Tokens) (*Profile, error)
}

// Registry resolves the adapter named inside the state parameter on callback.
type Registry map[string]Provider

func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}
