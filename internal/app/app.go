// Package app wires the identity core's collaborators into one container the
// handlers draw from.
package app

import (
	"github.com/astralhq/identity/internal/cache"
	"github.com/astralhq/identity/internal/email"
	"github.com/astralhq/identity/internal/jwt"
	"github.com/astralhq/identity/internal/oauth"
	"github.com/astralhq/identity/internal/rate"
	"github.com/astralhq/identity/internal/security/password"
	"github.com/astralhq/identity/internal/store"
)

type Container struct {
	Store     store.Repository
	Codec     *jwt.Codec
	Cache     cache.Client
	Providers oauth.Registry
	Nonces    *oauth.Nonces
	Mailer    email.Sender

	// Hash params; Default in prod, a cheap setting in tests.
	Hash password.Params

	// Per-endpoint limiters; nil disables limiting.
	LoginLimiter  rate.Limiter
	ForgotLimiter rate.Limiter
}

// CheckPassword verifies a candidate against a stored credential. A missing
// hash (federated-only account) is simply false.
func (c *Container) CheckPassword(stored, candidate string) bool {
	if stored == "" {
		return false
	}
	return password.Verify(c.Hash, candidate, stored)
}
