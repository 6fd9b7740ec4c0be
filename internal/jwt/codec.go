// Package jwt issues and verifies the compact session credential returned by
// login and OAuth callbacks. Tokens are HS256-signed; verification needs only
// the process-wide secret, no store round-trip.
package jwt

import (
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Lifetime is how long an issued session token stays valid.
const Lifetime = 7 * 24 * time.Hour

// Claims is the full claim set carried by a session token.
type Claims struct {
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies session tokens with a single shared secret.
type Codec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret, lifetime: Lifetime, now: time.Now}
}

// Encode signs claims for userID/email. iat is now, exp is now + lifetime.
func (c *Codec) Encode(userID, email string) (string, time.Time, error) {
	now := c.now().UTC()
	exp := now.Add(c.lifetime)
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	})
	signed, err := tk.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Decode verifies signature and expiry and returns the claims, or nil for
// anything invalid: wrong segment count, bad signature, expired, bad alg,
// malformed payload. It never returns an error; an invalid token and a
// missing token look the same to the caller.
func (c *Codec) Decode(token string) *Claims {
	tk, err := jwtv5.Parse(token,
		func(t *jwtv5.Token) (any, error) { return c.secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithTimeFunc(c.now),
	)
	if err != nil || !tk.Valid {
		return nil
	}
	mc, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil
	}
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return nil
	}
	email, _ := mc["email"].(string)
	out := &Claims{Subject: sub, Email: email}
	if iat, ok := mc["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if exp, ok := mc["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return out
}
