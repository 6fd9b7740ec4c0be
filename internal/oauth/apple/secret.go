package apple

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// Apple's token endpoint takes no static client secret; the client proves
// itself with a short-lived ES256 assertion signed by the developer key.

const (
	assertionAudience = "https://appleid.apple.com"
	// Apple caps client-secret validity at six months.
	assertionLifetime = 15777000 * time.Second
)

// SecretSigner builds the signed client assertion.
type SecretSigner struct {
	TeamID    string
	ServiceID string
	KeyID     string
	Key       *ecdsa.PrivateKey

	now func() time.Time
}

func NewSecretSigner(teamID, serviceID, keyID string, key *ecdsa.PrivateKey) *SecretSigner {
	return &SecretSigner{
		TeamID:    teamID,
		ServiceID: serviceID,
		KeyID:     keyID,
		Key:       key,
		now:       time.Now,
	}
}

// ParsePrivateKey decodes the PKCS#8 PEM blob Apple issues for the signing
// key (the .p8 download).
func ParsePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("apple: no PEM block in private key")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("apple: parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("apple: private key is not ECDSA")
	}
	if key.Curve.Params().BitSize != 256 {
		return nil, fmt.Errorf("apple: expected P-256 key, got %d bits", key.Curve.Params().BitSize)
	}
	return key, nil
}

// BuildAssertion signs header.payload with the developer key and appends the
// raw (r||s) signature, base64url-joined. Regenerated per exchange.
func (s *SecretSigner) BuildAssertion() (string, error) {
	now := s.now().UTC()

	header, err := json.Marshal(map[string]string{
		"alg": "ES256",
		"kid": s.KeyID,
	})
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]any{
		"iss": s.TeamID,
		"iat": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
		"aud": assertionAudience,
		"sub": s.ServiceID,
	})
	if err != nil {
		return "", err
	}

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload)

	digest := sha256.Sum256([]byte(signingInput))
	der, err := ecdsa.SignASN1(rand.Reader, s.Key, digest[:])
	if err != nil {
		return "", fmt.Errorf("apple: sign assertion: %w", err)
	}
	raw, err := derToRaw(der)
	if err != nil {
		return "", err
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(raw), nil
}
