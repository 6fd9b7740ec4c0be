package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

type Params struct {
	N       int // CPU/memory cost, power of two
	R       int
	P       int
	SaltLen int
	KeyLen  int
}

var Default = Params{N: 16384, R: 8, P: 1, SaltLen: 16, KeyLen: 64}

// Hash returns "<salt_hex>:<digest_hex>" with a fresh random salt.
func Hash(p Params, plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("empty password")
	}
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk, err := scrypt.Key([]byte(plain), salt, p.N, p.R, p.P, p.KeyLen)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(dk), nil
}

// Verify re-derives the digest with the stored salt and compares in constant
// time. Any malformed stored value is a plain false, never an error.
func Verify(p Params, plain, stored string) bool {
	saltHex, digestHex, ok := strings.Cut(stored, ":")
	if !ok || saltHex == "" || digestHex == "" {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(digestHex)
	if err != nil || len(want) == 0 {
		return false
	}
	got, err := scrypt.Key([]byte(plain), salt, p.N, p.R, p.P, len(want))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

// MinLength is the only policy the registration surface enforces.
const MinLength = 8

func CheckPolicy(plain string) error {
	if len(plain) < MinLength {
		return fmt.Errorf("password must be at least %d characters", MinLength)
	}
	return nil
}
