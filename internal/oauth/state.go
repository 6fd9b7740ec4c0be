package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/astralhq/identity/internal/cache"
)

// State rides opaquely through the provider redirect. It names the adapter to
// use on callback (so no server-side session is needed for routing) plus a
// fresh nonce.
type State struct {
	Provider string
	Nonce    string // hex
}

const nonceBytes = 16

// NewState generates a state with a fresh random nonce.
func NewState(provider string) (State, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return State{}, err
	}
	return State{Provider: provider, Nonce: hex.EncodeToString(b)}, nil
}

// Encode serializes as "<provider>:<nonce-hex>".
func (s State) Encode() string { return s.Provider + ":" + s.Nonce }

// ParseState splits a callback state value. Both halves must be present.
func ParseState(raw string) (State, error) {
	provider, nonce, ok := strings.Cut(raw, ":")
	if !ok || provider == "" || nonce == "" {
		return State{}, errors.New("oauth: malformed state")
	}
	if _, err := hex.DecodeString(nonce); err != nil {
		return State{}, errors.New("oauth: malformed state nonce")
	}
	return State{Provider: provider, Nonce: nonce}, nil
}

// NonceTTL bounds how long an authorize redirect may take to come back.
const NonceTTL = 10 * time.Minute

// Nonces binds issued nonces to a server-side record so the callback can
// verify the state actually originated here, single use.
type Nonces struct {
	Cache cache.Client
}

func (n *Nonces) key(s State) string {
	return fmt.Sprintf("oauth:nonce:%s:%s", s.Provider, s.Nonce)
}

// Issue records a freshly generated state.
func (n *Nonces) Issue(ctx context.Context, s State) error {
	return n.Cache.Set(ctx, n.key(s), "1", NonceTTL)
}

// Consume checks and burns the nonce. A second consume of the same state, or
// a state this process never issued, returns false.
func (n *Nonces) Consume(ctx context.Context, s State) bool {
	_, err := n.Cache.GetDelete(ctx, n.key(s))
	return err == nil
}
