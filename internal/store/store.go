// Package store defines the user-store contract the identity core consumes.
// The store is an external collaborator: the core never assumes a lookup
// succeeds and checks uniqueness itself where it matters.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// User is the record the core reads and writes. PasswordHash is empty for
// accounts created through a federated provider.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	DisplayName   string
	PasswordHash  string
	Provider      string // "", "google", "facebook", "apple"
	ProviderID    string
	AvatarURL     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	EmailVerified *bool
	DisplayName   *string
	PasswordHash  *string
	Provider      *string
	ProviderID    *string
	AvatarURL     *string
}

// Repository is the lookup/create/update surface. Email lookups are
// exact-match over a secondary index.
type Repository interface {
	Ping(ctx context.Context) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, id string, p Patch) error
	Close()
}
