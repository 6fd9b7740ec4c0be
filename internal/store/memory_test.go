package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u := &User{Email: "Alice@Example.com", DisplayName: "Alice"}
	require.NoError(t, m.Create(ctx, u))
	require.NotEmpty(t, u.ID)

	// email index is case-insensitive exact match
	got, err := m.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	got, err = m.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", got.DisplayName)

	_, err = m.FindByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_CreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, &User{Email: "a@example.com"}))
	require.ErrorIs(t, m.Create(ctx, &User{Email: "A@example.com"}), ErrConflict)
}

func TestMemory_UpdatePartial(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := &User{Email: "a@example.com", DisplayName: "A", PasswordHash: "h1"}
	require.NoError(t, m.Create(ctx, u))

	verified := true
	require.NoError(t, m.Update(ctx, u.ID, Patch{EmailVerified: &verified}))

	got, err := m.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.EmailVerified)
	// untouched fields survive
	require.Equal(t, "A", got.DisplayName)
	require.Equal(t, "h1", got.PasswordHash)

	require.ErrorIs(t, m.Update(ctx, "nope", Patch{}), ErrNotFound)
}

func TestMemory_CopiesAreReturned(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := &User{Email: "a@example.com", DisplayName: "A"}
	require.NoError(t, m.Create(ctx, u))

	got, _ := m.FindByID(ctx, u.ID)
	got.DisplayName = "mutated"

	again, _ := m.FindByID(ctx, u.ID)
	require.Equal(t, "A", again.DisplayName)
}
