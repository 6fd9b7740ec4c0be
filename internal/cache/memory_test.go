package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("t")

	if _, err := c.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("Get missing: %v, want ErrNotFound", err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	v, err := c.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("Get after Delete: %v, want ErrNotFound", err)
	}
}

func TestMemory_GetDeleteIsSingleUse(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")
	if err := c.Set(ctx, "nonce", "abc", time.Minute); err != nil {
		t.Fatal(err)
	}
	v, err := c.GetDelete(ctx, "nonce")
	if err != nil || v != "abc" {
		t.Fatalf("first GetDelete = %q, %v", v, err)
	}
	if _, err := c.GetDelete(ctx, "nonce"); err != ErrNotFound {
		t.Fatalf("second GetDelete: %v, want ErrNotFound", err)
	}
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")
	if err := c.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expired key still present: %v", err)
	}
}
