package jwt

import (
	"strings"
	"testing"
	"time"
)

var secret = []byte("test-secret-please-rotate")

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := NewCodec(secret)
	tok, exp, err := c.Encode("u-123", "alice@example.com")
	if err != nil {
		t.Fatalf("Encode err: %v", err)
	}
	if time.Until(exp) < 6*24*time.Hour {
		t.Fatalf("expiry too soon: %v", exp)
	}
	got := c.Decode(tok)
	if got == nil {
		t.Fatal("Decode returned nil for a fresh token")
	}
	if got.Subject != "u-123" || got.Email != "alice@example.com" {
		t.Fatalf("claims mismatch: %+v", got)
	}
	if got.ExpiresAt.Sub(got.IssuedAt) != Lifetime {
		t.Fatalf("exp-iat = %v, want %v", got.ExpiresAt.Sub(got.IssuedAt), Lifetime)
	}
}

func TestDecode_WireShape(t *testing.T) {
	c := NewCodec(secret)
	tok, _, err := c.Encode("u-123", "a@b.c")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("want 3 segments, got %d", len(parts))
	}
	for i, p := range parts {
		if p == "" {
			t.Fatalf("segment %d empty", i)
		}
	}
}

func TestDecode_TamperedPayload(t *testing.T) {
	c := NewCodec(secret)
	tok, _, err := c.Encode("u-123", "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(tok, ".")
	payload := []byte(parts[1])
	// flip every position in turn; any single change must invalidate
	for i := range payload {
		orig := payload[i]
		if payload[i] == 'A' {
			payload[i] = 'B'
		} else {
			payload[i] = 'A'
		}
		bad := parts[0] + "." + string(payload) + "." + parts[2]
		if c.Decode(bad) != nil {
			t.Fatalf("tampered token accepted (pos %d)", i)
		}
		payload[i] = orig
	}
}

func TestDecode_SignatureFromOtherToken(t *testing.T) {
	c := NewCodec(secret)
	tok1, _, _ := c.Encode("u-1", "a@example.com")
	tok2, _, _ := c.Encode("u-2", "b@example.com")
	p1 := strings.Split(tok1, ".")
	p2 := strings.Split(tok2, ".")
	spliced := p1[0] + "." + p1[1] + "." + p2[2]
	if p1[1] != p2[1] && c.Decode(spliced) != nil {
		t.Fatal("payload/signature splice accepted")
	}
}

func TestDecode_Expired(t *testing.T) {
	c := NewCodec(secret)
	c.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	tok, _, err := c.Encode("u-123", "a@b.c")
	if err != nil {
		t.Fatal(err)
	}
	c.now = time.Now
	if c.Decode(tok) != nil {
		t.Fatal("token issued 8 days ago must be rejected")
	}
}

func TestDecode_Garbage(t *testing.T) {
	c := NewCodec(secret)
	for _, tok := range []string{"", "a", "a.b", "a.b.c", "..", "a.b.c.d"} {
		if c.Decode(tok) != nil {
			t.Fatalf("Decode(%q) != nil", tok)
		}
	}
}

func TestDecode_WrongSecret(t *testing.T) {
	tok, _, err := NewCodec(secret).Encode("u-123", "a@b.c")
	if err != nil {
		t.Fatal(err)
	}
	if NewCodec([]byte("another-secret")).Decode(tok) != nil {
		t.Fatal("token verified under a different secret")
	}
}
