package password

import (
	"strings"
	"testing"
)

// Smaller cost so the suite stays fast; same shape as Default.
var testParams = Params{N: 1024, R: 8, P: 1, SaltLen: 16, KeyLen: 64}

func TestHashVerify_RoundTrip(t *testing.T) {
	h, err := Hash(testParams, "Secret123")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	if !Verify(testParams, "Secret123", h) {
		t.Fatalf("Verify should accept the original password")
	}
	if Verify(testParams, "Secret124", h) {
		t.Fatalf("Verify should reject a different password")
	}
}

func TestHash_FreshSaltPerCall(t *testing.T) {
	h1, err := Hash(testParams, "same-password")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Hash(testParams, "same-password")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatalf("two hashes of the same password must differ (salt reuse)")
	}
}

func TestHash_Format(t *testing.T) {
	h, err := Hash(testParams, "whatever")
	if err != nil {
		t.Fatal(err)
	}
	salt, digest, ok := strings.Cut(h, ":")
	if !ok {
		t.Fatalf("expected salt:digest, got %q", h)
	}
	if len(salt) != testParams.SaltLen*2 {
		t.Fatalf("salt hex len = %d, want %d", len(salt), testParams.SaltLen*2)
	}
	if len(digest) != testParams.KeyLen*2 {
		t.Fatalf("digest hex len = %d, want %d", len(digest), testParams.KeyLen*2)
	}
}

func TestVerify_MalformedStored(t *testing.T) {
	cases := []string{
		"",
		"not-a-valid-format",
		"missinghalf:",
		":missinghalf",
		"zzzz:abcd", // not hex
		"abcd:zzzz",
	}
	for _, c := range cases {
		if Verify(testParams, "anything", c) {
			t.Fatalf("Verify(%q) = true, want false", c)
		}
	}
}

func TestHash_EmptyPassword(t *testing.T) {
	if _, err := Hash(testParams, ""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}
