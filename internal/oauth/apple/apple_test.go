package apple

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/astralhq/identity/internal/oauth"
)

func fakeIDToken(payload string) string {
	enc := base64.RawURLEncoding.EncodeToString
	return enc([]byte(`{"alg":"ES256"}`)) + "." + enc([]byte(payload)) + "." + enc([]byte("sig"))
}

func TestFetchProfile_FromIdentityToken(t *testing.T) {
	a := New(testSigner(t))
	tk := &oauth.Tokens{IDToken: fakeIDToken(
		`{"sub":"001234.abcd","email":"star@example.com","email_verified":"true"}`)}

	p, err := a.FetchProfile(context.Background(), tk)
	require.NoError(t, err)
	require.Equal(t, "star@example.com", p.Email)
	require.Equal(t, "001234.abcd", p.ProviderID)
	require.Equal(t, "apple", p.Provider)
	require.True(t, p.EmailVerified)
	require.Equal(t, "star", p.DisplayName)
}

func TestFetchProfile_BoolVerifiedFlag(t *testing.T) {
	a := New(testSigner(t))
	tk := &oauth.Tokens{IDToken: fakeIDToken(
		`{"sub":"x","email":"a@b.c","email_verified":true}`)}
	p, err := a.FetchProfile(context.Background(), tk)
	require.NoError(t, err)
	require.True(t, p.EmailVerified)
}

func TestFetchProfile_MissingEmail(t *testing.T) {
	a := New(testSigner(t))
	tk := &oauth.Tokens{IDToken: fakeIDToken(`{"sub":"x"}`)}
	_, err := a.FetchProfile(context.Background(), tk)
	require.ErrorIs(t, err, oauth.ErrNoEmail)
}

func TestFetchProfile_Malformed(t *testing.T) {
	a := New(testSigner(t))
	for _, tok := range []string{"", "a.b", "a.!!!.c", fakeIDToken("not json")} {
		_, err := a.FetchProfile(context.Background(), &oauth.Tokens{IDToken: tok})
		require.Error(t, err, "token %q", tok)
	}
}

func TestAuthorizeURL(t *testing.T) {
	a := New(testSigner(t))
	u, err := a.AuthorizeURL("https://astral.example/oauth/callback", "apple:abcd")
	require.NoError(t, err)
	require.Contains(t, u, "https://appleid.apple.com/auth/authorize?")
	require.Contains(t, u, "client_id=com.astralhq.web")
	require.Contains(t, u, "response_type=code")
	require.Contains(t, u, "response_mode=form_post")
	require.Contains(t, u, "state=apple%3Aabcd")
}
