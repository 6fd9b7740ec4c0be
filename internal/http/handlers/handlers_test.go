package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/astralhq/identity/internal/app"
	"github.com/astralhq/identity/internal/cache"
	"github.com/astralhq/identity/internal/config"
	jwtx "github.com/astralhq/identity/internal/jwt"
	"github.com/astralhq/identity/internal/oauth"
	"github.com/astralhq/identity/internal/rate"
	"github.com/astralhq/identity/internal/security/password"
	"github.com/astralhq/identity/internal/store"
)

var testHash = password.Params{N: 1024, R: 8, P: 1, SaltLen: 16, KeyLen: 64}

// capturingSender records sent mail instead of delivering it.
type capturingSender struct {
	mail chan sentMail
}

type sentMail struct {
	To, Subject, Text string
}

func newCapturingSender() *capturingSender {
	return &capturingSender{mail: make(chan sentMail, 8)}
}

func (s *capturingSender) Send(to, subject, _, textBody string) error {
	s.mail <- sentMail{To: to, Subject: subject, Text: textBody}
	return nil
}

// fakeProvider satisfies oauth.Provider without network calls.
type fakeProvider struct {
	name        string
	profile     *oauth.Profile
	exchangeErr error
	profileErr  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthorizeURL(redirectURI, state string) (string, error) {
	return "https://provider.example/authorize?state=" + url.QueryEscape(state) +
		"&redirect_uri=" + url.QueryEscape(redirectURI), nil
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code, _ string) (*oauth.Tokens, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth.Tokens{AccessToken: "at-" + code}, nil
}

func (f *fakeProvider) FetchProfile(context.Context, *oauth.Tokens) (*oauth.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

type env struct {
	srv    *httptest.Server
	store  *store.Memory
	cache  cache.Client
	mailer *capturingSender
	fake   *fakeProvider
	codec  *jwtx.Codec
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := store.NewMemory()
	cc := cache.NewMemory("")
	mailer := newCapturingSender()
	codec := jwtx.NewCodec([]byte("handler-test-secret"))
	fake := &fakeProvider{
		name: "google",
		profile: &oauth.Profile{
			Email:         "fed@example.com",
			DisplayName:   "Fed User",
			ProviderID:    "prov-1",
			Provider:      "google",
			EmailVerified: true,
		},
	}

	c := &app.Container{
		Store:     mem,
		Codec:     codec,
		Cache:     cc,
		Providers: oauth.Registry{"google": fake},
		Nonces:    &oauth.Nonces{Cache: cc},
		Mailer:    mailer,
		Hash:      testHash,
	}

	cfg, err := configForTest(t)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(cfg, c))
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: mem, cache: cc, mailer: mailer, fake: fake, codec: codec}
}

func configForTest(t *testing.T) (*config.Config, error) {
	t.Helper()
	t.Setenv("IDENTITY_JWT_SECRET", "handler-test-secret")
	return config.Load("")
}

func (e *env) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func (e *env) registerUser(t *testing.T, emailAddr, pass string) {
	t.Helper()
	resp := e.postJSON(t, "/register", map[string]string{"email": emailAddr, "password": pass})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func decodeToken(t *testing.T, resp *http.Response) tokenResponse {
	t.Helper()
	defer resp.Body.Close()
	var tr tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	return tr
}

func TestLogin_Scenario(t *testing.T) {
	e := newEnv(t)
	e.registerUser(t, "alice@example.com", "Secret123")

	resp := e.postJSON(t, "/login", map[string]string{"email": "alice@example.com", "password": "Secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tr := decodeToken(t, resp)
	require.Equal(t, "Bearer", tr.TokenType)

	claims := e.codec.Decode(tr.AccessToken)
	require.NotNil(t, claims)
	require.Equal(t, "alice@example.com", claims.Email)

	// wrong password and unknown account are the same 401
	bad := e.postJSON(t, "/login", map[string]string{"email": "alice@example.com", "password": "wrong"})
	defer bad.Body.Close()
	require.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	unknown := e.postJSON(t, "/login", map[string]string{"email": "ghost@example.com", "password": "Secret123"})
	defer unknown.Body.Close()
	require.Equal(t, http.StatusUnauthorized, unknown.StatusCode)

	badBody, _ := io.ReadAll(bad.Body)
	unknownBody, _ := io.ReadAll(unknown.Body)
	require.Equal(t, badBody, unknownBody, "failure modes must be indistinguishable")
}

func TestLogin_MissingFields(t *testing.T) {
	e := newEnv(t)
	resp := e.postJSON(t, "/login", map[string]string{"email": "a@b.c"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegister_WeakPasswordAndConflict(t *testing.T) {
	e := newEnv(t)

	weak := e.postJSON(t, "/register", map[string]string{"email": "a@b.c", "password": "short"})
	defer weak.Body.Close()
	require.Equal(t, http.StatusBadRequest, weak.StatusCode)

	e.registerUser(t, "dup@example.com", "Secret123")
	dup := e.postJSON(t, "/register", map[string]string{"email": "dup@example.com", "password": "Secret123"})
	defer dup.Body.Close()
	require.Equal(t, http.StatusConflict, dup.StatusCode)
}

func TestForgot_EnumerationResistance(t *testing.T) {
	e := newEnv(t)
	e.registerUser(t, "alice@example.com", "Secret123")
	<-e.mailer.mail // registration verify mail

	known := e.postJSON(t, "/forgot-password", map[string]string{"email": "alice@example.com"})
	unknown := e.postJSON(t, "/forgot-password", map[string]string{"email": "unknown@example.com"})
	defer known.Body.Close()
	defer unknown.Body.Close()

	require.Equal(t, http.StatusOK, known.StatusCode)
	require.Equal(t, http.StatusOK, unknown.StatusCode)

	kb, _ := io.ReadAll(known.Body)
	ub, _ := io.ReadAll(unknown.Body)
	require.Equal(t, kb, ub, "responses must be byte-identical")

	// but only the real account got mail
	m := <-e.mailer.mail
	require.Equal(t, "alice@example.com", m.To)
	select {
	case extra := <-e.mailer.mail:
		t.Fatalf("unexpected mail to %s", extra.To)
	default:
	}
}

func extractTokenParam(t *testing.T, text string) string {
	t.Helper()
	i := strings.Index(text, "token=")
	require.GreaterOrEqual(t, i, 0, "no token link in mail: %q", text)
	rest := text[i+len("token="):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	raw, err := url.QueryUnescape(rest)
	require.NoError(t, err)
	return raw
}

func TestResetPassword_Flow(t *testing.T) {
	e := newEnv(t)
	e.registerUser(t, "alice@example.com", "Secret123")
	<-e.mailer.mail

	resp := e.postJSON(t, "/forgot-password", map[string]string{"email": "alice@example.com"})
	resp.Body.Close()
	m := <-e.mailer.mail
	token := extractTokenParam(t, m.Text)

	ok := e.postJSON(t, "/reset-password", map[string]string{"token": token, "password": "NewSecret9"})
	require.Equal(t, http.StatusOK, ok.StatusCode)
	decodeToken(t, ok)

	// token is single use
	replay := e.postJSON(t, "/reset-password", map[string]string{"token": token, "password": "Another123"})
	defer replay.Body.Close()
	require.Equal(t, http.StatusUnauthorized, replay.StatusCode)

	// old password gone, new one works
	old := e.postJSON(t, "/login", map[string]string{"email": "alice@example.com", "password": "Secret123"})
	old.Body.Close()
	require.Equal(t, http.StatusUnauthorized, old.StatusCode)
	renewed := e.postJSON(t, "/login", map[string]string{"email": "alice@example.com", "password": "NewSecret9"})
	renewed.Body.Close()
	require.Equal(t, http.StatusOK, renewed.StatusCode)
}

func TestVerifyEmail_Flow(t *testing.T) {
	e := newEnv(t)
	e.registerUser(t, "alice@example.com", "Secret123")
	m := <-e.mailer.mail
	require.Equal(t, "Verify your email", m.Subject)
	token := extractTokenParam(t, m.Text)

	client := noRedirectClient()
	resp, err := client.Get(e.srv.URL + "/verify-email?token=" + url.QueryEscape(token))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Location"), "verified=1")

	u, err := e.store.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.True(t, u.EmailVerified)
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	e.registerUser(t, "alice@example.com", "Secret123")
	resp := e.postJSON(t, "/login", map[string]string{"email": "alice@example.com", "password": "Secret123"})
	tr := decodeToken(t, resp)

	req, _ := http.NewRequest("GET", e.srv.URL+"/me", nil)
	req.Header.Set("Authorization", "Bearer "+tr.AccessToken)
	got, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)

	var me meResponse
	require.NoError(t, json.NewDecoder(got.Body).Decode(&me))
	require.Equal(t, "alice@example.com", me.Email)

	// no/garbage token: same 401
	anon, err := http.Get(e.srv.URL + "/me")
	require.NoError(t, err)
	anon.Body.Close()
	require.Equal(t, http.StatusUnauthorized, anon.StatusCode)
}

// oauthState runs the authorize leg and returns the state the provider would
// echo back.
func oauthState(t *testing.T, e *env) string {
	t.Helper()
	client := noRedirectClient()
	resp, err := client.Get(e.srv.URL + "/oauth/authorize?provider=google")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "provider.example", loc.Host)
	return loc.Query().Get("state")
}

func TestOAuth_CallbackCreatesUserAndIssuesToken(t *testing.T) {
	e := newEnv(t)
	state := oauthState(t, e)

	client := noRedirectClient()
	resp, err := client.Get(e.srv.URL + "/oauth/callback?code=authcode&state=" + url.QueryEscape(state))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	q := loc.Query()
	require.Empty(t, q.Get("error"))
	require.Equal(t, "1", q.Get("needs_profile"), "fresh account should flag profile completion")

	claims := e.codec.Decode(q.Get("token"))
	require.NotNil(t, claims)
	require.Equal(t, "fed@example.com", claims.Email)

	u, err := e.store.FindByEmail(context.Background(), "fed@example.com")
	require.NoError(t, err)
	require.Equal(t, "google", u.Provider)
	require.True(t, u.EmailVerified)
}

func TestOAuth_CallbackLinksExistingAccount(t *testing.T) {
	e := newEnv(t)
	e.registerUser(t, "fed@example.com", "Secret123")

	state := oauthState(t, e)
	client := noRedirectClient()
	resp, err := client.Get(e.srv.URL + "/oauth/callback?code=c&state=" + url.QueryEscape(state))
	require.NoError(t, err)
	defer resp.Body.Close()

	loc, _ := url.Parse(resp.Header.Get("Location"))
	require.Empty(t, loc.Query().Get("needs_profile"), "existing account is not fresh")

	u, err := e.store.FindByEmail(context.Background(), "fed@example.com")
	require.NoError(t, err)
	require.Equal(t, "google", u.Provider, "password account gets linked on first federated login")
	require.NotEmpty(t, u.PasswordHash, "linking must not clobber the credential")
}

func TestOAuth_StateReplayRejected(t *testing.T) {
	e := newEnv(t)
	state := oauthState(t, e)
	client := noRedirectClient()

	first, err := client.Get(e.srv.URL + "/oauth/callback?code=c&state=" + url.QueryEscape(state))
	require.NoError(t, err)
	first.Body.Close()
	loc, _ := url.Parse(first.Header.Get("Location"))
	require.Empty(t, loc.Query().Get("error"))

	replay, err := client.Get(e.srv.URL + "/oauth/callback?code=c2&state=" + url.QueryEscape(state))
	require.NoError(t, err)
	replay.Body.Close()
	loc, _ = url.Parse(replay.Header.Get("Location"))
	require.Equal(t, "invalid_state", loc.Query().Get("error"))
}

func TestOAuth_ForgedStateRejected(t *testing.T) {
	e := newEnv(t)
	client := noRedirectClient()
	resp, err := client.Get(e.srv.URL + "/oauth/callback?code=c&state=google%3Adeadbeef")
	require.NoError(t, err)
	resp.Body.Close()
	loc, _ := url.Parse(resp.Header.Get("Location"))
	require.Equal(t, "invalid_state", loc.Query().Get("error"))
}

func TestOAuth_ExchangeFailureRedirectsSanitized(t *testing.T) {
	e := newEnv(t)
	e.fake.exchangeErr = fmt.Errorf("token http 400: invalid_grant (secret sauce)")

	state := oauthState(t, e)
	client := noRedirectClient()
	resp, err := client.Get(e.srv.URL + "/oauth/callback?code=c&state=" + url.QueryEscape(state))
	require.NoError(t, err)
	resp.Body.Close()

	loc, _ := url.Parse(resp.Header.Get("Location"))
	require.Equal(t, "exchange_failed", loc.Query().Get("error"))
	require.NotContains(t, loc.RawQuery, "secret+sauce", "upstream detail must not leak")
}

func TestOAuth_UnknownProvider(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.srv.URL + "/oauth/authorize?provider=myspace")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_RateLimited(t *testing.T) {
	e := newEnv(t)

	// swap in a tight limiter via a fresh server
	mem := store.NewMemory()
	cc := cache.NewMemory("")
	c := &app.Container{
		Store:        mem,
		Codec:        e.codec,
		Cache:        cc,
		Providers:    oauth.Registry{},
		Nonces:       &oauth.Nonces{Cache: cc},
		Mailer:       newCapturingSender(),
		Hash:         testHash,
		LoginLimiter: rate.NewMemoryLimiter(2, time.Hour),
	}
	cfg, err := configForTest(t)
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(cfg, c))
	defer srv.Close()

	body := []byte(`{"email":"x@example.com","password":"nope"}`)
	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/login", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, err := http.Post(srv.URL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
}
