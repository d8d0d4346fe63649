package server_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-wallet-web/authority/local"
	"github.com/jrsteele09/go-wallet-web/clients"
	fakeclientrepo "github.com/jrsteele09/go-wallet-web/clients/fakerepo"
	"github.com/jrsteele09/go-wallet-web/gateway"
	"github.com/jrsteele09/go-wallet-web/internal/config"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/jrsteele09/go-wallet-web/server"
	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/jrsteele09/go-wallet-web/session/memslot"
	"github.com/jrsteele09/go-wallet-web/users"
	fakeuserrepo "github.com/jrsteele09/go-wallet-web/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "alice@example.com"
	testUsername = "alice"
	testPassword = "Sup3rSecret"
	testSecret   = "0123456789abcdef0123456789abcdef"
	testOrigin   = "http://wallet.example"
)

type testFixture struct {
	server    *httptest.Server
	client    *http.Client
	authority *local.Authority
	browsers  *session.Registry
	bucket    *memslot.Bucket
}

func setupTestFixture(t *testing.T, authority gateway.Authority) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("CORS_ORIGINS", testOrigin)
	t.Setenv("EVENTS_KEEPALIVE", "1h")

	userRepo := fakeuserrepo.NewFakeUserRepo()
	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, userRepo.Upsert(&users.User{
		Email:        testEmail,
		Username:     testUsername,
		PasswordHash: hash,
		Verified:     true,
	}))

	tokens, err := local.NewTokenIssuer([]byte(testSecret), "http://localhost:8080", "wallet", time.Hour)
	require.NoError(t, err)
	localAuthority, err := local.New(userRepo, tokens)
	require.NoError(t, err)
	if authority == nil {
		authority = localAuthority
	}

	clientRepo := fakeclientrepo.NewFakeClientRepo()
	require.NoError(t, clientRepo.Upsert(&clients.Client{ID: server.CLIClientID, Type: clients.ClientTypePublic}))

	bucket := memslot.NewBucket()
	browsers := session.NewRegistry(func(ctx context.Context, id string) (*session.Store, error) {
		store := session.NewStore(session.WithSlot(bucket.Slot(id)))
		return store, store.Rehydrate(ctx)
	})
	t.Cleanup(browsers.Close)

	srv, err := server.New(config.New(), server.Deps{
		Authority:          authority,
		Browsers:           browsers,
		Users:              userRepo,
		AuthorityEndpoints: local.NewHandler(localAuthority, clientRepo),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testFixture{
		server:    ts,
		client:    newBrowserClient(t),
		authority: localAuthority,
		browsers:  browsers,
		bucket:    bucket,
	}
}

// newBrowserClient keeps cookies and does not follow redirects.
func newBrowserClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *testFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *testFixture) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := f.client.PostForm(f.server.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *testFixture) login(t *testing.T, identifier, password string) *http.Response {
	t.Helper()
	return f.post(t, server.RouteAuthLogin, url.Values{
		"email":    {identifier},
		"password": {password},
		"next":     {"/dash"},
	})
}

// currentStore is the session store behind the client's browser cookie.
func (f *testFixture) currentStore(t *testing.T) *session.Store {
	t.Helper()
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	for _, c := range f.client.Jar.Cookies(u) {
		if c.Name == "wallet_client_id" {
			store, ok := f.browsers.Get(c.Value)
			require.True(t, ok)
			return store
		}
	}
	require.FailNow(t, "no browser cookie")
	return nil
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func redirectQuery(t *testing.T, resp *http.Response) (string, url.Values) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc.Path, loc.Query()
}

func TestProtectedRouteRedirectsToLogin(t *testing.T) {
	f := setupTestFixture(t, nil)

	path, q := redirectQuery(t, f.get(t, "/dash"))
	require.Equal(t, "/login", path)
	require.Equal(t, "no_session", q.Get("error_code"))
	require.Equal(t, "/dash", q.Get("next"))

	path, q = redirectQuery(t, f.get(t, "/dash/security?tab=keys"))
	require.Equal(t, "/login", path)
	require.Equal(t, "/dash/security?tab=keys", q.Get("next"))
}

func TestIndexRedirectsToLanding(t *testing.T) {
	f := setupTestFixture(t, nil)

	path, _ := redirectQuery(t, f.get(t, "/"))
	require.Equal(t, "/dash", path)
}

func TestLoginPage(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.get(t, "/login?error_code=revoked&next=/dash/security")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	body := readBody(t, resp)
	require.Contains(t, body, "My Wallet")
	require.Contains(t, body, "Your session has ended")
	require.Contains(t, body, `value="/dash/security"`)
	require.NotContains(t, body, "Or continue with")
}

func TestLoginSuccess(t *testing.T) {
	f := setupTestFixture(t, nil)

	path, _ := redirectQuery(t, f.login(t, testEmail, testPassword))
	require.Equal(t, "/dash", path)
	require.True(t, f.currentStore(t).IsValid())
	require.Equal(t, 1, f.bucket.Len())

	resp := f.get(t, "/dash")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "Welcome, alice")

	// already signed in, the login page moves on
	path, _ = redirectQuery(t, f.get(t, "/login"))
	require.Equal(t, "/dash", path)
}

func TestLoginWithUsername(t *testing.T) {
	f := setupTestFixture(t, nil)

	path, _ := redirectQuery(t, f.login(t, "  ALICE ", testPassword))
	require.Equal(t, "/dash", path)
}

func TestLoginRejectsOffsiteNext(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.post(t, server.RouteAuthLogin, url.Values{
		"email":    {testEmail},
		"password": {testPassword},
		"next":     {"//evil.example/steal"},
	})
	path, _ := redirectQuery(t, resp)
	require.Equal(t, "/dash", path)
}

func TestLoginFailure(t *testing.T) {
	f := setupTestFixture(t, nil)

	path, q := redirectQuery(t, f.login(t, testEmail, "wrong"))
	require.Equal(t, "/login", path)
	require.Equal(t, "invalid_credentials", q.Get("error"))
	require.Equal(t, testEmail, q.Get("email"))
	require.False(t, f.currentStore(t).IsValid())

	body := readBody(t, f.get(t, "/login?"+q.Encode()))
	require.Contains(t, body, "Invalid email or password.")
	require.Contains(t, body, `value="alice@example.com"`)

	// unknown account gets the same message
	_, q = redirectQuery(t, f.login(t, "nobody@example.com", testPassword))
	require.Equal(t, "invalid_credentials", q.Get("error"))
}

func TestLoginPageOnlyShowsKnownErrors(t *testing.T) {
	f := setupTestFixture(t, nil)

	body := readBody(t, f.get(t, "/login?error="+url.QueryEscape("Your account is suspended, call +1 555 0100")))
	require.NotContains(t, body, "suspended")
	require.NotContains(t, body, `class="error"`)

	// retry hints are numbers only
	body = readBody(t, f.get(t, "/login?error=rate_limited&retry_after=soon"))
	require.Contains(t, body, "Too many failed attempts. Try again later.")
	body = readBody(t, f.get(t, "/login?error=rate_limited&retry_after=99999999999999"))
	require.Contains(t, body, "Too many failed attempts. Try again in 1440 minutes.")
}

func TestLoginRateLimited(t *testing.T) {
	f := setupTestFixture(t, nil)

	for i := 0; i < gateway.DefaultMaxAttempts; i++ {
		_, q := redirectQuery(t, f.login(t, testEmail, "wrong"))
		require.Equal(t, "invalid_credentials", q.Get("error"))
	}

	// locked out even with the right password, and from another browser
	f.client = newBrowserClient(t)
	_, q := redirectQuery(t, f.login(t, " Alice@Example.com", testPassword))
	require.Equal(t, "rate_limited", q.Get("error"))
	require.NotEmpty(t, q.Get("retry_after"))
	require.False(t, f.currentStore(t).IsValid())

	body := readBody(t, f.get(t, "/login?"+q.Encode()))
	require.Contains(t, body, "Too many failed attempts. Try again in 15 minutes.")
}

// browserCookie is the last browser id cookie set by resp.
func browserCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "wallet_client_id" {
			found = c
		}
	}
	require.NotNil(t, found, "no browser cookie in response")
	return found
}

func TestLoginWithoutRememberMeUsesSessionCookie(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.login(t, testEmail, testPassword)
	redirectQuery(t, resp)
	c := browserCookie(t, resp)
	require.Zero(t, c.MaxAge)
	require.True(t, c.Expires.IsZero())
	require.True(t, c.HttpOnly)
}

func TestRememberMeKeepsBrowserUntilSessionExpiry(t *testing.T) {
	f := setupTestFixture(t, nil)

	body := readBody(t, f.get(t, "/login"))
	require.Contains(t, body, `name="remember"`)

	resp := f.post(t, server.RouteAuthLogin, url.Values{
		"email":    {testEmail},
		"password": {testPassword},
		"remember": {"1"},
	})
	redirectQuery(t, resp)
	c := browserCookie(t, resp)

	sess, ok := f.currentStore(t).Get()
	require.True(t, ok)
	require.NotNil(t, sess.ExpiresAt)
	require.Greater(t, c.MaxAge, 0)
	require.LessOrEqual(t, c.MaxAge, int(time.Hour/time.Second))
	require.WithinDuration(t, *sess.ExpiresAt, c.Expires, 2*time.Second)

	// logout turns it back into a session cookie
	resp = f.post(t, server.RouteAuthLogout, nil)
	redirectQuery(t, resp)
	c = browserCookie(t, resp)
	require.Zero(t, c.MaxAge)
	require.True(t, c.Expires.IsZero())
}

func TestRememberMeIsCapped(t *testing.T) {
	f := setupTestFixture(t, nil)
	t.Setenv("REMEMBER_ME_MAX_AGE", "10m")

	resp := f.post(t, server.RouteAuthLogin, url.Values{
		"email":    {testEmail},
		"password": {testPassword},
		"remember": {"1"},
	})
	redirectQuery(t, resp)
	c := browserCookie(t, resp)
	require.InDelta(t, int(10*time.Minute/time.Second), c.MaxAge, 2)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), c.Expires, 2*time.Second)
}

func TestRememberMeSurvivesFailedAttempt(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.post(t, server.RouteAuthLogin, url.Values{
		"email":    {testEmail},
		"password": {"wrong"},
		"remember": {"1"},
	})
	_, q := redirectQuery(t, resp)
	require.Equal(t, "1", q.Get("remember"))
	require.Contains(t, readBody(t, f.get(t, "/login?"+q.Encode())), `value="1" checked`)
}

func TestNewRejectsBadPagePaths(t *testing.T) {
	tests := []struct {
		name    string
		login   string
		landing string
	}{
		{"relative login", "login", "/dash"},
		{"root login", "/", "/dash"},
		{"same paths", "/dash", "/dash/"},
		{"landing on fixed route", "/login", "/static"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LOGIN_PATH", tc.login)
			t.Setenv("LANDING_PATH", tc.landing)
			browsers := session.NewRegistry(func(context.Context, string) (*session.Store, error) {
				return session.NewStore(), nil
			})
			t.Cleanup(browsers.Close)

			_, err := server.New(config.New(), server.Deps{
				Authority: &codeFlowAuthority{},
				Browsers:  browsers,
			})
			require.Error(t, err)
		})
	}
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t, nil)
	redirectQuery(t, f.login(t, testEmail, testPassword))
	store := f.currentStore(t)
	sess, ok := store.Get()
	require.True(t, ok)

	path, _ := redirectQuery(t, f.post(t, server.RouteAuthLogout, nil))
	require.Equal(t, "/login", path)
	require.False(t, store.IsValid())
	require.Zero(t, f.bucket.Len())

	valid, err := f.authority.Revalidate(context.Background(), sess.Token)
	require.NoError(t, err)
	require.False(t, valid)

	_, q := redirectQuery(t, f.get(t, "/dash"))
	require.Equal(t, "no_session", q.Get("error_code"))
}

func TestSensitiveRouteRevalidates(t *testing.T) {
	f := setupTestFixture(t, nil)
	redirectQuery(t, f.login(t, testEmail, testPassword))

	resp := f.get(t, "/dash/security")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "Security")

	// revoked at the authority behind the front end's back
	store := f.currentStore(t)
	sess, ok := store.Get()
	require.True(t, ok)
	require.NoError(t, f.authority.Revoke(context.Background(), sess.Token))

	// plain protected routes only look at the local session
	require.Equal(t, http.StatusOK, f.get(t, "/dash").StatusCode)

	path, q := redirectQuery(t, f.get(t, "/dash/security"))
	require.Equal(t, "/login", path)
	require.Equal(t, "revoked", q.Get("error_code"))
	require.False(t, store.IsValid())
}

func TestEventsStreamSignalsRevocation(t *testing.T) {
	f := setupTestFixture(t, nil)
	redirectQuery(t, f.login(t, testEmail, testPassword))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/dash/events", nil)
	require.NoError(t, err)
	stream, err := f.client.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	require.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	reader := bufio.NewReader(stream.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	// logout from another tab of the same browser
	redirectQuery(t, f.post(t, server.RouteAuthLogout, nil))

	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	require.Equal(t, "event: revoked", lines[0])
	require.Contains(t, lines[1], `"redirect":"/login?`)
	require.Contains(t, lines[1], "error_code=revoked")
}

func TestEventsStreamRequiresSession(t *testing.T) {
	f := setupTestFixture(t, nil)

	path, q := redirectQuery(t, f.get(t, "/dash/events"))
	require.Equal(t, "/login", path)
	require.Equal(t, "no_session", q.Get("error_code"))
}

func TestCrossOriginPostRejected(t *testing.T) {
	f := setupTestFixture(t, nil)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+server.RouteAuthLogin, strings.NewReader(url.Values{
		"email":    {testEmail},
		"password": {testPassword},
	}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.get(t, "/login")

	resp := f.get(t, server.RouteHealth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok","browsers":1}`, readBody(t, resp))
}

func TestStaticCSS(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.get(t, "/static/css/wallet.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/css; charset=utf-8", resp.Header.Get("Content-Type"))
	require.NotEmpty(t, resp.Header.Get("Cache-Control"))

	require.Equal(t, http.StatusNotFound, f.get(t, "/static/css/missing.css").StatusCode)
}

func TestAuthorityEndpoints(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.post(t, local.RouteOAuth2Token, url.Values{
		"grant_type": {"password"},
		"client_id":  {server.CLIClientID},
		"username":   {testEmail},
		"password":   {testPassword},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "access_token")

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+local.RouteOAuth2Token, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight, err := f.client.Do(req)
	require.NoError(t, err)
	defer preflight.Body.Close()
	require.Equal(t, testOrigin, preflight.Header.Get("Access-Control-Allow-Origin"))
}

func TestSSOUnavailableWithoutCodeFlow(t *testing.T) {
	f := setupTestFixture(t, nil)
	require.Equal(t, http.StatusNotFound, f.get(t, server.RouteAuthSSO).StatusCode)
}

// codeFlowAuthority accepts a single code and records what the callback
// passed through.
type codeFlowAuthority struct {
	mu       sync.Mutex
	nonce    string
	verifier string
}

func (a *codeFlowAuthority) CheckCredentials(context.Context, gateway.Credentials) (gateway.Grant, error) {
	return gateway.Grant{}, apperrors.ErrInvalidCredentials
}

func (a *codeFlowAuthority) Revalidate(context.Context, string) (bool, error) {
	return true, nil
}

func (a *codeFlowAuthority) AuthCodeURL(state, nonce, verifier string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nonce, a.verifier = nonce, verifier
	return "https://idp.example/authorize?" + url.Values{"state": {state}}.Encode(), nil
}

func (a *codeFlowAuthority) ExchangeCode(_ context.Context, code, verifier, nonce string) (gateway.Grant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if code != "good-code" || verifier != a.verifier || nonce != a.nonce {
		return gateway.Grant{}, apperrors.ErrInvalidCredentials
	}
	exp := time.Now().Add(time.Hour)
	return gateway.Grant{SubjectID: "sso-user", Token: "sso-token", ExpiresAt: &exp}, nil
}

func startSSO(t *testing.T, f *testFixture, next string) string {
	t.Helper()
	resp := f.get(t, server.RouteAuthSSO+"?next="+url.QueryEscape(next))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "idp.example", loc.Host)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestSSOCodeFlow(t *testing.T) {
	f := setupTestFixture(t, &codeFlowAuthority{})

	resp := f.get(t, "/login")
	require.Contains(t, readBody(t, resp), "Or continue with")

	state := startSSO(t, f, "/dash/security")
	path, _ := redirectQuery(t, f.get(t, server.RouteCallback+"?code=good-code&state="+state))
	require.Equal(t, "/dash/security", path)

	sess, ok := f.currentStore(t).Get()
	require.True(t, ok)
	require.Equal(t, "sso-user", sess.SubjectID)

	// states are single use
	resp = f.get(t, server.RouteCallback+"?code=good-code&state="+state)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSSOCallbackRejections(t *testing.T) {
	t.Run("bad code", func(t *testing.T) {
		f := setupTestFixture(t, &codeFlowAuthority{})
		state := startSSO(t, f, "/dash")
		path, q := redirectQuery(t, f.get(t, server.RouteCallback+"?code=bad&state="+state))
		require.Equal(t, "/login", path)
		require.Equal(t, "invalid_credentials", q.Get("error"))
		require.False(t, f.currentStore(t).IsValid())
	})

	t.Run("another browser", func(t *testing.T) {
		f := setupTestFixture(t, &codeFlowAuthority{})
		state := startSSO(t, f, "/dash")
		f.client = newBrowserClient(t)
		resp := f.get(t, server.RouteCallback+"?code=good-code&state="+state)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("authority error", func(t *testing.T) {
		f := setupTestFixture(t, &codeFlowAuthority{})
		state := startSSO(t, f, "/dash")
		path, q := redirectQuery(t, f.get(t, server.RouteCallback+"?error=access_denied&state="+state))
		require.Equal(t, "/login", path)
		require.Equal(t, "sso_failed", q.Get("error"))
	})

	t.Run("missing parameters", func(t *testing.T) {
		f := setupTestFixture(t, &codeFlowAuthority{})
		require.Equal(t, http.StatusBadRequest, f.get(t, server.RouteCallback).StatusCode)
	})
}

func TestInitialiseSystem(t *testing.T) {
	t.Setenv("DEMO_USER_EMAIL", "demo@example.com")
	t.Setenv("DEMO_USER_PASSWORD", "")
	t.Setenv("CLIENT_SECRET", "web-secret")
	t.Setenv("CLIENT_ID", "wallet-web")
	cfg := config.New()

	userRepo := fakeuserrepo.NewFakeUserRepo()
	clientRepo := fakeclientrepo.NewFakeClientRepo()

	password, err := server.InitialiseSystem(cfg, userRepo, clientRepo)
	require.NoError(t, err)
	require.NoError(t, users.ValidatePasswordStrength(password))

	user, err := userRepo.GetByEmail("demo@example.com")
	require.NoError(t, err)
	require.True(t, user.CheckPassword(password))
	require.True(t, user.CanLogin())

	web, err := clientRepo.Get("wallet-web")
	require.NoError(t, err)
	require.False(t, web.IsPublic())
	require.True(t, web.Authenticate("web-secret"))

	cli, err := clientRepo.Get(server.CLIClientID)
	require.NoError(t, err)
	require.True(t, cli.IsPublic())

	// second run keeps the existing account
	password, err = server.InitialiseSystem(cfg, userRepo, clientRepo)
	require.NoError(t, err)
	require.Empty(t, password)
}
