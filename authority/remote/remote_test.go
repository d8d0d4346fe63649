package remote_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-wallet-web/authority/local"
	"github.com/jrsteele09/go-wallet-web/authority/remote"
	"github.com/jrsteele09/go-wallet-web/clients"
	fakeclientrepo "github.com/jrsteele09/go-wallet-web/clients/fakerepo"
	"github.com/jrsteele09/go-wallet-web/gateway"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/jrsteele09/go-wallet-web/users"
	fakeuserrepo "github.com/jrsteele09/go-wallet-web/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "wallet-web"
	testClientSecret = "s3cret"
	testEmail        = "alice@example.com"
	testPassword     = "Sup3rSecret"
)

type testFixture struct {
	server    *httptest.Server
	authority *remote.Authority
	userID    string
}

// setupTestFixture runs the local authority's endpoints over HTTP and points
// a remote authority at them.
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	userRepo := fakeuserrepo.NewFakeUserRepo()
	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	user := &users.User{Email: testEmail, PasswordHash: hash, Verified: true}
	require.NoError(t, userRepo.Upsert(user))

	clientRepo := fakeclientrepo.NewFakeClientRepo()
	secretHash, err := clients.HashSecret(testClientSecret)
	require.NoError(t, err)
	require.NoError(t, clientRepo.Upsert(&clients.Client{ID: testClientID, Type: clients.ClientTypeConfidential, SecretHash: secretHash}))

	tokens, err := local.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "http://local", "wallet", time.Hour)
	require.NoError(t, err)
	authority, err := local.New(userRepo, tokens)
	require.NoError(t, err)

	server := httptest.NewServer(local.NewHandler(authority, clientRepo))
	t.Cleanup(server.Close)

	ra, err := remote.New(remote.Config{
		ClientID:         testClientID,
		ClientSecret:     testClientSecret,
		TokenURL:         server.URL + local.RouteOAuth2Token,
		IntrospectionURL: server.URL + local.RouteOAuth2Introspect,
		RevocationURL:    server.URL + local.RouteOAuth2Revoke,
		HTTPClient:       server.Client(),
	})
	require.NoError(t, err)

	return &testFixture{server: server, authority: ra, userID: user.ID}
}

func TestNewValidation(t *testing.T) {
	_, err := remote.New(remote.Config{TokenURL: "http://x", IntrospectionURL: "http://x"})
	require.Error(t, err)

	_, err = remote.New(remote.Config{ClientID: "c", TokenURL: "http://x"})
	require.Error(t, err)
}

func TestPasswordGrantLifecycle(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	grant, err := f.authority.CheckCredentials(ctx, gateway.Credentials{Identifier: testEmail, Secret: testPassword})
	require.NoError(t, err)
	require.Equal(t, f.userID, grant.SubjectID)
	require.NotEmpty(t, grant.Token)
	require.NotNil(t, grant.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(time.Hour), *grant.ExpiresAt, time.Minute)

	valid, err := f.authority.Revalidate(ctx, grant.Token)
	require.NoError(t, err)
	require.True(t, valid)

	require.NoError(t, f.authority.Revoke(ctx, grant.Token))

	valid, err = f.authority.Revalidate(ctx, grant.Token)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestPasswordGrantInvalidCredentials(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.authority.CheckCredentials(context.Background(), gateway.Credentials{Identifier: testEmail, Secret: "wrong"})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.NotErrorIs(t, err, apperrors.ErrServiceUnavailable)
}

func TestWrongClientSecretIsUnavailable(t *testing.T) {
	f := setupTestFixture(t)
	ra, err := remote.New(remote.Config{
		ClientID:         testClientID,
		ClientSecret:     "nope",
		TokenURL:         f.server.URL + local.RouteOAuth2Token,
		IntrospectionURL: f.server.URL + local.RouteOAuth2Introspect,
	})
	require.NoError(t, err)

	_, err = ra.CheckCredentials(context.Background(), gateway.Credentials{Identifier: testEmail, Secret: testPassword})
	require.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
	require.ErrorIs(t, err, apperrors.ErrInvalidClient)
}

func TestUnreachableAuthority(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	serverURL := server.URL
	server.Close()

	ra, err := remote.New(remote.Config{
		ClientID:         testClientID,
		TokenURL:         serverURL + "/token",
		IntrospectionURL: serverURL + "/introspect",
		RetryInterval:    time.Millisecond,
	})
	require.NoError(t, err)

	_, err = ra.CheckCredentials(context.Background(), gateway.Credentials{Identifier: testEmail, Secret: testPassword})
	require.ErrorIs(t, err, apperrors.ErrServiceUnavailable)

	_, err = ra.Revalidate(context.Background(), "token")
	require.Error(t, err)
}

func TestIntrospectionRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active":true,"sub":"user-1"}`))
	}))
	t.Cleanup(server.Close)

	ra, err := remote.New(remote.Config{
		ClientID:         testClientID,
		TokenURL:         server.URL,
		IntrospectionURL: server.URL,
		MaxRetries:       2,
		RetryInterval:    time.Millisecond,
	})
	require.NoError(t, err)

	valid, err := ra.Revalidate(context.Background(), "token")
	require.NoError(t, err)
	require.True(t, valid)
	require.EqualValues(t, 3, calls.Load())
}

func TestIntrospectionClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	ra, err := remote.New(remote.Config{
		ClientID:         testClientID,
		TokenURL:         server.URL,
		IntrospectionURL: server.URL,
		RetryInterval:    time.Millisecond,
	})
	require.NoError(t, err)

	_, err = ra.Revalidate(context.Background(), "token")
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestRevokeWithoutEndpointIsNoop(t *testing.T) {
	ra, err := remote.New(remote.Config{ClientID: testClientID, TokenURL: "http://x", IntrospectionURL: "http://x"})
	require.NoError(t, err)
	require.NoError(t, ra.Revoke(context.Background(), "token"))
}

// ssoServer is a minimal OIDC provider that signs RS256 id_tokens.
type ssoServer struct {
	*httptest.Server
	key       *rsa.PrivateKey
	nonce     atomic.Value
	verifiers atomic.Value
}

func newSSOServer(t *testing.T) *ssoServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	s := &ssoServer{key: key}
	s.nonce.Store("")
	s.verifiers.Store("")
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 s.URL,
			"authorization_endpoint": s.URL + "/authorize",
			"token_endpoint":         s.URL + "/token",
			"jwks_uri":               s.URL + "/jwks",
			"introspection_endpoint": s.URL + "/introspect",
			"revocation_endpoint":    s.URL + "/revoke",
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostFormValue("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		s.verifiers.Store(r.PostFormValue("code_verifier"))

		now := time.Now()
		idToken, err := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
			"iss":   s.URL,
			"sub":   "sso-user",
			"aud":   testClientID,
			"iat":   now.Unix(),
			"exp":   now.Add(time.Hour).Unix(),
			"nonce": s.nonce.Load().(string),
		}).SignedString(s.key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "sso-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *ssoServer) config() remote.Config {
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&s.key.PublicKey}}
	return remote.Config{
		ClientID:         testClientID,
		ClientSecret:     testClientSecret,
		AuthURL:          s.URL + "/authorize",
		TokenURL:         s.URL + "/token",
		IntrospectionURL: s.URL + "/introspect",
		RedirectURL:      "http://wallet.test/callback",
		Verifier:         oidc.NewVerifier(s.URL, keySet, &oidc.Config{ClientID: testClientID}),
		HTTPClient:       s.Client(),
	}
}

func TestSSOCodeFlow(t *testing.T) {
	s := newSSOServer(t)
	ra, err := remote.New(s.config())
	require.NoError(t, err)
	sso, err := ra.SSO()
	require.NoError(t, err)

	authURL, err := sso.AuthCodeURL("state-1", "nonce-1", "verifier-1234567890123456789012345678901234567")
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "nonce-1", q.Get("nonce"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.NotEmpty(t, q.Get("code_challenge"))
	require.Empty(t, q.Get("code_verifier"))

	s.nonce.Store("nonce-1")
	grant, err := sso.ExchangeCode(context.Background(), "good-code", "verifier-1234567890123456789012345678901234567", "nonce-1")
	require.NoError(t, err)
	require.Equal(t, "sso-user", grant.SubjectID)
	require.Equal(t, "sso-access-token", grant.Token)
	require.Equal(t, "verifier-1234567890123456789012345678901234567", s.verifiers.Load())
}

func TestSSOCodeFlowRejections(t *testing.T) {
	s := newSSOServer(t)
	ra, err := remote.New(s.config())
	require.NoError(t, err)
	sso, err := ra.SSO()
	require.NoError(t, err)
	ctx := context.Background()

	s.nonce.Store("someone-elses-nonce")
	_, err = sso.ExchangeCode(ctx, "good-code", "verifier", "nonce-1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = sso.ExchangeCode(ctx, "bad-code", "verifier", "nonce-1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestSSORequiresConfiguration(t *testing.T) {
	ra, err := remote.New(remote.Config{ClientID: testClientID, TokenURL: "http://x", IntrospectionURL: "http://x"})
	require.NoError(t, err)
	_, err = ra.SSO()
	require.ErrorIs(t, err, apperrors.ErrUnsupported)
}

func TestDiscover(t *testing.T) {
	s := newSSOServer(t)

	ra, err := remote.Discover(context.Background(), s.URL, remote.Config{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURL:  "http://wallet.test/callback",
		HTTPClient:   s.Client(),
	})
	require.NoError(t, err)

	sso, err := ra.SSO()
	require.NoError(t, err)
	authURL, err := sso.AuthCodeURL("state", "nonce", "verifier")
	require.NoError(t, err)
	require.Contains(t, authURL, s.URL+"/authorize?")
}
