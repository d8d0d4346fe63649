// Package remote talks to an external OAuth2/OIDC identity authority: the
// resource owner password grant for the login form, RFC 7662 introspection
// for revalidation, RFC 7009 revocation on logout and, when configured, the
// authorization code flow with PKCE for single sign-on.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-wallet-web/gateway"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	defaultMaxRetries    = 2
	defaultRetryInterval = 200 * time.Millisecond
)

// Config describes the authority's endpoints and this application's client
// registration.
type Config struct {
	ClientID         string
	ClientSecret     string
	AuthURL          string // authorization endpoint, only needed for SSO
	TokenURL         string
	IntrospectionURL string
	RevocationURL    string // optional; logout skips revocation without it
	RedirectURL      string // only needed for SSO
	Scopes           []string

	// Verifier checks id_tokens. Without it the subject comes from
	// introspection and SSO is unavailable.
	Verifier *oidc.IDTokenVerifier

	HTTPClient    *http.Client
	MaxRetries    uint          // retries for introspection and revocation; 0 means the default
	RetryInterval time.Duration // first retry delay; 0 means the default
}

// Authority is a gateway.Authority backed by a remote OAuth2 server.
type Authority struct {
	cfg     Config
	oauth   *oauth2.Config
	client  *http.Client
	nowTime func() time.Time
}

var (
	_ gateway.Authority = (*Authority)(nil)
	_ gateway.Revoker   = (*Authority)(nil)
	_ gateway.CodeFlow  = (*SSO)(nil)
)

// Option configures an Authority.
type Option func(*Authority)

// WithNowTime sets the clock used for session issue times.
func WithNowTime(nowTime func() time.Time) Option {
	return func(a *Authority) {
		a.nowTime = nowTime
	}
}

// New returns an authority for cfg.
func New(cfg Config, opts ...Option) (*Authority, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("[remote.New] client id is required")
	}
	if cfg.TokenURL == "" || cfg.IntrospectionURL == "" {
		return nil, fmt.Errorf("[remote.New] token and introspection endpoints are required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	a := &Authority{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		client:  cfg.HTTPClient,
		nowTime: time.Now,
	}
	if a.client == nil {
		a.client = http.DefaultClient
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Discover fills the endpoints and id_token verifier in cfg from the
// issuer's OpenID configuration. Endpoints already set in cfg win.
func Discover(ctx context.Context, issuer string, cfg Config, opts ...Option) (*Authority, error) {
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("[remote.Discover] failed to create OIDC provider: %w", err)
	}

	var metadata struct {
		Introspection string `json:"introspection_endpoint"`
		Revocation    string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return nil, fmt.Errorf("[remote.Discover] provider metadata: %w", err)
	}

	endpoint := provider.Endpoint()
	cfg.AuthURL = firstNonEmpty(cfg.AuthURL, endpoint.AuthURL)
	cfg.TokenURL = firstNonEmpty(cfg.TokenURL, endpoint.TokenURL)
	cfg.IntrospectionURL = firstNonEmpty(cfg.IntrospectionURL, metadata.Introspection)
	cfg.RevocationURL = firstNonEmpty(cfg.RevocationURL, metadata.Revocation)
	if cfg.Verifier == nil {
		cfg.Verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}
	return New(cfg, opts...)
}

// CheckCredentials runs the password grant.
func (a *Authority) CheckCredentials(ctx context.Context, creds gateway.Credentials) (gateway.Grant, error) {
	tok, err := a.oauth.PasswordCredentialsToken(a.clientContext(ctx), creds.Identifier, creds.Secret)
	if err != nil {
		return gateway.Grant{}, fmt.Errorf("[Authority.CheckCredentials] %w", classifyTokenError(err))
	}

	subject, err := a.subject(ctx, tok)
	if err != nil {
		return gateway.Grant{}, fmt.Errorf("[Authority.CheckCredentials] %w", err)
	}
	return a.grant(subject, tok), nil
}

// Revalidate introspects token.
func (a *Authority) Revalidate(ctx context.Context, token string) (bool, error) {
	ti, err := a.introspect(ctx, token)
	if err != nil {
		return false, fmt.Errorf("[Authority.Revalidate] %w", err)
	}
	return ti.Active, nil
}

// Revoke asks the authority to revoke token. It is a no-op when no
// revocation endpoint is configured.
func (a *Authority) Revoke(ctx context.Context, token string) error {
	if a.cfg.RevocationURL == "" {
		log.Debug().Msg("no revocation endpoint configured, skipping revoke")
		return nil
	}
	form := url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
	}
	_, err := post(ctx, a, a.cfg.RevocationURL, form, func(io.Reader) (struct{}, error) {
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("[Authority.Revoke] %w", err)
	}
	return nil
}

// SSO returns the code flow for this authority, or an error wrapping
// ErrUnsupported when the configuration cannot support one.
func (a *Authority) SSO() (*SSO, error) {
	if a.cfg.AuthURL == "" || a.cfg.RedirectURL == "" || a.cfg.Verifier == nil {
		return nil, fmt.Errorf("[Authority.SSO] %w: authorization endpoint, redirect url and id_token verifier are required", apperrors.ErrUnsupported)
	}
	return &SSO{Authority: a}, nil
}

type introspection struct {
	Active bool   `json:"active"`
	Sub    string `json:"sub"`
}

func (a *Authority) introspect(ctx context.Context, token string) (introspection, error) {
	form := url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
	}
	return post(ctx, a, a.cfg.IntrospectionURL, form, func(body io.Reader) (introspection, error) {
		var ti introspection
		if err := json.NewDecoder(body).Decode(&ti); err != nil {
			return introspection{}, fmt.Errorf("decode introspection response: %w", err)
		}
		return ti, nil
	})
}

// post sends an authenticated form to endpoint. Transport errors and 5xx
// responses are retried with exponential backoff; anything else is final.
func post[T any](ctx context.Context, a *Authority, endpoint string, form url.Values, decode func(io.Reader) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.RetryInterval

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		var zero T
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		req.SetBasicAuth(url.QueryEscape(a.cfg.ClientID), url.QueryEscape(a.cfg.ClientSecret))

		resp, err := a.client.Do(req)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Str("endpoint", endpoint).Msg("authority request failed")
			return zero, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			log.Debug().Int("status", resp.StatusCode).Int("attempt", attempt).Str("endpoint", endpoint).Msg("authority server error")
			return zero, fmt.Errorf("%s returned %s", endpoint, resp.Status)
		case resp.StatusCode != http.StatusOK:
			return zero, backoff.Permanent(fmt.Errorf("%s returned %s", endpoint, resp.Status))
		}
		v, err := decode(resp.Body)
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		return v, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(a.cfg.MaxRetries+1))
}

func (a *Authority) subject(ctx context.Context, tok *oauth2.Token) (string, error) {
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" && a.cfg.Verifier != nil {
		idToken, err := a.cfg.Verifier.Verify(ctx, raw)
		if err != nil {
			return "", fmt.Errorf("%w: id_token verification failed: %v", apperrors.ErrServiceUnavailable, err)
		}
		return idToken.Subject, nil
	}

	ti, err := a.introspect(ctx, tok.AccessToken)
	if err != nil {
		return "", err
	}
	if !ti.Active || ti.Sub == "" {
		return "", fmt.Errorf("%w: issued token is not active", apperrors.ErrServiceUnavailable)
	}
	return ti.Sub, nil
}

func (a *Authority) grant(subject string, tok *oauth2.Token) gateway.Grant {
	g := gateway.Grant{
		SubjectID: subject,
		Token:     tok.AccessToken,
		IssuedAt:  a.nowTime(),
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		g.ExpiresAt = &exp
	}
	return g
}

func (a *Authority) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.client)
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "access_denied":
			return fmt.Errorf("%w: %s", apperrors.ErrInvalidCredentials, re.ErrorCode)
		case "invalid_client", "unauthorized_client":
			return fmt.Errorf("%w: %w: %s", apperrors.ErrServiceUnavailable, apperrors.ErrInvalidClient, re.ErrorCode)
		}
	}
	return fmt.Errorf("%w: %v", apperrors.ErrServiceUnavailable, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
