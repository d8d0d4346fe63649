// Package local is an in-process identity authority backed by a user
// repository. It can also serve its token, introspection and revocation
// endpoints over HTTP for out-of-process clients.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-wallet-web/gateway"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/jrsteele09/go-wallet-web/internal/utils"
	"github.com/jrsteele09/go-wallet-web/users"
	"github.com/rs/zerolog/log"
)

// TokenIntrospection represents the metadata information of an OAuth 2.0 token.
// The 'active' field indicates the state of the token - if it's false, other fields are not populated.
type TokenIntrospection struct {
	Active    bool    `json:"active"`               // True or false - Is the token valid
	Sub       *string `json:"sub,omitempty"`        // Users unique ID
	Email     *string `json:"email,omitempty"`      // Users email address
	Aud       *string `json:"aud,omitempty"`        // Audience the token was issued for
	Iss       *string `json:"iss,omitempty"`        // Issuer of the token
	Exp       *int64  `json:"exp,omitempty"`        // Expiration
	Iat       *int64  `json:"iat,omitempty"`        // Issued at time
	Jti       *string `json:"jti,omitempty"`        // Token ID used for revocation
	TokenType string  `json:"token_type,omitempty"` // Always Bearer for active tokens
}

// Authority checks passwords against a user repository and issues JWT
// access tokens.
type Authority struct {
	users     users.UserRepo
	tokens    *TokenIssuer
	revoked   RevokedTokenCache
	dummyHash string
	nowTime   func() time.Time
}

var (
	_ gateway.Authority = (*Authority)(nil)
	_ gateway.Revoker   = (*Authority)(nil)
)

// Option configures an Authority.
type Option func(*Authority)

// WithRevokedTokenCache replaces the in-memory revocation cache.
func WithRevokedTokenCache(cache RevokedTokenCache) Option {
	return func(a *Authority) {
		a.revoked = cache
	}
}

// WithNowTime sets the clock used for last-login stamps.
func WithNowTime(nowTime func() time.Time) Option {
	return func(a *Authority) {
		a.nowTime = nowTime
	}
}

// New returns an authority over userRepo.
func New(userRepo users.UserRepo, tokens *TokenIssuer, opts ...Option) (*Authority, error) {
	if userRepo == nil || tokens == nil {
		return nil, fmt.Errorf("[local.New] user repo and token issuer are required")
	}
	// compared against when the user does not exist so that unknown and
	// known identifiers take the same time to reject
	dummyHash, err := users.HashPassword(uuid.New().String())
	if err != nil {
		return nil, fmt.Errorf("[local.New] users.HashPassword: %w", err)
	}
	a := &Authority{
		users:     userRepo,
		tokens:    tokens,
		dummyHash: dummyHash,
		nowTime:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.revoked == nil {
		a.revoked = NewInMemoryRevokedTokenCache(a.nowTime)
	}
	return a, nil
}

// CheckCredentials accepts an email or username with its password.
// Blocked and unverified accounts are rejected like a wrong password.
func (a *Authority) CheckCredentials(ctx context.Context, creds gateway.Credentials) (gateway.Grant, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Grant{}, err
	}

	user, err := a.lookup(creds.Identifier)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			users.CheckPasswordHash(creds.Secret, a.dummyHash)
			return gateway.Grant{}, fmt.Errorf("[Authority.CheckCredentials] %w", apperrors.ErrInvalidCredentials)
		}
		return gateway.Grant{}, fmt.Errorf("[Authority.CheckCredentials] lookup: %w", err)
	}

	if !user.CheckPassword(creds.Secret) {
		return gateway.Grant{}, fmt.Errorf("[Authority.CheckCredentials] %w", apperrors.ErrInvalidCredentials)
	}
	if user.Blocked {
		return gateway.Grant{}, fmt.Errorf("[Authority.CheckCredentials] %w: %w", apperrors.ErrInvalidCredentials, apperrors.ErrUserBlocked)
	}
	if !user.Verified {
		return gateway.Grant{}, fmt.Errorf("[Authority.CheckCredentials] %w: %w", apperrors.ErrInvalidCredentials, apperrors.ErrUserNotVerified)
	}

	issued, err := a.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return gateway.Grant{}, fmt.Errorf("[Authority.CheckCredentials] %w", err)
	}
	if err := a.users.SetLastLogin(user.Email, a.nowTime()); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}

	return gateway.Grant{
		SubjectID: user.ID,
		Token:     issued.Token,
		IssuedAt:  issued.IssuedAt,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// Revalidate reports whether token is still active.
func (a *Authority) Revalidate(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return a.Introspect(token).Active, nil
}

// Introspect describes token. Invalid, expired and revoked tokens are
// reported as inactive with no other fields.
func (a *Authority) Introspect(token string) *TokenIntrospection {
	if strings.TrimSpace(token) == "" {
		return &TokenIntrospection{Active: false}
	}
	claims, err := a.tokens.Parse(token)
	if err != nil {
		log.Debug().Err(err).Msg("introspected invalid token")
		return &TokenIntrospection{Active: false}
	}
	if a.revoked.IsRevoked(claims.ID) {
		return &TokenIntrospection{Active: false}
	}
	if _, err := a.users.GetByID(claims.Subject); err != nil {
		return &TokenIntrospection{Active: false}
	}

	ti := &TokenIntrospection{
		Active:    true,
		Sub:       utils.Ptr(claims.Subject),
		Iss:       utils.Ptr(claims.Issuer),
		Jti:       utils.Ptr(claims.ID),
		TokenType: "Bearer",
	}
	if claims.Email != "" {
		ti.Email = utils.Ptr(claims.Email)
	}
	if len(claims.Audience) > 0 {
		ti.Aud = utils.Ptr(claims.Audience[0])
	}
	if claims.IssuedAt != nil {
		ti.Iat = utils.Ptr(claims.IssuedAt.Unix())
	}
	if claims.ExpiresAt != nil {
		ti.Exp = utils.Ptr(claims.ExpiresAt.Unix())
	}
	return ti
}

// Revoke marks token as no longer usable. Tokens that are already invalid
// are ignored.
func (a *Authority) Revoke(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return nil
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := a.revoked.Add(claims.ID, exp); err != nil {
		return fmt.Errorf("[Authority.Revoke] %w", err)
	}
	a.revoked.Cleanup()
	log.Info().Str("user_id", claims.Subject).Str("jti", claims.ID).Msg("token revoked")
	return nil
}

func (a *Authority) lookup(identifier string) (*users.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, apperrors.ErrUserNotFound
	}
	if strings.Contains(identifier, "@") {
		return a.users.GetByEmail(identifier)
	}
	return a.users.GetByUsername(identifier)
}
