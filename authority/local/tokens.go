package local

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/jrsteele09/go-wallet-web/internal/utils"
)

const minSecretLength = 32

// Claims carried by access tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwtlib.RegisteredClaims
}

// IssuedToken is a signed access token and the facts the gateway needs.
type IssuedToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt *time.Time // nil when the issuer is configured without a TTL
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	nowTime  func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenNowTime sets the clock used for iat, exp and verification.
func WithTokenNowTime(nowTime func() time.Time) TokenOption {
	return func(ti *TokenIssuer) {
		ti.nowTime = nowTime
	}
}

// NewTokenIssuer returns an issuer. A zero ttl issues non-expiring tokens.
func NewTokenIssuer(secret []byte, issuer, audience string, ttl time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("[local.NewTokenIssuer] secret must be at least %d bytes", minSecretLength)
	}
	if issuer == "" || audience == "" {
		return nil, fmt.Errorf("[local.NewTokenIssuer] issuer and audience are required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("[local.NewTokenIssuer] ttl must not be negative")
	}
	ti := &TokenIssuer{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		nowTime:  time.Now,
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti, nil
}

// Issue signs a token for subject.
func (ti *TokenIssuer) Issue(subject, email string) (IssuedToken, error) {
	now := ti.nowTime().Truncate(time.Second)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:   ti.issuer,
			Subject:  subject,
			Audience: jwtlib.ClaimStrings{ti.audience},
			IssuedAt: jwtlib.NewNumericDate(now),
			ID:       uuid.New().String(),
		},
	}

	var expiresAt *time.Time
	if ti.ttl > 0 {
		expiresAt = utils.Ptr(now.Add(ti.ttl))
		claims.ExpiresAt = jwtlib.NewNumericDate(*expiresAt)
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("[TokenIssuer.Issue] failed to sign JWT token: %w", err)
	}
	return IssuedToken{
		Token:     signed,
		ID:        claims.ID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse verifies raw and returns its claims. Every failure wraps
// ErrInvalidToken.
func (ti *TokenIssuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(raw, claims,
		func(*jwtlib.Token) (any, error) { return ti.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(ti.issuer),
		jwtlib.WithAudience(ti.audience),
		jwtlib.WithIssuedAt(),
		jwtlib.WithTimeFunc(ti.nowTime),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", apperrors.ErrInvalidToken)
	}
	return claims, nil
}

// TTL is the configured access token lifetime.
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}
