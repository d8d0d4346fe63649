package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Credentials is a single login submission. It is never persisted and its
// String form never includes the secret.
type Credentials struct {
	Identifier string
	Secret     string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Identifier: %q, Secret: [REDACTED]}", c.Identifier)
}

func (c Credentials) GoString() string {
	return c.String()
}

// NormalizeIdentifier is the key under which failed attempts are counted.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Grant is an identity authority's acceptance of a credential exchange.
type Grant struct {
	SubjectID string
	Token     string
	IssuedAt  time.Time  // zero means "now"
	ExpiresAt *time.Time // nil for non-expiring tokens
}

// Authority is the identity authority the gateway talks to. CheckCredentials
// reports a rejected pair with an error wrapping ErrInvalidCredentials; any
// other error is treated as the authority being unavailable.
type Authority interface {
	CheckCredentials(ctx context.Context, creds Credentials) (Grant, error)
	Revalidate(ctx context.Context, token string) (bool, error)
}

// Revoker is implemented by authorities that can revoke a token on logout.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

// CodeFlow is implemented by authorities that support browser single sign-on
// through the authorization code flow with PKCE.
type CodeFlow interface {
	AuthCodeURL(state, nonce, verifier string) (string, error)
	ExchangeCode(ctx context.Context, code, verifier, nonce string) (Grant, error)
}
