package remote

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-wallet-web/gateway"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"golang.org/x/oauth2"
)

// SSO is an Authority that also offers the authorization code flow.
type SSO struct {
	*Authority
}

// AuthCodeURL builds the authorization request. verifier is the PKCE code
// verifier; only its S256 challenge leaves this process.
func (s *SSO) AuthCodeURL(state, nonce, verifier string) (string, error) {
	if state == "" || nonce == "" || verifier == "" {
		return "", fmt.Errorf("[SSO.AuthCodeURL] state, nonce and verifier are required")
	}
	return s.oauth.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier)), nil
}

// ExchangeCode redeems code and checks the id_token's nonce.
func (s *SSO) ExchangeCode(ctx context.Context, code, verifier, nonce string) (gateway.Grant, error) {
	tok, err := s.oauth.Exchange(s.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return gateway.Grant{}, fmt.Errorf("[SSO.ExchangeCode] %w", classifyTokenError(err))
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return gateway.Grant{}, fmt.Errorf("[SSO.ExchangeCode] %w: no id_token in response", apperrors.ErrServiceUnavailable)
	}
	idToken, err := s.cfg.Verifier.Verify(ctx, raw)
	if err != nil {
		return gateway.Grant{}, fmt.Errorf("[SSO.ExchangeCode] %w: id_token verification failed: %v", apperrors.ErrInvalidCredentials, err)
	}
	if idToken.Nonce != nonce {
		return gateway.Grant{}, fmt.Errorf("[SSO.ExchangeCode] %w: nonce mismatch", apperrors.ErrInvalidCredentials)
	}
	return s.grant(idToken.Subject, tok), nil
}
