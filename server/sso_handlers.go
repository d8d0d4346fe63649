package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/jrsteele09/go-wallet-web/server/authflowrepo"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// SSOStartHandler begins single sign-on ("Or continue with") by redirecting
// to the authority with a fresh state, nonce and PKCE verifier.
func (s *Server) SSOStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.browser(w, r)
		if err != nil {
			log.Error().Err(err).Msg("SSO: could not resolve browser session")
			s.renderLoginError(w, r, apperrors.ErrInternal, loginForm{})
			return
		}
		if !b.gateway.SupportsCodeFlow() {
			http.NotFound(w, r)
			return
		}

		state := generateRandomString(32)
		flow := &authflowrepo.AuthFlowState{
			BrowserID:    b.id,
			CodeVerifier: oauth2.GenerateVerifier(),
			Nonce:        generateRandomString(32),
			ReturnURL:    safeNext(r.URL.Query().Get("next"), s.landingPath),
			CreatedAt:    time.Now(),
		}
		if err := s.deps.AuthState.Upsert(state, flow); err != nil {
			log.Error().Err(err).Msg("SSO: failed to store auth state")
			s.renderLoginError(w, r, apperrors.ErrInternal, loginForm{})
			return
		}

		authURL, err := b.gateway.AuthCodeURL(state, flow.Nonce, flow.CodeVerifier)
		if err != nil {
			log.Error().Err(err).Msg("SSO: failed to build authorization url")
			_ = s.deps.AuthState.Delete(state)
			s.renderLoginError(w, r, apperrors.ErrServiceUnavailable, loginForm{})
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// SSOCallbackHandler completes single sign-on.
func (s *Server) SSOCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		state := q.Get("state")
		code := q.Get("code")

		if errorParam := q.Get("error"); errorParam != "" {
			log.Info().Str("error", errorParam).Str("description", q.Get("error_description")).Msg("SSO: authorization failed")
			if state != "" {
				_ = s.deps.AuthState.Delete(state)
			}
			s.renderLoginError(w, r, errSSOFailed, loginForm{})
			return
		}
		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		flow, err := s.deps.AuthState.Get(state)
		if err != nil {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		// Clean up state after use
		if err := s.deps.AuthState.Delete(state); err != nil {
			log.Warn().Err(err).Msg("SSO: failed to delete auth state")
		}

		b, err := s.browser(w, r)
		if err != nil || b.id != flow.BrowserID {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		if _, err := b.gateway.AuthenticateCode(r.Context(), code, flow.CodeVerifier, flow.Nonce); err != nil {
			s.renderLoginError(w, r, err, loginForm{next: flow.ReturnURL})
			return
		}
		redirectSuccess(w, r, safeNext(flow.ReturnURL, s.landingPath))
	}
}
