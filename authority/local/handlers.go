package local

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-wallet-web/clients"
	"github.com/jrsteele09/go-wallet-web/gateway"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/rs/zerolog/log"
)

// Endpoint paths served by Handler.
const (
	RouteOAuth2Token      = "/oauth2/token"
	RouteOAuth2Introspect = "/oauth2/introspect"
	RouteOAuth2Revoke     = "/oauth2/revoke"
)

const contentTypeJSON = "application/json"

// TokenResponse is the RFC 6749 token endpoint response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"` // seconds; omitted for non-expiring tokens
}

// Handler serves the authority over HTTP: the password grant, RFC 7662
// introspection and RFC 7009 revocation. Every endpoint requires client
// authentication.
type Handler struct {
	authority *Authority
	clients   clients.Repo
	mux       *http.ServeMux
}

// NewHandler routes the authority endpoints.
func NewHandler(authority *Authority, clientRepo clients.Repo) *Handler {
	h := &Handler{
		authority: authority,
		clients:   clientRepo,
		mux:       http.NewServeMux(),
	}
	h.mux.HandleFunc("POST "+RouteOAuth2Token, h.Token())
	h.mux.HandleFunc("POST "+RouteOAuth2Introspect, h.Introspect())
	h.mux.HandleFunc("POST "+RouteOAuth2Revoke, h.Revoke())
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Token exchanges a username and password for an access token
func (h *Handler) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}
		if _, err := h.authenticateClient(r); err != nil {
			writeClientError(w)
			return
		}
		if grantType := r.PostFormValue("grant_type"); grantType != "password" {
			writeJSONError(w, "unsupported_grant_type", "only the password grant is supported", http.StatusBadRequest)
			return
		}

		creds := gateway.Credentials{
			Identifier: r.PostFormValue("username"),
			Secret:     r.PostFormValue("password"),
		}
		grant, err := h.authority.CheckCredentials(r.Context(), creds)
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidCredentials) {
				writeJSONError(w, "invalid_grant", "invalid username or password", http.StatusBadRequest)
				return
			}
			log.Error().Err(err).Msg("token endpoint failed")
			writeJSONError(w, "server_error", "authority unavailable", http.StatusInternalServerError)
			return
		}

		resp := TokenResponse{AccessToken: grant.Token, TokenType: "Bearer"}
		if grant.ExpiresAt != nil {
			resp.ExpiresIn = int(grant.ExpiresAt.Sub(grant.IssuedAt).Seconds())
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Introspect introspects tokens
func (h *Handler) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}
		if _, err := h.authenticateClient(r); err != nil {
			writeClientError(w)
			return
		}
		token := r.PostFormValue("token")
		if token == "" {
			writeJSONError(w, "invalid_request", "token parameter is required", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(h.authority.Introspect(token))
	}
}

// Revoke revokes tokens
func (h *Handler) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}
		if _, err := h.authenticateClient(r); err != nil {
			writeClientError(w)
			return
		}
		token := r.PostFormValue("token")
		if token == "" {
			writeJSONError(w, "invalid_request", "token parameter is required", http.StatusBadRequest)
			return
		}
		if err := h.authority.Revoke(r.Context(), token); err != nil {
			log.Error().Err(err).Msg("revocation failed")
			writeJSONError(w, "server_error", "revocation failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// authenticateClient accepts HTTP Basic credentials or client_id and
// client_secret form parameters.
func (h *Handler) authenticateClient(r *http.Request) (*clients.Client, error) {
	id, secret, ok := r.BasicAuth()
	if ok {
		var err error
		if id, err = url.QueryUnescape(id); err != nil {
			return nil, apperrors.ErrInvalidClient
		}
		if secret, err = url.QueryUnescape(secret); err != nil {
			return nil, apperrors.ErrInvalidClient
		}
	} else {
		id = r.PostFormValue("client_id")
		secret = r.PostFormValue("client_secret")
	}
	if id == "" {
		return nil, apperrors.ErrInvalidClient
	}

	client, err := h.clients.Get(id)
	if err != nil {
		return nil, apperrors.ErrInvalidClient
	}
	if !client.Authenticate(secret) {
		return nil, apperrors.ErrInvalidClient
	}
	return client, nil
}

func writeClientError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="wallet"`)
	writeJSONError(w, "invalid_client", "client authentication failed", http.StatusUnauthorized)
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
