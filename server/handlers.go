package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json"
)

// IndexHandler sends visitors to the landing page; the guard decides from
// there.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectSuccess(w, r, s.landingPath)
	}
}

// HealthHandler reports liveness and the number of live browser sessions.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"browsers": s.deps.Browsers.Len(),
		}); err != nil {
			log.Err(err).Msg("failed to write health response")
		}
	}
}
