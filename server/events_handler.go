package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-wallet-web/guard"
	"github.com/rs/zerolog/log"
)

// EventsHandler streams session events to an open dashboard as server-sent
// events. The stream sends a single "revoked" event and ends as soon as the
// browser's session stops being valid; the page then navigates to the login
// path. Closing the page detaches without revoking.
func (s *Server) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := browserFromContext(r.Context())
		if !ok {
			http.Error(w, "401 - Unauthorized", http.StatusUnauthorized)
			return
		}
		route, ok := s.deps.Routes.Lookup(r.URL.Path)
		if !ok {
			route = guard.RouteDescriptor{Path: r.URL.Path, Protected: true}
		}

		revoked := make(chan struct{})
		attachment := b.guard.Attach(route, func() { close(revoked) })
		defer attachment.Detach()

		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		if err := writeComment(w, rc, "connected"); err != nil {
			log.Debug().Err(err).Msg("events stream not flushable")
			return
		}

		// the session may have ended between the guard check and Attach
		if !b.store.IsValid() {
			s.sendRevoked(w, rc)
			return
		}

		keepAlive := time.NewTicker(s.config.GetEventsKeepAlive())
		defer keepAlive.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-revoked:
				s.sendRevoked(w, rc)
				return
			case <-keepAlive.C:
				s.deps.Browsers.Touch(b.id)
				if err := writeComment(w, rc, "keepalive"); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) sendRevoked(w http.ResponseWriter, rc *http.ResponseController) {
	payload, _ := json.Marshal(map[string]string{"redirect": loginURL(s.loginPath, s.landingPath, guard.ReasonRevoked)})
	if _, err := fmt.Fprintf(w, "event: revoked\ndata: %s\n\n", payload); err != nil {
		return
	}
	_ = rc.Flush()
}

func writeComment(w http.ResponseWriter, rc *http.ResponseController, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	return rc.Flush()
}
