package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-wallet-web/guard"
	"github.com/rs/zerolog/log"
)

// RequireRoute runs the route guard for the request path. Paths missing
// from the route table are treated as protected.
func (s *Server) RequireRoute() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			route, ok := s.deps.Routes.Lookup(r.URL.Path)
			if !ok {
				route = guard.RouteDescriptor{Path: r.URL.Path, Protected: true}
			}

			b, err := s.browser(w, r)
			if err != nil {
				log.Error().Err(err).Str("path", r.URL.Path).Msg("could not resolve browser session")
				redirectSuccess(w, r, loginURL(s.loginPath, r.URL.RequestURI(), guard.ReasonUnavailable))
				return
			}

			d := b.guard.Check(r.Context(), route)
			if !d.Allowed {
				if d.Reason == guard.ReasonRevoked {
					b.gateway.Logout(r.Context())
				}
				log.Debug().Str("path", r.URL.Path).Str("reason", d.Reason).Msg("navigation denied")
				redirectSuccess(w, r, loginURL(d.RedirectTo, r.URL.RequestURI(), d.Reason))
				return
			}

			next(w, r.WithContext(withBrowser(r.Context(), b)))
		}
	}
}

// loginURL is the login path carrying where to go back to and why.
func loginURL(loginPath, next, reason string) string {
	q := url.Values{}
	if next != "" {
		q.Set("next", next)
	}
	if reason != "" {
		q.Set("error_code", reason)
	}
	if len(q) == 0 {
		return loginPath
	}
	return loginPath + "?" + q.Encode()
}

// safeNext only allows same-site absolute paths as post-login targets.
func safeNext(next, fallback string) string {
	if next == "" || next[0] != '/' || len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
