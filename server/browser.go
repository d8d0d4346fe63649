package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-wallet-web/gateway"
	"github.com/jrsteele09/go-wallet-web/guard"
	"github.com/jrsteele09/go-wallet-web/session"
)

// browserCookieName identifies a browser, and through it a session store. It
// carries no credential: the token never leaves the server.
const browserCookieName = "wallet_client_id"

// browser is everything one request needs to act on its browser's session.
type browser struct {
	id      string
	store   *session.Store
	gateway *gateway.Gateway
	guard   *guard.Guard
}

type browserContextKey struct{}

func withBrowser(ctx context.Context, b *browser) context.Context {
	return context.WithValue(ctx, browserContextKey{}, b)
}

func browserFromContext(ctx context.Context) (*browser, bool) {
	b, ok := ctx.Value(browserContextKey{}).(*browser)
	return b, ok
}

// browser resolves the request's browser, issuing a new id cookie when the
// request has none or an unrecognisable one.
func (s *Server) browser(w http.ResponseWriter, r *http.Request) (*browser, error) {
	if b, ok := browserFromContext(r.Context()); ok {
		return b, nil
	}

	id := ""
	if cookie, err := r.Cookie(browserCookieName); err == nil {
		if parsed, err := uuid.Parse(cookie.Value); err == nil {
			id = parsed.String()
		}
	}
	if id == "" {
		id = uuid.New().String()
		s.setBrowserCookie(w, r, id, time.Time{})
	}

	store, err := s.deps.Browsers.GetOrCreate(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("[Server.browser] %w", err)
	}
	gw, err := gateway.New(s.deps.Authority, store,
		gateway.WithLimiter(s.deps.Limiter),
		gateway.WithTimeout(s.config.GetAuthTimeout()),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server.browser] %w", err)
	}
	return &browser{
		id:      id,
		store:   store,
		gateway: gw,
		guard:   guard.New(store, s.loginPath, guard.WithRevalidator(gw)),
	}, nil
}

// setBrowserCookie issues the browser id. A zero expires makes it a session
// cookie, dropped when the browser closes; otherwise it persists until then.
func (s *Server) setBrowserCookie(w http.ResponseWriter, r *http.Request, id string, expires time.Time) {
	c := &http.Cookie{
		Name:     browserCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge := int(time.Until(expires) / time.Second); !expires.IsZero() && maxAge > 0 {
		c.Expires = expires.UTC()
		c.MaxAge = maxAge
	}
	http.SetCookie(w, c)
}
