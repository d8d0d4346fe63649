package guard

import (
	"context"

	"github.com/jrsteele09/go-wallet-web/internal/telemetry"
	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/rs/zerolog/log"
)

const DefaultLoginPath = "/login"

// Reasons carried on a Decision.
const (
	ReasonPublic       = "public"
	ReasonSessionValid = "session_valid"
	ReasonNoSession    = "no_session"
	ReasonRevoked      = "revoked"
	ReasonUnavailable  = "unavailable"
)

// Decision is computed fresh for every navigation.
type Decision struct {
	Allowed    bool
	RedirectTo string
	Reason     string
}

// SessionState is the read side of a session store.
type SessionState interface {
	IsValid() bool
	Get() (session.Session, bool)
	Subscribe(fn session.Listener) session.Unsubscribe
}

var _ SessionState = (*session.Store)(nil)

// Revalidator confirms a session token with the identity authority.
type Revalidator interface {
	Revalidate(ctx context.Context, s session.Session) (bool, error)
}

// Guard decides access to routes from a session store. It never returns
// errors; anything it cannot decide is denied.
type Guard struct {
	state       SessionState
	loginPath   string
	revalidator Revalidator
	metrics     *telemetry.Metrics
}

// Option configures a Guard.
type Option func(*Guard)

// WithRevalidator enables authority checks on sensitive routes.
func WithRevalidator(r Revalidator) Option {
	return func(g *Guard) {
		g.revalidator = r
	}
}

// New returns a guard over state that redirects denied navigations to
// loginPath.
func New(state SessionState, loginPath string, opts ...Option) *Guard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	g := &Guard{
		state:     state,
		loginPath: loginPath,
		metrics:   telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate decides access to route from the store's validity right now.
func (g *Guard) Evaluate(route RouteDescriptor) Decision {
	if !route.Protected {
		return Decision{Allowed: true, Reason: ReasonPublic}
	}
	if g.isValid() {
		return Decision{Allowed: true, Reason: ReasonSessionValid}
	}
	return g.deny(ReasonNoSession)
}

// Check is Evaluate plus a revalidation round trip for sensitive routes. A
// negative answer is reported as ReasonRevoked, a failed one as
// ReasonUnavailable; both deny.
func (g *Guard) Check(ctx context.Context, route RouteDescriptor) (d Decision) {
	d = g.Evaluate(route)
	if !d.Allowed || !route.Sensitive || g.revalidator == nil {
		return d
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("path", route.Path).Msg("revalidation panicked, denying")
			d = g.deny(ReasonUnavailable)
		}
	}()

	sess, ok := g.state.Get()
	if !ok {
		return g.deny(ReasonNoSession)
	}
	valid, err := g.revalidator.Revalidate(ctx, sess)
	if err != nil {
		log.Warn().Err(err).Str("path", route.Path).Msg("could not revalidate session")
		return g.deny(ReasonUnavailable)
	}
	if !valid {
		return g.deny(ReasonRevoked)
	}
	return d
}

// LoginPath is where denied navigations are sent.
func (g *Guard) LoginPath() string {
	return g.loginPath
}

func (g *Guard) deny(reason string) Decision {
	return Decision{Allowed: false, RedirectTo: g.loginPath, Reason: reason}
}

// isValid fails closed on a missing or panicking store.
func (g *Guard) isValid() (valid bool) {
	if g.state == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("session validity check panicked, denying")
			valid = false
		}
	}()
	return g.state.IsValid()
}
