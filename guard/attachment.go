package guard

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/rs/zerolog/log"
)

// State is an attachment's lifecycle position. Revoked and Detached are
// terminal.
type State int

const (
	Active State = iota
	Revoked
	Detached
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Revoked:
		return "revoked"
	case Detached:
		return "detached"
	}
	return "unknown"
}

// Attachment ties a displayed protected view to the session store so the
// view is revoked as soon as the session stops being valid.
type Attachment struct {
	mu          sync.Mutex
	guard       *Guard
	route       RouteDescriptor
	state       State
	onRevoke    func()
	unsubscribe session.Unsubscribe
	counted     bool
}

// Attach subscribes to session changes while route is displayed. onRevoke
// runs at most once, on the first notification after which the session is
// no longer valid. Attachments to unprotected routes never revoke.
func (g *Guard) Attach(route RouteDescriptor, onRevoke func()) *Attachment {
	a := &Attachment{
		guard:    g,
		route:    route,
		state:    Active,
		onRevoke: onRevoke,
	}
	if !route.Protected || g.state == nil {
		return a
	}

	a.mu.Lock()
	a.unsubscribe = g.state.Subscribe(a.onSessionEvent)
	a.counted = true
	a.mu.Unlock()
	g.metrics.ActiveAttachments.Add(context.Background(), 1)
	return a
}

// State returns the current lifecycle state.
func (a *Attachment) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Route returns the attached route.
func (a *Attachment) Route() RouteDescriptor {
	return a.route
}

// Detach ends the attachment without revoking. It is a no-op once the
// attachment has left Active.
func (a *Attachment) Detach() {
	if a.leave(Detached) {
		log.Debug().Str("path", a.route.Path).Msg("view detached")
	}
}

func (a *Attachment) onSessionEvent(session.Event) {
	if a.State() != Active || a.guard.isValid() {
		return
	}
	if !a.leave(Revoked) {
		return
	}
	a.guard.metrics.RevocationsTotal.Add(context.Background(), 1)
	log.Info().Str("path", a.route.Path).Msg("view revoked")
	if a.onRevoke != nil {
		a.onRevoke()
	}
}

// leave moves an active attachment to a terminal state and reports whether
// this call made the transition.
func (a *Attachment) leave(to State) bool {
	a.mu.Lock()
	if a.state != Active {
		a.mu.Unlock()
		return false
	}
	a.state = to
	unsubscribe, counted := a.unsubscribe, a.counted
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if counted {
		a.guard.metrics.ActiveAttachments.Add(context.Background(), -1)
	}
	return true
}
