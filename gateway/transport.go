package gateway

import (
	"net/http"

	"github.com/jrsteele09/go-wallet-web/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// Transport attaches the current session token to outgoing requests and
// clears the store when an authenticated call is answered with 401.
type Transport struct {
	Base  http.RoundTripper
	Store SessionStore
}

var _ http.RoundTripper = (*Transport)(nil)

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	sess, ok := t.Store.Get()
	if !ok {
		return base.RoundTrip(req)
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+sess.Token)
	resp, err := base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// a concurrent login may already have replaced the rejected token
		if current, ok := t.Store.Get(); ok && current.Token == sess.Token {
			t.Store.Clear()
			telemetry.GetMetrics().UnauthorizedClearTotal.Add(req.Context(), 1)
			log.Info().Str("subject_id", sess.SubjectID).Str("host", req.URL.Host).Msg("session cleared after 401")
		}
	}
	return resp, nil
}
