package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/jrsteele09/go-wallet-web/internal/telemetry"
	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 10 * time.Second

const (
	methodPassword = "password"
	methodCode     = "code"
)

// SessionStore is the part of session.Store the gateway writes to.
type SessionStore interface {
	Get() (session.Session, bool)
	Reserve() session.Ticket
	Commit(t session.Ticket, s session.Session) error
	Clear()
}

var _ SessionStore = (*session.Store)(nil)

// Gateway exchanges credentials for sessions. It is the only writer of the
// store it is bound to, apart from expiry detection.
type Gateway struct {
	authority Authority
	store     SessionStore
	limiter   AttemptLimiter
	timeout   time.Duration
	nowTime   func() time.Time
	metrics   *telemetry.Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLimiter shares a limiter between gateways. Each gateway otherwise gets
// its own in-memory limiter with the default policy.
func WithLimiter(limiter AttemptLimiter) Option {
	return func(g *Gateway) {
		g.limiter = limiter
	}
}

// WithTimeout bounds every authority call.
func WithTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithNowTime sets the clock used for issue times and the failure window.
func WithNowTime(nowTime func() time.Time) Option {
	return func(g *Gateway) {
		g.nowTime = nowTime
	}
}

// New binds an authority to a session store.
func New(authority Authority, store SessionStore, opts ...Option) (*Gateway, error) {
	if authority == nil {
		return nil, fmt.Errorf("[gateway.New] authority is required")
	}
	if store == nil {
		return nil, fmt.Errorf("[gateway.New] store is required")
	}
	g := &Gateway{
		authority: authority,
		store:     store,
		timeout:   DefaultTimeout,
		nowTime:   time.Now,
		metrics:   telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.limiter == nil {
		g.limiter = NewMemoryLimiter(DefaultMaxAttempts, DefaultAttemptWindow)
	}
	return g, nil
}

// Authenticate checks creds with the authority and, on success, writes the
// resulting session into the store. Errors wrap ErrInvalidCredentials,
// ErrServiceUnavailable or are a *RateLimitedError.
func (g *Gateway) Authenticate(ctx context.Context, creds Credentials) (session.Session, error) {
	key := NormalizeIdentifier(creds.Identifier)
	if key == "" || creds.Secret == "" {
		g.metrics.RecordLogin(ctx, methodPassword, telemetry.OutcomeInvalid)
		return session.Session{}, fmt.Errorf("[Gateway.Authenticate] %w", apperrors.ErrInvalidCredentials)
	}

	attempt, retryAfter, limited, err := g.limiter.Reserve(ctx, key, g.nowTime())
	if err != nil {
		g.metrics.RecordLogin(ctx, methodPassword, telemetry.OutcomeUnavailable)
		return session.Session{}, fmt.Errorf("[Gateway.Authenticate] %w: limiter: %v", apperrors.ErrServiceUnavailable, err)
	}
	if limited {
		g.metrics.RecordLogin(ctx, methodPassword, telemetry.OutcomeRateLimited)
		log.Warn().Str("identifier", key).Dur("retry_after", retryAfter).Msg("login rate limited")
		return session.Session{}, &apperrors.RateLimitedError{RetryAfter: retryAfter}
	}

	ticket := g.store.Reserve()
	grant, err := callAuthority(ctx, g, "check_credentials", func(ctx context.Context) (Grant, error) {
		return g.authority.CheckCredentials(ctx, creds)
	})
	settleCtx := context.WithoutCancel(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			if lerr := g.limiter.Fail(settleCtx, attempt); lerr != nil {
				log.Error().Err(lerr).Str("identifier", key).Msg("failed to record login failure")
			}
			g.metrics.RecordLogin(ctx, methodPassword, telemetry.OutcomeInvalid)
			return session.Session{}, fmt.Errorf("[Gateway.Authenticate] %w", apperrors.ErrInvalidCredentials)
		}
		if lerr := g.limiter.Release(settleCtx, attempt); lerr != nil {
			log.Error().Err(lerr).Str("identifier", key).Msg("failed to release login attempt")
		}
		g.metrics.RecordLogin(ctx, methodPassword, telemetry.OutcomeUnavailable)
		log.Warn().Err(err).Str("identifier", key).Msg("identity authority unavailable")
		return session.Session{}, fmt.Errorf("[Gateway.Authenticate] %w", asUnavailable(err))
	}

	if err := g.limiter.Reset(settleCtx, key); err != nil {
		log.Error().Err(err).Str("identifier", key).Msg("failed to reset login failures")
	}
	return g.commit(ctx, methodPassword, ticket, grant)
}

// AuthCodeURL returns the authority's single sign-on URL.
func (g *Gateway) AuthCodeURL(state, nonce, verifier string) (string, error) {
	flow, ok := g.authority.(CodeFlow)
	if !ok {
		return "", fmt.Errorf("[Gateway.AuthCodeURL] %w", apperrors.ErrUnsupported)
	}
	return flow.AuthCodeURL(state, nonce, verifier)
}

// SupportsCodeFlow reports whether single sign-on is available.
func (g *Gateway) SupportsCodeFlow() bool {
	_, ok := g.authority.(CodeFlow)
	return ok
}

// AuthenticateCode completes single sign-on and writes the session.
func (g *Gateway) AuthenticateCode(ctx context.Context, code, verifier, nonce string) (session.Session, error) {
	flow, ok := g.authority.(CodeFlow)
	if !ok {
		return session.Session{}, fmt.Errorf("[Gateway.AuthenticateCode] %w", apperrors.ErrUnsupported)
	}
	if code == "" {
		return session.Session{}, fmt.Errorf("[Gateway.AuthenticateCode] %w: code is required", apperrors.ErrInvalidCredentials)
	}

	ticket := g.store.Reserve()
	grant, err := callAuthority(ctx, g, "exchange_code", func(ctx context.Context) (Grant, error) {
		return flow.ExchangeCode(ctx, code, verifier, nonce)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			g.metrics.RecordLogin(ctx, methodCode, telemetry.OutcomeInvalid)
			return session.Session{}, fmt.Errorf("[Gateway.AuthenticateCode] %w", err)
		}
		g.metrics.RecordLogin(ctx, methodCode, telemetry.OutcomeUnavailable)
		return session.Session{}, fmt.Errorf("[Gateway.AuthenticateCode] %w", asUnavailable(err))
	}
	return g.commit(ctx, methodCode, ticket, grant)
}

// Revalidate asks the authority whether sess's token is still good. It never
// touches the store; locally expired sessions are invalid without a call.
func (g *Gateway) Revalidate(ctx context.Context, sess session.Session) (bool, error) {
	if sess.Token == "" || !sess.ValidAt(g.nowTime()) {
		g.metrics.RecordRevalidation(ctx, telemetry.OutcomeRevoked)
		return false, nil
	}
	valid, err := callAuthority(ctx, g, "revalidate", func(ctx context.Context) (bool, error) {
		return g.authority.Revalidate(ctx, sess.Token)
	})
	if err != nil {
		g.metrics.RecordRevalidation(ctx, telemetry.OutcomeUnavailable)
		return false, fmt.Errorf("[Gateway.Revalidate] %w", asUnavailable(err))
	}
	if !valid {
		g.metrics.RecordRevalidation(ctx, telemetry.OutcomeRevoked)
		return false, nil
	}
	g.metrics.RecordRevalidation(ctx, telemetry.OutcomeSuccess)
	return true, nil
}

// RevalidateCurrent revalidates whatever session the store holds.
func (g *Gateway) RevalidateCurrent(ctx context.Context) (bool, error) {
	sess, ok := g.store.Get()
	if !ok {
		return false, nil
	}
	return g.Revalidate(ctx, sess)
}

// Current returns the bound store's session.
func (g *Gateway) Current() (session.Session, bool) {
	return g.store.Get()
}

// Logout clears the store and then revokes the token at the authority if it
// supports revocation. Revocation failures are logged only.
func (g *Gateway) Logout(ctx context.Context) {
	sess, ok := g.store.Get()
	g.store.Clear()
	g.metrics.LogoutsTotal.Add(ctx, 1)
	if ok {
		g.revoke(ctx, sess.Token)
	}
}

func (g *Gateway) commit(ctx context.Context, method string, ticket session.Ticket, grant Grant) (session.Session, error) {
	sess := session.Session{
		SubjectID: grant.SubjectID,
		Token:     grant.Token,
		IssuedAt:  grant.IssuedAt,
		ExpiresAt: grant.ExpiresAt,
	}
	if sess.IssuedAt.IsZero() {
		sess.IssuedAt = g.nowTime()
	}

	if err := g.store.Commit(ticket, sess); err != nil {
		if errors.Is(err, apperrors.ErrStaleSession) {
			g.metrics.RecordLogin(ctx, method, telemetry.OutcomeStale)
			log.Info().Str("subject_id", sess.SubjectID).Msg("logout arrived during login, discarding new session")
			g.revoke(ctx, sess.Token)
		} else {
			g.metrics.RecordLogin(ctx, method, telemetry.OutcomeUnavailable)
		}
		return session.Session{}, fmt.Errorf("[Gateway.commit] %w", err)
	}

	g.metrics.RecordLogin(ctx, method, telemetry.OutcomeSuccess)
	log.Info().Str("subject_id", sess.SubjectID).Str("method", method).Msg("session established")
	return sess, nil
}

func (g *Gateway) revoke(ctx context.Context, token string) {
	revoker, ok := g.authority.(Revoker)
	if !ok {
		return
	}
	_, err := callAuthority(context.WithoutCancel(ctx), g, "revoke", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, revoker.Revoke(ctx, token)
	})
	if err != nil {
		log.Warn().Err(err).Msg("token revocation failed")
	}
}

func callAuthority[T any](ctx context.Context, g *Gateway, op string, fn func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	v, err := callWithTimeout(ctx, g.timeout, fn)
	g.metrics.AuthorityCallDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	if err != nil {
		log.Debug().Err(err).Str("op", op).Dur("duration", time.Since(started)).Msg("authority call failed")
	}
	return v, err
}

func asUnavailable(err error) error {
	if errors.Is(err, apperrors.ErrServiceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrServiceUnavailable, err)
}
