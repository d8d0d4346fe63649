package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/jrsteele09/go-wallet-web/authority/local"
	"github.com/jrsteele09/go-wallet-web/authority/remote"
	fakeclientrepo "github.com/jrsteele09/go-wallet-web/clients/fakerepo"
	"github.com/jrsteele09/go-wallet-web/gateway"
	"github.com/jrsteele09/go-wallet-web/gateway/redislimiter"
	"github.com/jrsteele09/go-wallet-web/guard"
	"github.com/jrsteele09/go-wallet-web/internal/config"
	"github.com/jrsteele09/go-wallet-web/server"
	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/jrsteele09/go-wallet-web/session/boltslot"
	"github.com/jrsteele09/go-wallet-web/session/memslot"
	"github.com/jrsteele09/go-wallet-web/session/redisslot"
	"github.com/jrsteele09/go-wallet-web/users"
	fakeuserrepo "github.com/jrsteele09/go-wallet-web/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const tokenAudience = "wallet"

// app is the assembled web server and the resources it owns.
type app struct {
	server   *server.Server
	browsers *session.Registry
	redis    *redis.Client
	closers  []func() error
}

func newApp(ctx context.Context, c config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	deps := server.Deps{}
	switch c.GetAuthority() {
	case "local":
		deps.Authority, deps.AuthorityEndpoints, deps.Users, err = newLocalAuthority(c)
	case "remote":
		deps.Authority, err = newRemoteAuthority(ctx, c)
	default:
		err = fmt.Errorf("unknown AUTHORITY %q, want local or remote", c.GetAuthority())
	}
	if err != nil {
		return nil, err
	}

	slotFor, err := a.slots(ctx, c)
	if err != nil {
		return nil, err
	}
	a.browsers = session.NewRegistry(func(ctx context.Context, id string) (*session.Store, error) {
		store := session.NewStore(session.WithSlot(slotFor(id)))
		if err := store.Rehydrate(ctx); err != nil {
			// an unreadable record leaves the browser logged out
			log.Warn().Err(err).Str("browser_id", id).Msg("could not rehydrate session")
		}
		return store, nil
	})
	a.closers = append(a.closers, func() error {
		a.browsers.Close()
		return nil
	})
	deps.Browsers = a.browsers

	if deps.Limiter, err = a.limiter(ctx, c); err != nil {
		return nil, err
	}

	if file := c.GetRouteTableFile(); file != "" {
		if deps.Routes, err = guard.LoadTableFile(file); err != nil {
			return nil, err
		}
	}

	if a.server, err = server.New(c, deps); err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases everything in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil
}

func newLocalAuthority(c config.Config) (gateway.Authority, http.Handler, users.UserRepo, error) {
	userRepo := fakeuserrepo.NewFakeUserRepo()
	clientRepo := fakeclientrepo.NewFakeClientRepo()
	if _, err := server.InitialiseSystem(c, userRepo, clientRepo); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise system: %w", err)
	}

	secret := []byte(c.GetTokenSecret())
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		log.Warn().Msg("TOKEN_SECRET not set, sessions will not survive a restart")
	}
	tokens, err := local.NewTokenIssuer(secret, c.GetTokenIssuer(), tokenAudience, c.GetTokenTTL())
	if err != nil {
		return nil, nil, nil, err
	}
	authority, err := local.New(userRepo, tokens)
	if err != nil {
		return nil, nil, nil, err
	}

	var endpoints http.Handler
	if c.GetExposeAuthorityEndpoints() {
		endpoints = local.NewHandler(authority, clientRepo)
	}
	return authority, endpoints, userRepo, nil
}

func newRemoteAuthority(ctx context.Context, c config.Config) (gateway.Authority, error) {
	cfg := remote.Config{
		ClientID:         c.GetClientID(),
		ClientSecret:     c.GetClientSecret(),
		TokenURL:         c.GetTokenURL(),
		IntrospectionURL: c.GetIntrospectionURL(),
		RevocationURL:    c.GetRevocationURL(),
		RedirectURL:      c.GetBaseURL() + server.RouteCallback,
	}

	var (
		authority *remote.Authority
		err       error
	)
	if issuer := c.GetOIDCIssuer(); issuer != "" {
		authority, err = remote.Discover(ctx, issuer, cfg)
	} else {
		authority, err = remote.New(cfg)
	}
	if err != nil {
		return nil, err
	}

	sso, err := authority.SSO()
	if err != nil {
		log.Info().Err(err).Msg("single sign-on disabled")
		return authority, nil
	}
	return sso, nil
}

// slots picks where browser sessions are persisted.
func (a *app) slots(ctx context.Context, c config.Config) (func(string) session.Slot, error) {
	switch c.GetSessionSlot() {
	case "memory":
		return memslot.NewBucket().Slot, nil
	case "bolt":
		db, err := boltslot.Open(filepath.Join(c.GetDataFolder(), "sessions.db"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db.Slot, nil
	case "redis":
		client, err := a.redisClient(ctx, c)
		if err != nil {
			return nil, err
		}
		return redisslot.New(client).Slot, nil
	}
	return nil, fmt.Errorf("unknown SESSION_SLOT %q, want memory, bolt or redis", c.GetSessionSlot())
}

func (a *app) limiter(ctx context.Context, c config.Config) (gateway.AttemptLimiter, error) {
	switch c.GetRateLimiter() {
	case "memory":
		return gateway.NewMemoryLimiter(c.GetMaxLoginAttempts(), c.GetLoginAttemptWindow()), nil
	case "redis":
		client, err := a.redisClient(ctx, c)
		if err != nil {
			return nil, err
		}
		return redislimiter.New(client, c.GetMaxLoginAttempts(), c.GetLoginAttemptWindow()), nil
	}
	return nil, fmt.Errorf("unknown RATE_LIMITER %q, want memory or redis", c.GetRateLimiter())
}

// redisClient is shared by the slot and the limiter.
func (a *app) redisClient(ctx context.Context, c config.Config) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	opts, err := redis.ParseURL(c.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("redis ping: %w", err), client.Close())
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}
