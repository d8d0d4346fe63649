package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/go-wallet-web/authority/local"
	"github.com/jrsteele09/go-wallet-web/authority/remote"
	"github.com/jrsteele09/go-wallet-web/gateway"
	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/jrsteele09/go-wallet-web/session/boltslot"
)

// sessionKey is the single slot a walletctl state file holds.
const sessionKey = "default"

type Globals struct {
	Debug        bool
	Version      string
	Authority    string
	ClientID     string
	ClientSecret string
	StateFile    string
	Out          io.Writer
}

// wallet is the CLI's one session store and the gateway writing to it.
type wallet struct {
	db      *boltslot.DB
	store   *session.Store
	gateway *gateway.Gateway
}

func (g *Globals) open(ctx context.Context) (*wallet, error) {
	db, err := boltslot.Open(g.StateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}

	store := session.NewStore(session.WithSlot(db.Slot(sessionKey)))
	if err := store.Rehydrate(ctx); err != nil {
		store.Close()
		db.Close()
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	base := strings.TrimSuffix(g.Authority, "/")
	authority, err := remote.New(remote.Config{
		ClientID:         g.ClientID,
		ClientSecret:     g.ClientSecret,
		TokenURL:         base + local.RouteOAuth2Token,
		IntrospectionURL: base + local.RouteOAuth2Introspect,
		RevocationURL:    base + local.RouteOAuth2Revoke,
	})
	if err != nil {
		store.Close()
		db.Close()
		return nil, err
	}
	gw, err := gateway.New(authority, store)
	if err != nil {
		store.Close()
		db.Close()
		return nil, err
	}
	return &wallet{db: db, store: store, gateway: gw}, nil
}

func (w *wallet) Close() error {
	w.store.Close()
	return w.db.Close()
}
