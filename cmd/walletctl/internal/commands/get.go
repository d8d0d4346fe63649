package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-wallet-web/gateway"
)

var errNotLoggedIn = errors.New("not logged in, run walletctl login first")

// GetCmd fetches a URL as the logged-in user. A 401 answer ends the session.
type GetCmd struct {
	URL     string        `arg:"" help:"URL to fetch"`
	Timeout time.Duration `help:"Request timeout" default:"30s"`
}

func (g *GetCmd) Run(ctx context.Context, globals *Globals) error {
	w, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	w.store.Expire()
	if !w.store.IsValid() {
		return errNotLoggedIn
	}

	client := &http.Client{
		Timeout:   g.Timeout,
		Transport: &gateway.Transport{Store: w.store},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: session rejected, logged out", resp.Status)
	}
	if _, err := io.Copy(globals.Out, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return nil
}
