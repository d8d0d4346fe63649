package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-wallet-web/gateway"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
)

// LoginCmd exchanges a password for a session.
type LoginCmd struct {
	Identifier string `arg:"" help:"Email address or username"`
	Password   string `help:"Password" required:"" env:"WALLETCTL_PASSWORD"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	w, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	sess, err := w.gateway.Authenticate(ctx, gateway.Credentials{Identifier: l.Identifier, Secret: l.Password})
	if err != nil {
		return fmt.Errorf("login failed: %s", apperrors.UserMessage(err))
	}

	fmt.Fprintf(globals.Out, "Logged in as %s\n", sess.SubjectID)
	if sess.ExpiresAt != nil {
		fmt.Fprintf(globals.Out, "Session expires %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}
