package commands

import (
	"context"
	"fmt"
	"time"
)

// StatusCmd shows the current session, optionally confirming it with the
// authority.
type StatusCmd struct {
	Check bool `help:"Revalidate the token with the authority"`
}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	w, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	w.store.Expire()
	sess, ok := w.store.Get()
	if !ok {
		fmt.Fprintln(globals.Out, "Not logged in.")
		return nil
	}

	if s.Check {
		valid, err := w.gateway.Revalidate(ctx, sess)
		if err != nil {
			return fmt.Errorf("could not check session: %w", err)
		}
		if !valid {
			w.gateway.Logout(ctx)
			fmt.Fprintln(globals.Out, "Session was revoked. Not logged in.")
			return nil
		}
	}

	fmt.Fprintf(globals.Out, "Logged in as %s since %s\n", sess.SubjectID, sess.IssuedAt.Local().Format(time.RFC1123))
	if left, ok := sess.TimeLeft(time.Now()); ok {
		fmt.Fprintf(globals.Out, "Session expires in %s\n", left.Round(time.Second))
	} else {
		fmt.Fprintln(globals.Out, "Session does not expire")
	}
	return nil
}
