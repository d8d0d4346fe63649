package commands

import (
	"context"
	"fmt"
)

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	w, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	if _, ok := w.store.Get(); !ok {
		fmt.Fprintln(globals.Out, "Not logged in.")
		return nil
	}
	w.gateway.Logout(ctx)
	fmt.Fprintln(globals.Out, "Logged out.")
	return nil
}
