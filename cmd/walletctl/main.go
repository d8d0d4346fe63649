package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/jrsteele09/go-wallet-web/cmd/walletctl/internal/commands"
	"github.com/jrsteele09/go-wallet-web/internal/logger"
	"github.com/rs/zerolog"
)

var (
	version = "dev"
	cli     struct {
		Login  commands.LoginCmd  `cmd:"" help:"Sign in and keep the session for later commands"`
		Status commands.StatusCmd `cmd:"" help:"Show the current session"`
		Logout commands.LogoutCmd `cmd:"" help:"End the current session"`
		Get    commands.GetCmd    `cmd:"" help:"GET a URL with the session's bearer token"`

		Authority    string `help:"Base URL of the identity authority" default:"http://localhost:8080" env:"WALLETCTL_AUTHORITY"`
		ClientID     string `help:"OAuth2 client id" default:"walletctl" env:"WALLETCTL_CLIENT_ID"`
		ClientSecret string `help:"OAuth2 client secret for confidential clients" env:"WALLETCTL_CLIENT_SECRET"`
		StateFile    string `help:"Where the session is kept between invocations" default:"~/.walletctl/session.db" type:"path" env:"WALLETCTL_STATE_FILE"`
		Debug        bool   `help:"Enable debug mode."`
		Version      kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Description("Command line client for the wallet."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	l := logger.Setup(cli.Debug)
	if !cli.Debug {
		l = l.Level(zerolog.WarnLevel)
	}
	logger.SetGlobal(l)
	err := cmd.Run(&commands.Globals{
		Debug:        cli.Debug,
		Version:      version,
		Authority:    cli.Authority,
		ClientID:     cli.ClientID,
		ClientSecret: cli.ClientSecret,
		StateFile:    cli.StateFile,
		Out:          os.Stdout,
	})
	cmd.FatalIfErrorf(err)
}
