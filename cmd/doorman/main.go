package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/andrebq/doorman/cmd/doorman/keys"
	"github.com/andrebq/doorman/cmd/doorman/serve"
	"github.com/andrebq/doorman/cmd/doorman/users"
	"github.com/andrebq/doorman/internal/logutil"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	logLevel := "info"
	app := &cli.App{
		Name:  "doorman",
		Usage: "Username and password login in front of protected resources",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Minimum level of log messages (trace, debug, info, warn, error)",
				EnvVars:     []string{"DOORMAN_LOG_LEVEL"},
				Value:       logLevel,
				Destination: &logLevel,
			},
		},
		Before: func(ctx *cli.Context) error {
			return logutil.SetLevel(logLevel)
		},
		Commands: []*cli.Command{
			serve.Cmd(),
			users.Cmd(),
			keys.Cmd(),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Error().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}
