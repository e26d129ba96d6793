package keys

import (
	"crypto/rand"
	"fmt"

	"github.com/andrebq/doorman/cookie"
	"github.com/urfave/cli/v2"
)

func Cmd() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Manage the secrets used to protect cookies",
		Subcommands: []*cli.Command{
			generateCmd(),
		},
	}
}

func generateCmd() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Print a new random key, suitable for the cookie secret environment variable",
		Action: func(ctx *cli.Context) error {
			k, err := cookie.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			defer k.Zero()
			_, err = fmt.Fprintln(ctx.App.Writer, k.String())
			return err
		},
	}
}
