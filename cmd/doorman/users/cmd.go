package users

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andrebq/doorman/internal/cmdflags"
	"github.com/andrebq/doorman/passwd"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

func Cmd() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage the users allowed to log in",
		Subcommands: []*cli.Command{
			registerCmd(),
			hashCmd(),
		},
	}
}

func registerCmd() *cli.Command {
	var username string
	storeOpts := cmdflags.DefaultStoreOptions()
	return &cli.Command{
		Name:  "register",
		Usage: "Register a new user (password is read from the terminal or from stdin)",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "username",
				Aliases:     []string{"u", "user"},
				Usage:       "Name of the user to register",
				Destination: &username,
				Required:    true,
			},
		}, storeOpts.Flags()...),
		Action: func(ctx *cli.Context) error {
			hasher, err := storeOpts.NewHasher()
			if err != nil {
				return err
			}
			password, err := readPassword(ctx.App.ErrWriter, os.Stdin)
			if err != nil {
				return err
			}
			defer password.Zero()
			store, closeStore, err := storeOpts.Open(ctx.Context, hasher)
			if err != nil {
				return err
			}
			defer closeStore()
			rec, err := store.Create(ctx.Context, username, password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(ctx.App.Writer, "User %v registered with id %v\n", rec.Username, rec.ID)
			return err
		},
	}
}

func hashCmd() *cli.Command {
	storeOpts := cmdflags.DefaultStoreOptions()
	return &cli.Command{
		Name:  "hash",
		Usage: "Print the verifier for a password, to be used in a seed file",
		Flags: storeOpts.Flags(),
		Action: func(ctx *cli.Context) error {
			hasher, err := storeOpts.NewHasher()
			if err != nil {
				return err
			}
			password, err := readPassword(ctx.App.ErrWriter, os.Stdin)
			if err != nil {
				return err
			}
			defer password.Zero()
			verifier, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(ctx.App.Writer, verifier)
			return err
		},
	}
}

// readPassword reads without echo when stdin is a terminal, otherwise it
// takes the first line of stdin.
func readPassword(prompt io.Writer, stdin *os.File) (passwd.PlainText, error) {
	fd := int(stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "Password: ")
		buf, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return nil, fmt.Errorf("unable to read password, cause %w", err)
		}
		if len(buf) == 0 {
			return nil, errors.New("missing password")
		}
		return passwd.PlainText(buf), nil
	}
	return firstLine(stdin)
}

func firstLine(in io.Reader) (passwd.PlainText, error) {
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if sc.Err() != nil {
			return nil, sc.Err()
		}
		return nil, errors.New("missing password from stdin")
	}
	password := strings.TrimRight(sc.Text(), "\r")
	if len(password) == 0 {
		return nil, errors.New("missing password from stdin")
	}
	return passwd.PlainText(password), nil
}
