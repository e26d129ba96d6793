package cmdflags

import (
	"context"
	"fmt"

	"github.com/andrebq/doorman/credentials"
	"github.com/andrebq/doorman/credentials/pgstore"
	"github.com/andrebq/doorman/passwd"
	"github.com/urfave/cli/v2"
)

type (
	// CredentialStore is what the commands need from a credential backend.
	CredentialStore interface {
		credentials.Store
		credentials.Importer
	}

	// StoreOptions groups the flags that select and open a credential store.
	StoreOptions struct {
		Kind              string
		DB                string
		DatabaseURL       string
		Hasher            string
		BcryptCost        int
		MinPasswordLength int
	}
)

func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		Kind:              "sqlite",
		DB:                "doorman.db",
		Hasher:            "bcrypt",
		BcryptCost:        passwd.MinBcryptCost,
		MinPasswordLength: credentials.DefaultMinPasswordLength,
	}
}

func (o *StoreOptions) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Credential store to use: memory, sqlite or postgres",
			EnvVars:     []string{"DOORMAN_STORE"},
			Value:       o.Kind,
			Destination: &o.Kind,
		},
		&cli.StringFlag{
			Name:        "db",
			Usage:       "Path to the sqlite credential database",
			EnvVars:     []string{"DOORMAN_DB"},
			Value:       o.DB,
			Destination: &o.DB,
		},
		&cli.StringFlag{
			Name:        "database-url",
			Usage:       "PostgreSQL connection string, used when store is postgres",
			EnvVars:     []string{"DOORMAN_DATABASE_URL"},
			Value:       o.DatabaseURL,
			Destination: &o.DatabaseURL,
		},
		&cli.StringFlag{
			Name:        "hasher",
			Usage:       "Password hashing algorithm for new users: bcrypt or argon2id",
			Value:       o.Hasher,
			Destination: &o.Hasher,
		},
		&cli.IntFlag{
			Name:        "bcrypt-cost",
			Usage:       "bcrypt work factor",
			Value:       o.BcryptCost,
			Destination: &o.BcryptCost,
		},
		&cli.IntFlag{
			Name:        "min-password-length",
			Usage:       "Minimum password length accepted on registration",
			Value:       o.MinPasswordLength,
			Destination: &o.MinPasswordLength,
		},
	}
}

// NewHasher returns a hasher that creates verifiers with the selected
// algorithm and verifies any supported one.
func (o *StoreOptions) NewHasher() (passwd.Hasher, error) {
	switch o.Hasher {
	case "bcrypt", "":
		b, err := passwd.NewBcrypt(o.BcryptCost)
		if err != nil {
			return nil, err
		}
		return passwd.NewMulti(b), nil
	case "argon2id":
		return passwd.NewMulti(passwd.NewArgon2id(passwd.DefaultArgon2Params())), nil
	}
	return nil, fmt.Errorf("unknown hasher %q, expecting bcrypt or argon2id", o.Hasher)
}

// Open opens the selected store, the returned function releases it.
func (o *StoreOptions) Open(ctx context.Context, hasher passwd.Hasher) (CredentialStore, func() error, error) {
	opts := []credentials.Option{credentials.MinPasswordLength(o.MinPasswordLength)}
	switch o.Kind {
	case "memory":
		return credentials.NewMemory(hasher, opts...), func() error { return nil }, nil
	case "sqlite":
		s, err := credentials.OpenSQLite(ctx, o.DB, hasher, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		if o.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("store postgres requires --database-url")
		}
		s, err := pgstore.Open(ctx, o.DatabaseURL, hasher, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q, expecting memory, sqlite or postgres", o.Kind)
}
