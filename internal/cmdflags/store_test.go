package cmdflags

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/andrebq/doorman/passwd"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestStoreFlags(t *testing.T) {
	opts := DefaultStoreOptions()
	app := &cli.App{
		Flags:  opts.Flags(),
		Action: func(*cli.Context) error { return nil },
	}
	err := app.Run([]string{"doorman", "--store", "memory", "--hasher", "argon2id", "--min-password-length", "8"})
	require.NoError(t, err)
	require.Equal(t, "memory", opts.Kind)
	require.Equal(t, "argon2id", opts.Hasher)
	require.Equal(t, 8, opts.MinPasswordLength)
	require.Equal(t, "doorman.db", opts.DB)
}

func TestNewHasher(t *testing.T) {
	opts := DefaultStoreOptions()
	h, err := opts.NewHasher()
	require.NoError(t, err)
	v, err := h.Hash(passwd.PlainText("s3cr3t"))
	require.NoError(t, err)
	require.True(t, h.Verify(passwd.PlainText("s3cr3t"), v))

	opts.Hasher = "md5"
	_, err = opts.NewHasher()
	require.Error(t, err)

	opts.Hasher = "bcrypt"
	opts.BcryptCost = 4
	_, err = opts.NewHasher()
	require.Error(t, err)
}

func TestOpenStores(t *testing.T) {
	ctx := context.Background()
	hasher := passwd.NewArgon2id(passwd.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32})

	opts := DefaultStoreOptions()
	opts.Kind = "memory"
	s, closefn, err := opts.Open(ctx, hasher)
	require.NoError(t, err)
	_, err = s.Create(ctx, "alice", passwd.PlainText("s3cr3t"))
	require.NoError(t, err)
	require.NoError(t, closefn())

	opts.Kind = "sqlite"
	opts.DB = filepath.Join(t.TempDir(), "doorman.db")
	s, closefn, err = opts.Open(ctx, hasher)
	require.NoError(t, err)
	_, err = s.Create(ctx, "alice", passwd.PlainText("s3cr3t"))
	require.NoError(t, err)
	require.NoError(t, closefn())

	opts.Kind = "postgres"
	_, _, err = opts.Open(ctx, hasher)
	require.Error(t, err)

	opts.Kind = "redis"
	_, _, err = opts.Open(ctx, hasher)
	require.Error(t, err)
}
