package testutil

import (
	"context"
	"crypto/rand"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/andrebq/doorman/cookie"
	"github.com/andrebq/doorman/credentials"
	"github.com/andrebq/doorman/passwd"
)

type (
	TestLog interface {
		Fatal(...interface{})
		Log(...interface{})
	}
)

// FastHasher returns an argon2id hasher cheap enough to be used in tests.
func FastHasher() passwd.Hasher {
	return passwd.NewArgon2id(passwd.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32})
}

// AcquireCredentials opens a sqlite credential store in a fresh temp dir and
// registers the given users (username followed by password).
func AcquireCredentials(ctx context.Context, t TestLog, users ...string) (*credentials.SQLite, func()) {
	dir, err := ioutil.TempDir("", "doorman-tests")
	if err != nil {
		t.Fatal(err)
	}
	store, err := credentials.OpenSQLite(ctx, filepath.Join(dir, "credentials.db"), FastHasher())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(users); i += 2 {
		_, err = store.Create(ctx, users[i], passwd.PlainText(users[i+1]))
		if err != nil {
			t.Fatal(err)
		}
	}
	return store, func() {
		err := store.Close()
		if err != nil {
			t.Log("unable to close credential store", err)
		}
		err = os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}

// NewCodec returns a codec with fresh signing and encryption keys.
func NewCodec(t TestLog) *cookie.Codec {
	sign, err := cookie.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := cookie.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	codec, err := cookie.New(sign, enc)
	if err != nil {
		t.Fatal(err)
	}
	return codec
}
