package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/scrypt"
)

const (
	CookieSecretEnvVar  = "DOORMAN_COOKIE_SECRET"
	EncryptionKeyEnvVar = "DOORMAN_ENCRYPTION_KEY"
)

type (
	Key [32]byte
)

func (k *Key) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// String encodes the key with base64, the same format KeyFromEnv reads.
func (k *Key) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// Subkey derives an independent key for the given purpose, so a single
// configured secret can serve more than one algorithm.
func (k *Key) Subkey(purpose string) *Key {
	mac := hmac.New(sha256.New, k[:])
	mac.Write([]byte(purpose))
	var sub Key
	copy(sub[:], mac.Sum(nil))
	return &sub
}

// GenerateKey reads a new random key from src.
func GenerateKey(src io.Reader) (*Key, error) {
	var k Key
	if _, err := io.ReadFull(src, k[:]); err != nil {
		return nil, fmt.Errorf("cookie: unable to generate key, cause %w", err)
	}
	return &k, nil
}

// KeyFromEnv decodes a base64 encoded 32 byte key from varname and clears
// the variable, so child processes never see it.
func KeyFromEnv(varname string, getfn func(string) string, setfn func(string, string) error) (*Key, error) {
	val, err := secretFromEnv(varname, getfn, setfn)
	if err != nil {
		return nil, err
	}
	var k Key
	buf, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, fmt.Errorf("cookie: cannot decode %v to a valid key, cause %v", varname, err)
	} else if len(buf) != len(k) {
		return nil, fmt.Errorf("cookie: decoded key from %v has %v bytes expecting %v", varname, len(buf), len(k))
	}
	copy(k[:], buf)
	for i := range buf {
		buf[i] = 0
	}
	return &k, nil
}

// PassphraseFromEnv reads a free form passphrase from varname and clears
// the variable.
func PassphraseFromEnv(varname string, getfn func(string) string, setfn func(string, string) error) ([]byte, error) {
	val, err := secretFromEnv(varname, getfn, setfn)
	if err != nil {
		return nil, err
	}
	return []byte(val), nil
}

func secretFromEnv(varname string, getfn func(string) string, setfn func(string, string) error) (string, error) {
	if getfn == nil {
		getfn = os.Getenv
	}
	if setfn == nil {
		setfn = os.Setenv
	}
	val := getfn(varname)
	if err := setfn(varname, ""); err != nil {
		return "", fmt.Errorf("cookie: unable to clear %v, cause %w", varname, err)
	}
	if val == "" {
		return "", fmt.Errorf("cookie: environment variable %v is empty", varname)
	}
	return val, nil
}

// DeriveKey stretches a passphrase into an encryption key with scrypt.
func DeriveKey(passphrase, salt []byte) (*Key, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("cookie: empty passphrase")
	}
	var k Key
	buf, err := scrypt.Key(passphrase, salt, 1<<15, 8, 1, len(k))
	if err != nil {
		return nil, fmt.Errorf("cookie: unable to derive key, cause %w", err)
	}
	copy(k[:], buf)
	return &k, nil
}
