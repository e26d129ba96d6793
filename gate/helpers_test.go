package gate

import (
	"crypto/rand"
	"testing"

	"github.com/andrebq/doorman/cookie"
)

func cookieWithoutEncryption(t *testing.T) (*cookie.Codec, error) {
	k, err := cookie.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return cookie.New(k, nil)
}
