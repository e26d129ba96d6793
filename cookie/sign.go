package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

type (
	signer struct {
		key Key
	}
)

var (
	macEncoding = base64.RawStdEncoding.Strict()
)

func (s *signer) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, s.key[:])
	h.Write(payload)
	return h.Sum(nil)
}

// sign returns <payload>.<base64 mac>
func (s *signer) sign(payload []byte) string {
	return string(payload) + "." + macEncoding.EncodeToString(s.mac(payload))
}

func (s *signer) unsign(value string) ([]byte, error) {
	idx := strings.LastIndexByte(value, '.')
	if idx < 0 {
		return nil, ErrInvalid
	}
	payload, encoded := []byte(value[:idx]), value[idx+1:]
	actual, err := macEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalid
	}
	if !hmac.Equal(actual, s.mac(payload)) {
		return nil, ErrInvalid
	}
	return payload, nil
}
