// Package cookie encodes session references into cookie values that are
// signed (tamper evident) and, optionally, encrypted.
//
// Wire formats:
//
//	signed:            <payload>.<base64 hmac-sha256>
//	signed+encrypted:  <hex iv>:<hex ciphertext>.<base64 hmac-sha256>
//
// The MAC always covers what is on the wire, so the ciphertext is
// authenticated before it is decrypted.
package cookie

import (
	"errors"
)

type (
	Flags struct {
		Signed    bool
		Encrypted bool
	}

	Codec struct {
		signer *signer
		cipher *cbc
	}
)

var (
	// ErrInvalid is returned for any cookie that cannot be decoded: tampered,
	// truncated, encrypted with another key or simply garbage.
	ErrInvalid = errors.New("cookie: invalid value")

	ErrUnsupportedFlags = errors.New("cookie: encryption requires signing")
	ErrUnsafePayload    = errors.New("cookie: payload contains bytes not allowed in a cookie")
	ErrNoEncryptionKey  = errors.New("cookie: codec has no encryption key")
)

// New returns a codec that signs with signKey. encKey is optional, without
// it the codec refuses to encode encrypted values.
func New(signKey *Key, encKey *Key) (*Codec, error) {
	if signKey == nil {
		return nil, errors.New("cookie: missing signing key")
	}
	c := &Codec{signer: &signer{key: *signKey}}
	if encKey != nil {
		var err error
		c.cipher, err = newCBC(encKey)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CanEncrypt reports whether the codec was given an encryption key.
func (c *Codec) CanEncrypt() bool {
	return c.cipher != nil
}

func (c *Codec) Encode(payload []byte, f Flags) (string, error) {
	if err := c.checkFlags(f); err != nil {
		return "", err
	}
	if !f.Encrypted && !cookieSafe(payload) {
		return "", ErrUnsafePayload
	}
	body := string(payload)
	if f.Encrypted {
		var err error
		body, err = c.cipher.seal(payload)
		if err != nil {
			return "", err
		}
	}
	if f.Signed {
		return c.signer.sign([]byte(body)), nil
	}
	return body, nil
}

func (c *Codec) Decode(value string, f Flags) ([]byte, error) {
	if err := c.checkFlags(f); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, ErrInvalid
	}
	body := []byte(value)
	if f.Signed {
		var err error
		body, err = c.signer.unsign(value)
		if err != nil {
			return nil, err
		}
	}
	if f.Encrypted {
		return c.cipher.open(string(body))
	}
	return body, nil
}

func (c *Codec) checkFlags(f Flags) error {
	if !f.Encrypted {
		return nil
	}
	if !f.Signed {
		return ErrUnsupportedFlags
	}
	if c.cipher == nil {
		return ErrNoEncryptionKey
	}
	return nil
}

// cookieSafe follows the cookie-octet grammar of RFC 6265.
func cookieSafe(buf []byte) bool {
	for _, b := range buf {
		switch {
		case b <= 0x20, b >= 0x7f, b == '"', b == ',', b == ';', b == '\\':
			return false
		}
	}
	return true
}
