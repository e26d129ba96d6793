package cookie

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

type (
	// cbc encrypts with AES-256-CBC. Every call to seal draws a new IV from
	// rand, callers have no way to provide one.
	cbc struct {
		block cipher.Block
		rand  io.Reader
	}
)

func newCBC(k *Key) (*cbc, error) {
	block, err := aes.NewCipher(k[:])
	if err != nil {
		return nil, fmt.Errorf("cookie: unable to create cipher, cause %w", err)
	}
	return &cbc{block: block, rand: rand.Reader}, nil
}

// seal returns <hex iv>:<hex ciphertext>
func (c *cbc) seal(plain []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("cookie: unable to generate iv, cause %w", err)
	}
	padded := pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (c *cbc) open(value string) ([]byte, error) {
	ivHex, ctHex, found := strings.Cut(value, ":")
	if !found {
		return nil, ErrInvalid
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrInvalid
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, ErrInvalid
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ct)
	return unpad(out, aes.BlockSize)
}

func pad(buf []byte, size int) []byte {
	n := size - len(buf)%size
	return append(append([]byte(nil), buf...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(buf []byte, size int) ([]byte, error) {
	if len(buf) == 0 || len(buf)%size != 0 {
		return nil, ErrInvalid
	}
	n := int(buf[len(buf)-1])
	if n == 0 || n > size {
		return nil, ErrInvalid
	}
	for _, b := range buf[len(buf)-n:] {
		if int(b) != n {
			return nil, ErrInvalid
		}
	}
	return buf[:len(buf)-n], nil
}
