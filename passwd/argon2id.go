package passwd

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

type (
	Argon2Params struct {
		Time    uint32
		Memory  uint32
		Threads uint8
		KeyLen  uint32
	}

	// Argon2id produces and verifies PHC formatted argon2id verifiers:
	// $argon2id$v=19$m=65536,t=2,p=1$<salt_b64>$<hash_b64>
	Argon2id struct {
		params Argon2Params
		rand   io.Reader
	}
)

const (
	argon2SaltLen = 16
)

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 2, Memory: 64 * 1024, Threads: 1, KeyLen: 32}
}

func NewArgon2id(params Argon2Params) *Argon2id {
	def := DefaultArgon2Params()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.Memory == 0 {
		params.Memory = def.Memory
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	if params.KeyLen == 0 {
		params.KeyLen = def.KeyLen
	}
	return &Argon2id{params: params, rand: rand.Reader}
}

func (a *Argon2id) Hash(p PlainText) (string, error) {
	if len(p) == 0 {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, argon2SaltLen)
	if _, err := io.ReadFull(a.rand, salt); err != nil {
		return "", fmt.Errorf("passwd: unable to generate salt, cause %w", err)
	}
	key := argon2.IDKey(p, salt, a.params.Time, a.params.Memory, a.params.Threads, a.params.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, a.params.Memory, a.params.Time, a.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func (a *Argon2id) Verify(p PlainText, verifier string) bool {
	params, salt, expected, err := parseArgon2id(verifier)
	if err != nil {
		return false
	}
	derived := argon2.IDKey(p, salt, params.Time, params.Memory, params.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(derived, expected) == 1
}

func parseArgon2id(s string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params
	// ["", "argon2id", "v=19", "m=..,t=..,p=..", "salt", "hash"]
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, fmt.Errorf("passwd: invalid argon2id verifier")
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return params, nil, nil, fmt.Errorf("passwd: unsupported argon2id version %v", parts[2])
	}
	for _, kv := range strings.Split(parts[3], ",") {
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) != 2 {
			return params, nil, nil, fmt.Errorf("passwd: invalid argon2id parameter %q", kv)
		}
		n, err := strconv.ParseUint(pair[1], 10, 32)
		if err != nil || n == 0 {
			return params, nil, nil, fmt.Errorf("passwd: invalid argon2id parameter %q", kv)
		}
		switch pair[0] {
		case "m":
			params.Memory = uint32(n)
		case "t":
			params.Time = uint32(n)
		case "p":
			if n > 255 {
				return params, nil, nil, fmt.Errorf("passwd: invalid argon2id parallelism %v", n)
			}
			params.Threads = uint8(n)
		}
	}
	if params.Memory == 0 || params.Time == 0 || params.Threads == 0 {
		return params, nil, nil, fmt.Errorf("passwd: incomplete argon2id parameters")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("passwd: invalid argon2id salt, cause %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return params, nil, nil, fmt.Errorf("passwd: invalid argon2id hash")
	}
	return params, salt, hash, nil
}
