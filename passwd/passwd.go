// Package passwd turns plain text passwords into salted verifiers and checks
// passwords against them.
//
// Verifiers are self describing strings (bcrypt's $2a$ format or the argon2id
// PHC format), which means a single store can hold both and a Multi hasher
// can verify either one.
package passwd

import (
	"errors"
	"strings"
)

type (
	PlainText []byte

	Hasher interface {
		// Hash returns a freshly salted verifier for p.
		Hash(p PlainText) (string, error)
		// Verify reports whether p matches verifier. The comparison time does not
		// depend on where a mismatch happens.
		Verify(p PlainText, verifier string) bool
	}
)

var (
	ErrEmptyPassword = errors.New("passwd: empty password")
)

func (p PlainText) Zero() {
	for i := range p {
		p[i] = 0
	}
}

// Supported returns true if verifier is in a format one of the hashers in
// this package knows how to verify.
func Supported(verifier string) bool {
	return isBcrypt(verifier) || isArgon2id(verifier)
}

func isBcrypt(verifier string) bool {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(verifier, p) {
			return true
		}
	}
	return false
}

func isArgon2id(verifier string) bool {
	return strings.HasPrefix(verifier, "$argon2id$")
}
