// Package credentials stores usernames together with their password
// verifiers.
//
// Every Store hashes the password before touching shared state and detects
// duplicate usernames atomically, so two concurrent registrations of the
// same name produce exactly one Record and one ErrDuplicate.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/andrebq/doorman/passwd"
)

const (
	DefaultMinPasswordLength = 6
	// MaxPasswordLength is the number of bytes bcrypt actually reads.
	MaxPasswordLength = 72
)

type (
	Record struct {
		// ID is a store specific reference to the record.
		ID        string
		Username  string
		Verifier  string
		CreatedAt time.Time
	}

	Store interface {
		// Lookup returns the record for username, the bool is false when
		// the username is unknown.
		Lookup(ctx context.Context, username string) (Record, bool, error)
		// Create validates and hashes password and stores a new record.
		Create(ctx context.Context, username string, password passwd.PlainText) (Record, error)
	}

	// Importer stores records whose verifier was computed elsewhere.
	Importer interface {
		Import(ctx context.Context, r Record) error
	}

	InvalidInput struct {
		Field  string
		Reason string
	}

	// Policy validates new credentials and turns passwords into verifiers.
	Policy struct {
		Hasher            passwd.Hasher
		MinPasswordLength int
	}

	Option func(*Policy)
)

var (
	ErrDuplicate = errors.New("credentials: username already exists")

	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,64}$`)
)

func (i InvalidInput) Error() string {
	return fmt.Sprintf("invalid %v: %v", i.Field, i.Reason)
}

// Is makes errors.Is(err, InvalidInput{}) match any field.
func (i InvalidInput) Is(target error) bool {
	_, ok := target.(InvalidInput)
	return ok
}

func MinPasswordLength(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MinPasswordLength = n
		}
	}
}

func NewPolicy(hasher passwd.Hasher, opts ...Option) Policy {
	p := Policy{Hasher: hasher, MinPasswordLength: DefaultMinPasswordLength}
	for _, o := range opts {
		o(&p)
	}
	return p
}

// Prepare validates username and password and returns the verifier that
// should be stored for them.
func (p Policy) Prepare(username string, password passwd.PlainText) (string, error) {
	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	if err := p.validatePassword(password); err != nil {
		return "", err
	}
	verifier, err := p.Hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("unable to hash password for %v, cause %w", username, err)
	}
	return verifier, nil
}

func (p Policy) validatePassword(password passwd.PlainText) error {
	switch {
	case len(password) == 0:
		return InvalidInput{Field: "password", Reason: "must not be empty"}
	case len(password) < p.MinPasswordLength:
		return InvalidInput{Field: "password", Reason: fmt.Sprintf("must have at least %v characters", p.MinPasswordLength)}
	case len(password) > MaxPasswordLength:
		return InvalidInput{Field: "password", Reason: fmt.Sprintf("must have at most %v bytes", MaxPasswordLength)}
	}
	return nil
}

// ValidateUsername checks that username is non empty and made only of
// characters that can travel unescaped inside a cookie.
func ValidateUsername(username string) error {
	if username == "" {
		return InvalidInput{Field: "username", Reason: "must not be empty"}
	}
	if !usernamePattern.MatchString(username) {
		return InvalidInput{Field: "username", Reason: "must have at most 64 letters, digits or one of _.@-"}
	}
	return nil
}

// ValidateImport checks a pre-hashed record before it is imported.
func ValidateImport(r Record) error {
	if err := ValidateUsername(r.Username); err != nil {
		return err
	}
	if !passwd.Supported(r.Verifier) {
		return InvalidInput{Field: "verifier", Reason: "unsupported hash format"}
	}
	return nil
}
