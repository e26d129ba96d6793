// Package gate decides who is making a request.
//
// A request is anonymous until it presents a cookie that decodes with the
// configured codec and resolves, through a Binding, to a live principal.
// Anything else, including tampered or expired cookies, is anonymous. Only
// failures of a backing store are reported as errors, callers must not
// confuse them with bad credentials.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrebq/doorman/cookie"
	"github.com/andrebq/doorman/credentials"
	"github.com/andrebq/doorman/internal/logutil"
	"github.com/andrebq/doorman/passwd"
	"github.com/andrebq/doorman/throttle"
)

type (
	Principal struct {
		Username string
		// Ref is the credential record reference, it is only known for
		// principals returned by Login and Register.
		Ref string
	}

	// Issued is a cookie that must be handed to the client after a
	// successful login. A zero Expires means a browser session cookie.
	Issued struct {
		Name      string
		Value     string
		Expires   time.Time
		Principal Principal
	}

	Config struct {
		Credentials credentials.Store
		// Hasher verifies the verifiers found in Credentials.
		Hasher  passwd.Hasher
		Binding Binding
		Codec   *cookie.Codec
		Encrypt bool
		Limiter *throttle.Limiter
	}

	Gate struct {
		creds   credentials.Store
		hasher  passwd.Hasher
		binding Binding
		codec   *cookie.Codec
		flags   cookie.Flags
		limiter *throttle.Limiter
		dummy   string
	}
)

var (
	ErrInvalidCredentials = errors.New("gate: invalid username or password")

	dummyPassword = passwd.PlainText("doorman-dummy-password")
)

func New(cfg Config) (*Gate, error) {
	switch {
	case cfg.Credentials == nil:
		return nil, errors.New("gate: missing credential store")
	case cfg.Hasher == nil:
		return nil, errors.New("gate: missing password hasher")
	case cfg.Binding == nil:
		return nil, errors.New("gate: missing session binding")
	case cfg.Codec == nil:
		return nil, errors.New("gate: missing cookie codec")
	case cfg.Encrypt && !cfg.Codec.CanEncrypt():
		return nil, cookie.ErrNoEncryptionKey
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = throttle.New(throttle.DefaultMax, throttle.DefaultWindow)
	}
	// unknown users are verified against this, so both paths cost one hash
	dummy, err := cfg.Hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("unable to compute dummy verifier, cause %w", err)
	}
	return &Gate{
		creds:   cfg.Credentials,
		hasher:  cfg.Hasher,
		binding: cfg.Binding,
		codec:   cfg.Codec,
		flags:   cookie.Flags{Signed: true, Encrypted: cfg.Encrypt},
		limiter: limiter,
		dummy:   dummy,
	}, nil
}

// CookieName returns the name of the cookie issued by Login.
func (g *Gate) CookieName() string {
	return g.binding.CookieName()
}

// Login checks username and password and binds a new principal.
//
// Every call counts as an attempt for clientID, regardless of the outcome.
// It returns throttle.RateLimited when clientID made too many attempts,
// ErrInvalidCredentials for unknown users and wrong passwords alike, and a
// storeerr.Unavailable when a store cannot be reached.
func (g *Gate) Login(ctx context.Context, username string, password passwd.PlainText, clientID string) (Issued, error) {
	log := logutil.GetOrDefault(ctx).With().Str("username", username).Logger()
	if err := g.limiter.CheckAndRecord(clientID); err != nil {
		log.Warn().Str("client", clientID).Msg("Login attempt rate limited")
		return Issued{}, err
	}
	rec, found, err := g.creds.Lookup(ctx, username)
	if err != nil {
		return Issued{}, err
	}
	if !found {
		g.hasher.Verify(password, g.dummy)
		log.Info().Msg("Login failed")
		return Issued{}, ErrInvalidCredentials
	}
	if !g.hasher.Verify(password, rec.Verifier) {
		log.Info().Msg("Login failed")
		return Issued{}, ErrInvalidCredentials
	}
	p := Principal{Username: rec.Username, Ref: rec.ID}
	payload, expires, err := g.binding.Bind(ctx, p)
	if err != nil {
		return Issued{}, err
	}
	value, err := g.codec.Encode([]byte(payload), g.flags)
	if err != nil {
		if rerr := g.binding.Release(ctx, payload); rerr != nil {
			log.Error().Err(rerr).Msg("Unable to release session after encoding failure")
		}
		return Issued{}, fmt.Errorf("unable to encode cookie for %v, cause %w", username, err)
	}
	log.Info().Msg("Login succeeded")
	return Issued{Name: g.binding.CookieName(), Value: value, Expires: expires, Principal: p}, nil
}

// Authenticate resolves a cookie value to a principal, the bool is false
// for anonymous requests.
func (g *Gate) Authenticate(ctx context.Context, value string) (Principal, bool, error) {
	payload, ok := g.decode(ctx, value)
	if !ok {
		return Principal{}, false, nil
	}
	return g.binding.Resolve(ctx, payload)
}

// Logout releases whatever value is bound to. Invalid cookies and unknown
// or expired sessions are ignored.
func (g *Gate) Logout(ctx context.Context, value string) error {
	payload, ok := g.decode(ctx, value)
	if !ok {
		return nil
	}
	return g.binding.Release(ctx, payload)
}

// Register stores a new user. See credentials.Store for the errors it
// may return.
func (g *Gate) Register(ctx context.Context, username string, password passwd.PlainText) (Principal, error) {
	rec, err := g.creds.Create(ctx, username, password)
	if err != nil {
		return Principal{}, err
	}
	logutil.GetOrDefault(ctx).Info().Str("username", rec.Username).Msg("User registered")
	return Principal{Username: rec.Username, Ref: rec.ID}, nil
}

func (g *Gate) decode(ctx context.Context, value string) (string, bool) {
	if value == "" {
		return "", false
	}
	payload, err := g.codec.Decode(value, g.flags)
	if err != nil {
		logutil.GetOrDefault(ctx).Debug().Err(err).Msg("Ignoring invalid cookie")
		return "", false
	}
	return string(payload), true
}
