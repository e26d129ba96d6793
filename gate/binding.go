package gate

import (
	"context"
	"time"

	"github.com/andrebq/doorman/session"
)

const (
	SessionCookieName = "session"
	DirectCookieName  = "username"
)

type (
	// Binding ties a principal to the payload carried by the cookie.
	Binding interface {
		CookieName() string
		// Bind marks p as logged in and returns the cookie payload and its
		// expiration. A zero time means no expiration.
		Bind(ctx context.Context, p Principal) (string, time.Time, error)
		// Resolve returns the principal bound to payload, if any.
		Resolve(ctx context.Context, payload string) (Principal, bool, error)
		// Release undoes Bind, releasing an unknown payload is not an error.
		Release(ctx context.Context, payload string) error
	}

	sessionBinding struct {
		store session.Store
		ttl   time.Duration
	}

	directBinding struct {
		set *session.PrincipalSet
	}
)

// SessionBinding stores a server side session and puts only its id in the
// cookie.
func SessionBinding(store session.Store, ttl time.Duration) Binding {
	return &sessionBinding{store: store, ttl: ttl}
}

func (s *sessionBinding) CookieName() string { return SessionCookieName }

func (s *sessionBinding) Bind(ctx context.Context, p Principal) (string, time.Time, error) {
	sess, err := s.store.Create(ctx, p.Username, s.ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return sess.ID, sess.ExpiresAt, nil
}

func (s *sessionBinding) Resolve(ctx context.Context, payload string) (Principal, bool, error) {
	sess, ok, err := s.store.Get(ctx, payload)
	if err != nil || !ok {
		return Principal{}, false, err
	}
	return Principal{Username: sess.Username}, true, nil
}

func (s *sessionBinding) Release(ctx context.Context, payload string) error {
	return s.store.Delete(ctx, payload)
}

// DirectBinding puts the username itself in the cookie. The cookie is only
// honored while the username is in set, so logging out on one client logs
// the user out everywhere.
func DirectBinding(set *session.PrincipalSet) Binding {
	return &directBinding{set: set}
}

func (d *directBinding) CookieName() string { return DirectCookieName }

func (d *directBinding) Bind(ctx context.Context, p Principal) (string, time.Time, error) {
	d.set.Add(p.Username)
	return p.Username, time.Time{}, nil
}

func (d *directBinding) Resolve(ctx context.Context, payload string) (Principal, bool, error) {
	if !d.set.Contains(payload) {
		return Principal{}, false, nil
	}
	return Principal{Username: payload}, true, nil
}

func (d *directBinding) Release(ctx context.Context, payload string) error {
	d.set.Remove(payload)
	return nil
}
