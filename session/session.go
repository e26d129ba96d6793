// Package session keeps track of who is logged in.
//
// A Session lives for a fixed TTL counted from its creation. Stores expire
// sessions lazily: the first Get past ExpiresAt deletes the record and
// reports it as missing.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	idBytes = 32
)

type (
	Session struct {
		ID        string    `json:"id"`
		Username  string    `json:"username"`
		CreatedAt time.Time `json:"created_at"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	Store interface {
		Create(ctx context.Context, username string, ttl time.Duration) (Session, error)
		// Get returns false for unknown or expired sessions.
		Get(ctx context.Context, id string) (Session, bool, error)
		// Delete removes the session, deleting an unknown id is not an error.
		Delete(ctx context.Context, id string) error
	}
)

var (
	ErrInvalidTTL = errors.New("session: ttl must be positive")
)

// Expired reports whether s is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NewID returns 256 random bits encoded with unpadded base64url.
func NewID() (string, error) {
	var buf [idBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("unable to generate session id, cause %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

func newSession(username string, ttl time.Duration, now time.Time) (Session, error) {
	if ttl <= 0 {
		return Session{}, ErrInvalidTTL
	}
	id, err := NewID()
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, Username: username, CreatedAt: now, ExpiresAt: now.Add(ttl)}, nil
}
