package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/andrebq/doorman/internal/storeerr"
	"github.com/golang-jwt/jwt/v5"
)

type (
	// Tokens is a stateless store: the session id is an HS256 JWT carrying
	// the username and the expiration time. Only logged out token ids are
	// kept, for as long as a token can live.
	Tokens struct {
		key     []byte
		maxTTL  time.Duration
		revoked *bigcache.BigCache
		now     func() time.Time
	}
)

func NewTokens(key []byte, maxTTL time.Duration) (*Tokens, error) {
	if len(key) < 32 {
		return nil, errors.New("session: token key must have at least 32 bytes")
	}
	if maxTTL <= 0 {
		return nil, ErrInvalidTTL
	}
	revoked, err := bigcache.NewBigCache(cacheConfig(maxTTL))
	if err != nil {
		return nil, fmt.Errorf("unable to create revocation list, cause %w", err)
	}
	return &Tokens{
		key:     append([]byte(nil), key...),
		maxTTL:  maxTTL,
		revoked: revoked,
		now:     time.Now,
	}, nil
}

func (t *Tokens) Create(ctx context.Context, username string, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		return Session{}, ErrInvalidTTL
	}
	if ttl > t.maxTTL {
		return Session{}, fmt.Errorf("session: ttl %v exceeds the revocation window %v", ttl, t.maxTTL)
	}
	jti, err := NewID()
	if err != nil {
		return Session{}, err
	}
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return Session{}, fmt.Errorf("unable to sign session token, cause %w", err)
	}
	return Session{
		ID:        token,
		Username:  username,
		CreatedAt: claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (t *Tokens) Get(ctx context.Context, id string) (Session, bool, error) {
	claims, ok := t.parse(id, true)
	if !ok {
		return Session{}, false, nil
	}
	_, err := t.revoked.Get(claims.ID)
	if err == nil {
		return Session{}, false, nil
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		return Session{}, false, storeerr.Wrap("bigcache", err)
	}
	return Session{
		ID:        id,
		Username:  claims.Subject,
		CreatedAt: claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, true, nil
}

func (t *Tokens) Delete(ctx context.Context, id string) error {
	claims, ok := t.parse(id, false)
	if !ok {
		return nil
	}
	err := t.revoked.Set(claims.ID, []byte{1})
	if err != nil {
		return storeerr.Wrap("bigcache", err)
	}
	return nil
}

func (t *Tokens) Close() error {
	return t.revoked.Close()
}

// parse verifies the signature of token, when checkTime is false expired
// tokens are still accepted.
func (t *Tokens) parse(token string, checkTime bool) (*jwt.RegisteredClaims, bool) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if !checkTime {
		opts = []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		}
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	}, opts...)
	if err != nil || claims.ID == "" || claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, false
	}
	return claims, true
}
