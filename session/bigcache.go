package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/andrebq/doorman/internal/storeerr"
)

type (
	// BigCache keeps sessions off the Go heap. Entries are dropped by the
	// cache once maxTTL elapses, expiry is still checked on every Get.
	BigCache struct {
		cache  *bigcache.BigCache
		maxTTL time.Duration
		now    func() time.Time
	}
)

func NewBigCache(maxTTL time.Duration) (*BigCache, error) {
	if maxTTL <= 0 {
		return nil, ErrInvalidTTL
	}
	cache, err := bigcache.NewBigCache(cacheConfig(maxTTL))
	if err != nil {
		return nil, fmt.Errorf("unable to create session cache, cause %w", err)
	}
	return &BigCache{cache: cache, maxTTL: maxTTL, now: time.Now}, nil
}

func (b *BigCache) Create(ctx context.Context, username string, ttl time.Duration) (Session, error) {
	if ttl > b.maxTTL {
		return Session{}, fmt.Errorf("session: ttl %v exceeds the cache life window %v", ttl, b.maxTTL)
	}
	s, err := newSession(username, ttl, b.now())
	if err != nil {
		return Session{}, err
	}
	buf, err := json.Marshal(s)
	if err != nil {
		return Session{}, err
	}
	err = b.cache.Set(s.ID, buf)
	if err != nil {
		return Session{}, storeerr.Wrap("bigcache", err)
	}
	return s, nil
}

func (b *BigCache) Get(ctx context.Context, id string) (Session, bool, error) {
	buf, err := b.cache.Get(id)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return Session{}, false, nil
	} else if err != nil {
		return Session{}, false, storeerr.Wrap("bigcache", err)
	}
	var s Session
	err = json.Unmarshal(buf, &s)
	if err != nil || s.ID != id {
		// a corrupt entry is as good as a missing one
		b.Delete(ctx, id)
		return Session{}, false, nil
	}
	if s.Expired(b.now()) {
		b.Delete(ctx, id)
		return Session{}, false, nil
	}
	return s, true, nil
}

func (b *BigCache) Delete(ctx context.Context, id string) error {
	err := b.cache.Delete(id)
	if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return storeerr.Wrap("bigcache", err)
	}
	return nil
}

func (b *BigCache) Len() int {
	return b.cache.Len()
}

func (b *BigCache) Close() error {
	return b.cache.Close()
}

// cacheConfig sizes the cache for small entries, the default config
// preallocates hundreds of megabytes.
func cacheConfig(lifeWindow time.Duration) bigcache.Config {
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 16 * 1024
	cfg.MaxEntrySize = 256
	return cfg
}
