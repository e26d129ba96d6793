package session

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	sync.Mutex
	t time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.Lock()
	defer f.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.Lock()
	f.t = f.t.Add(d)
	f.Unlock()
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store, clock *fakeClock)) {
	t.Run("memory", func(t *testing.T) {
		clock := newClock()
		m := NewMemory()
		m.now = clock.Now
		fn(t, m, clock)
	})
	t.Run("bigcache", func(t *testing.T) {
		clock := newClock()
		b, err := NewBigCache(time.Hour)
		require.NoError(t, err)
		defer b.Close()
		b.now = clock.Now
		fn(t, b, clock)
	})
	t.Run("tokens", func(t *testing.T) {
		clock := newClock()
		tk, err := NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
		require.NoError(t, err)
		defer tk.Close()
		tk.now = clock.Now
		fn(t, tk, clock)
	})
}

func TestCreateGetDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		sess, err := s.Create(ctx, "alice", time.Hour)
		require.NoError(t, err)
		require.NotEmpty(t, sess.ID)
		require.Equal(t, "alice", sess.Username)
		require.Equal(t, time.Hour, sess.ExpiresAt.Sub(sess.CreatedAt))

		got, ok, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "alice", got.Username)
		require.True(t, got.ExpiresAt.Equal(sess.ExpiresAt))

		require.NoError(t, s.Delete(ctx, sess.ID))
		_, ok, err = s.Get(ctx, sess.ID)
		require.NoError(t, err)
		require.False(t, ok)

		// idempotent
		require.NoError(t, s.Delete(ctx, sess.ID))
		require.NoError(t, s.Delete(ctx, "never-issued"))
	})
}

func TestExpiryIsFixedFromCreation(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		sess, err := s.Create(ctx, "alice", 10*time.Minute)
		require.NoError(t, err)

		clock.Advance(9 * time.Minute)
		_, ok, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		require.True(t, ok)

		// reading the session does not extend it
		clock.Advance(time.Minute)
		_, ok, err = s.Get(ctx, sess.ID)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestUnknownSessions(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		for _, id := range []string{"", "nope", "a.b.c", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJhbGljZSJ9."} {
			_, ok, err := s.Get(context.Background(), id)
			require.NoError(t, err, id)
			require.False(t, ok, id)
		}
	})
}

func TestSessionsAreIndependent(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()
		a, err := s.Create(ctx, "alice", time.Hour)
		require.NoError(t, err)
		b, err := s.Create(ctx, "alice", time.Hour)
		require.NoError(t, err)
		require.NotEqual(t, a.ID, b.ID)

		require.NoError(t, s.Delete(ctx, a.ID))
		_, ok, err := s.Get(ctx, b.ID)
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestInvalidTTL(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store, clock *fakeClock) {
		_, err := s.Create(context.Background(), "alice", 0)
		require.True(t, errors.Is(err, ErrInvalidTTL))
	})
	_, err := NewBigCache(0)
	require.Error(t, err)
	_, err = NewTokens([]byte("short"), time.Hour)
	require.Error(t, err)
}

func TestTTLBeyondCacheWindowIsRejected(t *testing.T) {
	b, err := NewBigCache(time.Minute)
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Create(context.Background(), "alice", time.Hour)
	require.Error(t, err)
}

func TestMemoryPrune(t *testing.T) {
	clock := newClock()
	m := NewMemory()
	m.now = clock.Now
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, "short", time.Minute)
		require.NoError(t, err)
	}
	_, err := m.Create(ctx, "long", time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	require.Equal(t, 3, m.Prune(ctx))
	require.Equal(t, 1, m.Len())
}

func TestMemoryJanitorStopsWithContext(t *testing.T) {
	m := NewMemory()
	_, err := m.Create(context.Background(), "alice", time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestTokensRejectOtherKeys(t *testing.T) {
	ctx := context.Background()
	a, err := NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewTokens([]byte("fedcba9876543210fedcba9876543210"), time.Hour)
	require.NoError(t, err)
	defer b.Close()

	sess, err := a.Create(ctx, "alice", time.Hour)
	require.NoError(t, err)
	_, ok, err := b.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, ok)

	// logging out with a foreign token does not revoke anything
	require.NoError(t, b.Delete(ctx, sess.ID))
	_, ok, err = a.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := NewID()
		require.NoError(t, err)
		buf, err := base64.RawURLEncoding.DecodeString(id)
		require.NoError(t, err)
		require.Len(t, buf, 32)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestPrincipalSet(t *testing.T) {
	p := NewPrincipalSet()
	require.False(t, p.Contains("alice"))
	p.Add("alice")
	p.Add("alice")
	require.True(t, p.Contains("alice"))
	require.Equal(t, 1, p.Len())
	p.Remove("alice")
	p.Remove("alice")
	require.False(t, p.Contains("alice"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Add("bob")
			p.Contains("bob")
		}()
	}
	wg.Wait()
	require.Equal(t, 1, p.Len())
}
