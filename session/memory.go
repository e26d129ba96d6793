package session

import (
	"context"
	"sync"
	"time"

	"github.com/andrebq/doorman/internal/logutil"
)

type (
	Memory struct {
		now func() time.Time

		sync.Mutex
		sessions map[string]Session
	}
)

func NewMemory() *Memory {
	return &Memory{now: time.Now, sessions: make(map[string]Session)}
}

func (m *Memory) Create(ctx context.Context, username string, ttl time.Duration) (Session, error) {
	s, err := newSession(username, ttl, m.now())
	if err != nil {
		return Session{}, err
	}
	m.Lock()
	m.sessions[s.ID] = s
	m.Unlock()
	return s, nil
}

func (m *Memory) Get(ctx context.Context, id string) (Session, bool, error) {
	now := m.now()
	m.Lock()
	defer m.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false, nil
	}
	if s.Expired(now) {
		delete(m.sessions, id)
		return Session{}, false, nil
	}
	return s, true, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.Lock()
	delete(m.sessions, id)
	m.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.Lock()
	defer m.Unlock()
	return len(m.sessions)
}

// Prune removes every expired session and returns how many were removed.
func (m *Memory) Prune(ctx context.Context) int {
	now := m.now()
	m.Lock()
	defer m.Unlock()
	var n int
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunJanitor calls Prune every interval until ctx is done.
func (m *Memory) RunJanitor(ctx context.Context, every time.Duration) {
	log := logutil.GetOrDefault(ctx).With().Str("janitor", "sessions").Logger()
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if n := m.Prune(ctx); n > 0 {
				log.Debug().Int("removed", n).Msg("Expired sessions removed")
			}
		}
	}
}
