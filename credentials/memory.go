package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/andrebq/doorman/passwd"
)

type (
	Memory struct {
		policy Policy

		sync.RWMutex
		records map[string]Record
	}
)

// NewMemory returns a store that lives only as long as the process.
// Record IDs are the usernames themselves.
func NewMemory(hasher passwd.Hasher, opts ...Option) *Memory {
	return &Memory{
		policy:  NewPolicy(hasher, opts...),
		records: make(map[string]Record),
	}
}

func (m *Memory) Lookup(ctx context.Context, username string) (Record, bool, error) {
	m.RLock()
	defer m.RUnlock()
	r, ok := m.records[username]
	return r, ok, nil
}

func (m *Memory) Create(ctx context.Context, username string, password passwd.PlainText) (Record, error) {
	verifier, err := m.policy.Prepare(username, password)
	if err != nil {
		return Record{}, err
	}
	r := Record{ID: username, Username: username, Verifier: verifier, CreatedAt: time.Now()}
	return r, m.insert(r)
}

func (m *Memory) Import(ctx context.Context, r Record) error {
	if err := ValidateImport(r); err != nil {
		return err
	}
	r.ID = r.Username
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return m.insert(r)
}

func (m *Memory) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.records)
}

func (m *Memory) insert(r Record) error {
	m.Lock()
	defer m.Unlock()
	if _, exists := m.records[r.Username]; exists {
		return ErrDuplicate
	}
	m.records[r.Username] = r
	return nil
}
