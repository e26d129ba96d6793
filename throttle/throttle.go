// Package throttle limits how many login attempts a client can make inside a
// sliding time window.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andrebq/doorman/internal/logutil"
	"github.com/cespare/xxhash/v2"
)

const (
	DefaultMax    = 5
	DefaultWindow = time.Minute

	shardCount = 32
)

type (
	RateLimited struct {
		RetryAfter time.Duration
	}

	Limiter struct {
		max    int
		window time.Duration
		now    func() time.Time
		shards [shardCount]*shard
	}

	Option func(*Limiter)

	shard struct {
		sync.Mutex
		attempts  map[string][]time.Time
		lastSweep time.Time
	}
)

func (r RateLimited) Error() string {
	return fmt.Sprintf("too many login attempts, retry after %v", r.RetryAfter)
}

// Is makes errors.Is(err, RateLimited{}) match regardless of RetryAfter.
func (r RateLimited) Is(target error) bool {
	_, ok := target.(RateLimited)
	return ok
}

// Clock replaces time.Now as the source of attempt timestamps.
func Clock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a limiter accepting max attempts per client in any window of
// the given length. Non positive values select the defaults.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{max: max, window: window, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	for i := range l.shards {
		l.shards[i] = &shard{attempts: make(map[string][]time.Time)}
	}
	return l
}

func (l *Limiter) Max() int              { return l.max }
func (l *Limiter) Window() time.Duration { return l.window }

// CheckAndRecord records one attempt for clientID, or returns RateLimited
// if clientID already used all of its attempts in the current window.
// Rejected attempts are not recorded.
func (l *Limiter) CheckAndRecord(clientID string) error {
	now := l.now()
	s := l.shardFor(clientID)
	s.Lock()
	defer s.Unlock()
	if now.Sub(s.lastSweep) >= l.window {
		s.sweep(now.Add(-l.window))
		s.lastSweep = now
	}
	recent := trim(s.attempts[clientID], now.Add(-l.window))
	if len(recent) >= l.max {
		s.attempts[clientID] = recent
		return RateLimited{RetryAfter: recent[0].Add(l.window).Sub(now)}
	}
	s.attempts[clientID] = append(recent, now)
	return nil
}

// Prune drops every client without attempts in the current window and
// returns how many were dropped.
func (l *Limiter) Prune() int {
	cutoff := l.now().Add(-l.window)
	var total int
	for _, s := range l.shards {
		s.Lock()
		total += s.sweep(cutoff)
		s.Unlock()
	}
	return total
}

// RunJanitor calls Prune every interval until ctx is done.
func (l *Limiter) RunJanitor(ctx context.Context, every time.Duration) {
	log := logutil.GetOrDefault(ctx).With().Str("janitor", "throttle").Logger()
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if n := l.Prune(); n > 0 {
				log.Debug().Int("removed", n).Msg("Idle clients removed")
			}
		}
	}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	var total int
	for _, s := range l.shards {
		s.Lock()
		total += len(s.attempts)
		s.Unlock()
	}
	return total
}

func (l *Limiter) shardFor(clientID string) *shard {
	return l.shards[xxhash.Sum64String(clientID)%shardCount]
}

func (s *shard) sweep(cutoff time.Time) int {
	var dropped int
	for k, v := range s.attempts {
		if len(v) == 0 || !v[len(v)-1].After(cutoff) {
			delete(s.attempts, k)
			dropped++
		}
	}
	return dropped
}

// trim removes attempts at or before cutoff, attempts are kept in order.
func trim(attempts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return attempts
	}
	return append(attempts[:0], attempts[i:]...)
}
