// Package session tracks conversation sessions per thread so that consecutive
// turns resume the same engine context until the session goes idle.
package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/miradorstack/mirador-oracle/internal/models"
)

type entry struct {
	id        string
	created   time.Time
	lastUsed  time.Time
	messages  int
	cost      float64
	unstarted bool
}

// Store holds at most one session per thread. Expiry is evaluated lazily on
// access; nothing is swept in the background.
type Store struct {
	mu      sync.Mutex
	timeout time.Duration
	clock   clock.Clock
	newID   func() string
	entries map[string]*entry
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithIDGenerator overrides token generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore returns an empty store whose sessions expire after timeout of inactivity.
func NewStore(timeout time.Duration, opts ...Option) *Store {
	s := &Store{
		timeout: timeout,
		clock:   clock.New(),
		newID:   uuid.NewString,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the live session token for threadID, creating one when
// none exists or the previous one went idle. resumed is true when the engine
// already holds context for the token.
func (s *Store) GetOrCreate(threadID string) (token string, resumed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	e, ok := s.entries[threadID]
	if ok && s.live(e, now) {
		resumed = !e.unstarted
		if e.unstarted {
			// Reset already counted this turn.
			e.unstarted = false
		} else {
			e.messages++
		}
		e.lastUsed = now
		return e.id, resumed
	}

	e = &entry{id: s.newID(), created: now, lastUsed: now, messages: 1}
	s.entries[threadID] = e
	return e.id, false
}

// Reset discards the thread's session and returns a fresh token whose
// message count starts at 1. The next GetOrCreate hands out that token
// without resuming and without counting again.
func (s *Store) Reset(threadID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	id := s.newID()
	if prev, ok := s.entries[threadID]; ok {
		for id == prev.id {
			id = s.newID()
		}
	}
	s.entries[threadID] = &entry{id: id, created: now, lastUsed: now, messages: 1, unstarted: true}
	return id
}

// RecordCost adds amount to the thread's live session. Unknown threads and
// negative amounts are ignored.
func (s *Store) RecordCost(threadID string, amount float64) {
	if amount <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[threadID]; ok {
		e.cost += amount
	}
}

// Describe returns a snapshot of the thread's session without touching it.
func (s *Store) Describe(threadID string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[threadID]
	if !ok {
		return models.Session{}, false
	}
	return models.Session{
		ID:           e.id,
		ThreadID:     threadID,
		CreatedAt:    e.created,
		LastUsedAt:   e.lastUsed,
		MessageCount: e.messages,
		CostUSD:      e.cost,
		Live:         s.live(e, s.clock.Now()),
	}, true
}

// Active counts sessions that are still live.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	n := 0
	for _, e := range s.entries {
		if s.live(e, now) {
			n++
		}
	}
	return n
}

// Timeout reports the idle timeout.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

func (s *Store) live(e *entry, now time.Time) bool {
	return now.Sub(e.lastUsed) < s.timeout
}
