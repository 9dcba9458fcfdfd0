// Package memory provides the in-memory store for in-progress card
// authentication sessions.
//
// Sessions live at most SessionTTL past their last touch. Expiry is
// enforced twice: lazily on every read, and by a periodic sweeper
// that bounds memory growth from abandoned handshakes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/urbanketl/vendcore/internal/core/domain"
	"github.com/urbanketl/vendcore/pkg/cmap"
)

// Defaults per the reader protocol: a handshake abandoned for 30s is
// dead, and the sweeper passes once a minute.
const (
	DefaultSessionTTL    = 30 * time.Second
	DefaultSweepInterval = 60 * time.Second
)

// Clock supplies the current time. Injectable for deterministic
// expiry tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Stats summarizes the sessions currently held, grouped by state.
type Stats struct {
	Total   int
	ByState map[domain.AuthState]int
}

// Store holds in-progress authentication sessions.
//
// Create, Get, Update, and Delete are read-modify-write operations on
// shared state; a single store-level mutex serializes them. The
// handshake steps are pure in-memory work, so the critical sections
// are short and a global lock is sufficient.
type Store struct {
	sessions *cmap.Map[*domain.AuthSession]
	clock    Clock
	ttl      time.Duration

	mu sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithTTL sets the session inactivity timeout.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New creates an empty session store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions: cmap.New[*domain.AuthSession](),
		clock:    SystemClock(),
		ttl:      DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new session. The session ID must be unused.
func (s *Store) Create(_ context.Context, session *domain.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sessions.SetIfAbsent(session.ID, session.Clone()) {
		return domain.ErrDuplicateSession.WithDetails(session.ID)
	}
	return nil
}

// Get returns a copy of the session if it exists and has been touched
// within the TTL. An expired session is removed on the spot and
// reported exactly like a session that never existed.
func (s *Store) Get(_ context.Context, id string) (*domain.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.liveSession(id)
	if err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// Update applies fn to the session under the store lock and refreshes
// its last-touched timestamp. If fn returns an error the session is
// left unmodified.
func (s *Store) Update(_ context.Context, id string, fn func(*domain.AuthSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.liveSession(id)
	if err != nil {
		return err
	}

	updated := session.Clone()
	if err := fn(updated); err != nil {
		return err
	}
	updated.Touch(s.clock.Now())
	s.sessions.Set(id, updated)
	return nil
}

// Delete removes a session and wipes its key material. Deleting an
// absent session is a no-op.
func (s *Store) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(id)
}

// Sweep removes every session past the TTL and returns the count.
// The sweeper calls this on its own timer; it takes the same lock as
// the interactive operations.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var expired []string
	s.sessions.Range(func(id string, session *domain.AuthSession) bool {
		if session.Age(now) > s.ttl {
			expired = append(expired, id)
		}
		return true
	})

	for _, id := range expired {
		s.remove(id)
	}
	return len(expired)
}

// Stats returns session counts grouped by state. Sessions past the
// TTL are excluded even if the sweeper has not removed them yet.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	stats := Stats{ByState: make(map[domain.AuthState]int)}
	s.sessions.Range(func(_ string, session *domain.AuthSession) bool {
		if session.Age(now) > s.ttl {
			return true
		}
		stats.Total++
		stats.ByState[session.State]++
		return true
	})
	return stats
}

// Count returns the number of physically held sessions, including
// expired ones the sweeper has not reached. For tests and metrics.
func (s *Store) Count() int {
	return s.sessions.Count()
}

// liveSession returns the stored session if present and unexpired,
// removing it when expired. Callers must hold s.mu.
func (s *Store) liveSession(id string) (*domain.AuthSession, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Age(s.clock.Now()) > s.ttl {
		s.remove(id)
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) remove(id string) {
	if session, ok := s.sessions.Pop(id); ok {
		session.Wipe()
	}
}
