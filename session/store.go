// Package session keeps per-user conversation engines for transports that
// serve many users at once.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ocode/engine"
)

// Session pairs one user with one conversation engine. The embedded
// mutex serializes turns; the engine itself is not safe for concurrent
// use.
type Session struct {
	sync.Mutex

	ID      string
	UserID  int64
	Engine  *engine.Engine
	Started time.Time
}

// Store is a concurrency-safe session registry keyed by user ID. The
// owning transport supplies the factory that builds an engine for a new
// user.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	factory  func(userID int64) *engine.Engine
}

func NewStore(factory func(userID int64) *engine.Engine) *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		factory:  factory,
	}
}

// GetOrCreate returns the user's session, building one on first contact.
func (s *Store) GetOrCreate(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	sess := &Session{
		ID:      uuid.NewString(),
		UserID:  userID,
		Engine:  s.factory(userID),
		Started: time.Now(),
	}
	s.sessions[userID] = sess
	return sess
}

// Remove drops the user's session; the next contact starts fresh.
func (s *Store) Remove(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
