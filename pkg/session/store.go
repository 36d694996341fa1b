// Package session implements the server-side session store consumed by the
// request layer. Sessions are identified by an opaque ID carried in the SID
// cookie and hold named attributes.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serviohq/servio/pkg/observability"
)

// ErrNotFound is returned for operations on a session ID that does not exist
// or has expired.
var ErrNotFound = errors.New("session: not found")

// Store is the session storage surface consumed by the request layer.
// Implementations are safe for use from multiple connection workers.
type Store interface {
	// Find reports whether id denotes a live session.
	Find(id string) bool

	// Create allocates a new session and returns its ID.
	Create() (string, error)

	// Remove deletes a session and all of its attributes.
	Remove(id string) error

	// SetAttribute stores a named attribute on a session.
	SetAttribute(id, name string, value any) error

	// GetAttribute returns a named attribute, or false if the session or the
	// attribute is absent.
	GetAttribute(id, name string) (any, bool)

	// AttributeNames lists the attribute names of a session.
	AttributeNames(id string) []string

	// RemoveAttribute deletes a named attribute if present.
	RemoveAttribute(id, name string) error

	// Close releases the store's resources.
	Close() error
}

// memSession is one in-memory session.
type memSession struct {
	attrs   map[string]any
	expires time.Time // zero = never
}

// memoryStore keeps sessions in a mutex-guarded map.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	ttl      time.Duration
}

// NewMemoryStore creates an in-memory session store. A ttl of zero disables
// expiry; otherwise sessions lapse ttl after their last attribute write.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{
		sessions: make(map[string]*memSession),
		ttl:      ttl,
	}
}

// live returns the session for id, reaping it first if expired.
// Callers must hold mu for writing.
func (s *memoryStore) live(id string) *memSession {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if !sess.expires.IsZero() && time.Now().After(sess.expires) {
		delete(s.sessions, id)
		observability.Get().SessionsActive.Dec()
		return nil
	}
	return sess
}

func (s *memoryStore) touch(sess *memSession) {
	if s.ttl > 0 {
		sess.expires = time.Now().Add(s.ttl)
	}
}

func (s *memoryStore) Find(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(id) != nil
}

func (s *memoryStore) Create() (string, error) {
	id := uuid.New().String()
	sess := &memSession{attrs: make(map[string]any)}
	s.touch(sess)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	observability.Get().SessionsActive.Inc()
	return id, nil
}

func (s *memoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	observability.Get().SessionsActive.Dec()
	return nil
}

func (s *memoryStore) SetAttribute(id, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.live(id)
	if sess == nil {
		return ErrNotFound
	}
	sess.attrs[name] = value
	s.touch(sess)
	return nil
}

func (s *memoryStore) GetAttribute(id, name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.live(id)
	if sess == nil {
		return nil, false
	}
	v, ok := sess.attrs[name]
	return v, ok
}

func (s *memoryStore) AttributeNames(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.live(id)
	if sess == nil {
		return nil
	}
	names := make([]string, 0, len(sess.attrs))
	for name := range sess.attrs {
		names = append(names, name)
	}
	return names
}

func (s *memoryStore) RemoveAttribute(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.live(id)
	if sess == nil {
		return ErrNotFound
	}
	delete(sess.attrs, name)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.sessions {
		delete(s.sessions, id)
		observability.Get().SessionsActive.Dec()
	}
	return nil
}

// Compile-time interface assertion.
var _ Store = (*memoryStore)(nil)
