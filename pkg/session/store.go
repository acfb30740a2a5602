package session

import "sync"

// Store maps caller-chosen keys to session state. Entries are created on
// first use and live until Delete.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	state *State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

func (s *Store) entry(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[key]
	if !ok {
		e = &entry{state: &State{}}
		s.sessions[key] = e
	}
	return e
}

// Get returns the state for key, creating it if needed. Callers that may touch
// the same key concurrently should use With instead.
func (s *Store) Get(key string) *State {
	return s.entry(key).state
}

// With runs fn while holding the per-session lock, so flows on the same key
// are serialized and flows on different keys run in parallel.
func (s *Store) With(key string, fn func(*State) error) error {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.state)
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Delete forgets key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}
