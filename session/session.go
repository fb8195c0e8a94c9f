// Package session tracks the active assistant session in memory. Nothing
// is written to disk: a restart or /clear always starts a fresh session.
package session

import (
	"strings"
	"sync"
)

type Snapshot struct {
	ID       string
	Messages int
	Model    string
}

type Store struct {
	mu         sync.Mutex
	id         string
	messages   int
	model      string
	generation uint64
}

func NewStore(model string) *Store {
	return &Store{model: strings.TrimSpace(model)}
}

// Resume returns the session id to pass as --resume ("" for a fresh
// session) and the generation that issued it. Writes carrying a stale
// generation are discarded, so a subprocess spawned before a Clear cannot
// re-record the discarded session.
func (s *Store) Resume() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.generation
}

// ID returns the current session id, or "" when none is active.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Observe records the session id reported on a stream event. The CLI
// repeats the id on several event types; any of them may set it, as long
// as gen is still current.
func (s *Store) Observe(id string, gen uint64) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	s.mu.Lock()
	if gen == s.generation {
		s.id = id
	}
	s.mu.Unlock()
}

// BumpMessages counts one completed exchange, unless gen is stale.
func (s *Store) BumpMessages(gen uint64) {
	s.mu.Lock()
	if gen == s.generation {
		s.messages++
	}
	s.mu.Unlock()
}

// Clear discards the session and advances the generation; the next
// exchange starts without a resume id, and in-flight writers from before
// the clear are silenced.
func (s *Store) Clear() {
	s.mu.Lock()
	s.id = ""
	s.messages = 0
	s.generation++
	s.mu.Unlock()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{ID: s.id, Messages: s.messages, Model: s.model}
}
