package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// stateStore binds OAuth state values to companies for the duration of the
// consent round-trip. States are one-shot: consume removes them.
type stateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]stateEntry
}

type stateEntry struct {
	companyID uuid.UUID
	expiresAt time.Time
}

func newStateStore(ttl time.Duration) *stateStore {
	return &stateStore{ttl: ttl, entries: make(map[string]stateEntry)}
}

func (s *stateStore) issue(companyID uuid.UUID, now time.Time) string {
	state := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	s.entries[state] = stateEntry{companyID: companyID, expiresAt: now.Add(s.ttl)}
	return state
}

func (s *stateStore) consume(state string, now time.Time) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return uuid.Nil, false
	}
	delete(s.entries, state)
	if now.After(entry.expiresAt) {
		return uuid.Nil, false
	}
	return entry.companyID, true
}

// prune drops expired entries; called under lock on each issue.
func (s *stateStore) prune(now time.Time) {
	for state, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, state)
		}
	}
}
