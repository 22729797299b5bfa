package memory

import (
	"sync"

	"assessment-attempt-service/internal/app"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu    sync.RWMutex
	byID  map[string]*app.Attempt
	byKey map[app.AttemptKey]*app.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		byID:  make(map[string]*app.Attempt),
		byKey: make(map[app.AttemptKey]*app.Attempt),
	}
}

func (s *AttemptStore) PutIfAbsent(a *app.Attempt) (*app.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live, ok := s.byKey[a.Key]; ok {
		return live, false
	}
	s.byID[a.ID] = a
	s.byKey[a.Key] = a
	return a, true
}

func (s *AttemptStore) Get(attemptID string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[attemptID]
	return a, ok
}

func (s *AttemptStore) FindByKey(key app.AttemptKey) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byKey[key]
	return a, ok
}

func (s *AttemptStore) Delete(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[attemptID]
	if !ok {
		return
	}
	delete(s.byID, attemptID)
	if s.byKey[a.Key] == a {
		delete(s.byKey, a.Key)
	}
}

// Len reports how many attempts are live.
func (s *AttemptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
