package memory

import (
	"context"
	"sync"

	"quiz-roulette-service/internal/domain"
)

// RoundStore is an in-memory implementation of app.RoundStore.
type RoundStore struct {
	mu     sync.RWMutex
	rounds map[string]domain.RoundState
}

func NewRoundStore() *RoundStore {
	return &RoundStore{
		rounds: make(map[string]domain.RoundState),
	}
}

func (s *RoundStore) Get(_ context.Context, sessionID string) (domain.RoundState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.rounds[sessionID]
	return state, ok, nil
}

func (s *RoundStore) Put(_ context.Context, sessionID string, state domain.RoundState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[sessionID] = state
	return nil
}

func (s *RoundStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rounds, sessionID)
	return nil
}
