package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-roulette-service/internal/domain"
)

// LeaderboardStore is an in-memory implementation of app.LeaderboardStore.
// The mutex makes Upsert and ResetWeek atomic, matching the conditional-upsert
// contract the Postgres store gets from ON CONFLICT and a transaction.
type LeaderboardStore struct {
	mu      sync.Mutex
	entries map[string]domain.LeaderboardEntry
	period  string
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{
		entries: make(map[string]domain.LeaderboardEntry),
	}
}

func (s *LeaderboardStore) Upsert(_ context.Context, nickname string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[nickname]
	if !ok {
		s.entries[nickname] = domain.LeaderboardEntry{
			Nickname:    nickname,
			BestScore:   score,
			TotalPoints: score,
			GamesPlayed: 1,
		}
		return nil
	}
	if score > entry.BestScore {
		entry.BestScore = score
	}
	entry.TotalPoints += score
	entry.GamesPlayed++
	s.entries[nickname] = entry
	return nil
}

func (s *LeaderboardStore) Entry(_ context.Context, nickname string) (domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[nickname]
	if !ok {
		return domain.LeaderboardEntry{}, domain.ErrEntryNotFound
	}
	return entry, nil
}

func (s *LeaderboardStore) All(_ context.Context) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *LeaderboardStore) Top(_ context.Context, mode domain.RankMode, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if mode.Metric(entry) > 0 {
			entries = append(entries, entry)
		}
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		mi, mj := mode.Metric(entries[i]), mode.Metric(entries[j])
		if mi != mj {
			return mi > mj
		}
		return entries[i].Nickname < entries[j].Nickname
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *LeaderboardStore) ResetWeek(_ context.Context, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.period == period {
		return nil
	}
	for nickname, entry := range s.entries {
		entry.TotalPoints = 0
		entry.GamesPlayed = 0
		s.entries[nickname] = entry
	}
	s.period = period
	return nil
}
