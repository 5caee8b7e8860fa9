package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quiz-roulette-service/internal/domain"
)

// LeaderboardStore persists the cross-player score table. Upsert and
// ResetWeek must be atomic at the storage layer: concurrent finishers never
// lose an update to a race.
type LeaderboardStore interface {
	// Upsert inserts {nickname, score, score, 1} or aggregates into the
	// existing row: best_score = max, total_points += score, games_played += 1.
	Upsert(ctx context.Context, nickname string, score int) error
	// Entry fetches one row without any metric filter; domain.ErrEntryNotFound when absent.
	Entry(ctx context.Context, nickname string) (domain.LeaderboardEntry, error)
	// All returns every row, in no particular order.
	All(ctx context.Context) ([]domain.LeaderboardEntry, error)
	// Top returns the ranked listing for a mode: metric desc, nickname asc,
	// metric > 0 only, limited.
	Top(ctx context.Context, mode domain.RankMode, limit int) ([]domain.LeaderboardEntry, error)
	// ResetWeek zeroes total_points and games_played for all rows if the
	// stored period marker differs from period, then records the marker.
	// Running it twice for the same period is a no-op.
	ResetWeek(ctx context.Context, period string) error
}

// LeaderboardService wraps the store with the weekly epoch check, the
// before/after promotion computation, and a broadcast feed of ranking
// snapshots for live viewers.
type LeaderboardService struct {
	store LeaderboardStore
	clock func() time.Time
	topN  int

	mu          sync.Mutex
	subscribers map[chan []domain.LeaderboardEntry]struct{}
}

func NewLeaderboardService(store LeaderboardStore, topN int) *LeaderboardService {
	return NewLeaderboardServiceWithClock(store, topN, time.Now)
}

// NewLeaderboardServiceWithClock allows a fixed clock for deterministic
// week-boundary tests.
func NewLeaderboardServiceWithClock(store LeaderboardStore, topN int, clock func() time.Time) *LeaderboardService {
	if topN <= 0 {
		topN = 20
	}
	return &LeaderboardService{
		store:       store,
		clock:       clock,
		topN:        topN,
		subscribers: make(map[chan []domain.LeaderboardEntry]struct{}),
	}
}

// MaybeResetWeek runs the weekly sweep if the ISO week of now differs from
// the stored marker. It runs before any operation that treats the board as
// "this week's" ranking.
func (s *LeaderboardService) MaybeResetWeek(ctx context.Context) error {
	return s.store.ResetWeek(ctx, domain.WeekPeriod(s.clock()))
}

// RecordResult aggregates a finished round into the board. Zero-score rounds
// are not recorded.
func (s *LeaderboardService) RecordResult(ctx context.Context, nickname string, score int) error {
	if score <= 0 {
		return nil
	}
	if err := s.MaybeResetWeek(ctx); err != nil {
		return fmt.Errorf("weekly reset: %w", err)
	}
	if err := s.store.Upsert(ctx, nickname, score); err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// FinishRound records the score and reports how the nickname moved in the
// mode's ranking, comparing snapshots taken immediately before and after the
// upsert. Zero-score rounds record nothing and are always Unchanged.
func (s *LeaderboardService) FinishRound(ctx context.Context, nickname string, score int, mode domain.RankMode) (domain.Promotion, error) {
	unchanged := domain.Promotion{Kind: domain.PromotionNone}
	if score <= 0 {
		return unchanged, nil
	}
	if err := s.MaybeResetWeek(ctx); err != nil {
		return unchanged, fmt.Errorf("weekly reset: %w", err)
	}

	before, err := s.ranked(ctx, mode)
	if err != nil {
		return unchanged, err
	}
	if err := s.store.Upsert(ctx, nickname, score); err != nil {
		return unchanged, fmt.Errorf("record result: %w", err)
	}
	after, err := s.ranked(ctx, mode)
	if err != nil {
		return unchanged, err
	}

	s.broadcast(clampTop(after, s.topN))
	return ComputePromotion(before, after, nickname), nil
}

// Top returns the ranked listing for a mode, after ensuring the weekly epoch
// is current. Limits outside 1..50 fall back to the configured default.
func (s *LeaderboardService) Top(ctx context.Context, mode domain.RankMode, limit int) ([]domain.LeaderboardEntry, error) {
	if limit < 1 || limit > 50 {
		limit = s.topN
	}
	if err := s.MaybeResetWeek(ctx); err != nil {
		return nil, fmt.Errorf("weekly reset: %w", err)
	}
	entries, err := s.store.Top(ctx, mode, limit)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}
	return entries, nil
}

// Entry fetches a single nickname's row without the metric>0 listing filter.
func (s *LeaderboardService) Entry(ctx context.Context, nickname string) (domain.LeaderboardEntry, error) {
	return s.store.Entry(ctx, nickname)
}

func (s *LeaderboardService) ranked(ctx context.Context, mode domain.RankMode) ([]domain.LeaderboardEntry, error) {
	entries, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	return Ranked(entries, mode), nil
}

// Subscribe returns a channel fed with ranking snapshots whenever a result is
// recorded, starting with the current top listing. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *LeaderboardService) Subscribe(ctx context.Context, mode domain.RankMode) (<-chan []domain.LeaderboardEntry, func(), error) {
	initial, err := s.Top(ctx, mode, s.topN)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan []domain.LeaderboardEntry, 8)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *LeaderboardService) broadcast(entries []domain.LeaderboardEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- entries:
		default:
			// Drop the stale snapshot so a slow viewer never blocks recording.
			select {
			case <-ch:
			default:
			}
			ch <- entries
		}
	}
}

func clampTop(entries []domain.LeaderboardEntry, n int) []domain.LeaderboardEntry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

// Ranked filters out entries whose metric is zero and orders the rest by
// metric descending with nickname ascending as tie-break.
func Ranked(entries []domain.LeaderboardEntry, mode domain.RankMode) []domain.LeaderboardEntry {
	ranked := make([]domain.LeaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		if mode.Metric(entry) > 0 {
			ranked = append(ranked, entry)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		mi, mj := mode.Metric(ranked[i]), mode.Metric(ranked[j])
		if mi != mj {
			return mi > mj
		}
		return ranked[i].Nickname < ranked[j].Nickname
	})
	return ranked
}

// Rank returns the 1-based position of nickname in an already-ranked listing;
// false when absent.
func Rank(entries []domain.LeaderboardEntry, nickname string) (int, bool) {
	for i, entry := range entries {
		if entry.Nickname == nickname {
			return i + 1, true
		}
	}
	return 0, false
}

// ComputePromotion classifies the rank movement between two ranked snapshots:
// FirstEntry when the nickname appears for the first time, Promoted with the
// climbed distance when its rank improved, Unchanged otherwise.
func ComputePromotion(before, after []domain.LeaderboardEntry, nickname string) domain.Promotion {
	oldRank, existed := Rank(before, nickname)
	newRank, exists := Rank(after, nickname)

	if !existed && exists {
		return domain.Promotion{Kind: domain.PromotionFirstEntry, NewRank: newRank}
	}
	if existed && exists && newRank < oldRank {
		return domain.Promotion{
			Kind:        domain.PromotionUp,
			PositionsUp: oldRank - newRank,
			NewRank:     newRank,
		}
	}
	return domain.Promotion{Kind: domain.PromotionNone, NewRank: newRank}
}
