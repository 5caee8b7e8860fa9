package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-roulette-service/internal/domain"
)

// LeaderboardStore persists the score table in Postgres. Upsert is a single
// conditional statement and ResetWeek a transaction over the marker row, so
// concurrent finishers never lose an update.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

func (s *LeaderboardStore) Upsert(ctx context.Context, nickname string, score int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leaderboard (nickname, best_score, total_points, games_played)
		VALUES ($1, $2, $2, 1)
		ON CONFLICT (nickname) DO UPDATE SET
			best_score   = GREATEST(leaderboard.best_score, EXCLUDED.best_score),
			total_points = leaderboard.total_points + EXCLUDED.total_points,
			games_played = leaderboard.games_played + 1
	`, nickname, score)
	if err != nil {
		return fmt.Errorf("upsert leaderboard: %w", err)
	}
	return nil
}

func (s *LeaderboardStore) Entry(ctx context.Context, nickname string) (domain.LeaderboardEntry, error) {
	var entry domain.LeaderboardEntry
	err := s.pool.QueryRow(ctx,
		`SELECT nickname, best_score, total_points, games_played FROM leaderboard WHERE nickname=$1`,
		nickname).
		Scan(&entry.Nickname, &entry.BestScore, &entry.TotalPoints, &entry.GamesPlayed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeaderboardEntry{}, domain.ErrEntryNotFound
	}
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("load entry: %w", err)
	}
	return entry, nil
}

func (s *LeaderboardStore) All(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT nickname, best_score, total_points, games_played FROM leaderboard`)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	return scanEntries(rows)
}

func (s *LeaderboardStore) Top(ctx context.Context, mode domain.RankMode, limit int) ([]domain.LeaderboardEntry, error) {
	// The metric column is chosen here, never interpolated from input.
	query := `SELECT nickname, best_score, total_points, games_played
		FROM leaderboard WHERE total_points > 0
		ORDER BY total_points DESC, nickname ASC LIMIT $1`
	if mode == domain.RankAllTime {
		query = `SELECT nickname, best_score, total_points, games_played
			FROM leaderboard WHERE best_score > 0
			ORDER BY best_score DESC, nickname ASC LIMIT $1`
	}
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard top: %w", err)
	}
	return scanEntries(rows)
}

// ResetWeek zeroes the weekly counters once per ISO-week period. The marker
// row is locked for the duration of the sweep, so two instances crossing the
// boundary together apply it once.
func (s *LeaderboardStore) ResetWeek(ctx context.Context, period string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var stored string
	err = tx.QueryRow(ctx, `SELECT value FROM meta WHERE key=$1 FOR UPDATE`, domain.WeekPeriodKey).Scan(&stored)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read week marker: %w", err)
	}
	if stored == period {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `UPDATE leaderboard SET total_points=0, games_played=0`); err != nil {
		return fmt.Errorf("zero weekly counters: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value
	`, domain.WeekPeriodKey, period); err != nil {
		return fmt.Errorf("store week marker: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]domain.LeaderboardEntry, error) {
	defer rows.Close()
	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.Nickname, &entry.BestScore, &entry.TotalPoints, &entry.GamesPlayed); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
