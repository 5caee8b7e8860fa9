package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-roulette-service/internal/domain"
)

// RoundStore keeps each session's round state as a single JSON value in
// Redis, refreshed with a TTL on every write. An abandoned round simply
// expires; the engine never garbage-collects it explicitly.
type RoundStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoundStore(client *redis.Client, ttl time.Duration) *RoundStore {
	return &RoundStore{client: client, ttl: ttl}
}

func (s *RoundStore) Get(ctx context.Context, sessionID string) (domain.RoundState, bool, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RoundState{}, false, nil
	}
	if err != nil {
		return domain.RoundState{}, false, fmt.Errorf("redis get round: %w", err)
	}
	var state domain.RoundState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.RoundState{}, false, fmt.Errorf("unmarshal round: %w", err)
	}
	return state, true, nil
}

func (s *RoundStore) Put(ctx context.Context, sessionID string, state domain.RoundState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal round: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set round: %w", err)
	}
	return nil
}

func (s *RoundStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del round: %w", err)
	}
	return nil
}

func (s *RoundStore) key(sessionID string) string {
	return "round:session:" + sessionID
}
