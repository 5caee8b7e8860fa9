package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-roulette-service/internal/domain"
)

// QuestionSource loads question content from a backing store on cache miss.
type QuestionSource interface {
	IDsByTheme(ctx context.Context, theme domain.Theme) ([]int64, error)
	ByID(ctx context.Context, id int64) (domain.Question, error)
}

// QuestionCache caches the question bank in Redis and falls back to a source
// on miss. Per-theme id lists and per-question payloads are stored as JSON:
//
//	SET quiz:theme:{theme}:ids  [id, ...]
//	SET quiz:question:{id}      {question}
type QuestionCache struct {
	client *redis.Client
	source QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, source QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) IDsByTheme(ctx context.Context, theme domain.Theme) ([]int64, error) {
	key := c.themeKey(theme)

	if ids, ok := c.cachedIDs(ctx, key); ok {
		return ids, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if ids, ok := c.cachedIDs(ctx, key); ok {
			return ids, nil
		}
		ids, err := c.source.IDsByTheme(ctx, theme)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(ids); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]int64), nil
}

func (c *QuestionCache) ByID(ctx context.Context, id int64) (domain.Question, error) {
	key := c.questionKey(id)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var question domain.Question
		if err := json.Unmarshal(raw, &question); err == nil {
			return question, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var question domain.Question
			if err := json.Unmarshal(raw, &question); err == nil {
				return question, nil
			}
		}
		question, err := c.source.ByID(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		if raw, err := json.Marshal(question); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return question, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrQuestionNotFound) {
			return domain.Question{}, domain.ErrQuestionNotFound
		}
		return domain.Question{}, fmt.Errorf("load question %d: %w", id, err)
	}
	return result.(domain.Question), nil
}

func (c *QuestionCache) cachedIDs(ctx context.Context, key string) ([]int64, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func (c *QuestionCache) themeKey(theme domain.Theme) string {
	return "quiz:theme:" + string(theme) + ":ids"
}

func (c *QuestionCache) questionKey(id int64) string {
	return fmt.Sprintf("quiz:question:%d", id)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
