package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"contest-engine/internal/domain"
	"contest-engine/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionCache caches whole question sets in Redis and falls back to a
// loader on a miss, so every instance shares one copy of a set.
// Sets are stored as: SET contest:questions:{setID} <json>
type QuestionCache struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchQuestions implements app.QuestionSource.
func (c *QuestionCache) FetchQuestions(ctx context.Context, contest domain.Contest) ([]domain.Question, error) {
	return c.LoadQuestionSet(ctx, contest.QuestionSetID)
}

// LoadQuestionSet returns a cached set or loads and caches it.
func (c *QuestionCache) LoadQuestionSet(ctx context.Context, setID string) ([]domain.Question, error) {
	if questions, ok := c.cached(ctx, setID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.cached(ctx, setID); ok {
			return questions, nil
		}

		questions, err := c.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("encode question set %s: %w", setID, err)
		}
		// A failed cache write only costs a reload next time.
		_ = c.client.Set(ctx, questionsKey(setID), raw, c.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	questions := result.([]domain.Question)
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	return out, nil
}

// Invalidate drops a cached set after its content changed.
func (c *QuestionCache) Invalidate(ctx context.Context, setID string) error {
	return c.client.Del(ctx, questionsKey(setID)).Err()
}

func (c *QuestionCache) cached(ctx context.Context, setID string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, questionsKey(setID)).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil || len(questions) == 0 {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionsKey(setID string) string {
	return "contest:questions:" + setID
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
