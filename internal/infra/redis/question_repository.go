package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"backtrace-quiz-service/internal/domain"
	"backtrace-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const questionsKey = "quiz:questions"

// QuestionRepository caches the question set in Redis (one hash, keyed by
// question number) and falls back to a source on cache miss. The hash holds
// the authoritative records including the correct-answer index, so the key
// must never be exposed outside the server.
type QuestionRepository struct {
	client *redis.Client
	source memory.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, source memory.QuestionSource, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context) ([]domain.Question, error) {
	cached, err := r.client.HGetAll(ctx, questionsKey).Result()
	if err == nil && len(cached) > 0 {
		return decodeQuestions(cached)
	}

	result, err, _ := r.sf.Do(questionsKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := r.client.HGetAll(ctx, questionsKey).Result()
		if err == nil && len(cached) > 0 {
			return decodeQuestions(cached)
		}

		questions, err := r.source.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}
		if len(questions) > 0 {
			r.fillCache(ctx, questions)
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// ReplaceAll writes through to the source and invalidates the cached hash.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, questions []domain.Question) error {
	if err := r.source.StoreQuestions(ctx, questions); err != nil {
		return err
	}
	// best-effort invalidation; the next read repopulates
	_ = r.client.Del(ctx, questionsKey).Err()
	return nil
}

func (r *QuestionRepository) fillCache(ctx context.Context, questions []domain.Question) {
	pipe := r.client.Pipeline()
	for _, q := range questions {
		encoded, err := json.Marshal(q)
		if err != nil {
			return
		}
		pipe.HSet(ctx, questionsKey, strconv.Itoa(q.Number), encoded)
	}
	if ttl := r.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, questionsKey, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func decodeQuestions(cached map[string]string) ([]domain.Question, error) {
	questions := make([]domain.Question, 0, len(cached))
	for _, raw := range cached {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("decode cached question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
