package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"backtrace-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionSource fetches the full question set from a backing store.
type QuestionSource interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
	StoreQuestions(ctx context.Context, questions []domain.Question) error
}

// QuestionRepository caches the question set with a TTL so the submission
// path does not hammer the backing store with full-set reads.
type QuestionRepository struct {
	source QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(source QuestionSource, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context) ([]domain.Question, error) {
	now := r.clock()

	r.mu.RLock()
	if r.cached != nil && r.expiresAt.After(now) {
		questions := r.cached
		r.mu.RUnlock()
		return questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("questions", func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.cached != nil && r.expiresAt.After(now) {
			questions := r.cached
			r.mu.RUnlock()
			return questions, nil
		}
		r.mu.RUnlock()

		questions, err := r.source.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cached = questions
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// ReplaceAll writes through to the source and drops the cached set.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, questions []domain.Question) error {
	if err := r.source.StoreQuestions(ctx, questions); err != nil {
		return err
	}
	r.mu.Lock()
	r.cached = nil
	r.expiresAt = time.Time{}
	r.mu.Unlock()
	return nil
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionSource is a map-backed source useful for tests and for
// running the server without Postgres.
type StaticQuestionSource struct {
	mu        sync.RWMutex
	questions []domain.Question
}

func NewStaticQuestionSource(questions []domain.Question) *StaticQuestionSource {
	return &StaticQuestionSource{questions: questions}
}

func (s *StaticQuestionSource) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, len(s.questions))
	copy(out, s.questions)
	return out, nil
}

func (s *StaticQuestionSource) StoreQuestions(_ context.Context, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = make([]domain.Question, len(questions))
	copy(s.questions, questions)
	return nil
}
