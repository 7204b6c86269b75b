package redis

import (
	"context"
	"testing"
	"time"

	"backtrace-quiz-service/internal/domain"
	"backtrace-quiz-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingSource{
		QuestionSource: memory.NewStaticQuestionSource(sampleQuestions()),
	}
	repo := NewQuestionRepository(client, loader, time.Minute)

	questions, err := repo.GetQuestions(context.Background())
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if loader.loads != 1 {
		t.Fatalf("expected source called once, got %d", loader.loads)
	}
	if !mr.Exists(questionsKey) {
		t.Fatalf("expected cache hash to be populated")
	}

	// Second call should hit the Redis hash, source not incremented.
	cached, err := repo.GetQuestions(context.Background())
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if loader.loads != 1 {
		t.Fatalf("expected cache hit, source loads=%d", loader.loads)
	}

	byNumber := make(map[int]domain.Question, len(cached))
	for _, q := range cached {
		byNumber[q.Number] = q
	}
	if byNumber[1].CorrectOption != 1 || byNumber[2].CorrectOption != 3 {
		t.Fatalf("cached questions lost the answer key: %+v", cached)
	}
}

func TestQuestionRepositoryReplaceAllInvalidates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	loader := &countingSource{
		QuestionSource: memory.NewStaticQuestionSource(sampleQuestions()),
	}
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute)

	if _, err := repo.GetQuestions(ctx); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	replacement := []domain.Question{
		{Number: 7, Text: "new", Options: []string{"a", "b", "c", "d"}, CorrectOption: 2},
	}
	if err := repo.ReplaceAll(ctx, replacement); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if mr.Exists(questionsKey) {
		t.Fatalf("expected cache hash dropped after replace")
	}

	questions, err := repo.GetQuestions(ctx)
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if len(questions) != 1 || questions[0].Number != 7 {
		t.Fatalf("expected replaced set, got %+v", questions)
	}
}

type countingSource struct {
	memory.QuestionSource
	loads int
}

func (s *countingSource) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	s.loads++
	return s.QuestionSource.LoadQuestions(ctx)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{Number: 1, Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, CorrectOption: 1, Category: "aptitude"},
		{Number: 2, Text: "Pick the even number", Options: []string{"1", "3", "5", "8"}, CorrectOption: 3, Category: "aptitude"},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
