package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"backtrace-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionStore persists the question set in Postgres. Options are stored as
// JSONB; the table is the authoritative home of the correct-answer index.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT question_number, question, options, correct_answer, category, difficulty
		FROM questions
		ORDER BY question_number`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var rawOptions []byte
		if err := rows.Scan(&q.Number, &q.Text, &rawOptions, &q.CorrectOption, &q.Category, &q.Difficulty); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", q.Number, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// StoreQuestions replaces the full question set in one transaction.
func (s *QuestionStore) StoreQuestions(ctx context.Context, questions []domain.Question) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE questions`); err != nil {
		return fmt.Errorf("truncate questions: %w", err)
	}

	batch := &pgx.Batch{}
	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("encode options for question %d: %w", q.Number, err)
		}
		batch.Queue(`
			INSERT INTO questions (question_number, question, options, correct_answer, category, difficulty)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			q.Number, q.Text, options, q.CorrectOption, q.Category, q.Difficulty)
	}

	results := tx.SendBatch(ctx, batch)
	for range questions {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert question: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close seed batch: %w", err)
	}
	return tx.Commit(ctx)
}
