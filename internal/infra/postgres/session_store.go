package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"backtrace-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SessionStore persists participant sessions in Postgres. Every one-shot
// guard is expressed as a conditional UPDATE on the session row, so two
// concurrent submitters can never both pass it.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

const sessionColumns = `session_id, name, started_at, ended_at, answers,
	bonus_selected, bonus_minutes, bonus_penalty, is_submitted, submitted_at,
	total_correct, total_score, total_time_spent, avg_time_per_question`

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	answers, err := encodeAnswers(session.Answers)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, name, started_at, answers)
		VALUES ($1, $2, $3, $4)`,
		session.SessionID, session.Name, session.StartedAt, answers)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	return scanSession(row)
}

func (s *SessionStore) MergeAnswers(ctx context.Context, sessionID string, delta map[int]int) (int, error) {
	encoded, err := encodeAnswers(delta)
	if err != nil {
		return 0, err
	}

	// JSONB concatenation overwrites per key, which is exactly the
	// last-write-wins merge the answer map needs.
	var merged []byte
	err = s.pool.QueryRow(ctx, `
		UPDATE sessions
		SET answers = answers || $2::jsonb
		WHERE session_id = $1 AND NOT is_submitted
		RETURNING answers`,
		sessionID, encoded).Scan(&merged)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, s.guardFailure(ctx, sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("merge answers: %w", err)
	}

	answers, err := decodeAnswers(merged)
	if err != nil {
		return 0, err
	}
	return len(answers), nil
}

func (s *SessionStore) GrantBonus(ctx context.Context, sessionID string, minutes, penalty int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET bonus_selected = TRUE, bonus_minutes = $2, bonus_penalty = $3
		WHERE session_id = $1 AND NOT bonus_selected AND NOT is_submitted`,
		sessionID, minutes, penalty)
	if err != nil {
		return fmt.Errorf("grant bonus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		session, err := s.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.IsSubmitted {
			return domain.ErrAlreadySubmitted
		}
		return domain.ErrBonusAlreadySelected
	}
	return nil
}

// Submit runs the terminal transition in one transaction: the session row is
// locked, the guard checked, and the submitted flag lands together with the
// score. On any error the transaction rolls back and the session stays
// resubmittable. The row lock admits exactly one concurrent submitter.
func (s *SessionStore) Submit(ctx context.Context, sessionID string, endedAt time.Time, score func(domain.Session) domain.Result) (domain.Result, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("begin submit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1 FOR UPDATE`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		return domain.Result{}, err
	}
	if session.IsSubmitted {
		return domain.Result{}, domain.ErrAlreadySubmitted
	}

	session.EndedAt = endedAt
	session.SubmittedAt = endedAt
	result := score(session)

	_, err = tx.Exec(ctx, `
		UPDATE sessions
		SET is_submitted = TRUE, ended_at = $2, submitted_at = $2,
			total_correct = $3, total_score = $4, total_time_spent = $5, avg_time_per_question = $6
		WHERE session_id = $1`,
		sessionID, endedAt, result.TotalCorrect, result.TotalScore, result.TotalTimeSpent, result.AverageTimePerQuestion)
	if err != nil {
		return domain.Result{}, fmt.Errorf("store result: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Result{}, fmt.Errorf("commit submit: %w", err)
	}
	return result, nil
}

func (s *SessionStore) ListSubmitted(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE is_submitted`)
	if err != nil {
		return nil, fmt.Errorf("list submitted: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// guardFailure distinguishes an unknown session from a conditional update
// that lost to an earlier submission.
func (s *SessionStore) guardFailure(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsSubmitted {
		return domain.ErrAlreadySubmitted
	}
	return fmt.Errorf("conditional update on session %s affected no rows", sessionID)
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var session domain.Session
	var rawAnswers []byte
	var endedAt, submittedAt *time.Time
	err := row.Scan(
		&session.SessionID, &session.Name, &session.StartedAt, &endedAt, &rawAnswers,
		&session.BonusSelected, &session.BonusMinutes, &session.BonusPenalty,
		&session.IsSubmitted, &submittedAt,
		&session.TotalCorrect, &session.TotalScore, &session.TotalTimeSpent, &session.AverageTimePerQuestion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	if endedAt != nil {
		session.EndedAt = *endedAt
	}
	if submittedAt != nil {
		session.SubmittedAt = *submittedAt
	}
	session.Answers, err = decodeAnswers(rawAnswers)
	if err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// Answer-map keys cross JSONB as stringified decimal question numbers.
func encodeAnswers(answers map[int]int) ([]byte, error) {
	keyed := make(map[string]int, len(answers))
	for number, option := range answers {
		keyed[strconv.Itoa(number)] = option
	}
	encoded, err := json.Marshal(keyed)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return encoded, nil
}

func decodeAnswers(raw []byte) (map[int]int, error) {
	keyed := make(map[string]int)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	answers := make(map[int]int, len(keyed))
	for key, option := range keyed {
		number, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("decode answer key %q: %w", key, err)
		}
		answers[number] = option
	}
	return answers, nil
}
