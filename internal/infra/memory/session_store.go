package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backtrace-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. A single
// mutex gives every operation the read-then-conditionally-write atomicity the
// one-shot transitions require.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.SessionID]; exists {
		return fmt.Errorf("session %s already exists", session.SessionID)
	}
	stored := session
	stored.Answers = cloneAnswers(session.Answers)
	s.sessions[session.SessionID] = &stored
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return snapshot(session), nil
}

func (s *SessionStore) MergeAnswers(_ context.Context, sessionID string, delta map[int]int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	if session.IsSubmitted {
		return 0, domain.ErrAlreadySubmitted
	}
	for number, option := range delta {
		session.Answers[number] = option
	}
	return len(session.Answers), nil
}

func (s *SessionStore) GrantBonus(_ context.Context, sessionID string, minutes, penalty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.IsSubmitted {
		return domain.ErrAlreadySubmitted
	}
	if session.BonusSelected {
		return domain.ErrBonusAlreadySelected
	}
	session.BonusSelected = true
	session.BonusMinutes = minutes
	session.BonusPenalty = penalty
	return nil
}

// Submit checks the guard, scores, and writes the flag and result under one
// lock hold, so a session is either fully submitted or untouched.
func (s *SessionStore) Submit(_ context.Context, sessionID string, endedAt time.Time, score func(domain.Session) domain.Result) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Result{}, domain.ErrSessionNotFound
	}
	if session.IsSubmitted {
		return domain.Result{}, domain.ErrAlreadySubmitted
	}

	scored := snapshot(session)
	scored.EndedAt = endedAt
	scored.SubmittedAt = endedAt
	result := score(scored)

	session.IsSubmitted = true
	session.EndedAt = endedAt
	session.SubmittedAt = endedAt
	session.TotalCorrect = result.TotalCorrect
	session.TotalScore = result.TotalScore
	session.TotalTimeSpent = result.TotalTimeSpent
	session.AverageTimePerQuestion = result.AverageTimePerQuestion
	return result, nil
}

func (s *SessionStore) ListSubmitted(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	submitted := make([]domain.Session, 0)
	for _, session := range s.sessions {
		if session.IsSubmitted {
			submitted = append(submitted, snapshot(session))
		}
	}
	return submitted, nil
}

// snapshot copies a session so callers never share the stored answer map.
func snapshot(session *domain.Session) domain.Session {
	out := *session
	out.Answers = cloneAnswers(session.Answers)
	return out
}

func cloneAnswers(answers map[int]int) map[int]int {
	out := make(map[int]int, len(answers))
	for number, option := range answers {
		out[number] = option
	}
	return out
}
