package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"backtrace-quiz-service/internal/domain"
)

// SessionStore abstracts how participant sessions are persisted (in-memory,
// Postgres, etc). Implementations must make the one-shot transitions atomic:
// of two concurrent Submit calls for the same session, exactly one may
// succeed; the other reports domain.ErrAlreadySubmitted. GrantBonus has the
// equivalent contract for the bonus flag.
type SessionStore interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	// MergeAnswers overwrites the stored answer per key in delta (last write
	// wins) and returns the total answered count after the merge.
	MergeAnswers(ctx context.Context, sessionID string, delta map[int]int) (int, error)
	GrantBonus(ctx context.Context, sessionID string, minutes, penalty int) error
	// Submit performs the terminal transition: it checks the submitted flag,
	// computes the result from the current session state via score, and
	// persists the flag and the result together. Either everything commits or
	// the session stays resubmittable.
	Submit(ctx context.Context, sessionID string, endedAt time.Time, score func(domain.Session) domain.Result) (domain.Result, error)
	ListSubmitted(ctx context.Context) ([]domain.Session, error)
}

// QuestionRepository loads the question set (from cache/backing store).
type QuestionRepository interface {
	GetQuestions(ctx context.Context) ([]domain.Question, error)
	ReplaceAll(ctx context.Context, questions []domain.Question) error
}

// QuizService contains the quiz use cases: the session state machine,
// server-side scoring, and the admin leaderboard.
type QuizService struct {
	sessions  SessionStore
	questions QuestionRepository
	adminName string
	now       func() time.Time
}

func NewQuizService(sessions SessionStore, questions QuestionRepository, adminName string) *QuizService {
	return &QuizService{
		sessions:  sessions,
		questions: questions,
		adminName: adminName,
		now:       time.Now,
	}
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(sessions SessionStore, questions QuestionRepository, adminName string, now func() time.Time) *QuizService {
	s := NewQuizService(sessions, questions, adminName)
	s.now = now
	return s
}

const (
	minNameLength = 2
	maxNameLength = 100
	minOption     = 0
	maxOption     = 3
)

// CreateSession starts a new quiz attempt for the given display name and
// returns the session carrying the generated session ID.
func (s *QuizService) CreateSession(ctx context.Context, name string) (domain.Session, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		return domain.Session{}, domain.ErrInvalidName
	}

	now := s.now()
	session := domain.Session{
		SessionID: newSessionID(now),
		Name:      name,
		StartedAt: now,
		Answers:   map[int]int{},
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// ListQuestionsForSession returns the sanitized question set, ordered by
// question number. The correct-answer index never appears in the result.
func (s *QuizService) ListQuestionsForSession(ctx context.Context, sessionID string) ([]domain.SanitizedQuestion, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsSubmitted {
		return nil, domain.ErrAlreadySubmitted
	}

	cached, err := s.questions.GetQuestions(ctx)
	if err != nil {
		return nil, err
	}
	// The repository may hand out a shared cached slice; sort a copy so
	// concurrent requests never reorder each other's view.
	questions := make([]domain.Question, len(cached))
	copy(questions, cached)
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].Number < questions[j].Number
	})

	sanitized := make([]domain.SanitizedQuestion, 0, len(questions))
	for _, q := range questions {
		sanitized = append(sanitized, q.Sanitize())
	}
	return sanitized, nil
}

// SaveAnswers merges the delta into the session's answers, overwriting per
// key, and returns the total answered count. Out-of-range question numbers
// and option indices are rejected before anything is persisted.
func (s *QuizService) SaveAnswers(ctx context.Context, sessionID string, delta map[int]int) (int, error) {
	for number, option := range delta {
		if number < 1 || option < minOption || option > maxOption {
			return 0, domain.ErrInvalidAnswer
		}
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session.IsSubmitted {
		return 0, domain.ErrAlreadySubmitted
	}

	return s.sessions.MergeAnswers(ctx, sessionID, delta)
}

// SelectBonus applies the one-time bonus extension. The penalty comes from
// the fixed table; a second selection fails regardless of the minutes asked.
func (s *QuizService) SelectBonus(ctx context.Context, sessionID string, minutes int) (domain.BonusGrant, error) {
	penalty, ok := domain.BonusPenaltyTable[minutes]
	if !ok {
		return domain.BonusGrant{}, domain.ErrInvalidBonus
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.BonusGrant{}, err
	}
	if session.BonusSelected {
		return domain.BonusGrant{}, domain.ErrBonusAlreadySelected
	}
	if session.IsSubmitted {
		return domain.BonusGrant{}, domain.ErrAlreadySubmitted
	}

	if err := s.sessions.GrantBonus(ctx, sessionID, minutes, penalty); err != nil {
		return domain.BonusGrant{}, err
	}
	return domain.BonusGrant{BonusMinutes: minutes, Penalty: penalty}, nil
}

// SubmitSession performs the terminal transition: it atomically marks the
// session submitted, scores the stored answers against the full question set,
// and persists the result. A second submission fails; nothing is recomputed.
func (s *QuizService) SubmitSession(ctx context.Context, sessionID string) (domain.Result, error) {
	// Load the question set before touching the session so a transient
	// question-store failure cannot strand a half-submitted session.
	questions, err := s.questions.GetQuestions(ctx)
	if err != nil {
		return domain.Result{}, err
	}

	endedAt := s.now()
	return s.sessions.Submit(ctx, sessionID, endedAt, func(session domain.Session) domain.Result {
		return scoreSession(questions, session, endedAt)
	})
}

// SessionStatus reports submission state, bonus state, start time, and how
// many questions have been answered so far.
func (s *QuizService) SessionStatus(ctx context.Context, sessionID string) (domain.SessionStatus, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return domain.SessionStatus{
		IsSubmitted:   session.IsSubmitted,
		BonusSelected: session.BonusSelected,
		StartTime:     session.StartedAt,
		AnsweredCount: len(session.Answers),
	}, nil
}

// AuthenticateAdmin grants an admin token iff name exactly matches the
// configured reserved name. The comparison is case-sensitive.
func (s *QuizService) AuthenticateAdmin(name string) (string, error) {
	if s.adminName == "" || name != s.adminName {
		return "", domain.ErrUnauthorized
	}
	return newAdminToken(s.now()), nil
}

// ListSubmittedSessions builds the ranked leaderboard over submitted sessions.
func (s *QuizService) ListSubmittedSessions(ctx context.Context, key domain.SortKey) (domain.Leaderboard, error) {
	submitted, err := s.sessions.ListSubmitted(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(submitted))
	for _, session := range submitted {
		entries = append(entries, domain.LeaderboardEntry{
			Name:           session.Name,
			TotalScore:     session.TotalScore,
			TotalCorrect:   session.TotalCorrect,
			BonusTimeUsed:  session.BonusMinutes,
			BonusPenalty:   session.BonusPenalty,
			TotalTimeSpent: session.TotalTimeSpent,
			AverageSpeed:   session.AverageTimePerQuestion,
			SubmittedAt:    session.SubmittedAt,
		})
	}

	switch key {
	case domain.SortByScore:
		// Highest score first; ties go to the faster participant.
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].TotalScore != entries[j].TotalScore {
				return entries[i].TotalScore > entries[j].TotalScore
			}
			return entries[i].TotalTimeSpent < entries[j].TotalTimeSpent
		})
	case domain.SortBySpeed:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].AverageSpeed < entries[j].AverageSpeed
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].SubmittedAt.After(entries[j].SubmittedAt)
		})
	}

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return domain.Leaderboard{Participants: entries, Total: len(entries)}, nil
}

// SeedQuestions validates and bulk-loads the question set, replacing any
// previously loaded questions.
func (s *QuizService) SeedQuestions(ctx context.Context, questions []domain.Question) error {
	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}
	seen := make(map[int]struct{}, len(questions))
	for _, q := range questions {
		if q.Number < 1 {
			return fmt.Errorf("question number %d: must be positive", q.Number)
		}
		if _, dup := seen[q.Number]; dup {
			return fmt.Errorf("question number %d: duplicate", q.Number)
		}
		seen[q.Number] = struct{}{}
		if len(q.Options) != 4 {
			return fmt.Errorf("question %d: expected 4 options, got %d", q.Number, len(q.Options))
		}
		if q.CorrectOption < minOption || q.CorrectOption > maxOption {
			return fmt.Errorf("question %d: correct option %d out of range", q.Number, q.CorrectOption)
		}
	}
	return s.questions.ReplaceAll(ctx, questions)
}

// scoreSession computes the final result from authoritative data. Unanswered
// questions and stored values matching no correct index simply never count.
func scoreSession(questions []domain.Question, session domain.Session, endedAt time.Time) domain.Result {
	correct := 0
	for _, q := range questions {
		if answer, ok := session.Answers[q.Number]; ok && answer == q.CorrectOption {
			correct++
		}
	}

	score := correct + session.BonusPenalty
	if score < 0 {
		score = 0
	}

	elapsed := int(endedAt.Sub(session.StartedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	answered := len(session.Answers)
	avg := 0.0
	if answered > 0 {
		avg = math.Round(float64(elapsed)/float64(answered)*100) / 100
	}

	return domain.Result{
		Name:                   session.Name,
		TotalCorrect:           correct,
		TotalQuestions:         len(questions),
		TotalScore:             score,
		BonusTimeUsed:          session.BonusMinutes,
		BonusPenalty:           session.BonusPenalty,
		TotalTimeSpent:         elapsed,
		AverageTimePerQuestion: avg,
		SubmittedAt:            endedAt,
	}
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newSessionID combines a millisecond timestamp with a 9-character random
// suffix; collisions are negligible and the store enforces uniqueness anyway.
func newSessionID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), randomSuffix(9))
}

func newAdminToken(now time.Time) string {
	return fmt.Sprintf("admin-%d-%s", now.UnixMilli(), randomSuffix(9))
}

// ValidAdminToken reports whether token carries the admin prefix. Kept as a
// pure function so callers never reach for shared state to verify a token.
func ValidAdminToken(token string) bool {
	return strings.HasPrefix(token, "admin-")
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand fails only if the OS entropy source is broken.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}
