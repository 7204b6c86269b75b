package domain

import "time"

// Question is a single MCQ item. CorrectOption is the authoritative answer
// index and must never reach participant-facing responses.
type Question struct {
	Number        int      `json:"questionNumber"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctAnswer"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
}

// SanitizedQuestion is the participant-facing view of a Question.
type SanitizedQuestion struct {
	Number   int      `json:"questionNumber"`
	Text     string   `json:"question"`
	Options  []string `json:"options"`
	Category string   `json:"category"`
}

// Sanitize strips the correct-answer index from a question.
func (q Question) Sanitize() SanitizedQuestion {
	return SanitizedQuestion{
		Number:   q.Number,
		Text:     q.Text,
		Options:  q.Options,
		Category: q.Category,
	}
}

// Session is one participant attempt. SessionID is the sole capability to
// act on the session; Answers maps question number to the selected option
// index and only ever grows or overwrites, never shrinks.
type Session struct {
	SessionID     string
	Name          string
	StartedAt     time.Time
	EndedAt       time.Time
	Answers       map[int]int
	BonusSelected bool
	BonusMinutes  int
	BonusPenalty  int
	IsSubmitted   bool
	SubmittedAt   time.Time

	// Result fields, written exactly once at submission.
	TotalCorrect           int
	TotalScore             int
	TotalTimeSpent         int
	AverageTimePerQuestion float64
}

// SessionStatus is the lightweight polling view of a session.
type SessionStatus struct {
	IsSubmitted   bool      `json:"isSubmitted"`
	BonusSelected bool      `json:"bonusSelected"`
	StartTime     time.Time `json:"startTime"`
	AnsweredCount int       `json:"answeredCount"`
}

// BonusGrant is the outcome of a successful bonus-time selection.
type BonusGrant struct {
	BonusMinutes int `json:"bonusMinutes"`
	Penalty      int `json:"penalty"`
}

// Result is the final score record returned by submission.
type Result struct {
	Name                   string    `json:"name"`
	TotalCorrect           int       `json:"totalCorrect"`
	TotalQuestions         int       `json:"totalQuestions"`
	TotalScore             int       `json:"totalScore"`
	BonusTimeUsed          int       `json:"bonusTimeUsed"`
	BonusPenalty           int       `json:"bonusPenalty"`
	TotalTimeSpent         int       `json:"totalTimeSpent"`
	AverageTimePerQuestion float64   `json:"averageTimePerQuestion"`
	SubmittedAt            time.Time `json:"submittedAt"`
}

// LeaderboardEntry is one ranked row of the admin leaderboard. Rank is the
// 1-based position in the requested ordering, computed per query.
type LeaderboardEntry struct {
	Rank           int       `json:"rank"`
	Name           string    `json:"name"`
	TotalScore     int       `json:"totalScore"`
	TotalCorrect   int       `json:"totalCorrect"`
	BonusTimeUsed  int       `json:"bonusTimeUsed"`
	BonusPenalty   int       `json:"bonusPenalty"`
	TotalTimeSpent int       `json:"totalTimeSpent"`
	AverageSpeed   float64   `json:"averageSpeed"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// Leaderboard is the ordered scoreboard of submitted sessions.
type Leaderboard struct {
	Participants []LeaderboardEntry `json:"participants"`
	Total        int                `json:"total"`
}

// SortKey selects the leaderboard ordering.
type SortKey string

const (
	// SortByRecency orders by submission time, most recent first (default).
	SortByRecency SortKey = "recency"
	// SortByScore orders by final score descending, ties broken by faster total time.
	SortByScore SortKey = "score"
	// SortBySpeed orders by average seconds per question, ascending.
	SortBySpeed SortKey = "speed"
)

// BonusPenaltyTable maps each allowed bonus-minute choice to its score
// penalty. Penalties are non-positive; the final score is floored at zero.
var BonusPenaltyTable = map[int]int{
	15: -3,
	20: -5,
	30: -8,
}
