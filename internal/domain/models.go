package domain

import "time"

// SessionState identifies where a session is in its lifecycle.
type SessionState string

const (
	StateWaiting         SessionState = "waiting"
	StateQuestionOpen    SessionState = "question_open"
	StateQuestionSettled SessionState = "question_settled"
	StateCompleted       SessionState = "completed"
	StateStopped         SessionState = "stopped"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateStopped
}

// QuestionData is one multiple-choice question within a quiz.
type QuestionData struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
	Points        int      `json:"points"`       // 0 means use the configured default
	TimeLimitSec  int      `json:"timeLimitSec"` // 0 means use the configured default
}

// QuizConfig is the immutable content a session plays through.
// The engine only reads it; the caller owns it.
type QuizConfig struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Questions    []QuestionData `json:"questions"`
	TimeLimitSec int            `json:"timeLimitSec,omitempty"` // overall watchdog, 0 = none
}

// AnswerData is one recorded answer for a (participant, question) pair.
// At most one exists per pair; first submission wins.
type AnswerData struct {
	QuestionIndex  int       `json:"questionIndex"`
	SelectedOption int       `json:"selectedOption"`
	Correct        bool      `json:"correct"`
	TimeSpentSec   float64   `json:"timeSpentSec"`
	PointsEarned   int       `json:"pointsEarned"`
	PresentedAt    time.Time `json:"presentedAt"`
	AnsweredAt     time.Time `json:"answeredAt"`
	Rank           int64     `json:"rank"` // global submission rank within the session
	WasFastest     bool      `json:"wasFastest"`
}

// ParticipantData tracks one participant for the lifetime of a session.
// Records are created lazily on first answer (or on join while waiting)
// and never removed while the session is live.
type ParticipantData struct {
	UserID      string
	DisplayName string
	Score       int
	Streak      int // consecutive correct answers entering the next question
	Answers     map[int]AnswerData
	JoinedAt    time.Time
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionIndex int   `json:"questionIndex"`
	Correct       bool  `json:"correct"`
	Awarded       int   `json:"awarded"`
	TotalScore    int   `json:"totalScore"`
	Streak        int   `json:"streak"`
	Rank          int64 `json:"rank"`
	WasFastest    bool  `json:"wasFastest"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Streak      int    `json:"streak"`
	Correct     int    `json:"correct"`
}

// QuestionView is the client-safe projection of the current question.
// CorrectOption is -1 while the question is still accepting answers and
// is revealed once the question settles.
type QuestionView struct {
	Index         int      `json:"index"`
	Total         int      `json:"total"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	TimeLimitSec  int      `json:"timeLimitSec"`
	RemainingSec  float64  `json:"remainingSec"`
	CorrectOption int      `json:"correctOption"`
}

// SessionSummary is a read-only snapshot of a live (or just-terminated)
// session, safe to hand to presentation and status consumers.
type SessionSummary struct {
	SessionID     string             `json:"sessionId"`
	QuizID        string             `json:"quizId"`
	ChannelID     string             `json:"channelId"`
	Title         string             `json:"title"`
	State         SessionState       `json:"state"`
	QuestionIndex int                `json:"questionIndex"`
	Question      *QuestionView      `json:"question,omitempty"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	Participants  int                `json:"participants"`
	MessageID     string             `json:"messageId,omitempty"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// AttemptRecord is the per-participant rollup persisted on finalization.
type AttemptRecord struct {
	AttemptID         string
	SessionID         string
	QuizID            string
	ChannelID         string
	UserID            string
	DisplayName       string
	TotalScore        int
	CorrectAnswers    int
	QuestionsAnswered int
	TotalQuestions    int
	TimeSpentSec      float64
	Completed         bool // false when the session was stopped early
	FinishedAt        time.Time
}

// QuestionAttemptRecord is one persisted row per answered question.
type QuestionAttemptRecord struct {
	AttemptID      string
	SessionID      string
	UserID         string
	QuestionIndex  int
	SelectedOption int
	Correct        bool
	TimeSpentSec   float64
	PointsEarned   int
	SubmissionRank int64
	WasFastest     bool
	AnsweredAt     time.Time
}
