package app

import (
	"context"
	"time"

	"trivia-session-service/internal/domain"
	"trivia-session-service/internal/engine"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizConfig, error)
}

// PresenceMarker advertises channel liveness across instances. Best-effort:
// failures are ignored, the in-process registry stays authoritative.
type PresenceMarker interface {
	MarkActive(ctx context.Context, channelID, sessionID string)
	ClearActive(ctx context.Context, channelID string)
}

// QuizService glues quiz content loading to the session engine. All
// session semantics live in the engine; this layer only resolves content
// and maintains the advisory presence marker.
type QuizService struct {
	quizzes  QuizRepository
	engine   *engine.Engine
	presence PresenceMarker
}

func NewQuizService(quizzes QuizRepository, eng *engine.Engine, presence PresenceMarker) *QuizService {
	return &QuizService{quizzes: quizzes, engine: eng, presence: presence}
}

// StartOptions carries the caller-supplied session parameters.
type StartOptions struct {
	WaitSeconds int
	IsPrivate   bool
	OwnerID     string
}

// StartQuiz loads the quiz and opens a session on the channel. The caller
// performs any private-quiz access check before invoking this.
func (s *QuizService) StartQuiz(ctx context.Context, channelID, quizID string, opts StartOptions) (domain.SessionSummary, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SessionSummary{}, err
	}

	summary, err := s.engine.StartSession(engine.StartRequest{
		ChannelID: channelID,
		Quiz:      quiz,
		Wait:      time.Duration(opts.WaitSeconds) * time.Second,
		IsPrivate: opts.IsPrivate,
		OwnerID:   opts.OwnerID,
	})
	if err != nil {
		return domain.SessionSummary{}, err
	}
	if s.presence != nil {
		s.presence.MarkActive(ctx, channelID, summary.SessionID)
	}
	return summary, nil
}

// Join registers a participant during the waiting period and returns the
// current snapshot regardless of state.
func (s *QuizService) Join(_ context.Context, channelID, userID, displayName string) (domain.SessionSummary, error) {
	return s.engine.Join(channelID, userID, displayName)
}

// SubmitAnswer records an answer for the open question.
func (s *QuizService) SubmitAnswer(_ context.Context, channelID, userID, displayName string, questionIndex, option int) (domain.AnswerResult, error) {
	return s.engine.SubmitAnswer(channelID, userID, displayName, questionIndex, option)
}

// StopSession cancels a live session by id.
func (s *QuizService) StopSession(_ context.Context, sessionID string) error {
	return s.engine.StopSession(sessionID)
}

// ActiveSession returns a read-only snapshot for status queries.
func (s *QuizService) ActiveSession(_ context.Context, channelID string) (domain.SessionSummary, error) {
	return s.engine.ActiveSession(channelID)
}
