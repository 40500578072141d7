package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"trivia-session-service/internal/domain"
)

// AttemptPersister receives the finalized records for a terminal session.
// A failure for one participant never blocks the others; errors are
// aggregated and reported once.
type AttemptPersister interface {
	PersistAttempt(ctx context.Context, rec domain.AttemptRecord) error
	PersistQuestionAttempt(ctx context.Context, rec domain.QuestionAttemptRecord) error
}

type finalization struct {
	attempts []domain.AttemptRecord
	answers  []domain.QuestionAttemptRecord
}

// buildFinalizationLocked freezes a terminal session into persistence
// records: one attempt per participant plus one question attempt per
// answered question. A session stopped mid-question keeps whatever partial
// answer set exists; a session with zero participants yields empty records.
func (e *Engine) buildFinalizationLocked(s *session, now time.Time) *finalization {
	completed := s.state == domain.StateCompleted
	fin := &finalization{}

	for _, userID := range s.order {
		p := s.participants[userID]
		attemptID := uuid.NewString()

		indexes := make([]int, 0, len(p.Answers))
		for idx := range p.Answers {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)

		correct := 0
		timeSpent := 0.0
		for _, idx := range indexes {
			ans := p.Answers[idx]
			if ans.Correct {
				correct++
			}
			timeSpent += ans.TimeSpentSec
			fin.answers = append(fin.answers, domain.QuestionAttemptRecord{
				AttemptID:      attemptID,
				SessionID:      s.id,
				UserID:         userID,
				QuestionIndex:  ans.QuestionIndex,
				SelectedOption: ans.SelectedOption,
				Correct:        ans.Correct,
				TimeSpentSec:   ans.TimeSpentSec,
				PointsEarned:   ans.PointsEarned,
				SubmissionRank: ans.Rank,
				WasFastest:     ans.WasFastest,
				AnsweredAt:     ans.AnsweredAt,
			})
		}

		fin.attempts = append(fin.attempts, domain.AttemptRecord{
			AttemptID:         attemptID,
			SessionID:         s.id,
			QuizID:            s.quizID,
			ChannelID:         s.channelID,
			UserID:            userID,
			DisplayName:       p.DisplayName,
			TotalScore:        p.Score,
			CorrectAnswers:    correct,
			QuestionsAnswered: len(p.Answers),
			TotalQuestions:    len(s.quiz.Questions),
			TimeSpentSec:      timeSpent,
			Completed:         completed,
			FinishedAt:        now,
		})
	}
	return fin
}

// persistFinalization hands records to the persister. Individual failures
// are collected and logged once after all participants are processed.
func (e *Engine) persistFinalization(fin *finalization) {
	if e.persister == nil || fin == nil {
		return
	}
	ctx := context.Background()

	var errs []error
	for _, attempt := range fin.attempts {
		if err := e.persister.PersistAttempt(ctx, attempt); err != nil {
			errs = append(errs, fmt.Errorf("attempt %s user %s: %w", attempt.AttemptID, attempt.UserID, err))
		}
	}
	for _, answer := range fin.answers {
		if err := e.persister.PersistQuestionAttempt(ctx, answer); err != nil {
			errs = append(errs, fmt.Errorf("question attempt %s q%d: %w", answer.AttemptID, answer.QuestionIndex, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("persist session results: %v", err)
	}
}
