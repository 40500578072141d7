package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-session-service/internal/domain"
)

// ResultStore persists finalized session results. It implements the
// engine's AttemptPersister port; the finalizer calls it once per record
// and aggregates any failures itself.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) PersistAttempt(ctx context.Context, rec domain.AttemptRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_attempts (
			id, session_id, quiz_id, channel_id, user_id, display_name,
			total_score, correct_answers, questions_answered, total_questions,
			time_spent_sec, completed, finished_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.AttemptID, rec.SessionID, rec.QuizID, rec.ChannelID, rec.UserID, rec.DisplayName,
		rec.TotalScore, rec.CorrectAnswers, rec.QuestionsAnswered, rec.TotalQuestions,
		rec.TimeSpentSec, rec.Completed, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *ResultStore) PersistQuestionAttempt(ctx context.Context, rec domain.QuestionAttemptRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO question_attempts (
			attempt_id, session_id, user_id, question_index, selected_option,
			correct, time_spent_sec, points_earned, submission_rank,
			was_fastest, answered_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.AttemptID, rec.SessionID, rec.UserID, rec.QuestionIndex, rec.SelectedOption,
		rec.Correct, rec.TimeSpentSec, rec.PointsEarned, rec.SubmissionRank,
		rec.WasFastest, rec.AnsweredAt,
	)
	if err != nil {
		return fmt.Errorf("insert question attempt: %w", err)
	}
	return nil
}
