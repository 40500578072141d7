package engine

import (
	"math"
	"time"
)

// DefaultQuestionPoints is the base value for questions that do not carry
// their own points and when no override is configured.
const DefaultQuestionPoints = 10

// ScoringConfig holds the operator-tunable scoring coefficients.
type ScoringConfig struct {
	// BasePoints substitutes for questions whose Points field is zero.
	BasePoints int
	// SpeedBonus scales the extra points for answering early: a correct
	// answer with the full time budget remaining earns base*SpeedBonus
	// extra points, decaying linearly to zero at the deadline.
	SpeedBonus float64
	// StreakBonus scales the extra points per consecutive correct answer
	// entering the question.
	StreakBonus float64
}

// Score computes the points for a single answer. It is pure: identical
// inputs always produce identical output, independent of any session state.
//
// Incorrect answers always score zero. Correct answers earn the question's
// base points plus an additive speed bonus and an additive streak bonus,
// each rounded to the nearest point. streak is the participant's
// consecutive-correct count entering this question.
func Score(correct bool, elapsed, limit time.Duration, streak, basePoints int, cfg ScoringConfig) int {
	if !correct {
		return 0
	}
	base := basePoints
	if base <= 0 {
		base = cfg.BasePoints
	}
	if base <= 0 {
		base = DefaultQuestionPoints
	}

	var remaining float64
	if limit > 0 {
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > limit {
			elapsed = limit
		}
		remaining = float64(limit-elapsed) / float64(limit)
	}

	speed := int(math.Round(float64(base) * cfg.SpeedBonus * remaining))
	streakPts := 0
	if streak > 0 {
		streakPts = int(math.Round(float64(base) * cfg.StreakBonus * float64(streak)))
	}
	return base + speed + streakPts
}
