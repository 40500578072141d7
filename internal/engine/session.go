package engine

import (
	"sort"
	"sync"
	"time"

	"trivia-session-service/internal/domain"
)

// session is the central mutable entity of a live quiz. Everything below mu
// is guarded by mu; the engine serializes all mutation through it, so
// sessions in different channels never contend with each other.
type session struct {
	id        string
	quizID    string
	channelID string
	quiz      domain.QuizConfig
	isPrivate bool
	ownerID   string

	questionTime time.Duration // fallback per-question limit

	mu             sync.Mutex
	state          domain.SessionState
	current        int // 0-based, advances monotonically by exactly one
	questionStart  time.Time
	submissions    int64 // global rank counter, never reused
	fastestCorrect string
	messageID      string
	gate           renderGate
	participants   map[string]*domain.ParticipantData
	order          []string // insertion order, for deterministic finalization
	startedAt      time.Time
	finishedAt     time.Time

	waitTimer     *timerHandle
	questionTimer *timerHandle
	pauseTimer    *timerHandle
	watchdog      *timerHandle
}

func (s *session) questionLimit(index int) time.Duration {
	if index >= 0 && index < len(s.quiz.Questions) {
		if sec := s.quiz.Questions[index].TimeLimitSec; sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return s.questionTime
}

// participantLocked returns the participant record, creating it on first
// contact. Records are never removed while the session is live.
func (s *session) participantLocked(userID, displayName string, now time.Time) *domain.ParticipantData {
	if p, ok := s.participants[userID]; ok {
		if displayName != "" {
			p.DisplayName = displayName
		}
		return p
	}
	p := &domain.ParticipantData{
		UserID:      userID,
		DisplayName: displayName,
		Answers:     make(map[int]domain.AnswerData),
		JoinedAt:    now,
	}
	s.participants[userID] = p
	s.order = append(s.order, userID)
	return p
}

// allAnsweredLocked reports whether every currently-known participant has an
// answer for the open question. Later joins cannot reopen a settled
// question because settles are guarded by state and index.
func (s *session) allAnsweredLocked() bool {
	if len(s.participants) == 0 {
		return false
	}
	for _, p := range s.participants {
		if _, ok := p.Answers[s.current]; !ok {
			return false
		}
	}
	return true
}

// resetMissedStreaksLocked zeroes the streak of every participant who let
// the question lapse without answering.
func (s *session) resetMissedStreaksLocked(index int) {
	for _, p := range s.participants {
		if _, ok := p.Answers[index]; !ok {
			p.Streak = 0
		}
	}
}

func (s *session) cancelTimersLocked() {
	s.waitTimer.cancel()
	s.questionTimer.cancel()
	s.pauseTimer.cancel()
	s.watchdog.cancel()
}

func (s *session) lastAnswerRankLocked(p *domain.ParticipantData) int64 {
	var max int64
	for _, ans := range p.Answers {
		if ans.Rank > max {
			max = ans.Rank
		}
	}
	return max
}

// summaryLocked builds a point-in-time snapshot safe to hand outside the
// lock. The correct option is withheld while the question is open.
func (s *session) summaryLocked(now time.Time) domain.SessionSummary {
	summary := domain.SessionSummary{
		SessionID:     s.id,
		QuizID:        s.quizID,
		ChannelID:     s.channelID,
		Title:         s.quiz.Title,
		State:         s.state,
		QuestionIndex: s.current,
		Participants:  len(s.participants),
		MessageID:     s.messageID,
		UpdatedAt:     now,
	}

	if s.state == domain.StateQuestionOpen || s.state == domain.StateQuestionSettled {
		q := s.quiz.Questions[s.current]
		view := &domain.QuestionView{
			Index:         s.current,
			Total:         len(s.quiz.Questions),
			Prompt:        q.Text,
			Options:       q.Options,
			TimeLimitSec:  int(s.questionLimit(s.current) / time.Second),
			CorrectOption: -1,
		}
		if s.state == domain.StateQuestionOpen {
			remaining := s.questionLimit(s.current) - now.Sub(s.questionStart)
			if remaining < 0 {
				remaining = 0
			}
			view.RemainingSec = remaining.Seconds()
		} else {
			view.CorrectOption = q.CorrectOption
		}
		summary.Question = view
	}

	entries := make([]domain.LeaderboardEntry, 0, len(s.participants))
	for _, p := range s.participants {
		correct := 0
		for _, ans := range p.Answers {
			if ans.Correct {
				correct++
			}
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Streak:      p.Streak,
			Correct:     correct,
		})
	}
	// Order by score, then by who got there first (lower last rank), then name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		ri := s.lastAnswerRankLocked(s.participants[entries[i].UserID])
		rj := s.lastAnswerRankLocked(s.participants[entries[j].UserID])
		if ri != rj {
			return ri < rj
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	summary.Leaderboard = entries
	return summary
}
