package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trivia-session-service/internal/domain"
	"trivia-session-service/internal/engine"
)

// fakeClock drives timestamp arithmetic deterministically; real timers
// still drive transitions, so tests use short real durations for those.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type renderRecorder struct {
	mu    sync.Mutex
	snaps []domain.SessionSummary
}

func (r *renderRecorder) RenderStatus(summary domain.SessionSummary) error {
	r.mu.Lock()
	r.snaps = append(r.snaps, summary)
	r.mu.Unlock()
	return nil
}

func (r *renderRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

type persistRecorder struct {
	mu       sync.Mutex
	attempts []domain.AttemptRecord
	answers  []domain.QuestionAttemptRecord
	failUser string // PersistAttempt fails for this user id
}

func (p *persistRecorder) PersistAttempt(_ context.Context, rec domain.AttemptRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failUser != "" && rec.UserID == p.failUser {
		return fmt.Errorf("storage down for %s", rec.UserID)
	}
	p.attempts = append(p.attempts, rec)
	return nil
}

func (p *persistRecorder) PersistQuestionAttempt(_ context.Context, rec domain.QuestionAttemptRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers = append(p.answers, rec)
	return nil
}

func (p *persistRecorder) attemptFor(userID string) (domain.AttemptRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.attempts {
		if a.UserID == userID {
			return a, true
		}
	}
	return domain.AttemptRecord{}, false
}

func (p *persistRecorder) attemptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attempts)
}

type harness struct {
	engine    *engine.Engine
	clock     *fakeClock
	renders   *renderRecorder
	persisted *persistRecorder
	terminal  chan domain.SessionSummary
}

func newHarness(t *testing.T, opts engine.Options) *harness {
	t.Helper()
	h := &harness{
		clock:     newFakeClock(),
		renders:   &renderRecorder{},
		persisted: &persistRecorder{},
		terminal:  make(chan domain.SessionSummary, 4),
	}
	opts.Clock = h.clock.Now
	opts.OnTerminal = func(summary domain.SessionSummary) { h.terminal <- summary }
	h.engine = engine.New(engine.NewRegistry(), h.renders, h.persisted, opts)
	return h
}

func (h *harness) awaitTerminal(t *testing.T) domain.SessionSummary {
	t.Helper()
	select {
	case summary := <-h.terminal:
		return summary
	case <-time.After(2 * time.Second):
		t.Fatalf("session never reached a terminal state")
		return domain.SessionSummary{}
	}
}

func (h *harness) awaitOpenQuestion(t *testing.T, channelID string, index int) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := h.engine.ActiveSession(channelID)
		return err == nil && snap.State == domain.StateQuestionOpen && snap.QuestionIndex == index
	}, 2*time.Second, 2*time.Millisecond)
}

func quizWith(questions ...domain.QuestionData) domain.QuizConfig {
	return domain.QuizConfig{ID: "quiz-1", Title: "Test quiz", Questions: questions}
}

func question(limitSec int) domain.QuestionData {
	return domain.QuestionData{
		Text:          "Pick the second option",
		Options:       []string{"wrong", "right", "also wrong"},
		CorrectOption: 1,
		Points:        10,
		TimeLimitSec:  limitSec,
	}
}

func TestStartSessionValidation(t *testing.T) {
	h := newHarness(t, engine.Options{})

	_, err := h.engine.StartSession(engine.StartRequest{ChannelID: "c1", Quiz: quizWith()})
	require.ErrorIs(t, err, domain.ErrNoQuestions)

	bad := question(30)
	bad.CorrectOption = 7
	_, err = h.engine.StartSession(engine.StartRequest{ChannelID: "c1", Quiz: quizWith(bad)})
	require.ErrorIs(t, err, domain.ErrInvalidQuestion)

	short := question(30)
	short.Options = []string{"only"}
	_, err = h.engine.StartSession(engine.StartRequest{ChannelID: "c1", Quiz: quizWith(short)})
	require.ErrorIs(t, err, domain.ErrInvalidQuestion)

	// A rejected start never claims the channel slot.
	_, err = h.engine.ActiveSession("c1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestConcurrentStartsOneWins(t *testing.T) {
	h := newHarness(t, engine.Options{})

	const starters = 8
	errs := make(chan error, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.StartSession(engine.StartRequest{
				ChannelID: "c1",
				Quiz:      quizWith(question(60)),
				Wait:      time.Hour,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, busy := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrChannelActive):
			busy++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, starters-1, busy)

	// A different channel is independent.
	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c2",
		Quiz:      quizWith(question(60)),
		Wait:      time.Hour,
	})
	require.NoError(t, err)
}

func TestFastestCorrectAndSpeedScoring(t *testing.T) {
	h := newHarness(t, engine.Options{
		Scoring:     engine.ScoringConfig{SpeedBonus: 0.5},
		SettlePause: 5 * time.Millisecond,
	})

	summary, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(30)),
		Wait:      10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateWaiting, summary.State)

	_, err = h.engine.Join("c1", "x", "Xavier")
	require.NoError(t, err)
	_, err = h.engine.Join("c1", "y", "Yvonne")
	require.NoError(t, err)

	h.awaitOpenQuestion(t, "c1", 0)

	h.clock.Advance(5 * time.Second)
	resX, err := h.engine.SubmitAnswer("c1", "x", "Xavier", 0, 1)
	require.NoError(t, err)
	require.True(t, resX.Correct)
	require.True(t, resX.WasFastest)
	require.Equal(t, 14, resX.Awarded) // 10 + round(10*0.5*25/30)

	h.clock.Advance(5 * time.Second)
	resY, err := h.engine.SubmitAnswer("c1", "y", "Yvonne", 0, 1)
	require.NoError(t, err)
	require.True(t, resY.Correct)
	require.False(t, resY.WasFastest)
	require.Equal(t, 13, resY.Awarded) // 10 + round(10*0.5*20/30)
	require.Less(t, resY.Awarded, resX.Awarded)
	require.Less(t, resX.Rank, resY.Rank)

	// Both answered: the single question settles early and the session completes.
	final := h.awaitTerminal(t)
	require.Equal(t, domain.StateCompleted, final.State)
	require.Equal(t, "x", final.Leaderboard[0].UserID)

	attemptX, ok := h.persisted.attemptFor("x")
	require.True(t, ok)
	require.Equal(t, 14, attemptX.TotalScore)
	require.Equal(t, 1, attemptX.CorrectAnswers)
	require.True(t, attemptX.Completed)
}

func TestStaleQuestionRejected(t *testing.T) {
	h := newHarness(t, engine.Options{})

	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(60), question(60)),
	})
	require.NoError(t, err)
	h.awaitOpenQuestion(t, "c1", 0)

	_, err = h.engine.SubmitAnswer("c1", "u1", "Uma", 2, 1)
	require.ErrorIs(t, err, domain.ErrStaleQuestion)

	_, err = h.engine.SubmitAnswer("c1", "u1", "Uma", 0, 9)
	require.ErrorIs(t, err, domain.ErrOptionNotFound)

	_, err = h.engine.SubmitAnswer("missing-channel", "u1", "Uma", 0, 1)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEarlySettleAdvancesWithoutTimeout(t *testing.T) {
	h := newHarness(t, engine.Options{SettlePause: 5 * time.Millisecond})

	// Question limits are far beyond the test horizon; only the
	// all-answered optimization can advance the session.
	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(3600), question(3600)),
		Wait:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	for _, u := range []string{"a", "b", "c"} {
		_, err := h.engine.Join("c1", u, u)
		require.NoError(t, err)
	}
	h.awaitOpenQuestion(t, "c1", 0)

	for _, u := range []string{"a", "b", "c"} {
		_, err := h.engine.SubmitAnswer("c1", u, u, 0, 1)
		require.NoError(t, err)
	}

	h.awaitOpenQuestion(t, "c1", 1)
}

func TestConcurrentDuplicateAnswersOneAccepted(t *testing.T) {
	h := newHarness(t, engine.Options{})

	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(3600)),
		Wait:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	// An idle second participant keeps the question open past u1's answer.
	_, err = h.engine.Join("c1", "idle", "Idle")
	require.NoError(t, err)
	h.awaitOpenQuestion(t, "c1", 0)

	const submitters = 16
	results := make(chan error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.SubmitAnswer("c1", "u1", "Uma", 0, 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	accepted, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrDuplicateAnswer):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, accepted)
	require.Equal(t, submitters-1, rejected)
}

func TestSubmissionRanksAreAPermutation(t *testing.T) {
	h := newHarness(t, engine.Options{SettlePause: time.Hour})

	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(3600)),
		Wait:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	const users = 10
	for i := 0; i < users; i++ {
		_, err := h.engine.Join("c1", fmt.Sprintf("u%d", i), fmt.Sprintf("User %d", i))
		require.NoError(t, err)
	}
	h.awaitOpenQuestion(t, "c1", 0)

	ranks := make(chan int64, users)
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.engine.SubmitAnswer("c1", fmt.Sprintf("u%d", i), "", 0, 1)
			if err != nil {
				t.Errorf("submit u%d: %v", i, err)
				return
			}
			ranks <- res.Rank
		}(i)
	}
	wg.Wait()
	close(ranks)

	seen := make(map[int64]bool)
	for rank := range ranks {
		require.False(t, seen[rank], "rank %d assigned twice", rank)
		require.GreaterOrEqual(t, rank, int64(1))
		require.LessOrEqual(t, rank, int64(users))
		seen[rank] = true
	}
	require.Len(t, seen, users)
}

func TestStreakLifecycle(t *testing.T) {
	h := newHarness(t, engine.Options{
		Scoring:     engine.ScoringConfig{StreakBonus: 0.1},
		SettlePause: 5 * time.Millisecond,
	})

	// Question 1 has a short deadline so the skipping participant's streak
	// reset is exercised by the timer path.
	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(3600), domain.QuestionData{
			Text:          "short",
			Options:       []string{"wrong", "right"},
			CorrectOption: 1,
			Points:        10,
			TimeLimitSec:  1,
		}, question(3600)),
		Wait: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = h.engine.Join("c1", "p", "Pat")
	require.NoError(t, err)
	_, err = h.engine.Join("c1", "q", "Quinn")
	require.NoError(t, err)
	h.awaitOpenQuestion(t, "c1", 0)

	// Q0: both correct.
	resP, err := h.engine.SubmitAnswer("c1", "p", "Pat", 0, 1)
	require.NoError(t, err)
	require.Equal(t, 1, resP.Streak)
	resQ, err := h.engine.SubmitAnswer("c1", "q", "Quinn", 0, 1)
	require.NoError(t, err)
	require.Equal(t, 1, resQ.Streak)

	// Q1: Pat answers wrong, Quinn lets it lapse.
	h.awaitOpenQuestion(t, "c1", 1)
	resP, err = h.engine.SubmitAnswer("c1", "p", "Pat", 1, 0)
	require.NoError(t, err)
	require.False(t, resP.Correct)
	require.Equal(t, 0, resP.Streak)
	require.Equal(t, 0, resP.Awarded)

	// Q2 opens after the deadline; both streaks restart from zero.
	h.awaitOpenQuestion(t, "c1", 2)
	resP, err = h.engine.SubmitAnswer("c1", "p", "Pat", 2, 1)
	require.NoError(t, err)
	require.Equal(t, 1, resP.Streak)
	resQ, err = h.engine.SubmitAnswer("c1", "q", "Quinn", 2, 1)
	require.NoError(t, err)
	require.Equal(t, 1, resQ.Streak, "missed question must reset the streak")

	final := h.awaitTerminal(t)
	require.Equal(t, domain.StateCompleted, final.State)
}

func TestStopSessionMidQuestion(t *testing.T) {
	h := newHarness(t, engine.Options{})

	summary, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(3600), question(3600)),
		Wait:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = h.engine.Join("c1", "idle", "Idle")
	require.NoError(t, err)
	h.awaitOpenQuestion(t, "c1", 0)

	_, err = h.engine.SubmitAnswer("c1", "u1", "Uma", 0, 1)
	require.NoError(t, err)

	require.NoError(t, h.engine.StopSession(summary.SessionID))

	final := h.awaitTerminal(t)
	require.Equal(t, domain.StateStopped, final.State)

	// The channel slot is released and the id is gone.
	_, err = h.engine.ActiveSession("c1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	require.ErrorIs(t, h.engine.StopSession(summary.SessionID), domain.ErrSessionNotFound)

	// The partial answer set was finalized: Uma's attempt exists and is
	// marked incomplete; the idle joiner got an empty attempt.
	attempt, ok := h.persisted.attemptFor("u1")
	require.True(t, ok)
	require.False(t, attempt.Completed)
	require.Equal(t, 1, attempt.QuestionsAnswered)

	idle, ok := h.persisted.attemptFor("idle")
	require.True(t, ok)
	require.Zero(t, idle.QuestionsAnswered)

	// No stray timer double-finalizes later.
	count := h.persisted.attemptCount()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, count, h.persisted.attemptCount())

	// The channel is immediately reusable.
	_, err = h.engine.StartSession(engine.StartRequest{ChannelID: "c1", Quiz: quizWith(question(60)), Wait: time.Hour})
	require.NoError(t, err)
}

func TestWatchdogForcesCompletion(t *testing.T) {
	h := newHarness(t, engine.Options{})

	quiz := quizWith(question(3600), question(3600))
	quiz.TimeLimitSec = 1
	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quiz,
		Wait:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = h.engine.Join("c1", "idle", "Idle")
	require.NoError(t, err)
	h.awaitOpenQuestion(t, "c1", 0)

	_, err = h.engine.SubmitAnswer("c1", "u1", "Uma", 0, 1)
	require.NoError(t, err)

	final := h.awaitTerminal(t)
	require.Equal(t, domain.StateCompleted, final.State)

	// The in-flight question's answers were kept.
	attempt, ok := h.persisted.attemptFor("u1")
	require.True(t, ok)
	require.Equal(t, 1, attempt.QuestionsAnswered)
	require.True(t, attempt.Completed)
}

func TestLateJoinerScoredFromArrival(t *testing.T) {
	h := newHarness(t, engine.Options{SettlePause: 5 * time.Millisecond})

	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(3600), question(3600)),
		Wait:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = h.engine.Join("c1", "early", "Early")
	require.NoError(t, err)
	h.awaitOpenQuestion(t, "c1", 0)

	// Only the early participant is known, so their answer settles q0.
	_, err = h.engine.SubmitAnswer("c1", "early", "Early", 0, 1)
	require.NoError(t, err)
	h.awaitOpenQuestion(t, "c1", 1)

	// A brand-new participant shows up for q1 and is scored normally.
	res, err := h.engine.SubmitAnswer("c1", "late", "Late", 1, 1)
	require.NoError(t, err)
	require.True(t, res.Correct)
	require.Greater(t, res.Awarded, 0)

	_, err = h.engine.SubmitAnswer("c1", "early", "Early", 1, 1)
	require.NoError(t, err)

	final := h.awaitTerminal(t)
	require.Equal(t, domain.StateCompleted, final.State)

	late, ok := h.persisted.attemptFor("late")
	require.True(t, ok)
	require.Equal(t, 1, late.QuestionsAnswered)
	require.Greater(t, late.TotalScore, 0)
	require.Equal(t, 2, late.TotalQuestions)
}

func TestThrottleSuppressesAnswerRenders(t *testing.T) {
	h := newHarness(t, engine.Options{RenderInterval: time.Hour, SettlePause: 5 * time.Millisecond})

	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(3600)),
		Wait:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = h.engine.Join("c1", "a", "Ada")
	require.NoError(t, err)
	_, err = h.engine.Join("c1", "b", "Ben")
	require.NoError(t, err)
	h.awaitOpenQuestion(t, "c1", 0)

	opened := h.renders.count()

	// An answer that does not settle the question must not render inside
	// the throttle window.
	_, err = h.engine.SubmitAnswer("c1", "a", "Ada", 0, 1)
	require.NoError(t, err)
	require.Equal(t, opened, h.renders.count())

	// The settling answer forces renders despite the interval.
	_, err = h.engine.SubmitAnswer("c1", "b", "Ben", 0, 1)
	require.NoError(t, err)
	h.awaitTerminal(t)
	require.Greater(t, h.renders.count(), opened)
}

func TestFinalizeToleratesPartialPersistFailure(t *testing.T) {
	h := newHarness(t, engine.Options{})
	h.persisted.failUser = "a"

	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz:      quizWith(question(3600)),
		Wait:      10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = h.engine.Join("c1", "a", "Ada")
	require.NoError(t, err)
	_, err = h.engine.Join("c1", "b", "Ben")
	require.NoError(t, err)
	h.awaitOpenQuestion(t, "c1", 0)

	_, err = h.engine.SubmitAnswer("c1", "a", "Ada", 0, 1)
	require.NoError(t, err)
	_, err = h.engine.SubmitAnswer("c1", "b", "Ben", 0, 1)
	require.NoError(t, err)

	h.awaitTerminal(t)

	// Ada's write failed but Ben's still landed.
	_, ok := h.persisted.attemptFor("a")
	require.False(t, ok)
	_, ok = h.persisted.attemptFor("b")
	require.True(t, ok)
}

func TestCompletionWithZeroParticipants(t *testing.T) {
	h := newHarness(t, engine.Options{SettlePause: 5 * time.Millisecond})

	_, err := h.engine.StartSession(engine.StartRequest{
		ChannelID: "c1",
		Quiz: quizWith(domain.QuestionData{
			Text:          "anyone there?",
			Options:       []string{"yes", "no"},
			CorrectOption: 0,
			TimeLimitSec:  1,
		}),
		Wait: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	final := h.awaitTerminal(t)
	require.Equal(t, domain.StateCompleted, final.State)
	require.Zero(t, h.persisted.attemptCount())
}
