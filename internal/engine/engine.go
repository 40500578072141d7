package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"trivia-session-service/internal/domain"
)

// Renderer receives status snapshots for display. Render failures are
// logged and swallowed; they never block session progress.
type Renderer interface {
	RenderStatus(summary domain.SessionSummary) error
}

// Options tunes engine-wide defaults. Zero values fall back to sane
// production settings; tests inject millisecond durations and fake clocks.
type Options struct {
	QuestionTime   time.Duration // default per-question limit
	SettlePause    time.Duration // pause between settle and the next question
	RenderInterval time.Duration // minimum gap between answer-triggered renders
	Scoring        ScoringConfig
	Clock          func() time.Time
	// OnTerminal runs after finalization on every terminal transition.
	OnTerminal func(summary domain.SessionSummary)
}

// Engine owns session lifecycle: registration, timing, answer recording,
// scoring, and finalization hand-off.
type Engine struct {
	registry  *Registry
	renderer  Renderer
	persister AttemptPersister
	opts      Options
}

func New(registry *Registry, renderer Renderer, persister AttemptPersister, opts Options) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	if opts.QuestionTime <= 0 {
		opts.QuestionTime = 30 * time.Second
	}
	if opts.SettlePause <= 0 {
		opts.SettlePause = 3 * time.Second
	}
	if opts.RenderInterval < 0 {
		opts.RenderInterval = 0
	} else if opts.RenderInterval == 0 {
		opts.RenderInterval = 1500 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{registry: registry, renderer: renderer, persister: persister, opts: opts}
}

func (e *Engine) now() time.Time { return e.opts.Clock() }

// StartRequest describes a session start. Access control for private
// quizzes happens before this call; the engine only records the owner.
type StartRequest struct {
	ChannelID string
	Quiz      domain.QuizConfig
	Wait      time.Duration
	IsPrivate bool
	OwnerID   string
}

// StartSession validates the quiz, claims the channel slot, and begins the
// waiting period (or opens question 0 immediately when Wait is zero).
func (e *Engine) StartSession(req StartRequest) (domain.SessionSummary, error) {
	if err := validateQuiz(req.Quiz); err != nil {
		return domain.SessionSummary{}, err
	}

	s := &session{
		id:           uuid.NewString(),
		quizID:       req.Quiz.ID,
		channelID:    req.ChannelID,
		quiz:         req.Quiz,
		isPrivate:    req.IsPrivate,
		ownerID:      req.OwnerID,
		questionTime: e.opts.QuestionTime,
		state:        domain.StateWaiting,
		current:      -1,
		gate:         renderGate{interval: e.opts.RenderInterval},
		participants: make(map[string]*domain.ParticipantData),
	}
	if err := e.registry.register(s); err != nil {
		return domain.SessionSummary{}, err
	}

	now := e.now()
	s.mu.Lock()
	s.startedAt = now
	if req.Quiz.TimeLimitSec > 0 {
		s.watchdog = after(time.Duration(req.Quiz.TimeLimitSec)*time.Second, func() { e.forceComplete(s) })
	}
	if req.Wait > 0 {
		s.waitTimer = after(req.Wait, func() { e.beginQuestions(s) })
	} else {
		e.openQuestionLocked(s, 0, now)
	}
	s.gate.force(now)
	snap := s.summaryLocked(now)
	s.mu.Unlock()

	e.render(snap)
	return snap, nil
}

// Join seeds a zero-score participant during the waiting period. Outside
// of Waiting it is a read-only no-op: late arrivals become participants on
// their first accepted answer instead.
func (e *Engine) Join(channelID, userID, displayName string) (domain.SessionSummary, error) {
	s, ok := e.registry.channelSession(channelID)
	if !ok {
		return domain.SessionSummary{}, domain.ErrSessionNotFound
	}
	now := e.now()
	s.mu.Lock()
	var render bool
	if s.state == domain.StateWaiting {
		s.participantLocked(userID, displayName, now)
		render = s.gate.allow(now)
	}
	snap := s.summaryLocked(now)
	s.mu.Unlock()
	if render {
		e.render(snap)
	}
	return snap, nil
}

// SubmitAnswer records one answer for the open question. Acceptance is
// atomic per (participant, question): rank assignment, scoring, streak and
// fastest-correct bookkeeping all happen under the session lock, so
// concurrent duplicates yield exactly one acceptance.
func (e *Engine) SubmitAnswer(channelID, userID, displayName string, questionIndex, option int) (domain.AnswerResult, error) {
	s, ok := e.registry.channelSession(channelID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}

	now := e.now()
	s.mu.Lock()
	if s.state != domain.StateQuestionOpen {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrQuestionClosed
	}
	if questionIndex != s.current {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrStaleQuestion
	}
	q := s.quiz.Questions[s.current]
	if option < 0 || option >= len(q.Options) {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrOptionNotFound
	}

	p := s.participantLocked(userID, displayName, now)
	if _, dup := p.Answers[s.current]; dup {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrDuplicateAnswer
	}

	s.submissions++
	rank := s.submissions

	limit := s.questionLimit(s.current)
	elapsed := now.Sub(s.questionStart)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > limit {
		elapsed = limit
	}

	correct := option == q.CorrectOption
	points := Score(correct, elapsed, limit, p.Streak, q.Points, e.opts.Scoring)

	wasFastest := false
	if correct && s.fastestCorrect == "" {
		s.fastestCorrect = userID
		wasFastest = true
	}

	p.Answers[s.current] = domain.AnswerData{
		QuestionIndex:  s.current,
		SelectedOption: option,
		Correct:        correct,
		TimeSpentSec:   elapsed.Seconds(),
		PointsEarned:   points,
		PresentedAt:    s.questionStart,
		AnsweredAt:     now,
		Rank:           rank,
		WasFastest:     wasFastest,
	}
	if correct {
		p.Streak++
		p.Score += points
	} else {
		p.Streak = 0
	}

	result := domain.AnswerResult{
		QuestionIndex: s.current,
		Correct:       correct,
		Awarded:       points,
		TotalScore:    p.Score,
		Streak:        p.Streak,
		Rank:          rank,
		WasFastest:    wasFastest,
	}

	var snaps []domain.SessionSummary
	var fin *finalization
	if s.allAnsweredLocked() {
		snaps, fin = e.settleLocked(s, now)
	} else if s.gate.allow(now) {
		snaps = append(snaps, s.summaryLocked(now))
	}
	s.mu.Unlock()

	for _, snap := range snaps {
		e.render(snap)
	}
	e.finish(fin, snaps)
	return result, nil
}

// StopSession cancels a live session from any state. The second stop for
// the same id reports ErrSessionNotFound: the terminal transition
// unregisters exactly once, so double-finalize is impossible.
func (e *Engine) StopSession(sessionID string) error {
	s, ok := e.registry.sessionByID(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	now := e.now()
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	fin := e.terminateLocked(s, domain.StateStopped, now)
	s.gate.force(now)
	snap := s.summaryLocked(now)
	s.mu.Unlock()

	e.render(snap)
	e.finish(fin, []domain.SessionSummary{snap})
	return nil
}

// ActiveSession returns a read-only snapshot for status queries.
func (e *Engine) ActiveSession(channelID string) (domain.SessionSummary, error) {
	s, ok := e.registry.channelSession(channelID)
	if !ok {
		return domain.SessionSummary{}, domain.ErrSessionNotFound
	}
	s.mu.Lock()
	snap := s.summaryLocked(e.now())
	s.mu.Unlock()
	return snap, nil
}

// SetMessageID records the id of the rendered status message, when the
// display surface exposes one. First write wins.
func (e *Engine) SetMessageID(sessionID, messageID string) {
	s, ok := e.registry.sessionByID(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.messageID == "" {
		s.messageID = messageID
	}
	s.mu.Unlock()
}

// beginQuestions is the wait-timer callback: Waiting -> QuestionOpen(0).
func (e *Engine) beginQuestions(s *session) {
	now := e.now()
	s.mu.Lock()
	if s.state != domain.StateWaiting {
		s.mu.Unlock()
		return
	}
	e.openQuestionLocked(s, 0, now)
	s.gate.force(now)
	snap := s.summaryLocked(now)
	s.mu.Unlock()
	e.render(snap)
}

func (e *Engine) openQuestionLocked(s *session, index int, now time.Time) {
	s.state = domain.StateQuestionOpen
	s.current = index
	s.questionStart = now
	s.fastestCorrect = "" // meaningful only for the open question
	s.questionTimer = after(s.questionLimit(index), func() { e.questionDeadline(s, index) })
}

// questionDeadline is the per-question timer callback. The state and index
// guard makes a stale fire (after stop, or after an early settle) a no-op.
func (e *Engine) questionDeadline(s *session, index int) {
	now := e.now()
	s.mu.Lock()
	if s.state != domain.StateQuestionOpen || s.current != index {
		s.mu.Unlock()
		return
	}
	snaps, fin := e.settleLocked(s, now)
	s.mu.Unlock()

	for _, snap := range snaps {
		e.render(snap)
	}
	e.finish(fin, snaps)
}

// settleLocked closes the open question: QuestionOpen(i) -> QuestionSettled(i),
// then either schedules the next question or completes the session.
func (e *Engine) settleLocked(s *session, now time.Time) ([]domain.SessionSummary, *finalization) {
	index := s.current
	s.questionTimer.cancel()
	s.state = domain.StateQuestionSettled
	s.resetMissedStreaksLocked(index)
	s.gate.force(now)

	snaps := []domain.SessionSummary{s.summaryLocked(now)}
	if index+1 < len(s.quiz.Questions) {
		s.pauseTimer = after(e.opts.SettlePause, func() { e.advance(s, index+1) })
		return snaps, nil
	}

	fin := e.terminateLocked(s, domain.StateCompleted, now)
	snaps = append(snaps, s.summaryLocked(now))
	return snaps, fin
}

// advance is the settle-pause timer callback: QuestionSettled(i) -> QuestionOpen(i+1).
func (e *Engine) advance(s *session, index int) {
	now := e.now()
	s.mu.Lock()
	if s.state != domain.StateQuestionSettled || s.current != index-1 {
		s.mu.Unlock()
		return
	}
	e.openQuestionLocked(s, index, now)
	s.gate.force(now)
	snap := s.summaryLocked(now)
	s.mu.Unlock()
	e.render(snap)
}

// forceComplete is the overall-time-limit watchdog: whatever answers exist
// for the in-flight question stand, and the session completes immediately.
func (e *Engine) forceComplete(s *session) {
	now := e.now()
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if s.state == domain.StateQuestionOpen {
		s.resetMissedStreaksLocked(s.current)
	}
	fin := e.terminateLocked(s, domain.StateCompleted, now)
	s.gate.force(now)
	snap := s.summaryLocked(now)
	s.mu.Unlock()

	e.render(snap)
	e.finish(fin, []domain.SessionSummary{snap})
}

// terminateLocked performs the single terminal transition: cancel every
// outstanding timer, release the channel slot, and freeze the session into
// the finalization records. Callers must have verified the state is not
// already terminal.
func (e *Engine) terminateLocked(s *session, state domain.SessionState, now time.Time) *finalization {
	s.cancelTimersLocked()
	s.state = state
	s.finishedAt = now
	e.registry.unregister(s)
	return e.buildFinalizationLocked(s, now)
}

// finish persists finalization records and fires the terminal hook. It is
// a no-op unless the transition that produced snaps was terminal.
func (e *Engine) finish(fin *finalization, snaps []domain.SessionSummary) {
	if fin == nil {
		return
	}
	e.persistFinalization(fin)
	if e.opts.OnTerminal != nil && len(snaps) > 0 {
		e.opts.OnTerminal(snaps[len(snaps)-1])
	}
}

func (e *Engine) render(snap domain.SessionSummary) {
	if e.renderer == nil {
		return
	}
	if err := e.renderer.RenderStatus(snap); err != nil {
		log.Printf("render status for channel %s: %v", snap.ChannelID, err)
	}
}

// validateQuiz rejects configuration errors before a session can enter
// Waiting: no questions, too few options, or a correct index out of range.
func validateQuiz(quiz domain.QuizConfig) error {
	if len(quiz.Questions) == 0 {
		return domain.ErrNoQuestions
	}
	for i, q := range quiz.Questions {
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d has %d options: %w", i, len(q.Options), domain.ErrInvalidQuestion)
		}
		if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
			return fmt.Errorf("question %d correct option %d out of range: %w", i, q.CorrectOption, domain.ErrInvalidQuestion)
		}
	}
	return nil
}
