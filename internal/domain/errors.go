package domain

import "errors"

var (
	// ErrChannelActive is returned when a channel already hosts a live session.
	ErrChannelActive = errors.New("channel already has an active session")
	// ErrSessionNotFound is returned when no live session matches the lookup.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions rejects a start request for a quiz without questions.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrInvalidQuestion rejects a start request for a malformed question
	// (fewer than two options, or a correct index out of range).
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrQuestionClosed rejects an answer while no question is open.
	ErrQuestionClosed = errors.New("question is not accepting answers")
	// ErrStaleQuestion rejects an answer aimed at a question other than the open one.
	ErrStaleQuestion = errors.New("answer does not match the open question")
	// ErrDuplicateAnswer rejects a second answer for the same question; the
	// first recorded answer is never overwritten.
	ErrDuplicateAnswer = errors.New("answer already recorded for this question")
	// ErrOptionNotFound rejects an option index outside the question's options.
	ErrOptionNotFound = errors.New("option not found")
)
