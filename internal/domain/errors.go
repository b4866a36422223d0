package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz is returned when a quiz definition breaks a structural invariant.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidSubmission is returned for malformed answer payloads.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrUnauthorized is returned when the caller has no valid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited is returned when a learner submits too often.
	ErrRateLimited = errors.New("too many submissions")

	// ErrNotInProgress is returned for learner actions outside an active attempt.
	ErrNotInProgress = errors.New("quiz is not in progress")
	// ErrSubmitInFlight rejects a submit while another one is being graded.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrNotOnLastQuestion rejects a manual submit before the learner reached the end.
	ErrNotOnLastQuestion = errors.New("submit is only available on the last question")
	// ErrQuestionOutOfRange is returned when navigating past either end of the quiz.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrRetakeNotAllowed is returned when a retake is requested for a passed or non-retakeable quiz.
	ErrRetakeNotAllowed = errors.New("retake not allowed")
	// ErrAlreadyStarted is returned when a session is started twice.
	ErrAlreadyStarted = errors.New("quiz session already started")
	// ErrSessionClosed is returned once the session has been torn down.
	ErrSessionClosed = errors.New("quiz session closed")
)

// DefinitionLoadError means the quiz could not be fetched or failed validation.
type DefinitionLoadError struct {
	QuizID string
	Err    error
}

func (e *DefinitionLoadError) Error() string {
	return fmt.Sprintf("quiz unavailable: %s: %v", e.QuizID, e.Err)
}

func (e *DefinitionLoadError) Unwrap() error { return e.Err }

// ValidationError rejects a manual submit while questions are unanswered.
type ValidationError struct {
	Remaining int
}

func (e *ValidationError) Error() string {
	if e.Remaining == 1 {
		return "1 question is still unanswered"
	}
	return fmt.Sprintf("%d questions are still unanswered", e.Remaining)
}

// SubmissionError wraps a failed grading request; the learner may retry.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
