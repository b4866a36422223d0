package player

import (
	"fmt"

	"lms-quiz/internal/domain"
)

// State is a quiz session lifecycle state.
type State int

const (
	StateLoading State = iota
	StateInProgress
	StateSubmitting
	StateCompleted // passed
	StateNotPassed
	StateFailed // quiz unavailable
	StateClosed
)

var stateNames = map[State]string{
	StateLoading:    "loading",
	StateInProgress: "in_progress",
	StateSubmitting: "submitting",
	StateCompleted:  "completed",
	StateNotPassed:  "not_passed",
	StateFailed:     "failed",
	StateClosed:     "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Terminal reports whether no further learner action except retake is possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateNotPassed, StateFailed, StateClosed:
		return true
	}
	return false
}

// View is an immutable snapshot of a session for rendering.
type View struct {
	QuizID           string                   `json:"quizId"`
	Title            string                   `json:"title,omitempty"`
	State            State                    `json:"state"`
	QuestionIndex    int                      `json:"questionIndex"`
	QuestionCount    int                      `json:"questionCount"`
	Question         *domain.Question         `json:"question,omitempty"`
	Selected         []string                 `json:"selected"`
	Answered         int                      `json:"answered"`
	Timed            bool                     `json:"timed"`
	RemainingSeconds int                      `json:"remainingSeconds"`
	Result           *domain.SubmissionResult `json:"result,omitempty"`
	CanRetake        bool                     `json:"canRetake"`
	Notice           string                   `json:"notice,omitempty"`
}

// Clock renders the remaining time as m:ss.
func (v View) Clock() string {
	return FormatClock(v.RemainingSeconds)
}

// OnLastQuestion reports whether the current question is the final one.
func (v View) OnLastQuestion() bool {
	return v.QuestionCount > 0 && v.QuestionIndex == v.QuestionCount-1
}
