package domain

import (
	"fmt"
	"time"
)

// QuestionType distinguishes single-answer and multi-answer questions.
type QuestionType string

const (
	SingleChoice   QuestionType = "mc_single"
	MultipleChoice QuestionType = "mc_multi"
)

// Option represents a possible answer for a question.
// Correct is only populated on server-side records and never leaves the server.
type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct,omitempty" yaml:"correct,omitempty"`
}

// Question models a single or multiple choice question.
type Question struct {
	ID          string       `json:"id" yaml:"id"`
	Text        string       `json:"question" yaml:"question"`
	Type        QuestionType `json:"type" yaml:"type"`
	Points      int          `json:"points" yaml:"points"`
	Options     []Option     `json:"options" yaml:"options"`
	Explanation string       `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// QuizDefinition is the learner-facing description of a quiz.
type QuizDefinition struct {
	ID           string     `json:"id" yaml:"id"`
	Title        string     `json:"title" yaml:"title"`
	Description  string     `json:"description" yaml:"description"`
	IsTimed      bool       `json:"isTimed" yaml:"isTimed"`
	TimeLimit    int        `json:"timeLimit" yaml:"timeLimit"` // minutes
	PassingScore int        `json:"passingScore" yaml:"passingScore"`
	AllowRetake  bool       `json:"allowRetake" yaml:"allowRetake"`
	Questions    []Question `json:"questions" yaml:"questions"`
}

// TimeLimitSeconds returns the countdown length, or 0 for untimed quizzes.
func (q QuizDefinition) TimeLimitSeconds() int {
	if !q.IsTimed {
		return 0
	}
	return q.TimeLimit * 60
}

// Validate checks the structural invariants every quiz must satisfy before a session can use it.
func (q QuizDefinition) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuiz)
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz %s has no questions", ErrInvalidQuiz, q.ID)
	}
	if q.IsTimed && q.TimeLimit <= 0 {
		return fmt.Errorf("%w: quiz %s is timed without a time limit", ErrInvalidQuiz, q.ID)
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		return fmt.Errorf("%w: passing score %d out of range", ErrInvalidQuiz, q.PassingScore)
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for _, question := range q.Questions {
		if _, dup := seen[question.ID]; dup || question.ID == "" {
			return fmt.Errorf("%w: duplicate or empty question id %q", ErrInvalidQuiz, question.ID)
		}
		seen[question.ID] = struct{}{}
		if err := question.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (q Question) validate() error {
	if q.Type != SingleChoice && q.Type != MultipleChoice {
		return fmt.Errorf("%w: question %s has unknown type %q", ErrInvalidQuiz, q.ID, q.Type)
	}
	if q.Points <= 0 {
		return fmt.Errorf("%w: question %s must be worth at least one point", ErrInvalidQuiz, q.ID)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: question %s needs at least two options", ErrInvalidQuiz, q.ID)
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if _, dup := seen[opt.ID]; dup || opt.ID == "" {
			return fmt.Errorf("%w: question %s has duplicate or empty option id %q", ErrInvalidQuiz, q.ID, opt.ID)
		}
		seen[opt.ID] = struct{}{}
	}
	return nil
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// CorrectOptionIDs lists the correct options in option order.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// EmptySelection returns the zero answer shape for the question type.
func (q Question) EmptySelection() Selection {
	if q.Type == MultipleChoice {
		return MultiSelection{}
	}
	return SingleSelection{}
}

// Redacted returns a copy safe to hand to learners: answer keys and explanations are removed.
func (q QuizDefinition) Redacted() QuizDefinition {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Explanation = ""
		opts := make([]Option, len(question.Options))
		for j, opt := range question.Options {
			opts[j] = Option{ID: opt.ID, Text: opt.Text}
		}
		question.Options = opts
		out.Questions[i] = question
	}
	return out
}

// QuestionResult reports grading for a single question.
type QuestionResult struct {
	QuestionID  string `json:"questionId"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation,omitempty"`
}

// SubmissionResult is the graded outcome of one quiz attempt.
type SubmissionResult struct {
	Score           int              `json:"score"`
	Passed          bool             `json:"passed"`
	EarnedPoints    int              `json:"earnedPoints"`
	TotalPoints     int              `json:"totalPoints"`
	PassingScore    int              `json:"passingScore"`
	QuestionResults []QuestionResult `json:"questionResults"`
}

// Attempt is a recorded submission for a learner.
type Attempt struct {
	ID          string    `json:"id"`
	QuizID      string    `json:"quizId"`
	LearnerID   string    `json:"learnerId"`
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// LessonCompletion marks a lesson finished by a learner.
type LessonCompletion struct {
	LessonID    string    `json:"lessonId"`
	LearnerID   string    `json:"learnerId"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completedAt"`
}
