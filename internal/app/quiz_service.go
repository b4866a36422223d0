package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lms-quiz/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// ProgressRepository abstracts where attempts and lesson completions are kept (in-memory, Redis, etc).
type ProgressRepository interface {
	RecordAttempt(ctx context.Context, attempt domain.Attempt) error
	Attempts(ctx context.Context, quizID, learnerID string) ([]domain.Attempt, error)
	CompleteLesson(ctx context.Context, completion domain.LessonCompletion) error
	LessonCompletion(ctx context.Context, learnerID, lessonID string) (domain.LessonCompletion, bool, error)
}

// QuizService contains the learner-facing quiz use cases.
type QuizService struct {
	quizzes  QuizRepository
	progress ProgressRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewQuizService(quizzes QuizRepository, progress ProgressRepository, logger *zap.Logger) *QuizService {
	return NewQuizServiceWithClock(quizzes, progress, logger, time.Now)
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(quizzes QuizRepository, progress ProgressRepository, logger *zap.Logger, now func() time.Time) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{quizzes: quizzes, progress: progress, logger: logger, now: now}
}

// GetQuiz returns the quiz with answer keys removed.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	quiz, err := s.load(ctx, quizID)
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	return quiz.Redacted(), nil
}

// Submit grades a learner's answers and records the attempt.
func (s *QuizService) Submit(ctx context.Context, quizID, learnerID string, submission domain.Submission) (domain.SubmissionResult, error) {
	quiz, err := s.load(ctx, quizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	result, err := Grade(quiz, submission)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	attempt := domain.Attempt{
		ID:          uuid.NewString(),
		QuizID:      quizID,
		LearnerID:   learnerID,
		Score:       result.Score,
		Passed:      result.Passed,
		SubmittedAt: s.now(),
	}
	if err := s.progress.RecordAttempt(ctx, attempt); err != nil {
		// The learner still gets the grade; only the history entry is lost.
		s.logger.Error("record attempt failed", zap.String("quiz_id", quizID), zap.String("learner_id", learnerID), zap.Error(err))
	}
	s.logger.Info("quiz graded",
		zap.String("quiz_id", quizID),
		zap.String("learner_id", learnerID),
		zap.Int("score", result.Score),
		zap.Bool("passed", result.Passed),
	)
	return result, nil
}

// Attempts lists a learner's recorded attempts for a quiz, oldest first.
func (s *QuizService) Attempts(ctx context.Context, quizID, learnerID string) ([]domain.Attempt, error) {
	return s.progress.Attempts(ctx, quizID, learnerID)
}

// CompleteLesson marks a lesson finished for a learner.
func (s *QuizService) CompleteLesson(ctx context.Context, learnerID, lessonID string, score int) error {
	if lessonID == "" {
		return fmt.Errorf("%w: missing lesson id", domain.ErrInvalidSubmission)
	}
	if score < 0 || score > 100 {
		return fmt.Errorf("%w: score %d out of range", domain.ErrInvalidSubmission, score)
	}
	return s.progress.CompleteLesson(ctx, domain.LessonCompletion{
		LessonID:    lessonID,
		LearnerID:   learnerID,
		Score:       score,
		CompletedAt: s.now(),
	})
}

func (s *QuizService) load(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	if err := quiz.Validate(); err != nil {
		return domain.QuizDefinition{}, err
	}
	return quiz, nil
}
