package memory

import (
	"context"
	"sync"

	"lms-quiz/internal/domain"
)

// ProgressStore is an in-memory implementation of app.ProgressRepository.
type ProgressStore struct {
	mu       sync.RWMutex
	attempts map[string][]domain.Attempt
	lessons  map[string]domain.LessonCompletion
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		attempts: make(map[string][]domain.Attempt),
		lessons:  make(map[string]domain.LessonCompletion),
	}
}

func (s *ProgressStore) RecordAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey(attempt.QuizID, attempt.LearnerID)
	s.attempts[key] = append(s.attempts[key], attempt)
	return nil
}

func (s *ProgressStore) Attempts(_ context.Context, quizID, learnerID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.attempts[attemptKey(quizID, learnerID)]
	out := make([]domain.Attempt, len(stored))
	copy(out, stored)
	return out, nil
}

// CompleteLesson keeps the first completion; later ones only raise the score.
func (s *ProgressStore) CompleteLesson(_ context.Context, completion domain.LessonCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := lessonKey(completion.LearnerID, completion.LessonID)
	if prev, ok := s.lessons[key]; ok {
		if completion.Score > prev.Score {
			prev.Score = completion.Score
			s.lessons[key] = prev
		}
		return nil
	}
	s.lessons[key] = completion
	return nil
}

func (s *ProgressStore) LessonCompletion(_ context.Context, learnerID, lessonID string) (domain.LessonCompletion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	completion, ok := s.lessons[lessonKey(learnerID, lessonID)]
	return completion, ok, nil
}

func attemptKey(quizID, learnerID string) string {
	return quizID + "\x00" + learnerID
}

func lessonKey(learnerID, lessonID string) string {
	return learnerID + "\x00" + lessonID
}
