package app

import (
	"fmt"
	"math"

	"lms-quiz/internal/domain"
)

// Grade scores a submission against the answer key held in quiz.
// Questions without an entry count as unanswered. A question is correct only when the
// selected set matches the correct set exactly.
func Grade(quiz domain.QuizDefinition, submission domain.Submission) (domain.SubmissionResult, error) {
	entries := make(map[string]domain.AnswerEntry, len(submission.Answers))
	for _, entry := range submission.Answers {
		question, ok := findQuestion(quiz, entry.QuestionID)
		if !ok {
			return domain.SubmissionResult{}, domain.ErrQuestionNotFound
		}
		if _, dup := entries[entry.QuestionID]; dup {
			return domain.SubmissionResult{}, fmt.Errorf("%w: duplicate answer for %s", domain.ErrInvalidSubmission, entry.QuestionID)
		}
		if err := checkEntry(question, entry); err != nil {
			return domain.SubmissionResult{}, err
		}
		entries[entry.QuestionID] = entry
	}

	result := domain.SubmissionResult{
		PassingScore:    quiz.PassingScore,
		QuestionResults: make([]domain.QuestionResult, 0, len(quiz.Questions)),
	}
	for _, question := range quiz.Questions {
		result.TotalPoints += question.Points
		correct := matches(question.CorrectOptionIDs(), entries[question.ID].Selected())
		if correct {
			result.EarnedPoints += question.Points
		}
		result.QuestionResults = append(result.QuestionResults, domain.QuestionResult{
			QuestionID:  question.ID,
			IsCorrect:   correct,
			Explanation: question.Explanation,
		})
	}
	if result.TotalPoints > 0 {
		result.Score = int(math.Round(float64(result.EarnedPoints) * 100 / float64(result.TotalPoints)))
	}
	result.Passed = result.Score >= quiz.PassingScore
	return result, nil
}

func findQuestion(quiz domain.QuizDefinition, questionID string) (domain.Question, bool) {
	for _, q := range quiz.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}

func checkEntry(question domain.Question, entry domain.AnswerEntry) error {
	if entry.SelectedOptionID != nil && entry.SelectedOptionIDs != nil {
		return fmt.Errorf("%w: question %s carries both answer shapes", domain.ErrInvalidSubmission, question.ID)
	}
	selected := entry.Selected()
	if question.Type == domain.SingleChoice && len(selected) > 1 {
		return fmt.Errorf("%w: question %s accepts a single option", domain.ErrInvalidSubmission, question.ID)
	}
	for _, id := range selected {
		if !question.HasOption(id) {
			return domain.ErrOptionNotFound
		}
	}
	return nil
}

func matches(correct, selected []string) bool {
	if len(correct) == 0 || len(correct) != len(selected) {
		return false
	}
	want := make(map[string]struct{}, len(correct))
	for _, id := range correct {
		want[id] = struct{}{}
	}
	for _, id := range selected {
		if _, ok := want[id]; !ok {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}
