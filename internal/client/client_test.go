package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lms-quiz/internal/auth"
	"lms-quiz/internal/domain"
)

func TestGetQuizSendsBearerToken(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "quiz-1", "title": "Basics", "isTimed": true, "timeLimit": 5, "passingScore": 70,
			"questions": []map[string]any{{
				"id": "q1", "question": "2+2?", "type": "mc_single", "points": 1,
				"options": []map[string]any{{"id": "o1", "text": "3"}, {"id": "o2", "text": "4"}},
			}},
		})
	}))
	defer server.Close()

	c := New(server.URL+"/", auth.Token{Raw: "abc"}, Options{})
	quiz, err := c.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if gotAuth != "Bearer abc" || gotPath != "/api/learner/quizzes/quiz-1" {
		t.Fatalf("unexpected request auth=%q path=%q", gotAuth, gotPath)
	}
	if quiz.TimeLimit != 5 || !quiz.IsTimed || quiz.Questions[0].Type != domain.SingleChoice || quiz.Questions[0].Text != "2+2?" {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
}

func TestSubmitPostsAnswers(t *testing.T) {
	var got domain.Submission
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/learner/quizzes/quiz-1/submit" {
			http.Error(w, "unexpected route", http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(domain.SubmissionResult{Score: 100, Passed: true, EarnedPoints: 1, TotalPoints: 1})
	}))
	defer server.Close()

	selected := "o2"
	c := New(server.URL, auth.Token{Raw: "abc"}, Options{})
	result, err := c.Submit(context.Background(), "quiz-1", domain.Submission{Answers: []domain.AnswerEntry{
		{QuestionID: "q1", SelectedOptionID: &selected},
	}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Passed || result.Score != 100 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(got.Answers) != 1 || *got.Answers[0].SelectedOptionID != "o2" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestNonOKIsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"grading offline"}`))
	}))
	defer server.Close()

	c := New(server.URL, auth.Token{Raw: "abc"}, Options{})
	_, err := c.Submit(context.Background(), "quiz-1", domain.Submission{})
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if serr.Code != http.StatusBadGateway || serr.Message != "grading offline" {
		t.Fatalf("unexpected status error %+v", serr)
	}
}

func TestExpiredTokenShortCircuits(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	now := time.Now()
	c := New(server.URL, auth.Token{Raw: "abc", ExpiresAt: now.Add(-time.Minute)}, Options{Now: func() time.Time { return now }})
	if _, err := c.GetQuiz(context.Background(), "quiz-1"); !errors.Is(err, auth.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if called {
		t.Fatalf("request sent with an expired token")
	}
}

func TestCompleteLesson(t *testing.T) {
	var score struct {
		Score int `json:"score"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/learner/lessons/lesson-9/complete" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&score)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := New(server.URL, auth.Token{Raw: "abc"}, Options{})
	if err := c.CompleteLesson(context.Background(), "lesson-9", 85); err != nil {
		t.Fatalf("complete lesson: %v", err)
	}
	if score.Score != 85 {
		t.Fatalf("expected score 85, got %d", score.Score)
	}
}
