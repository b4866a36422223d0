package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"lms-quiz/internal/domain"
)

func TestProgressStoreAttempts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewProgressStore(newClient(mr), time.Hour)
	ctx := context.Background()
	for i, score := range []int{30, 80} {
		err := store.RecordAttempt(ctx, domain.Attempt{
			ID: []string{"a1", "a2"}[i], QuizID: "quiz-1", LearnerID: "u1", Score: score, Passed: score >= 70,
		})
		if err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}

	attempts, err := store.Attempts(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 2 || attempts[0].Score != 30 || !attempts[1].Passed {
		t.Fatalf("unexpected attempts %+v", attempts)
	}
	if ttl := mr.TTL("progress:attempts:quiz-1:u1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
	if none, _ := store.Attempts(ctx, "quiz-1", "u2"); len(none) != 0 {
		t.Fatalf("expected no attempts for u2, got %+v", none)
	}
}

func TestProgressStoreLessonCompletion(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewProgressStore(newClient(mr), 0)
	ctx := context.Background()

	if _, ok, err := store.LessonCompletion(ctx, "u1", "l1"); ok || err != nil {
		t.Fatalf("expected no completion yet, ok=%v err=%v", ok, err)
	}
	_ = store.CompleteLesson(ctx, domain.LessonCompletion{LessonID: "l1", LearnerID: "u1", Score: 75})
	_ = store.CompleteLesson(ctx, domain.LessonCompletion{LessonID: "l1", LearnerID: "u1", Score: 60})
	if err := store.CompleteLesson(ctx, domain.LessonCompletion{LessonID: "l1", LearnerID: "u1", Score: 90}); err != nil {
		t.Fatalf("complete lesson: %v", err)
	}

	completion, ok, err := store.LessonCompletion(ctx, "u1", "l1")
	if err != nil || !ok {
		t.Fatalf("expected completion, ok=%v err=%v", ok, err)
	}
	if completion.Score != 90 {
		t.Fatalf("expected best score 90, got %d", completion.Score)
	}
	if !mr.Exists("progress:lessons:u1") {
		t.Fatalf("expected lessons hash in redis")
	}
}
