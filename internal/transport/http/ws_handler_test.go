package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lms-quiz/internal/player"
)

type wsMessage struct {
	Type    string `json:"type"`
	Payload struct {
		player.View
		Message string `json:"message"`
	} `json:"payload"`
}

func dialPlayer(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/player?" + query
	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.token(t, "l1"))
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsMessage) bool) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func viewIn(state player.State) func(wsMessage) bool {
	return func(m wsMessage) bool { return m.Type == "view" && m.Payload.State == state }
}

func errorMessage(m wsMessage) bool { return m.Type == "error" }

func TestPlayerPassesQuizAndCompletesLesson(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	conn := dialPlayer(t, env, "quizId=quiz-1&lessonId=lesson-1")

	view := readUntil(t, conn, viewIn(player.StateInProgress))
	if view.Payload.QuestionCount != 2 || view.Payload.Question == nil || view.Payload.Question.ID != "q1" {
		t.Fatalf("unexpected first view %+v", view.Payload.View)
	}
	if view.Payload.Question.Options[1].Correct {
		t.Fatalf("answer key leaked to the player")
	}

	send(t, conn, "select", map[string]string{"optionId": "o2"})
	send(t, conn, "submit", nil)
	if msg := readUntil(t, conn, errorMessage); msg.Payload.Message != "submit is only available on the last question" {
		t.Fatalf("unexpected error %q", msg.Payload.Message)
	}

	send(t, conn, "next", nil)
	send(t, conn, "select", map[string]string{"optionId": "o1"})
	send(t, conn, "select", map[string]string{"optionId": "o3"})
	send(t, conn, "submit", nil)

	done := readUntil(t, conn, viewIn(player.StateCompleted))
	if done.Payload.Result == nil || done.Payload.Result.Score != 100 {
		t.Fatalf("unexpected result %+v", done.Payload.Result)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		completion, ok, _ := env.progress.LessonCompletion(context.Background(), "l1", "lesson-1")
		if ok {
			if completion.Score != 100 {
				t.Fatalf("unexpected completion %+v", completion)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("lesson completion was not recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlayerReportsValidationErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	conn := dialPlayer(t, env, "quizId=quiz-1")
	readUntil(t, conn, viewIn(player.StateInProgress))

	send(t, conn, "jump", map[string]int{"index": 1})
	send(t, conn, "submit", nil)
	msg := readUntil(t, conn, errorMessage)
	if msg.Payload.Message != "2 questions are still unanswered" {
		t.Fatalf("unexpected error %q", msg.Payload.Message)
	}

	send(t, conn, "jump", map[string]int{"index": 5})
	if msg := readUntil(t, conn, errorMessage); msg.Payload.Message != "question index out of range" {
		t.Fatalf("unexpected error %q", msg.Payload.Message)
	}

	send(t, conn, "dance", nil)
	if msg := readUntil(t, conn, errorMessage); msg.Payload.Message != "unsupported message type" {
		t.Fatalf("unexpected error %q", msg.Payload.Message)
	}
}

func TestPlayerUnknownQuizFails(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	conn := dialPlayer(t, env, "quizId=missing")
	view := readUntil(t, conn, viewIn(player.StateFailed))
	if view.Payload.Notice != "quiz unavailable" {
		t.Fatalf("unexpected notice %q", view.Payload.Notice)
	}
}

func TestPlayerTimerForcesSubmission(t *testing.T) {
	clock := newFakeClock()
	env := newTestEnv(t, nil, clock)
	conn := dialPlayer(t, env, "quizId=timed")

	view := readUntil(t, conn, viewIn(player.StateInProgress))
	if !view.Payload.Timed || view.Payload.RemainingSeconds != 60 {
		t.Fatalf("unexpected timed view %+v", view.Payload.View)
	}
	select {
	case <-clock.armed:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer was not armed")
	}

	for i := 0; i < 60; i++ {
		clock.Tick()
	}

	done := readUntil(t, conn, viewIn(player.StateNotPassed))
	if done.Payload.Result == nil || done.Payload.Result.Score != 0 || !done.Payload.CanRetake {
		t.Fatalf("unexpected forced result %+v", done.Payload.View)
	}

	send(t, conn, "retake", nil)
	again := readUntil(t, conn, viewIn(player.StateInProgress))
	if again.Payload.RemainingSeconds != 60 || again.Payload.Answered != 0 {
		t.Fatalf("retake did not reset the attempt: %+v", again.Payload.View)
	}
}

func TestPlayerRequiresToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/player?quizId=quiz-1"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u+"&token="+env.token(t, "l1"), nil)
	if err != nil {
		t.Fatalf("query token should be accepted: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, viewIn(player.StateInProgress))
}
