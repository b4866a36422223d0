package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"lms-quiz/internal/auth"
	"lms-quiz/internal/domain"
)

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGetQuizIsRedacted(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp := doRequest(t, http.MethodGet, env.server.URL+"/api/learner/quizzes/quiz-1", env.token(t, "l1"), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(raw), `"correct"`) || strings.Contains(string(raw), "Two plus two") {
		t.Fatalf("answer key leaked: %s", raw)
	}
	var quiz domain.QuizDefinition
	if err := json.Unmarshal(raw, &quiz); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if quiz.ID != "quiz-1" || len(quiz.Questions) != 2 || quiz.Questions[1].Type != domain.MultipleChoice {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
}

func TestGetQuizErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp := doRequest(t, http.MethodGet, env.server.URL+"/api/learner/quizzes/missing", env.token(t, "l1"), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, env.server.URL+"/api/learner/quizzes/quiz-1", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	expired, err := env.verifier.Issue("l1", "learner", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp = doRequest(t, http.MethodGet, env.server.URL+"/api/learner/quizzes/quiz-1", expired, "")
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusUnauthorized || body.Error != "token expired" {
		t.Fatalf("expected expired token rejection, got %d %q", resp.StatusCode, body.Error)
	}

	forged, _ := auth.NewVerifier("other").Issue("l1", "learner", time.Hour, time.Now())
	resp = doRequest(t, http.MethodGet, env.server.URL+"/api/learner/quizzes/quiz-1", forged, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", resp.StatusCode)
	}
}

func TestSubmitQuizGradesAndRecords(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	body := `{"answers":[
		{"questionId":"q1","selectedOptionId":"o2","selectedOptionIds":null},
		{"questionId":"q2","selectedOptionId":null,"selectedOptionIds":["o1","o3"]}
	]}`
	resp := doRequest(t, http.MethodPost, env.server.URL+"/api/learner/quizzes/quiz-1/submit", env.token(t, "l1"), body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result domain.SubmissionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Score != 100 || !result.Passed || len(result.QuestionResults) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.QuestionResults[0].Explanation != "Two plus two is four." {
		t.Fatalf("expected explanation in result, got %+v", result.QuestionResults[0])
	}

	attempts, _ := env.progress.Attempts(context.Background(), "quiz-1", "l1")
	if len(attempts) != 1 || attempts[0].Score != 100 || attempts[0].ID == "" {
		t.Fatalf("expected one recorded attempt, got %+v", attempts)
	}
}

func TestSubmitQuizRejectsBadPayloads(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := env.token(t, "l1")
	cases := map[string]string{
		"malformed json":   `{"answers":`,
		"unknown option":   `{"answers":[{"questionId":"q1","selectedOptionId":"zz","selectedOptionIds":null}]}`,
		"unknown question": `{"answers":[{"questionId":"q9","selectedOptionId":"o1","selectedOptionIds":null}]}`,
		"both shapes":      `{"answers":[{"questionId":"q1","selectedOptionId":"o1","selectedOptionIds":["o1"]}]}`,
	}
	for name, body := range cases {
		resp := doRequest(t, http.MethodPost, env.server.URL+"/api/learner/quizzes/quiz-1/submit", token, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestSubmitQuizRateLimited(t *testing.T) {
	env := newTestEnv(t, NewSubmissionLimiter(1, time.Hour), nil)
	body := `{"answers":[]}`
	url := env.server.URL + "/api/learner/quizzes/quiz-1/submit"

	if resp := doRequest(t, http.MethodPost, url, env.token(t, "l1"), body); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected first submission to pass through, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodPost, url, env.token(t, "l1"), body); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodPost, url, env.token(t, "l2"), body); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected other learner to be unaffected, got %d", resp.StatusCode)
	}
}

func TestCompleteLesson(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	url := env.server.URL + "/api/learner/lessons/lesson-7/complete"

	if resp := doRequest(t, http.MethodPost, url, env.token(t, "l1"), `{"score":85}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	completion, ok, _ := env.progress.LessonCompletion(context.Background(), "l1", "lesson-7")
	if !ok || completion.Score != 85 {
		t.Fatalf("expected recorded completion, got %+v ok=%v", completion, ok)
	}

	if resp := doRequest(t, http.MethodPost, url, env.token(t, "l1"), `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing score, got %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodPost, url, env.token(t, "l1"), `{"score":101}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range score, got %d", resp.StatusCode)
	}
}

func TestMetricsExposed(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	doRequest(t, http.MethodGet, env.server.URL+"/api/learner/quizzes/quiz-1", env.token(t, "l1"), "")
	doRequest(t, http.MethodPost, env.server.URL+"/api/learner/quizzes/quiz-1/submit", env.token(t, "l1"), `{"answers":[]}`)

	resp := doRequest(t, http.MethodGet, env.server.URL+"/metrics", "", "")
	raw, _ := io.ReadAll(resp.Body)
	out := string(raw)
	for _, want := range []string{
		`quiz_loads_total{outcome="ok"} 1`,
		`quiz_submissions_total{outcome="not_passed"} 1`,
		`http_requests_total{endpoint="/api/learner/quizzes/{quizId}",method="GET",status="200"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp := doRequest(t, http.MethodGet, env.server.URL+"/healthz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
