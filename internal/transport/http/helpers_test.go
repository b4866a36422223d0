package http

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lms-quiz/internal/app"
	"lms-quiz/internal/auth"
	"lms-quiz/internal/domain"
	"lms-quiz/internal/infra/memory"
	"lms-quiz/internal/player"
)

const testSecret = "test-secret"

type testEnv struct {
	server   *httptest.Server
	progress *memory.ProgressStore
	registry *prometheus.Registry
	verifier *auth.Verifier
}

func newTestEnv(t *testing.T, limiter *SubmissionLimiter, clock player.Clock) *testEnv {
	t.Helper()
	progress := memory.NewProgressStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewQuizService(quizzes, progress, nil)
	env := &testEnv{
		progress: progress,
		registry: prometheus.NewRegistry(),
		verifier: auth.NewVerifier(testSecret),
	}
	env.server = httptest.NewServer(NewRouter(RouterConfig{
		Service:  service,
		Verifier: env.verifier,
		Limiter:  limiter,
		Registry: env.registry,
		Clock:    clock,
	}))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) token(t *testing.T, learnerID string) string {
	t.Helper()
	raw, err := e.verifier.Issue(learnerID, "learner", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return raw
}

func sampleQuizzes() map[string]domain.QuizDefinition {
	return map[string]domain.QuizDefinition{
		"quiz-1": {
			ID:           "quiz-1",
			Title:        "Arithmetic",
			PassingScore: 70,
			Questions: []domain.Question{
				{
					ID:          "q1",
					Text:        "What is 2 + 2?",
					Type:        domain.SingleChoice,
					Points:      1,
					Explanation: "Two plus two is four.",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
					},
				},
				{
					ID:     "q2",
					Text:   "Pick the even numbers",
					Type:   domain.MultipleChoice,
					Points: 1,
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "3"},
						{ID: "o3", Text: "4", Correct: true},
					},
				},
			},
		},
		"timed": {
			ID:           "timed",
			Title:        "Speed round",
			IsTimed:      true,
			TimeLimit:    1,
			PassingScore: 50,
			AllowRetake:  true,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Text:   "What is 3 + 3?",
					Type:   domain.SingleChoice,
					Points: 1,
					Options: []domain.Option{
						{ID: "o1", Text: "6", Correct: true},
						{ID: "o2", Text: "7"},
					},
				},
			},
		},
	}
}

// fakeClock fires registered callbacks only when Tick is called.
type fakeClock struct {
	mu      sync.Mutex
	nextID  int
	entries map[int]func()
	armed   chan struct{}
}

func newFakeClock() *fakeClock {
	return &fakeClock{entries: make(map[int]func()), armed: make(chan struct{}, 8)}
}

func (c *fakeClock) Every(_ time.Duration, fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.entries[id] = fn
	c.mu.Unlock()
	select {
	case c.armed <- struct{}{}:
	default:
	}
	return func() {
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
	}
}

func (c *fakeClock) Tick() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.entries))
	for _, fn := range c.entries {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
