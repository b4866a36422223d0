package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"lms-quiz/internal/app"
	"lms-quiz/internal/auth"
	"lms-quiz/internal/player"
)

// RouterConfig carries the dependencies of the HTTP surface. Limiter and Clock may be nil.
type RouterConfig struct {
	Service  *app.QuizService
	Verifier *auth.Verifier
	Limiter  *SubmissionLimiter
	Registry *prometheus.Registry
	Clock    player.Clock
	Logger   *zap.Logger
}

// NewRouter wires the learner API, the websocket player, health and metrics endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := NewMetrics(registry)
	api := NewAPIHandler(cfg.Service, cfg.Limiter, metrics, logger)
	ws := NewPlayerHandler(cfg.Service, cfg.Limiter, metrics, cfg.Clock, logger)

	protected := func(pattern string, h http.HandlerFunc) http.Handler {
		return metrics.Instrument(pattern, Authenticate(cfg.Verifier, logger, h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /api/learner/quizzes/{quizId}", protected("/api/learner/quizzes/{quizId}", api.GetQuiz))
	mux.Handle("POST /api/learner/quizzes/{quizId}/submit", protected("/api/learner/quizzes/{quizId}/submit", api.SubmitQuiz))
	mux.Handle("POST /api/learner/lessons/{lessonId}/complete", protected("/api/learner/lessons/{lessonId}/complete", api.CompleteLesson))
	// The websocket route skips Instrument: the status recorder cannot be hijacked.
	mux.Handle("GET /ws/player", Authenticate(cfg.Verifier, logger, http.HandlerFunc(ws.ServeWS)))
	return mux
}
