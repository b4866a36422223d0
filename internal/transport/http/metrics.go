package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lms-quiz/internal/domain"
)

// Metrics groups the collectors exported on /metrics.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	quizLoads      *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	playerSessions prometheus.Gauge
	gatherer       prometheus.Gatherer
}

// NewMetrics registers the collectors with reg. Tests pass a fresh prometheus.NewRegistry().
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		quizLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_loads_total",
				Help: "Quiz definition lookups by outcome",
			},
			[]string{"outcome"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_submissions_total",
				Help: "Graded quiz submissions by outcome",
			},
			[]string{"outcome"},
		),
		playerSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_player_sessions",
			Help: "Websocket player sessions currently open",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.requests, m.duration, m.quizLoads, m.submissions, m.playerSessions)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument wraps next, counting requests under the route pattern rather than the raw path.
func (m *Metrics) Instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.requests.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeLoad(err error) {
	m.quizLoads.WithLabelValues(loadOutcome(err)).Inc()
}

func (m *Metrics) observeSubmission(result domain.SubmissionResult, err error) {
	outcome := "not_passed"
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		outcome = "rate_limited"
	case err != nil:
		outcome = "error"
	case result.Passed:
		outcome = "passed"
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func loadOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidQuiz):
		return "invalid"
	}
	return "error"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
