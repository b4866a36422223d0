package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"lms-quiz/internal/app"
	"lms-quiz/internal/domain"
)

const maxBodyBytes = 1 << 20

// APIHandler serves the learner quiz REST endpoints.
type APIHandler struct {
	service *app.QuizService
	limiter *SubmissionLimiter
	metrics *Metrics
	logger  *zap.Logger
}

func NewAPIHandler(service *app.QuizService, limiter *SubmissionLimiter, metrics *Metrics, logger *zap.Logger) *APIHandler {
	return &APIHandler{service: service, limiter: limiter, metrics: metrics, logger: logger}
}

type errorBody struct {
	Error string `json:"error"`
}

type lessonCompletionBody struct {
	Score *int `json:"score"`
}

// GetQuiz returns the quiz without answer keys.
func (h *APIHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.GetQuiz(r.Context(), r.PathValue("quizId"))
	h.metrics.observeLoad(err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

// SubmitQuiz grades the posted answers for the authenticated learner.
func (h *APIHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	learnerID, _ := LearnerID(r.Context())
	var submission domain.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&submission); err != nil {
		writeError(w, http.StatusBadRequest, "invalid submission payload")
		return
	}
	grader := learnerGrader{service: h.service, limiter: h.limiter, metrics: h.metrics, learnerID: learnerID}
	result, err := grader.Submit(r.Context(), r.PathValue("quizId"), submission)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CompleteLesson records that the learner finished a lesson with score.
func (h *APIHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	learnerID, _ := LearnerID(r.Context())
	var body lessonCompletionBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Score == nil {
		writeError(w, http.StatusBadRequest, "invalid completion payload")
		return
	}
	if err := h.service.CompleteLesson(r.Context(), learnerID, r.PathValue("lessonId"), *body.Score); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, msg)
}

// statusFor maps domain errors to HTTP responses. Internal failures are not echoed back.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrInvalidSubmission):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusInternalServerError, "quiz unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
