package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lms-quiz/internal/app"
	"lms-quiz/internal/domain"
	"lms-quiz/internal/player"
)

// PlayerHandler hosts a quiz session per websocket connection. The browser only renders
// views; timing, validation and submission all run server side.
type PlayerHandler struct {
	service  *app.QuizService
	limiter  *SubmissionLimiter
	metrics  *Metrics
	logger   *zap.Logger
	clock    player.Clock
	upgrader websocket.Upgrader
}

func NewPlayerHandler(service *app.QuizService, limiter *SubmissionLimiter, metrics *Metrics, clock player.Clock, logger *zap.Logger) *PlayerHandler {
	return &PlayerHandler{
		service: service,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
		clock:   clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	OptionID string `json:"optionId"`
}

type jumpPayload struct {
	Index int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// learnerGrader grades on behalf of one authenticated learner, subject to the submission limiter.
type learnerGrader struct {
	service   *app.QuizService
	limiter   *SubmissionLimiter
	metrics   *Metrics
	learnerID string
}

func (g learnerGrader) Submit(ctx context.Context, quizID string, submission domain.Submission) (domain.SubmissionResult, error) {
	var (
		result domain.SubmissionResult
		err    error
	)
	if g.limiter.Allow(g.learnerID) {
		result, err = g.service.Submit(ctx, quizID, g.learnerID, submission)
	} else {
		err = domain.ErrRateLimited
	}
	g.metrics.observeSubmission(result, err)
	return result, err
}

type observedCatalog struct {
	service *app.QuizService
	metrics *Metrics
}

func (c observedCatalog) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	quiz, err := c.service.GetQuiz(ctx, quizID)
	c.metrics.observeLoad(err)
	return quiz, err
}

// ServeWS upgrades the request and runs a player session until the connection closes.
// An optional lessonId query parameter marks that lesson complete when the learner passes.
func (h *PlayerHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	lessonID := r.URL.Query().Get("lessonId")
	learnerID, ok := LearnerID(r.Context())
	if quizID == "" || !ok {
		writeError(w, http.StatusBadRequest, "missing quizId")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("learner_id", learnerID))
	session := player.NewSession(quizID, player.Config{
		Catalog:    observedCatalog{service: h.service, metrics: h.metrics},
		Grader:     learnerGrader{service: h.service, limiter: h.limiter, metrics: h.metrics, learnerID: learnerID},
		OnComplete: h.completeLesson(learnerID, lessonID, logger),
		Clock:      h.clock,
		Logger:     logger,
	})
	h.metrics.playerSessions.Inc()
	defer h.metrics.playerSessions.Dec()

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var pending sync.WaitGroup

	trySend := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}
	sendErr := func(err error) {
		trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				trySend(outboundMessage[any]{Type: "view", Payload: view})
			case <-closeSignals:
				return
			}
		}
	}()

	// Loading and grading run off the read loop so a closed socket is noticed immediately.
	pending.Add(1)
	go func() {
		defer pending.Done()
		if err := session.Start(r.Context()); err != nil {
			sendErr(err)
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sendErr(domain.ErrInvalidSubmission)
				continue
			}
			if err := session.Select(payload.OptionID); err != nil {
				sendErr(err)
			}
		case "next":
			if err := session.Next(); err != nil {
				sendErr(err)
			}
		case "previous":
			if err := session.Previous(); err != nil {
				sendErr(err)
			}
		case "jump":
			var payload jumpPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sendErr(domain.ErrQuestionOutOfRange)
				continue
			}
			if err := session.Jump(payload.Index); err != nil {
				sendErr(err)
			}
		case "submit":
			pending.Add(1)
			go func() {
				defer pending.Done()
				if _, err := session.Submit(r.Context()); err != nil {
					sendErr(err)
				}
			}()
		case "retake":
			if err := session.Retake(); err != nil {
				sendErr(err)
			}
		default:
			trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	// Closing the session cancels in-flight requests and closes the updates channel.
	session.Close()
	close(closeSignals)
	pending.Wait()
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *PlayerHandler) completeLesson(learnerID, lessonID string, logger *zap.Logger) func(int) {
	return func(score int) {
		if lessonID == "" {
			logger.Info("quiz passed", zap.Int("score", score))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.service.CompleteLesson(ctx, learnerID, lessonID, score); err != nil {
			logger.Error("lesson completion failed", zap.String("lesson_id", lessonID), zap.Error(err))
		}
	}
}
