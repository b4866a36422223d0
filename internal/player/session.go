package player

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"lms-quiz/internal/domain"
)

// Catalog supplies quiz definitions.
type Catalog interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// Grader scores a submission and returns the graded result.
type Grader interface {
	Submit(ctx context.Context, quizID string, submission domain.Submission) (domain.SubmissionResult, error)
}

// Config wires a session to its collaborators. Catalog and Grader are required.
type Config struct {
	Catalog Catalog
	Grader  Grader
	// OnComplete is called once with the score when the learner passes.
	OnComplete func(score int)
	Clock      Clock
	Logger     *zap.Logger
}

// Session drives one learner's attempt at a quiz, from loading the definition to a graded result.
// All methods are safe for concurrent use.
type Session struct {
	quizID     string
	catalog    Catalog
	grader     Grader
	onComplete func(score int)
	clock      Clock
	logger     *zap.Logger

	// ctx is cancelled by Close; every outbound request is bound to it.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	loading     bool
	def         domain.QuizDefinition
	answers     map[string]domain.Selection
	current     int
	remaining   int
	expired     bool
	result      *domain.SubmissionResult
	notice      string
	attempt     uint64
	timerGen    uint64
	stopTimer   func()
	completed   bool
	subscribers map[chan View]struct{}
}

// NewSession creates a session in the loading state. Call Start to fetch the quiz.
func NewSession(quizID string, cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		quizID:      quizID,
		catalog:     cfg.Catalog,
		grader:      cfg.Grader,
		onComplete:  cfg.OnComplete,
		clock:       cfg.Clock,
		logger:      cfg.Logger.With(zap.String("quiz_id", quizID)),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateLoading,
		answers:     make(map[string]domain.Selection),
		subscribers: make(map[chan View]struct{}),
	}
}

// Start loads the quiz definition and begins the attempt.
// A failed load leaves the session in StateFailed for good.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return domain.ErrSessionClosed
	case s.state != StateLoading || s.loading:
		s.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	s.loading = true
	s.mu.Unlock()

	ctx, cancel := s.bind(ctx)
	defer cancel()
	def, err := s.catalog.GetQuiz(ctx, s.quizID)
	if err == nil {
		err = def.Validate()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.state != StateLoading {
		return domain.ErrSessionClosed
	}
	if err != nil {
		s.logger.Warn("quiz load failed", zap.Error(err))
		s.notice = "quiz unavailable"
		s.setStateLocked(StateFailed)
		s.broadcastLocked()
		return &domain.DefinitionLoadError{QuizID: s.quizID, Err: err}
	}

	s.def = def
	s.resetAttemptLocked()
	s.setStateLocked(StateInProgress)
	s.broadcastLocked()
	s.logger.Info("quiz started",
		zap.Int("questions", len(def.Questions)),
		zap.Bool("timed", def.IsTimed),
	)
	return nil
}

// Select records the learner picking optionID on the current question.
// Single choice questions replace the previous pick; multiple choice questions toggle it.
func (s *Session) Select(optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked(); err != nil {
		return err
	}
	question := s.def.Questions[s.current]
	if !question.HasOption(optionID) {
		return domain.ErrOptionNotFound
	}
	sel, ok := s.answers[question.ID]
	if !ok {
		sel = question.EmptySelection()
	}
	s.answers[question.ID] = sel.With(optionID)
	s.notice = ""
	s.broadcastLocked()
	return nil
}

// Next moves to the following question.
func (s *Session) Next() error {
	return s.move(func(current int) int { return current + 1 })
}

// Previous moves to the preceding question.
func (s *Session) Previous() error {
	return s.move(func(current int) int { return current - 1 })
}

// Jump moves directly to the question at index.
func (s *Session) Jump(index int) error {
	return s.move(func(int) int { return index })
}

func (s *Session) move(target func(current int) int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked(); err != nil {
		return err
	}
	next := target(s.current)
	if next < 0 || next >= len(s.def.Questions) {
		return domain.ErrQuestionOutOfRange
	}
	s.current = next
	s.broadcastLocked()
	return nil
}

// Submit sends the learner's answers for grading. Every question must be answered unless the
// timer has already run out. A failed request returns the session to StateInProgress.
func (s *Session) Submit(ctx context.Context) (domain.SubmissionResult, error) {
	s.mu.Lock()
	switch s.state {
	case StateInProgress:
	case StateSubmitting:
		s.mu.Unlock()
		return domain.SubmissionResult{}, domain.ErrSubmitInFlight
	case StateClosed:
		s.mu.Unlock()
		return domain.SubmissionResult{}, domain.ErrSessionClosed
	default:
		s.mu.Unlock()
		return domain.SubmissionResult{}, domain.ErrNotInProgress
	}
	if !s.expired {
		if s.current != len(s.def.Questions)-1 {
			s.mu.Unlock()
			return domain.SubmissionResult{}, domain.ErrNotOnLastQuestion
		}
		if remaining := s.unansweredLocked(); remaining > 0 {
			verr := &domain.ValidationError{Remaining: remaining}
			s.notice = verr.Error()
			s.broadcastLocked()
			s.mu.Unlock()
			return domain.SubmissionResult{}, verr
		}
	}
	req := s.beginSubmitLocked()
	s.mu.Unlock()

	return s.finishSubmit(ctx, req)
}

// Retake restarts a quiz that was not passed, if the quiz allows it.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNotPassed || !s.def.AllowRetake {
		return domain.ErrRetakeNotAllowed
	}
	s.resetAttemptLocked()
	s.setStateLocked(StateInProgress)
	s.broadcastLocked()
	s.logger.Info("quiz retake started")
	return nil
}

// Close tears the session down: the timer stops, pending requests are cancelled and their
// responses ignored, and subscriber channels are closed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.setStateLocked(StateClosed)
	s.cancel()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// View returns the current snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Answers returns a copy of the current answer state keyed by question id.
func (s *Session) Answers() map[string]domain.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Selection, len(s.answers))
	for id, sel := range s.answers {
		out[id] = sel
	}
	return out
}

// Subscribe returns a channel that receives a snapshot after every change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)

	s.mu.Lock()
	initial := s.snapshotLocked()
	if s.state == StateClosed {
		s.mu.Unlock()
		ch <- initial
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- initial
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

type submitRequest struct {
	attempt uint64
	quizID  string
	payload domain.Submission
}

// beginSubmitLocked moves to StateSubmitting, which releases the timer and blocks any
// other submit until the grading call returns.
func (s *Session) beginSubmitLocked() submitRequest {
	s.attempt++
	req := submitRequest{
		attempt: s.attempt,
		quizID:  s.def.ID,
		payload: domain.BuildSubmission(s.def, s.answers),
	}
	s.notice = ""
	s.setStateLocked(StateSubmitting)
	s.broadcastLocked()
	return req
}

func (s *Session) finishSubmit(ctx context.Context, req submitRequest) (domain.SubmissionResult, error) {
	ctx, cancel := s.bind(ctx)
	defer cancel()
	result, err := s.grader.Submit(ctx, req.quizID, req.payload)

	s.mu.Lock()
	if s.state != StateSubmitting || s.attempt != req.attempt {
		s.mu.Unlock()
		return domain.SubmissionResult{}, domain.ErrSessionClosed
	}
	if err != nil {
		serr := &domain.SubmissionError{Err: err}
		s.logger.Warn("quiz submission failed", zap.Error(err))
		s.notice = serr.Error()
		s.setStateLocked(StateInProgress)
		s.broadcastLocked()
		s.mu.Unlock()
		return domain.SubmissionResult{}, serr
	}

	s.result = &result
	notify := false
	if result.Passed {
		s.setStateLocked(StateCompleted)
		notify = !s.completed && s.onComplete != nil
		s.completed = true
	} else {
		s.setStateLocked(StateNotPassed)
	}
	s.broadcastLocked()
	s.mu.Unlock()

	s.logger.Info("quiz graded",
		zap.Int("score", result.Score),
		zap.Bool("passed", result.Passed),
	)
	if notify {
		s.onComplete(result.Score)
	}
	return result, nil
}

func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if s.state != StateInProgress || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining > 0 {
		s.broadcastLocked()
		s.mu.Unlock()
		return
	}
	s.expired = true
	s.logger.Info("quiz time expired, submitting", zap.Int("answered", s.answeredLocked()))
	req := s.beginSubmitLocked()
	s.mu.Unlock()

	// The outcome is already published to subscribers; nobody is waiting on the error here.
	_, _ = s.finishSubmit(s.ctx, req)
}

// setStateLocked is the only place the state changes. The countdown is armed on entering
// StateInProgress and released on every way out of it.
func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	if s.state == StateInProgress {
		s.releaseTimerLocked()
	}
	s.state = next
	if next == StateInProgress {
		s.armTimerLocked()
	}
}

func (s *Session) armTimerLocked() {
	if !s.def.IsTimed || s.remaining <= 0 {
		return
	}
	s.timerGen++
	gen := s.timerGen
	s.stopTimer = s.clock.Every(time.Second, func() { s.tick(gen) })
}

func (s *Session) releaseTimerLocked() {
	s.timerGen++
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
}

func (s *Session) resetAttemptLocked() {
	s.answers = make(map[string]domain.Selection)
	s.current = 0
	s.remaining = s.def.TimeLimitSeconds()
	s.expired = false
	s.result = nil
	s.notice = ""
}

func (s *Session) requireInProgressLocked() error {
	switch s.state {
	case StateInProgress:
		return nil
	case StateClosed:
		return domain.ErrSessionClosed
	}
	return domain.ErrNotInProgress
}

func (s *Session) answeredLocked() int {
	n := 0
	for _, q := range s.def.Questions {
		if sel, ok := s.answers[q.ID]; ok && !sel.Empty() {
			n++
		}
	}
	return n
}

func (s *Session) unansweredLocked() int {
	return len(s.def.Questions) - s.answeredLocked()
}

// bind derives a context that is also cancelled when the session closes.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) broadcastLocked() {
	view := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			// drop the stale snapshot so a slow reader only sees the latest one
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (s *Session) snapshotLocked() View {
	view := View{
		QuizID:           s.quizID,
		Title:            s.def.Title,
		State:            s.state,
		QuestionIndex:    s.current,
		QuestionCount:    len(s.def.Questions),
		Answered:         s.answeredLocked(),
		Timed:            s.def.IsTimed,
		RemainingSeconds: s.remaining,
		Result:           s.result,
		CanRetake:        s.state == StateNotPassed && s.def.AllowRetake,
		Notice:           s.notice,
	}
	if s.current < len(s.def.Questions) {
		question := s.def.Questions[s.current]
		view.Question = &question
		if sel, ok := s.answers[question.ID]; ok {
			view.Selected = sel.OptionIDs()
		}
	}
	return view
}
