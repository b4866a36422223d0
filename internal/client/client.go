package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"lms-quiz/internal/auth"
	"lms-quiz/internal/domain"
)

// StatusError is returned for non-2xx responses from the learner API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("learner api: status %d", e.Code)
	}
	return fmt.Sprintf("learner api: status %d: %s", e.Code, e.Message)
}

// Options tunes the client. Zero values pick sensible defaults.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

// Client talks to the learner quiz API on behalf of one learner. It implements
// player.Catalog and player.Grader.
type Client struct {
	baseURL string
	token   auth.Token
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a client authenticated with token. The token is never refreshed.
func New(baseURL string, token auth.Token, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		logger:  logger,
		now:     now,
	}
}

// GetQuiz fetches the learner-facing quiz definition.
func (c *Client) GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error) {
	var quiz domain.QuizDefinition
	if err := c.do(ctx, http.MethodGet, "/api/learner/quizzes/"+url.PathEscape(quizID), nil, &quiz); err != nil {
		return domain.QuizDefinition{}, fmt.Errorf("get quiz %s: %w", quizID, err)
	}
	return quiz, nil
}

// Submit sends answers for grading. It is called once per attempt and never retried here.
func (c *Client) Submit(ctx context.Context, quizID string, submission domain.Submission) (domain.SubmissionResult, error) {
	var result domain.SubmissionResult
	path := "/api/learner/quizzes/" + url.PathEscape(quizID) + "/submit"
	if err := c.do(ctx, http.MethodPost, path, submission, &result); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("submit quiz %s: %w", quizID, err)
	}
	return result, nil
}

type lessonCompletion struct {
	Score int `json:"score"`
}

// CompleteLesson marks the enclosing lesson complete with the passing score.
func (c *Client) CompleteLesson(ctx context.Context, lessonID string, score int) error {
	path := "/api/learner/lessons/" + url.PathEscape(lessonID) + "/complete"
	if err := c.do(ctx, http.MethodPost, path, lessonCompletion{Score: score}, nil); err != nil {
		return fmt.Errorf("complete lesson %s: %w", lessonID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.token.Expired(c.now()) {
		return auth.ErrTokenExpired
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token.Raw)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("learner api request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("learner api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
