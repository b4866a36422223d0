package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lms-quiz/internal/auth"
	"lms-quiz/internal/client"
	"lms-quiz/internal/config"
	"lms-quiz/internal/player"
)

var errQuit = errors.New("quit")

// NewTakeCmd runs a quiz in the terminal against a remote learner API.
func NewTakeCmd(configPath *string) *cobra.Command {
	var (
		quizID   string
		lessonID string
		baseURL  string
		rawToken string
	)
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take a quiz interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if quizID == "" {
				return fmt.Errorf("--quiz is required")
			}
			if baseURL == "" {
				baseURL = cfg.Player.BaseURL
			}
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}
			if rawToken == "" {
				rawToken = cfg.Player.Token
			}
			if rawToken == "" {
				rawToken = os.Getenv("LMS_TOKEN")
			}
			token, err := auth.ParseToken(rawToken, time.Now())
			if err != nil {
				return fmt.Errorf("learner token: %w", err)
			}

			api := client.New(baseURL, token, client.Options{
				Timeout: config.Duration(cfg.Player.Timeout, 15*time.Second),
				Logger:  logger,
			})
			out := &printer{w: cmd.OutOrStdout()}
			session := player.NewSession(quizID, player.Config{
				Catalog:    api,
				Grader:     api,
				OnComplete: lessonCompleter(api, lessonID, out, logger),
				Logger:     logger,
			})
			view, err := runPlayer(cmd.Context(), session, cmd.InOrStdin(), out)
			if err != nil {
				return err
			}
			if view.State == player.StateFailed {
				return fmt.Errorf("quiz %s unavailable", quizID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	cmd.Flags().StringVar(&lessonID, "lesson", "", "lesson to mark complete when the quiz is passed")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "learner API base URL (overrides player.base_url)")
	cmd.Flags().StringVar(&rawToken, "token", "", "bearer token (defaults to player.token, then LMS_TOKEN)")
	return cmd
}

func lessonCompleter(api *client.Client, lessonID string, out io.Writer, logger *zap.Logger) func(int) {
	return func(score int) {
		if lessonID == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := api.CompleteLesson(ctx, lessonID, score); err != nil {
			logger.Error("lesson completion failed", zap.String("lesson_id", lessonID), zap.Error(err))
			return
		}
		fmt.Fprintf(out, "Lesson %s marked complete.\n", lessonID)
	}
}

// printer serializes writes from the render loop and the command loop.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.Write(b)
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p, format, args...)
}

// runPlayer drives session from line commands on in and renders every change to out. It
// returns the final view once the attempt is over, the input ends or the learner quits.
func runPlayer(ctx context.Context, session *player.Session, in io.Reader, out io.Writer) (player.View, error) {
	p, ok := out.(*printer)
	if !ok {
		p = &printer{w: out}
	}
	updates, cancel := session.Subscribe()
	finished := make(chan struct{})
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderLoop(p, updates, finished)
	}()
	defer func() {
		cancel()
		<-rendered
		session.Close()
	}()

	if err := session.Start(ctx); err != nil {
		return session.View(), err
	}
	p.printf("%s\n", helpText)

	stop := make(chan struct{})
	defer close(stop)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-stop:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return session.View(), ctx.Err()
		case <-finished:
			return session.View(), nil
		case line, ok := <-lines:
			if !ok {
				return session.View(), nil
			}
			if err := dispatch(ctx, session, line, p); err != nil {
				if errors.Is(err, errQuit) {
					return session.View(), nil
				}
				p.printf("! %v\n", err)
			}
		}
	}
}

const helpText = `Commands: <n> pick option n, next (n), prev (p), go <n>, submit (s), retake (r), quit (q)`

func dispatch(ctx context.Context, session *player.Session, line string, p *printer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "n", "next":
		return session.Next()
	case "p", "prev", "previous":
		return session.Previous()
	case "g", "go":
		if len(fields) != 2 {
			return fmt.Errorf("usage: go <question number>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("usage: go <question number>")
		}
		return session.Jump(n - 1)
	case "s", "submit":
		_, err := session.Submit(ctx)
		return err
	case "r", "retake":
		return session.Retake()
	case "q", "quit":
		return errQuit
	case "?", "h", "help":
		p.printf("%s\n", helpText)
		return nil
	default:
		n, err := strconv.Atoi(cmd)
		if err != nil {
			return fmt.Errorf("unknown command %q", cmd)
		}
		view := session.View()
		if view.Question == nil || n < 1 || n > len(view.Question.Options) {
			return fmt.Errorf("no option %d", n)
		}
		return session.Select(view.Question.Options[n-1].ID)
	}
}

func renderLoop(p *printer, updates <-chan player.View, finished chan<- struct{}) {
	var last *player.View
	done := false
	for view := range updates {
		if last == nil || changed(*last, view) {
			render(p, view)
		} else if view.Timed && last.RemainingSeconds != view.RemainingSeconds && timeWarning(view.RemainingSeconds) {
			p.printf("  %s left\n", view.Clock())
		}
		v := view
		last = &v
		if !done && over(view) {
			done = true
			close(finished)
		}
	}
}

func timeWarning(seconds int) bool {
	return seconds == 60 || seconds == 30 || seconds == 10
}

// over reports whether nothing more can happen in the attempt.
func over(v player.View) bool {
	switch v.State {
	case player.StateCompleted, player.StateFailed, player.StateClosed:
		return true
	case player.StateNotPassed:
		return !v.CanRetake
	}
	return false
}

func changed(a, b player.View) bool {
	return a.State != b.State ||
		a.QuestionIndex != b.QuestionIndex ||
		a.Notice != b.Notice ||
		a.Result != b.Result ||
		!slices.Equal(a.Selected, b.Selected)
}

func render(p *printer, v player.View) {
	var b strings.Builder
	switch v.State {
	case player.StateLoading:
		b.WriteString("Loading quiz...\n")
	case player.StateFailed:
		fmt.Fprintf(&b, "Quiz unavailable.\n")
	case player.StateSubmitting:
		b.WriteString("Submitting...\n")
	case player.StateInProgress:
		fmt.Fprintf(&b, "\n== %s == question %d/%d, answered %d", v.Title, v.QuestionIndex+1, v.QuestionCount, v.Answered)
		if v.Timed {
			fmt.Fprintf(&b, ", %s left", v.Clock())
		}
		b.WriteString("\n")
		if q := v.Question; q != nil {
			fmt.Fprintf(&b, "%s\n", q.Text)
			for i, opt := range q.Options {
				mark := " "
				if slices.Contains(v.Selected, opt.ID) {
					mark = "x"
				}
				fmt.Fprintf(&b, "  [%s] %d) %s\n", mark, i+1, opt.Text)
			}
		}
		if v.Notice != "" {
			fmt.Fprintf(&b, "! %s\n", v.Notice)
		}
	case player.StateCompleted, player.StateNotPassed:
		renderResult(&b, v)
	}
	p.printf("%s", b.String())
}

func renderResult(b *strings.Builder, v player.View) {
	r := v.Result
	if r == nil {
		return
	}
	if r.Passed {
		fmt.Fprintf(b, "Passed with %d%% (%d/%d points).\n", r.Score, r.EarnedPoints, r.TotalPoints)
	} else {
		fmt.Fprintf(b, "Not passed: %d%%, %d%% needed.\n", r.Score, r.PassingScore)
	}
	for i, qr := range r.QuestionResults {
		verdict := "wrong"
		if qr.IsCorrect {
			verdict = "correct"
		}
		fmt.Fprintf(b, "  %d. %s", i+1, verdict)
		if qr.Explanation != "" {
			fmt.Fprintf(b, " - %s", qr.Explanation)
		}
		b.WriteString("\n")
	}
	if v.CanRetake {
		b.WriteString("Type r to retake the quiz.\n")
	}
}
