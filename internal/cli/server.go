package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lms-quiz/internal/app"
	"lms-quiz/internal/auth"
	"lms-quiz/internal/config"
	"lms-quiz/internal/domain"
	"lms-quiz/internal/infra/memory"
	pgloader "lms-quiz/internal/infra/postgres"
	redisinfra "lms-quiz/internal/infra/redis"
	transport "lms-quiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string, envPort string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the learner quiz API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", envPort, "port to listen on (overrides server.port)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	secret := jwtSecret(cfg.Server.JWTSecret)
	if secret == "" {
		return fmt.Errorf("server.jwt_secret not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, err := quizLoader(cfg, pool)
	if err != nil {
		return err
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var progress app.ProgressRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL, logger)
		progress = redisinfra.NewProgressStore(redisClient, config.Duration(cfg.Redis.TTL, 30*24*time.Hour))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		progress = memory.NewProgressStore()
	}
	service := app.NewQuizService(quizRepo, progress, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	router := transport.NewRouter(transport.RouterConfig{
		Service:  service,
		Verifier: auth.NewVerifier(secret),
		Limiter:  transport.NewSubmissionLimiter(cfg.RateLimit.Submissions, config.Duration(cfg.RateLimit.Window, time.Minute)),
		Registry: registry,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket player connections stay open for the whole attempt.
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// quizLoader picks the quiz source: Postgres when configured, then a YAML file, then the
// built-in sample quizzes.
func quizLoader(cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, error) {
	if pool != nil {
		return pgloader.NewQuizLoader(pool), nil
	}
	if cfg.Server.QuizFile != "" {
		quizzes, err := config.LoadQuizzes(cfg.Server.QuizFile)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]domain.QuizDefinition, len(quizzes))
		for _, quiz := range quizzes {
			byID[quiz.ID] = quiz
		}
		return memory.NewStaticQuizLoader(byID), nil
	}
	return memory.NewStaticQuizLoader(sampleQuizzes()), nil
}

// sampleQuizzes keeps a fresh checkout usable without a database.
func sampleQuizzes() map[string]domain.QuizDefinition {
	return map[string]domain.QuizDefinition{
		"quiz-1": {
			ID:           "quiz-1",
			Title:        "Warm-up",
			Description:  "Two quick questions.",
			IsTimed:      true,
			TimeLimit:    2,
			PassingScore: 50,
			AllowRetake:  true,
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
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:     "q2",
					Text:   "Which of these are prime?",
					Type:   domain.MultipleChoice,
					Points: 2,
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "7", Correct: true},
					},
				},
			},
		},
	}
}
