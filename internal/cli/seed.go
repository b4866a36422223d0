package cli

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lms-quiz/internal/config"
	"lms-quiz/internal/infra/postgres"
	redisinfra "lms-quiz/internal/infra/redis"
)

// NewSeedCmd loads quiz definitions from YAML into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert quiz definitions from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if file == "" {
				file = cfg.Server.QuizFile
			}
			if file == "" {
				return fmt.Errorf("no quiz file given (--file or server.quiz_file)")
			}
			quizzes, err := config.LoadQuizzes(file)
			if err != nil {
				return err
			}

			db, err := openBunDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			if err := migrateDB(ctx, db, logger); err != nil {
				return err
			}
			if err := postgres.NewQuizWriter(db).Upsert(ctx, quizzes...); err != nil {
				return err
			}

			// Cached copies would keep serving the old content until their TTL ran out.
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
				defer client.Close()
				cache := redisinfra.NewQuizRepository(client, nil, config.Duration(cfg.Quiz.TTL, 10*time.Minute), logger)
				for _, quiz := range quizzes {
					if err := cache.Invalidate(ctx, quiz.ID); err != nil {
						logger.Warn("cache invalidation failed", zap.String("quiz_id", quiz.ID), zap.Error(err))
					}
				}
			}
			logger.Info("quizzes seeded", zap.Int("count", len(quizzes)), zap.String("file", file))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d quizzes\n", len(quizzes))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML file with a top-level quizzes list")
	return cmd
}
