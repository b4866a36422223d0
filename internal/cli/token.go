package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lms-quiz/internal/auth"
)

// NewTokenCmd mints a development bearer token signed with the server secret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development learner token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			secret := jwtSecret(cfg.Server.JWTSecret)
			if secret == "" {
				return fmt.Errorf("server.jwt_secret not configured")
			}
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			raw, err := auth.NewVerifier(secret).Issue(subject, role, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "learner id the token is issued to")
	cmd.Flags().StringVar(&role, "role", "learner", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// jwtSecret prefers the configured secret and falls back to JWT_SECRET.
func jwtSecret(configured string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv("JWT_SECRET")
}
