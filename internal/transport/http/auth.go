package http

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"lms-quiz/internal/auth"
)

type learnerKey struct{}

// LearnerID returns the authenticated learner stored by Authenticate.
func LearnerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(learnerKey{}).(string)
	return id, ok && id != ""
}

// Authenticate verifies the bearer token from the Authorization header, or from the
// token query parameter for browser websocket clients that cannot set headers.
func Authenticate(verifier *auth.Verifier, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if raw == "" {
			raw = r.URL.Query().Get("token")
		}
		claims, err := verifier.Verify(raw)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token expired"
			}
			logger.Debug("rejected request", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		ctx := context.WithValue(r.Context(), learnerKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
