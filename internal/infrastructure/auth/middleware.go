package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/redis"
)

type contextKey string

const userIDKey = contextKey("user_id")

type TokenParser interface {
	Parse(token string) (string, error)
}

// AuthMiddleware accepts a bearer token only when it verifies and is still the
// session stored in Redis for its user.
func AuthMiddleware(tokens TokenParser, redisClient redis.RedisClient) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header missing")
				return
			}

			tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenStr == "" {
				unauthorized(w, "invalid authorization header")
				return
			}

			userID, err := tokens.Parse(tokenStr)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			storedToken, err := redisClient.Get(r.Context(), redis.SessionKey(userID))
			if err != nil || storedToken != tokenStr {
				slog.Warn("invalid or revoked token", "user_id", userID, "error", err)
				unauthorized(w, "invalid or revoked token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
