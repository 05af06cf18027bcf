package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/utils"
)

type contextKey string

const userKey contextKey = "user"

// UserResolver maps verified claims to the internal user record.
type UserResolver interface {
	Resolve(ctx context.Context, claims models.Claims) (*models.User, error)
}

// Middleware verifies the bearer token and stores the resolved *models.User in
// the request context. Handlers never see raw tokens.
func Middleware(verifier Verifier, users UserResolver, cache *RedisUserCache, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Authorization required", err.Error()))
				return
			}

			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Invalid token", err.Error()))
				return
			}

			user, err := cache.Get(r.Context(), claims.Subject)
			if err != nil {
				log.Warn("AUTH", fmt.Sprintf("User cache read failed: %v", err))
			}
			if user == nil || (claims.Email != "" && claims.Email != user.Email) || (claims.Name != "" && claims.Name != user.Name) {
				user, err = users.Resolve(r.Context(), *claims)
				if err != nil {
					log.Error("AUTH", fmt.Sprintf("Failed to resolve user %s: %v", claims.Subject, err))
					utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unknown user", err.Error()))
					return
				}
				if err := cache.Set(r.Context(), user); err != nil {
					log.Warn("AUTH", fmt.Sprintf("User cache write failed: %v", err))
				}
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or nil outside Middleware.
func UserFromContext(ctx context.Context) *models.User {
	if u, ok := ctx.Value(userKey).(*models.User); ok {
		return u
	}
	return nil
}

// UserID is a convenience for handlers that only need the internal id.
func UserID(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}
