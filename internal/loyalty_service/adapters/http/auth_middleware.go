package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
	"github.com/rewardhub/loyalty_services/internal/platform/auth"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const PrincipalContextKey = ContextKey("principal")

// TokenValidator is satisfied by auth.TokenManager.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// AuthMiddleware resolves the bearer token into a domain.Principal on the request context.
func AuthMiddleware(tokens TokenValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	rs := &responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				rs.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Bearer token required"})
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				rs.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired token"})
				return
			}
			role := domain.Role(claims.Role)
			if !role.Valid() {
				logger.WarnContext(r.Context(), "Token carries unknown role", "user_id", claims.UserID, "role", claims.Role)
				rs.writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "Permission denied"})
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalContextKey, domain.Principal{UserID: claims.UserID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// principalFrom returns the authenticated caller. AuthMiddleware must run first.
func principalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(domain.Principal)
	return p, ok
}
