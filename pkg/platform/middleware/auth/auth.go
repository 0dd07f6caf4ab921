package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"veritrail/internal/platform/token"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*token.Claims, error)
}

type contextKeyCallerID struct{}

// ContextKeyCallerID is exported for use in handlers.
var ContextKeyCallerID = contextKeyCallerID{}

// GetCallerID retrieves the authenticated caller ID from the context.
func GetCallerID(ctx context.Context) string {
	callerID, ok := ctx.Value(ContextKeyCallerID).(string)
	if !ok {
		return ""
	}
	return callerID
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			after, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				logger.WarnContext(r.Context(), "unauthorized access - missing token")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(after)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token", "error", err)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyCallerID, claims.CallerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
