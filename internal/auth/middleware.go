package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	claimsKey  contextKey = "claims"
	actorIDKey contextKey = "actorID"
)

// expiryWarningWindow is how close to expiry a token gets the X-Token-Expires-* headers
const expiryWarningWindow = time.Hour

// ErrorResponse is the JSON error envelope used across the API
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ClaimsFromContext returns the verified claims, or nil outside AuthMiddleware
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// ActorIDFromContext returns the staff member acting on the request
func ActorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(actorIDKey).(string)
	return id
}

// WithActor returns a context carrying actorID and roles, as AuthMiddleware sets them
func WithActor(ctx context.Context, actorID string, roles []string) context.Context {
	claims := &Claims{Roles: roles}
	claims.Subject = actorID
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, actorIDKey, actorID)
}

func sendErrorResponse(w http.ResponseWriter, message, code string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// tokenError maps a parse failure to a client-facing message and code
func tokenError(err error) (string, string) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token has expired", "TOKEN_EXPIRED"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "Token is malformed", "MALFORMED_TOKEN"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "Invalid token signature", "INVALID_SIGNATURE"
	}
	return "Invalid or expired token", "INVALID_TOKEN"
}

// AuthMiddleware verifies the bearer token and puts the actor and roles on the context
func AuthMiddleware(jwtManager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				sendErrorResponse(w, "Authorization header required", "MISSING_AUTH_HEADER", http.StatusUnauthorized)
				return
			}
			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(tokenString) == "" {
				sendErrorResponse(w, "Expected: Bearer <token>", "INVALID_AUTH_FORMAT", http.StatusUnauthorized)
				return
			}

			claims, err := jwtManager.ValidateToken(strings.TrimSpace(tokenString))
			if err != nil {
				message, code := tokenError(err)
				sendErrorResponse(w, message, code, http.StatusUnauthorized)
				return
			}
			if claims.Subject == "" {
				sendErrorResponse(w, "Missing subject in token", "INVALID_SUBJECT", http.StatusUnauthorized)
				return
			}
			if len(claims.Roles) == 0 {
				sendErrorResponse(w, "No roles assigned to actor", "NO_ROLES", http.StatusUnauthorized)
				return
			}

			if claims.IsExpiringSoon(expiryWarningWindow) {
				w.Header().Set("X-Token-Expires-At", claims.ExpiresAt.Time.Format(time.RFC3339))
				w.Header().Set("X-Token-Expires-In", time.Until(claims.ExpiresAt.Time).Round(time.Second).String())
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, actorIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MustRole admits requests whose token carries any of roles
func MustRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				sendErrorResponse(w, "Authentication required", "AUTHENTICATION_REQUIRED", http.StatusUnauthorized)
				return
			}
			if !claims.HasRole(roles...) {
				sendErrorResponse(w, "Insufficient permissions", "INSUFFICIENT_PERMISSIONS", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
