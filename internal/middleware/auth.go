package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"carebridge-auth/internal/domain"
	"carebridge-auth/internal/service"
	"carebridge-auth/pkg/errors"
	"carebridge-auth/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// UserContextKey is the key for user information in context
	UserContextKey ContextKey = "user"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// Session cookies written after a successful sign-in
const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
)

// RequestIDHeader carries the request ID in and out
const RequestIDHeader = "X-Request-ID"

// Auth creates an authentication middleware. The access token comes from the
// Authorization header, else from the session cookie.
func Auth(authService service.AuthService, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessToken, refreshToken, appErr := credentials(r)
			if appErr != nil {
				writeErrorResponse(w, r, appErr, logger)
				return
			}

			ctx := r.Context()
			session, err := authService.Authenticate(ctx, accessToken, refreshToken)
			if err != nil {
				logger.WithError(err).Debug("Token validation failed")
				writeErrorResponse(w, r, errors.NewAuthenticationError("Invalid or expired token"), logger)
				return
			}

			ctx = context.WithValue(ctx, UserContextKey, session.User)
			r = r.WithContext(ctx)

			logger.WithField("user_id", session.User.ID).Debug("User authenticated successfully")

			next.ServeHTTP(w, r)
		})
	}
}

// credentials extracts the tokens, preferring the Authorization header
func credentials(r *http.Request) (string, string, *errors.AppError) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "", errors.NewAuthenticationError("Invalid authorization header format")
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return "", "", errors.NewAuthenticationError("Token is required")
		}
		return token, "", nil
	}

	access, err := r.Cookie(AccessTokenCookie)
	if err != nil || access.Value == "" {
		return "", "", errors.NewAuthenticationError("Authorization header is required")
	}

	refresh := ""
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		refresh = c.Value
	}

	return access.Value, refresh, nil
}

// UserFromContext returns the authenticated user set by Auth
func UserFromContext(ctx context.Context) (*domain.UserIdentity, bool) {
	user, ok := ctx.Value(UserContextKey).(*domain.UserIdentity)
	return user, ok && user != nil
}

// RequestID creates a middleware that adds a unique request ID to each request.
// A well-formed incoming ID from the load balancer is kept.
func RequestID(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			r = r.WithContext(ctx)

			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDFromContext returns the request ID, or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	logger.WithError(appErr).Debug("Request error")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = RequestIDFromContext(r.Context())
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(err).Error("Failed to encode error response")
	}
}
