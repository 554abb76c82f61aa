package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"carebridge-auth/internal/config"
	"carebridge-auth/internal/domain"
	"carebridge-auth/internal/service"
	"carebridge-auth/pkg/errors"
	"carebridge-auth/pkg/logger"
)

// Service authenticates API callers from a session cookie or bearer token
type Service struct {
	backend   service.AuthBackend
	jwtSecret string
	logger    *logger.Logger
	now       func() time.Time
}

// NewService creates a new auth service
func NewService(cfg *config.Config, backend service.AuthBackend, logger *logger.Logger) *Service {
	return &Service{
		backend:   backend,
		jwtSecret: cfg.SupabaseJWTSecret,
		logger:    logger.Named("auth"),
		now:       time.Now,
	}
}

// Authenticate resolves the user behind an access token. With a JWT secret configured the
// token is verified locally; otherwise the auth backend is asked, which also refreshes an
// expired token when a refresh token is given.
func (s *Service) Authenticate(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error) {
	if !isJWTToken(accessToken) {
		s.logger.Debug("Unrecognized token format")
		return nil, errors.NewAuthenticationError("Unrecognized token format")
	}

	if s.jwtSecret != "" {
		session, err := s.validateSupabaseJWT(accessToken)
		if err == nil || refreshToken == "" {
			return session, err
		}
		// expired but refreshable, let the backend decide
	}

	session, err := s.backend.GetSession(ctx, accessToken, refreshToken)
	if err != nil {
		s.logger.WithError(err).Warn("Auth backend session lookup failed")
		return nil, errors.NewAuthenticationError("Failed to validate token")
	}
	if !session.Valid() {
		return nil, errors.NewAuthenticationError("Invalid or expired token")
	}

	s.logger.WithField("user_id", session.User.ID).Debug("Token validated by auth backend")
	return session, nil
}

// validateSupabaseJWT validates a Supabase JWT with signature verification
func (s *Service) validateSupabaseJWT(tokenString string) (*domain.Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		s.logger.WithError(err).Debug("Failed to parse/validate JWT token")
		return nil, errors.NewAuthenticationError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}

	sub := getStringValue(claims, "sub")
	if sub == "" {
		s.logger.Warn("No user identifier found in JWT token")
		return nil, errors.NewAuthenticationError("Invalid JWT token: no user identifier")
	}

	var meta domain.UserMetadata
	if userMeta, ok := claims["user_metadata"].(map[string]interface{}); ok {
		meta = userMeta
	}

	now := s.now()
	var confirmedAt *time.Time
	if getBoolValue(meta, "email_verified") {
		confirmedAt = &now
	}

	exp := getInt64Value(claims, "exp")
	session := &domain.Session{
		AccessToken: tokenString,
		TokenType:   "bearer",
		ExpiresAt:   exp,
		ExpiresIn:   exp - now.Unix(),
		User:        domain.NewUserIdentity(sub, getStringValue(claims, "email"), meta, confirmedAt, nil, nil, now),
	}

	s.logger.WithField("user_id", sub).Debug("Supabase JWT token validated successfully")
	return session, nil
}

func isJWTToken(token string) bool {
	// JWT tokens have exactly 3 non-empty segments separated by dots
	if token == "" {
		return false
	}

	dotCount := 0
	for i, char := range token {
		if char == '.' {
			if i == 0 || i == len(token)-1 || token[i-1] == '.' {
				return false
			}
			dotCount++
		}
	}
	return dotCount == 2
}

// Helper functions to safely extract values from claim maps
func getStringValue(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

func getBoolValue(m map[string]interface{}, key string) bool {
	if val, ok := m[key].(bool); ok {
		return val
	}
	return false
}

func getInt64Value(m map[string]interface{}, key string) int64 {
	if val, ok := m[key].(float64); ok {
		return int64(val)
	}
	return 0
}
