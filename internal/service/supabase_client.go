package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"carebridge-auth/internal/config"
	"carebridge-auth/internal/domain"
	"carebridge-auth/pkg/logger"
)

// ErrEmptySession is returned when the backend answers without a session or without a user
var ErrEmptySession = errors.New("auth backend returned no session")

var errSessionExpired = errors.New("access token expired and no refresh token was provided")

// BackendError is a non-2xx answer from the auth backend
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth backend returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("auth backend returned status %d: %s", e.StatusCode, e.Message)
}

// Unauthorized reports whether the backend rejected the presented credentials
func (e *BackendError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// BackendMessage returns the backend's own message for err, or ""
func BackendMessage(err error) string {
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Message
	}
	return ""
}

// tokenResponse is the GoTrue /token answer
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

// userResponse is the GoTrue user object
type userResponse struct {
	ID               string              `json:"id"`
	Email            string              `json:"email"`
	EmailConfirmedAt *time.Time          `json:"email_confirmed_at"`
	ConfirmedAt      *time.Time          `json:"confirmed_at"`
	UserMetadata     domain.UserMetadata `json:"user_metadata"`
	CreatedAt        *time.Time          `json:"created_at"`
	UpdatedAt        *time.Time          `json:"updated_at"`
}

// errorResponse covers the error envelopes GoTrue has used across versions
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// SupabaseClient talks to the Supabase Auth (GoTrue) REST API
type SupabaseClient struct {
	baseURL    string
	anonKey    string
	jwtSecret  string
	httpClient *http.Client
	logger     *logger.Logger
	now        func() time.Time
}

// NewSupabaseClient creates a new Supabase auth client
func NewSupabaseClient(cfg *config.Config, logger *logger.Logger) *SupabaseClient {
	timeout := cfg.BackendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SupabaseClient{
		baseURL:   strings.TrimRight(cfg.SupabaseURL, "/") + "/auth/v1",
		anonKey:   cfg.SupabaseAnonKey,
		jwtSecret: cfg.SupabaseJWTSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("supabase"),
		now:    time.Now,
	}
}

// GetSession validates stored tokens. A rejected or missing token yields a nil session, not an error.
func (s *SupabaseClient) GetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error) {
	if accessToken == "" {
		return nil, nil
	}

	if s.jwtSecret != "" && !s.signatureValid(accessToken) {
		s.logger.Debug("Stored access token failed signature check")
		return nil, nil
	}

	session, err := s.SetSession(ctx, accessToken, refreshToken)
	if err != nil {
		var backendErr *BackendError
		if errors.As(err, &backendErr) && (backendErr.Unauthorized() || backendErr.StatusCode == http.StatusBadRequest) {
			return nil, nil
		}
		if errors.Is(err, errSessionExpired) {
			return nil, nil
		}
		return nil, err
	}

	return session, nil
}

// ExchangeCodeForSession calls the PKCE token grant
func (s *SupabaseClient) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*domain.Session, error) {
	body := map[string]string{
		"auth_code":     code,
		"code_verifier": codeVerifier,
	}

	var resp tokenResponse
	if err := s.do(ctx, http.MethodPost, "/token?grant_type=pkce", s.anonKey, body, &resp); err != nil {
		return nil, err
	}

	return s.sessionFromToken(&resp)
}

// SetSession establishes a session from raw tokens. An expired access token is refreshed when possible.
func (s *SupabaseClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Session, error) {
	if accessToken == "" {
		return nil, ErrEmptySession
	}

	now := s.now()
	session := &domain.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    tokenExpiry(accessToken),
	}

	if session.Expired(now) {
		if refreshToken == "" {
			return nil, errSessionExpired
		}
		return s.refresh(ctx, refreshToken)
	}

	var user userResponse
	if err := s.do(ctx, http.MethodGet, "/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, ErrEmptySession
	}

	session.User = s.identity(&user)
	if session.ExpiresAt > 0 {
		session.ExpiresIn = session.ExpiresAt - now.Unix()
	}

	return session, nil
}

// UpdateUser merges data into user_metadata
func (s *SupabaseClient) UpdateUser(ctx context.Context, accessToken string, data map[string]interface{}) (*domain.UserIdentity, error) {
	body := map[string]interface{}{"data": data}

	var user userResponse
	if err := s.do(ctx, http.MethodPut, "/user", accessToken, body, &user); err != nil {
		return nil, err
	}

	return s.identity(&user), nil
}

// SignOut revokes the session server-side
func (s *SupabaseClient) SignOut(ctx context.Context, accessToken string) error {
	return s.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// AuthorizeURL returns the consent URL for provider with an S256 code challenge
func (s *SupabaseClient) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	params := url.Values{
		"provider":    {provider},
		"redirect_to": {redirectTo},
	}
	if codeChallenge != "" {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", "s256")
	}
	return fmt.Sprintf("%s/authorize?%s", s.baseURL, params.Encode())
}

func (s *SupabaseClient) refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var resp tokenResponse
	if err := s.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", s.anonKey, body, &resp); err != nil {
		return nil, err
	}

	return s.sessionFromToken(&resp)
}

func (s *SupabaseClient) sessionFromToken(resp *tokenResponse) (*domain.Session, error) {
	if resp.AccessToken == "" || resp.User == nil || resp.User.ID == "" {
		return nil, ErrEmptySession
	}

	now := s.now()
	session := &domain.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
		ExpiresAt:    resp.ExpiresAt,
		User:         s.identity(resp.User),
	}

	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = now.Unix() + session.ExpiresIn
	}
	if session.ExpiresAt == 0 {
		session.ExpiresAt = tokenExpiry(resp.AccessToken)
	}
	if session.ExpiresIn == 0 && session.ExpiresAt > 0 {
		session.ExpiresIn = session.ExpiresAt - now.Unix()
	}

	return session, nil
}

func (s *SupabaseClient) identity(user *userResponse) *domain.UserIdentity {
	confirmed := user.EmailConfirmedAt
	if confirmed == nil {
		confirmed = user.ConfirmedAt
	}
	return domain.NewUserIdentity(user.ID, user.Email, user.UserMetadata, confirmed, user.CreatedAt, user.UpdatedAt, s.now())
}

// do sends one request. bearer is the anon key for public grants or the user's access token.
func (s *SupabaseClient) do(ctx context.Context, method, path, bearer string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := s.now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call auth backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"method":      method,
		"path":        strings.SplitN(path, "?", 2)[0],
		"status_code": resp.StatusCode,
		"duration_ms": s.now().Sub(start).Milliseconds(),
	}).Debug("Auth backend call finished")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseBackendError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		s.logger.WithField("status_code", resp.StatusCode).Error("Failed to parse auth backend response")
		return fmt.Errorf("failed to parse auth backend response: %w", err)
	}

	return nil
}

func parseBackendError(status int, body []byte) *BackendError {
	backendErr := &BackendError{StatusCode: status}

	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err == nil {
		backendErr.Code = envelope.ErrorCode
		if backendErr.Code == "" {
			backendErr.Code = envelope.Error
		}
		for _, msg := range []string{envelope.ErrorDescription, envelope.Msg, envelope.Message, envelope.Error} {
			if msg != "" {
				backendErr.Message = msg
				break
			}
		}
	}

	if backendErr.Message == "" {
		backendErr.Message = http.StatusText(status)
	}

	return backendErr
}

// tokenExpiry reads the exp claim without verifying the signature; 0 when absent
func tokenExpiry(accessToken string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Unix()
}

// signatureValid checks the HS256 signature only; expiry is handled by SetSession
func (s *SupabaseClient) signatureValid(accessToken string) bool {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.Parse(accessToken, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	return err == nil
}
