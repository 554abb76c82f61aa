package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"carebridge-auth/internal/config"
	"carebridge-auth/internal/container"
	"carebridge-auth/internal/domain"
	"carebridge-auth/internal/middleware"
	"carebridge-auth/internal/repository"
	"carebridge-auth/internal/service/bootstrap"
	"carebridge-auth/internal/service/callback"
	"carebridge-auth/internal/service/mocks"
	"carebridge-auth/internal/service/rolesync"
	"carebridge-auth/pkg/logger"
)

func devConfig() *config.Config {
	return &config.Config{
		Environment:     config.EnvironmentDevelopment,
		SupabaseURL:     "https://project.supabase.co",
		SupabaseAnonKey: "anon-key",
		SupportEmail:    "support@carebridge.health",
		RelayTTL:        time.Minute,
	}
}

func newTestContainer(cfg *config.Config, backend *mocks.AuthBackend) *container.Container {
	log := logger.NewNop()
	relay := repository.NewMemoryRelayStore()
	guard := repository.NewMemoryExchangeGuard()
	roles := rolesync.NewPropagator(backend, time.Second, log)

	return &container.Container{
		Config:    cfg,
		Logger:    log,
		Backend:   backend,
		Relay:     relay,
		Guard:     guard,
		Recorder:  repository.NopRecorder{},
		Callback:  callback.NewRouter(cfg, backend, guard, nil, roles, log),
		Bootstrap: bootstrap.NewService(cfg, backend, relay, nil, roles, log),
	}
}

func newSession(role domain.Role, onboarded bool) *domain.Session {
	return &domain.Session{
		AccessToken:  "access-new",
		RefreshToken: "refresh-new",
		ExpiresIn:    3600,
		User: &domain.UserIdentity{
			ID:                  "u1",
			Email:               "u1@example.com",
			Role:                role,
			OnboardingCompleted: onboarded,
		},
	}
}

// jsonRequest is a same-origin POST as the sign-in pages send it
func jsonRequest(target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func errorQuery(t *testing.T, location string) string {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, callback.ErrorPagePath, u.Path)
	return u.Query().Get("error")
}

func TestCallback_CodeExchange(t *testing.T) {
	backend := &mocks.AuthBackend{}
	backend.On("ExchangeCodeForSession", mock.Anything, "abc123", "verifier").
		Return(newSession(domain.RoleCounselor, true), nil)
	h := NewCallbackHandler(newTestContainer(devConfig(), backend))

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc123&role=counselor", nil)
	req.AddCookie(&http.Cookie{Name: CodeVerifierCookie, Value: "verifier"})
	rec := httptest.NewRecorder()

	h.Callback(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://example.com/dashboard/counselor", rec.Header().Get("Location"))

	access := findCookie(rec, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "access-new", access.Value)
	assert.True(t, access.HttpOnly)
	assert.False(t, access.Secure)
	assert.Equal(t, 3600, access.MaxAge)

	refresh := findCookie(rec, middleware.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "refresh-new", refresh.Value)

	verifier := findCookie(rec, CodeVerifierCookie)
	require.NotNil(t, verifier)
	assert.Equal(t, -1, verifier.MaxAge)
	backend.AssertExpectations(t)
}

func TestCallback_NonRefreshableSessionClearsOldRefreshCookie(t *testing.T) {
	session := newSession(domain.RolePatient, true)
	session.RefreshToken = ""

	backend := &mocks.AuthBackend{}
	backend.On("ExchangeCodeForSession", mock.Anything, "abc123", "").Return(session, nil)
	h := NewCallbackHandler(newTestContainer(devConfig(), backend))

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc123", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: "previous-user-refresh"})
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	access := findCookie(rec, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "access-new", access.Value)

	refresh := findCookie(rec, middleware.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Empty(t, refresh.Value)
	assert.Equal(t, -1, refresh.MaxAge)
}

func TestSetSessionCookies_UsesTokenExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	session := newSession(domain.RolePatient, true)
	session.ExpiresAt = now.Unix() + 120

	rec := httptest.NewRecorder()
	setSessionCookies(rec, devConfig(), session, now)

	access := findCookie(rec, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, 120, access.MaxAge)

	refresh := findCookie(rec, middleware.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "refresh-new", refresh.Value)
}

func TestCallback_ProviderError(t *testing.T) {
	backend := &mocks.AuthBackend{}
	h := NewCallbackHandler(newTestContainer(devConfig(), backend))

	rec := httptest.NewRecorder()
	h.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied&error_description=User+denied", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "User denied", errorQuery(t, rec.Header().Get("Location")))
	assert.Nil(t, findCookie(rec, middleware.AccessTokenCookie))
	backend.AssertNotCalled(t, "ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestCallback_ProductionMissingBackend(t *testing.T) {
	cfg := &config.Config{Environment: config.EnvironmentProduction}
	h := NewCallbackHandler(newTestContainer(cfg, &mocks.AuthBackend{}))

	rec := httptest.NewRecorder()
	h.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc123", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	msg := errorQuery(t, rec.Header().Get("Location"))
	assert.Equal(t, callback.MsgUnavailable, msg)
	assert.NotContains(t, msg, "SUPABASE")
}

func TestCallback_ServesRelayPage(t *testing.T) {
	h := NewCallbackHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))

	rec := httptest.NewRecorder()
	h.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?role=counselor", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `"/dashboard/counselor"`)
	assert.Contains(t, rec.Body.String(), "carebridge.auth.relay")
}

func TestRelay_Stash(t *testing.T) {
	c := newTestContainer(devConfig(), &mocks.AuthBackend{})
	h := NewCallbackHandler(c)

	req := jsonRequest("/auth/relay?role=counselor&next=/dashboard/counselor/clients",
		strings.NewReader(`{"fragment":"access_token=at&refresh_token=rt"}`))
	rec := httptest.NewRecorder()

	h.Relay(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body RelayResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "/auth/loading?next=%2Fdashboard%2Fcounselor%2Fclients&role=counselor", body.Next)

	cookie := findCookie(rec, RelayIDCookie)
	require.NotNil(t, cookie)
	assert.Equal(t, "/auth", cookie.Path)
	assert.Equal(t, 60, cookie.MaxAge)
	_, err := uuid.Parse(cookie.Value)
	require.NoError(t, err)

	raw, found, err := c.Relay.Take(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "access_token=at&refresh_token=rt", raw)
}

func TestRelay_RejectsBadBodies(t *testing.T) {
	h := NewCallbackHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))

	for _, body := range []string{``, `{`, `{"fragment":""}`, `{"fragment":"foo=bar"}`} {
		rec := httptest.NewRecorder()
		h.Relay(rec, jsonRequest("/auth/relay", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Nil(t, findCookie(rec, RelayIDCookie), body)
	}
}

func TestRelay_DropsUnsafeNext(t *testing.T) {
	h := NewCallbackHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))

	rec := httptest.NewRecorder()
	h.Relay(rec, jsonRequest("/auth/relay?next=//evil.example&role=root",
		strings.NewReader(`{"fragment":"access_token=at"}`)))

	var body RelayResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, callback.LoadingPagePath, body.Next)
}

func postSession(h *SessionHandler, body string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, SessionResponse) {
	req := jsonRequest("/auth/session", strings.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.Session(rec, req)

	var resp SessionResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	return rec, resp
}

func TestSession_RelayThenBootstrap(t *testing.T) {
	backend := &mocks.AuthBackend{}
	backend.On("SetSession", mock.Anything, "at", "rt").Return(newSession(domain.RoleCounselor, true), nil).Once()
	c := newTestContainer(devConfig(), backend)

	relayRec := httptest.NewRecorder()
	NewCallbackHandler(c).Relay(relayRec, jsonRequest("/auth/relay?role=counselor",
		strings.NewReader(`{"fragment":"access_token=at&refresh_token=rt&token_type=bearer"}`)))
	relayCookie := findCookie(relayRec, RelayIDCookie)
	require.NotNil(t, relayCookie)

	h := NewSessionHandler(c)
	rec, resp := postSession(h, `{"fragment":"","role":"counselor","next":"/dashboard/counselor/clients"}`, relayCookie)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "redirect", resp.Status)
	assert.Equal(t, "/dashboard/counselor/clients", resp.Path)
	assert.Equal(t, domain.ReasonExplicitNext, resp.Reason)
	require.NotEmpty(t, resp.Progress)
	assert.Equal(t, 100, resp.Progress[len(resp.Progress)-1].Progress)

	access := findCookie(rec, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "access-new", access.Value)
	cleared := findCookie(rec, RelayIDCookie)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	// the stashed payload is gone after the first read
	_, resp = postSession(h, `{"fragment":""}`, relayCookie)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, bootstrap.MsgPayloadMissing, resp.Message)
	backend.AssertExpectations(t)
}

func TestSession_FragmentProviderError(t *testing.T) {
	backend := &mocks.AuthBackend{}
	h := NewSessionHandler(newTestContainer(devConfig(), backend))

	rec, resp := postSession(h, `{"fragment":"error=access_denied&error_description=User+denied"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "User denied", resp.Message)
	assert.Equal(t, "User denied", errorQuery(t, resp.ErrorURL))
	require.Len(t, resp.Actions, 2)
	assert.Equal(t, callback.SignInPath, resp.Actions[0].URL)
	assert.Equal(t, bootstrap.StateFailed, resp.Progress[len(resp.Progress)-1].State)
	assert.Nil(t, findCookie(rec, middleware.AccessTokenCookie))
	backend.AssertNotCalled(t, "SetSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestSession_RejectsCrossSiteRequests(t *testing.T) {
	backend := &mocks.AuthBackend{}
	h := NewSessionHandler(newTestContainer(devConfig(), backend))
	body := `{"fragment":"access_token=attacker-token"}`

	tests := []struct {
		name       string
		header     map[string]string
		wantStatus int
	}{
		{
			name: "text/plain form post",
			header: map[string]string{
				"Content-Type":   "text/plain",
				"Origin":         "https://evil.example",
				"Sec-Fetch-Site": "cross-site",
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "foreign origin with json",
			header:     map[string]string{"Content-Type": "application/json", "Origin": "https://evil.example"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "cross-site fetch metadata without origin",
			header:     map[string]string{"Content-Type": "application/json", "Sec-Fetch-Site": "cross-site"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "same origin form encoding",
			header:     map[string]string{"Content-Type": "text/plain;charset=UTF-8", "Origin": "http://example.com"},
			wantStatus: http.StatusUnsupportedMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(body))
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.Session(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Nil(t, findCookie(rec, middleware.AccessTokenCookie))
		})
	}
	backend.AssertNotCalled(t, "SetSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelay_RejectsForeignOrigin(t *testing.T) {
	h := NewCallbackHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))

	req := jsonRequest("/auth/relay", strings.NewReader(`{"fragment":"access_token=at"}`))
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.Relay(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, findCookie(rec, RelayIDCookie))
}

func TestVerifySameOrigin_TrustsConfiguredOrigins(t *testing.T) {
	cfg := devConfig()
	cfg.AllowedOrigins = []string{"http://localhost:3000"}
	prod := &config.Config{Environment: config.EnvironmentProduction, SiteURL: "https://care.example"}

	tests := []struct {
		name   string
		cfg    *config.Config
		origin string
		header map[string]string
		ok     bool
	}{
		{name: "no origin", cfg: cfg, ok: true},
		{name: "request origin", cfg: cfg, origin: "http://example.com", ok: true},
		{name: "allowed frontend", cfg: cfg, origin: "http://localhost:3000", ok: true},
		{name: "site url behind proxy", cfg: prod, origin: "https://care.example", ok: true},
		{
			name:   "forwarded host",
			cfg:    prod,
			origin: "https://portal.care.example",
			header: map[string]string{"X-Forwarded-Host": "portal.care.example", "X-Forwarded-Proto": "https"},
			ok:     true,
		},
		{name: "other site", cfg: prod, origin: "https://evil.example", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/session", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}

			appErr := verifySameOrigin(req, tt.cfg)
			if tt.ok {
				assert.Nil(t, appErr)
			} else {
				require.NotNil(t, appErr)
				assert.Equal(t, http.StatusForbidden, appErr.StatusCode)
			}
		})
	}
}

func TestSession_StorageUnavailable(t *testing.T) {
	h := NewSessionHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))

	_, resp := postSession(h, `{"fragment":"","storage_unavailable":true}`)

	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, bootstrap.MsgStorageUnavailable, resp.Message)
}

func TestSession_InvalidBody(t *testing.T) {
	h := NewSessionHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))

	rec, _ := postSession(h, `not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoading(t *testing.T) {
	h := NewSessionHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))

	rec := httptest.NewRecorder()
	h.Loading(rec, httptest.NewRequest(http.MethodGet, "/auth/loading?role=Counselor&next=//evil.example", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"counselor"`)
	assert.NotContains(t, body, "evil.example")
	assert.Contains(t, body, "mailto:support@carebridge.health")
}

func TestSignIn(t *testing.T) {
	backend := &mocks.AuthBackend{}
	var challenge string
	backend.On("AuthorizeURL", "google", "http://example.com/auth/callback?role=counselor", mock.Anything).
		Run(func(args mock.Arguments) { challenge = args.String(2) }).
		Return("https://project.supabase.co/auth/v1/authorize?provider=google")
	h := NewAuthHandler(newTestContainer(devConfig(), backend))

	rec := httptest.NewRecorder()
	h.SignIn(rec, httptest.NewRequest(http.MethodGet, "/auth/sign-in?role=counselor&next=https://evil.example", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://project.supabase.co/auth/v1/authorize?provider=google", rec.Header().Get("Location"))

	verifier := findCookie(rec, CodeVerifierCookie)
	require.NotNil(t, verifier)
	assert.Equal(t, "/auth", verifier.Path)
	assert.Equal(t, 600, verifier.MaxAge)
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(verifier.Value), challenge)
	backend.AssertExpectations(t)
}

func TestSignIn_Rejections(t *testing.T) {
	h := NewAuthHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))
	rec := httptest.NewRecorder()
	h.SignIn(rec, httptest.NewRequest(http.MethodGet, "/auth/sign-in?provider=myspace", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h = NewAuthHandler(newTestContainer(&config.Config{Environment: config.EnvironmentDevelopment}, &mocks.AuthBackend{}))
	rec = httptest.NewRecorder()
	h.SignIn(rec, httptest.NewRequest(http.MethodGet, "/auth/sign-in", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, errorQuery(t, rec.Header().Get("Location")), "SUPABASE_URL")
}

func TestSignOut(t *testing.T) {
	backend := &mocks.AuthBackend{}
	backend.On("SignOut", mock.Anything, "access-old").Return(assert.AnError)
	h := NewAuthHandler(newTestContainer(devConfig(), backend))

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: "access-old"})
	rec := httptest.NewRecorder()
	h.SignOut(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	for _, name := range []string{middleware.AccessTokenCookie, middleware.RefreshTokenCookie} {
		c := findCookie(rec, name)
		require.NotNil(t, c, name)
		assert.Equal(t, -1, c.MaxAge)
	}
	backend.AssertExpectations(t)
}

func TestGetProfile(t *testing.T) {
	h := NewAuthHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))
	user := &domain.UserIdentity{ID: "u1", Email: "u1@example.com", Role: domain.RolePatient}

	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, user))
	rec := httptest.NewRecorder()
	h.GetProfile(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UserProfileResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "u1", resp.User.ID)

	rec = httptest.NewRecorder()
	h.GetProfile(rec, httptest.NewRequest(http.MethodGet, "/api/user/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorPage(t *testing.T) {
	h := NewAuthHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "provider message", query: "?error=User+denied", want: "User denied"},
		{name: "no message", query: "", want: "An unexpected error occurred during sign-in."},
		{name: "escaped", query: "?error=%3Cscript%3E", want: "&lt;script&gt;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ErrorPage(rec, httptest.NewRequest(http.MethodGet, "/auth/auth-code-error"+tt.query, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Contains(t, rec.Body.String(), callback.SignInPath)
		})
	}
}

func TestSupport(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.Config
		wantCode int
		want     string
	}{
		{name: "mailbox configured", cfg: devConfig(), wantCode: http.StatusSeeOther, want: "mailto:support@carebridge.health"},
		{
			name:     "site url configured",
			cfg:      &config.Config{Environment: config.EnvironmentDevelopment, SiteURL: "https://carebridge.health"},
			wantCode: http.StatusSeeOther,
			want:     "https://carebridge.health/support",
		},
		{name: "nothing configured", cfg: &config.Config{Environment: config.EnvironmentDevelopment}, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(newTestContainer(tt.cfg, &mocks.AuthBackend{}))
			rec := httptest.NewRecorder()
			h.Support(rec, httptest.NewRequest(http.MethodGet, "/support", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.want != "" {
				assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), tt.want))
				return
			}
			assert.Contains(t, rec.Body.String(), "care team administrator")
			assert.Contains(t, rec.Body.String(), callback.SignInPath)
		})
	}
}

func TestTruncateMessage(t *testing.T) {
	long := strings.Repeat("é", maxErrorMessageLen+10)
	got := truncateMessage(long)
	assert.Equal(t, maxErrorMessageLen+3, len([]rune(got)))
	assert.Equal(t, "short", truncateMessage("short"))
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(newTestContainer(devConfig(), &mocks.AuthBackend{}))

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "disabled", resp.Dependencies["redis"])
	assert.Equal(t, "disabled", resp.Dependencies["database"])

	h = NewHealthHandler(newTestContainer(&config.Config{}, &mocks.AuthBackend{}))
	rec = httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestHealth_WithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := devConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	c, err := container.New(cfg, logger.NewNop())
	require.NoError(t, err)
	defer c.Close()

	h := NewHealthHandler(c)
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Dependencies["redis"])
}
