package handler

import (
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"carebridge-auth/internal/container"
	"carebridge-auth/internal/domain"
	"carebridge-auth/internal/middleware"
	"carebridge-auth/internal/navigation"
	"carebridge-auth/internal/service/callback"
	"carebridge-auth/internal/web"
	"carebridge-auth/pkg/errors"
)

// Providers the portal offers on its sign-in page
var supportedProviders = map[string]bool{
	"google": true,
	"azure":  true,
	"apple":  true,
}

const (
	defaultProvider = "google"
	// maxErrorMessageLen bounds what the error page echoes back from its query
	maxErrorMessageLen = 300
)

// AuthHandler handles authentication related requests
type AuthHandler struct {
	container *container.Container
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(container *container.Container) *AuthHandler {
	return &AuthHandler{
		container: container,
	}
}

// SignIn handles GET /auth/sign-in. It starts the PKCE flow and sends the browser to the provider.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	cfg := h.container.GetConfig()
	log := h.container.GetLogger().WithField("request_id", middleware.RequestIDFromContext(r.Context()))
	q := r.URL.Query()

	if !cfg.BackendConfigured() {
		log.WithField("missing", cfg.MissingBackendVars()).Error("Auth backend is not configured")
		http.Redirect(w, r, callback.ErrorURL(requestOrigin(r), callback.ConfigurationMessage(cfg)), http.StatusFound)
		return
	}

	provider := strings.ToLower(strings.TrimSpace(q.Get("provider")))
	if provider == "" {
		provider = defaultProvider
	}
	if !supportedProviders[provider] {
		writeErrorResponse(w, r, errors.NewValidationError("Unsupported sign-in provider", map[string]interface{}{
			"provider": provider,
		}), log)
		return
	}

	forward := url.Values{}
	if role := knownRole(q.Get("role")); role != "" {
		forward.Set("role", role)
	}
	if next := q.Get("next"); navigation.IsSafePath(next) {
		forward.Set("next", next)
	}
	redirectTo := callback.BaseURL(cfg, callback.Request{
		Origin:         requestOrigin(r),
		ForwardedHost:  r.Header.Get("X-Forwarded-Host"),
		ForwardedProto: r.Header.Get("X-Forwarded-Proto"),
	}) + callback.CallbackPath
	if len(forward) > 0 {
		redirectTo += "?" + forward.Encode()
	}

	verifier := oauth2.GenerateVerifier()
	http.SetCookie(w, newCookie(cfg, CodeVerifierCookie, verifier, authCookiePath, codeVerifierMaxAge))

	log.WithField("provider", provider).Info("Starting sign-in")
	http.Redirect(w, r, h.container.Backend.AuthorizeURL(provider, redirectTo, oauth2.S256ChallengeFromVerifier(verifier)), http.StatusFound)
}

// SignOut handles POST /auth/sign-out
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	cfg := h.container.GetConfig()
	log := h.container.GetLogger().WithField("request_id", middleware.RequestIDFromContext(r.Context()))

	if appErr := verifySameOrigin(r, cfg); appErr != nil {
		writeErrorResponse(w, r, appErr, log)
		return
	}

	if token := cookieValue(r, middleware.AccessTokenCookie); token != "" && cfg.BackendConfigured() {
		if err := h.container.Backend.SignOut(r.Context(), token); err != nil {
			log.WithError(errors.NewAdvisoryError("failed to revoke session", err)).Warn("Sign-out revocation failed")
		}
	}

	clearSessionCookies(w, cfg)
	w.WriteHeader(http.StatusNoContent)
}

// UserProfileResponse represents the user profile response
type UserProfileResponse struct {
	User    *domain.UserIdentity `json:"user"`
	Success bool                 `json:"success"`
	Message string               `json:"message"`
}

// GetProfile handles GET /api/user/profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	// Get user from context (set by auth middleware)
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		logger.Error("User not found in context")
		writeErrorResponse(w, r, errors.NewAuthenticationError("User not authenticated"), logger)
		return
	}

	logger.WithField("user_id", user.ID).Debug("Getting user profile")

	writeJSON(w, http.StatusOK, UserProfileResponse{
		User:    user,
		Success: true,
		Message: "User profile retrieved successfully",
	}, logger)
}

// ErrorPage handles GET /auth/auth-code-error
func (h *AuthHandler) ErrorPage(w http.ResponseWriter, r *http.Request) {
	cfg := h.container.GetConfig()

	err := web.RenderError(w, web.ErrorPage{
		Message:    truncateMessage(strings.TrimSpace(r.URL.Query().Get("error"))),
		SignInURL:  callback.SignInPath,
		SupportURL: web.SupportURL(cfg.SupportEmail),
	})
	if err != nil {
		h.container.GetLogger().WithError(err).Error("Failed to render error page")
		http.Error(w, web.GenericErrorMessage, http.StatusInternalServerError)
	}
}

func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= maxErrorMessageLen {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:maxErrorMessageLen]) + "..."
}

// Support handles GET /support, the contact link shown when no support mailbox is configured
func (h *AuthHandler) Support(w http.ResponseWriter, r *http.Request) {
	cfg := h.container.GetConfig()
	if cfg.SupportEmail != "" {
		http.Redirect(w, r, web.SupportURL(cfg.SupportEmail), http.StatusSeeOther)
		return
	}
	if cfg.SiteURL != "" {
		http.Redirect(w, r, cfg.SiteURL+web.SupportPath, http.StatusSeeOther)
		return
	}

	err := web.RenderError(w, web.ErrorPage{
		Message:    "Please contact your care team administrator for help signing in.",
		SignInURL:  callback.SignInPath,
		SupportURL: web.SupportPath,
	})
	if err != nil {
		h.container.GetLogger().WithError(err).Error("Failed to render support page")
		http.Error(w, web.GenericErrorMessage, http.StatusInternalServerError)
	}
}
