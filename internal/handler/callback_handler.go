package handler

import (
	"net/http"
	"net/url"
	"strings"

	"carebridge-auth/internal/container"
	"carebridge-auth/internal/domain"
	"carebridge-auth/internal/middleware"
	"carebridge-auth/internal/navigation"
	"carebridge-auth/internal/service/callback"
	"carebridge-auth/internal/web"
	"carebridge-auth/pkg/errors"
)

// CallbackHandler serves the provider redirect and the fragment relay
type CallbackHandler struct {
	container *container.Container
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(container *container.Container) *CallbackHandler {
	return &CallbackHandler{
		container: container,
	}
}

// Callback handles GET /auth/callback
func (h *CallbackHandler) Callback(w http.ResponseWriter, r *http.Request) {
	cfg := h.container.GetConfig()
	log := h.container.GetLogger().WithField("request_id", middleware.RequestIDFromContext(r.Context()))
	q := r.URL.Query()

	req := callback.Request{
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		Next:             q.Get("next"),
		Role:             q.Get("role"),
		AccessToken:      cookieValue(r, middleware.AccessTokenCookie),
		RefreshToken:     cookieValue(r, middleware.RefreshTokenCookie),
		CodeVerifier:     cookieValue(r, CodeVerifierCookie),
		Origin:           requestOrigin(r),
		ForwardedHost:    r.Header.Get("X-Forwarded-Host"),
		ForwardedProto:   r.Header.Get("X-Forwarded-Proto"),
		RequestID:        middleware.RequestIDFromContext(r.Context()),
	}

	outcome := h.container.Callback.Handle(r.Context(), req)
	callback.LogOutcome(log, outcome)

	if req.CodeVerifier != "" && outcome.Kind != callback.OutcomeRelay {
		clearCookie(w, cfg, CodeVerifierCookie, authCookiePath)
	}

	switch outcome.Kind {
	case callback.OutcomeRedirect:
		if outcome.Session != nil {
			setSessionCookies(w, cfg, outcome.Session, timeNow())
		}
		http.Redirect(w, r, outcome.Location, http.StatusFound)
	case callback.OutcomeError:
		http.Redirect(w, r, outcome.Location, http.StatusFound)
	case callback.OutcomeRelay:
		relay := outcome.Relay
		err := web.RenderRelay(w, web.RelayPage{
			ErrorURL:     relay.ErrorURL,
			RelayURL:     relay.RelayURL,
			LoadingURL:   relay.LoadingURL,
			FallbackPath: relay.FallbackPath,
			SignInURL:    callback.SignInPath,
		})
		if err != nil {
			log.WithError(err).Error("Failed to render relay page")
			http.Redirect(w, r, callback.ErrorURL(req.Origin, ""), http.StatusFound)
		}
	}
}

// RelayRequest is posted by the relay page
type RelayRequest struct {
	Fragment string `json:"fragment"`
}

// RelayResponse tells the relay page where to go next
type RelayResponse struct {
	Next string `json:"next"`
}

// Relay handles POST /auth/relay
func (h *CallbackHandler) Relay(w http.ResponseWriter, r *http.Request) {
	cfg := h.container.GetConfig()
	log := h.container.GetLogger().WithField("request_id", middleware.RequestIDFromContext(r.Context()))

	if appErr := verifySameOrigin(r, cfg); appErr != nil {
		writeErrorResponse(w, r, appErr, log)
		return
	}

	var req RelayRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		writeErrorResponse(w, r, appErr, log)
		return
	}

	raw := strings.TrimSpace(req.Fragment)
	if domain.ParseAuthPayload(raw).Empty() {
		writeErrorResponse(w, r, errors.NewValidationError("Sign-in payload is empty", nil), log)
		return
	}

	id, err := h.container.Relay.Stash(r.Context(), raw, cfg.RelayTTL)
	if err != nil {
		// the loading page still has the fragment in session storage
		log.WithError(err).Warn("Failed to stash relay payload")
	} else {
		http.SetCookie(w, newCookie(cfg, RelayIDCookie, id, authCookiePath, cfg.RelayTTL))
	}

	writeJSON(w, http.StatusOK, RelayResponse{Next: loadingURL(r.URL.Query())}, log)
}

// loadingURL forwards a known role and a safe next to the loading page
func loadingURL(q url.Values) string {
	forward := url.Values{}
	if role := domain.ParseRole(q.Get("role")); role.Known() {
		forward.Set("role", string(role))
	}
	if next := q.Get("next"); navigation.IsSafePath(next) {
		forward.Set("next", next)
	}
	if len(forward) == 0 {
		return callback.LoadingPagePath
	}
	return callback.LoadingPagePath + "?" + forward.Encode()
}
