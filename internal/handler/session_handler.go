package handler

import (
	"net/http"

	"carebridge-auth/internal/container"
	"carebridge-auth/internal/domain"
	"carebridge-auth/internal/middleware"
	"carebridge-auth/internal/navigation"
	"carebridge-auth/internal/service/bootstrap"
	"carebridge-auth/internal/service/callback"
	"carebridge-auth/internal/web"
	"carebridge-auth/pkg/errors"
)

// SessionHandler finishes fragment sign-ins
type SessionHandler struct {
	container *container.Container
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(container *container.Container) *SessionHandler {
	return &SessionHandler{
		container: container,
	}
}

// Loading handles GET /auth/loading
func (h *SessionHandler) Loading(w http.ResponseWriter, r *http.Request) {
	cfg := h.container.GetConfig()
	q := r.URL.Query()

	next := q.Get("next")
	if !navigation.IsSafePath(next) {
		next = ""
	}

	page := web.LoadingPage{
		SessionURL: callback.SessionPath,
		ErrorURL:   callback.ErrorPagePath + "?error=",
		SignInURL:  callback.SignInPath,
		SupportURL: web.SupportURL(cfg.SupportEmail),
		Role:       knownRole(q.Get("role")),
		Next:       next,
	}

	if err := web.RenderLoading(w, page); err != nil {
		h.container.GetLogger().WithError(err).Error("Failed to render loading page")
		http.Redirect(w, r, callback.ErrorURL("", ""), http.StatusFound)
	}
}

// SessionRequest is posted by the loading page
type SessionRequest struct {
	Fragment           string `json:"fragment"`
	Role               string `json:"role"`
	Next               string `json:"next"`
	StorageUnavailable bool   `json:"storage_unavailable"`
}

// SessionResponse reports the bootstrap to the loading page
type SessionResponse struct {
	Status   string                  `json:"status"`
	Path     string                  `json:"path,omitempty"`
	Reason   domain.NavigationReason `json:"reason,omitempty"`
	Message  string                  `json:"message,omitempty"`
	ErrorURL string                  `json:"error_url,omitempty"`
	Actions  []bootstrap.Action      `json:"actions,omitempty"`
	Progress []bootstrap.Transition  `json:"progress"`
}

// Session handles POST /auth/session
func (h *SessionHandler) Session(w http.ResponseWriter, r *http.Request) {
	cfg := h.container.GetConfig()
	requestID := middleware.RequestIDFromContext(r.Context())
	log := h.container.GetLogger().WithField("request_id", requestID)

	if appErr := verifySameOrigin(r, cfg); appErr != nil {
		writeErrorResponse(w, r, appErr, log)
		return
	}

	var req SessionRequest
	if appErr := decodeJSON(w, r, &req); appErr != nil {
		writeErrorResponse(w, r, appErr, log)
		return
	}

	relayID := cookieValue(r, RelayIDCookie)
	if relayID != "" {
		// single use whatever the outcome
		clearCookie(w, cfg, RelayIDCookie, authCookiePath)
	}

	res := h.container.Bootstrap.Run(r.Context(), bootstrap.Input{
		RelayID:            relayID,
		Fragment:           req.Fragment,
		StorageUnavailable: req.StorageUnavailable,
		RoleHint:           domain.ParseRole(req.Role),
		Next:               req.Next,
		RequestID:          requestID,
	}, nil)

	if !res.Succeeded() {
		message := errors.UserMessage(res.Err, web.GenericErrorMessage)
		writeJSON(w, http.StatusOK, SessionResponse{
			Status:   "failed",
			Message:  message,
			ErrorURL: callback.ErrorURL("", message),
			Actions:  res.Actions,
			Progress: res.Transitions,
		}, log)
		return
	}

	setSessionCookies(w, cfg, res.Session, timeNow())
	writeJSON(w, http.StatusOK, SessionResponse{
		Status:   "redirect",
		Path:     res.Intent.Path,
		Reason:   res.Intent.Reason,
		Progress: res.Transitions,
	}, log)
}

// knownRole returns the normalised role, or "" when raw names no portal role
func knownRole(raw string) string {
	if role := domain.ParseRole(raw); role.Known() {
		return string(role)
	}
	return ""
}
