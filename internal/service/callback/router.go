// Package callback decides what happens when the identity provider redirects the
// browser back to the portal.
package callback

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"carebridge-auth/internal/config"
	"carebridge-auth/internal/domain"
	"carebridge-auth/internal/navigation"
	"carebridge-auth/internal/repository"
	"carebridge-auth/internal/service"
	"carebridge-auth/internal/service/rolesync"
	apperrors "carebridge-auth/pkg/errors"
	"carebridge-auth/pkg/logger"
)

// Routes this package redirects to
const (
	ErrorPagePath   = "/auth/auth-code-error"
	LoadingPagePath = "/auth/loading"
	RelayPath       = "/auth/relay"
	SessionPath     = "/auth/session"
	CallbackPath    = "/auth/callback"
	SignInPath      = "/auth/sign-in"
)

// User-facing messages
const (
	MsgUnavailable      = "Authentication is temporarily unavailable. Please try again later."
	MsgExchangeFailed   = "Could not complete sign-in. Please try again."
	MsgCodeAlreadyUsed  = "This sign-in link has already been used."
	MsgGenericErrorPage = "An unexpected error occurred during sign-in."
)

// Request is everything the router reads from the incoming callback
type Request struct {
	Code             string
	Error            string
	ErrorDescription string
	Next             string
	Role             string

	// Session cookies, if any
	AccessToken  string
	RefreshToken string
	// PKCE verifier stored by sign-in start
	CodeVerifier string

	// Origin is scheme://host of the request as received
	Origin         string
	ForwardedHost  string
	ForwardedProto string
	RequestID      string
}

// OutcomeKind is the shape of the router's answer
type OutcomeKind int

const (
	OutcomeRedirect OutcomeKind = iota
	OutcomeError
	OutcomeRelay
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRedirect:
		return "redirect"
	case OutcomeError:
		return "error"
	case OutcomeRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// RelayData feeds the relay page for fragment-only credentials
type RelayData struct {
	// ErrorURL gets the urlencoded message appended
	ErrorURL     string
	RelayURL     string
	LoadingURL   string
	FallbackPath string
}

// Outcome is the router's decision. Location is absolute for redirects and errors.
type Outcome struct {
	Kind     OutcomeKind
	Location string
	Intent   domain.NavigationIntent
	// Session is set when new cookies must be written
	Session *domain.Session
	Err     *apperrors.AppError
	Relay   *RelayData
	// RoleSync is the detached role update, nil when none was started
	RoleSync *rolesync.Task
}

// Router implements the callback decision
type Router struct {
	cfg      *config.Config
	backend  service.AuthBackend
	guard    service.ExchangeGuard
	recorder service.SignInRecorder
	roles    *rolesync.Propagator
	logger   *logger.Logger

	exchanges singleflight.Group
	now       func() time.Time
}

// NewRouter wires a router. guard, recorder and roles may be nil.
func NewRouter(cfg *config.Config, backend service.AuthBackend, guard service.ExchangeGuard, recorder service.SignInRecorder, roles *rolesync.Propagator, log *logger.Logger) *Router {
	if recorder == nil {
		recorder = repository.NopRecorder{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{
		cfg:      cfg,
		backend:  backend,
		guard:    guard,
		recorder: recorder,
		roles:    roles,
		logger:   log.Named("callback"),
		now:      time.Now,
	}
}

// Handle classifies req in priority order and never returns a raw failure: every
// failure becomes an error outcome pointing at the error page.
func (r *Router) Handle(ctx context.Context, req Request) Outcome {
	log := r.logger.WithFields(map[string]interface{}{
		"request_id": req.RequestID,
		"has_code":   req.Code != "",
		"role_hint":  req.Role,
	})

	// 1. Provider error, before any backend call
	if req.Error != "" || req.ErrorDescription != "" {
		msg := req.ErrorDescription
		if msg == "" {
			msg = req.Error
		}
		log.WithField("provider_error", req.Error).Warn("Provider returned an error")
		return r.fail(ctx, req, domain.FlowProviderError, apperrors.NewProviderError(msg))
	}

	// 2. Backend configuration
	if !r.cfg.BackendConfigured() {
		missing := r.cfg.MissingBackendVars()
		log.WithField("missing", missing).Error("Auth backend is not configured")
		return r.fail(ctx, req, requestFlow(req), apperrors.NewConfigurationError(ConfigurationMessage(r.cfg)))
	}

	// 3. Existing session from cookies
	if req.AccessToken != "" {
		session, err := r.backend.GetSession(ctx, req.AccessToken, req.RefreshToken)
		if err != nil {
			// An unreadable cookie session is not fatal, the code or fragment may still work
			log.WithError(err).Warn("Failed to read existing session")
		} else if session.Valid() {
			log.Info("Existing session found, skipping exchange")
			outcome := r.succeed(ctx, req, domain.FlowExistingSession, session)
			if session.AccessToken == req.AccessToken {
				// cookies are already current
				outcome.Session = nil
			}
			return outcome
		}
	}

	// 4. Credentials can only be in the fragment
	if req.Code == "" {
		log.Info("No code and no session, serving relay page")
		return r.relay(req)
	}

	// 5. Code exchange
	session, err := r.exchange(ctx, req)
	if err != nil {
		log.WithError(err).Warn("Code exchange failed")
		return r.fail(ctx, req, domain.FlowCodeExchange, r.exchangeError(err))
	}

	return r.succeed(ctx, req, domain.FlowCodeExchange, session)
}

// exchange collapses concurrent duplicates of one code and verifier in this process and
// claims the code in the shared guard so a replay on another instance is rejected. A
// duplicate with a different verifier never joins the flight, so it cannot borrow the
// session of the request that proved possession.
func (r *Router) exchange(ctx context.Context, req Request) (*domain.Session, error) {
	key := repository.HashCode(req.Code + "\x00" + req.CodeVerifier)

	v, err, shared := r.exchanges.Do(key, func() (interface{}, error) {
		// followers share this call, so the leader going away must not cancel it
		flightCtx := context.WithoutCancel(ctx)
		if r.cfg.BackendTimeout > 0 {
			var cancel context.CancelFunc
			flightCtx, cancel = context.WithTimeout(flightCtx, r.cfg.BackendTimeout)
			defer cancel()
		}

		if r.guard != nil {
			claimed, err := r.guard.Claim(flightCtx, req.Code)
			switch {
			case err != nil:
				r.logger.WithError(err).Warn("Exchange guard unavailable, continuing without it")
			case !claimed:
				return nil, apperrors.NewExchangeError(MsgCodeAlreadyUsed, nil)
			}
		}

		session, err := r.backend.ExchangeCodeForSession(flightCtx, req.Code, req.CodeVerifier)
		if err != nil {
			return nil, err
		}
		if !session.Valid() {
			return nil, service.ErrEmptySession
		}
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.WithField("request_id", req.RequestID).Debug("Duplicate exchange collapsed")
	}

	return v.(*domain.Session), nil
}

func (r *Router) exchangeError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	msg := service.BackendMessage(err)
	if msg == "" {
		msg = MsgExchangeFailed
	}
	return apperrors.NewExchangeError(msg, err)
}

func (r *Router) succeed(ctx context.Context, req Request, flow domain.SignInFlow, session *domain.Session) Outcome {
	intent := navigation.Resolve(session.User, domain.ParseRole(req.Role), req.Next)

	outcome := Outcome{
		Kind:     OutcomeRedirect,
		Location: BaseURL(r.cfg, req) + intent.Path,
		Intent:   intent,
		Session:  session,
		RoleSync: r.roles.Start(ctx, session, domain.Role(req.Role)),
	}

	r.record(ctx, &domain.SignInEvent{
		UserID:    session.User.ID,
		Flow:      flow,
		Succeeded: true,
		Reason:    intent.Reason,
		Path:      intent.Path,
		RequestID: req.RequestID,
	})

	r.logger.WithFields(map[string]interface{}{
		"request_id": req.RequestID,
		"user_id":    session.User.ID,
		"flow":       flow,
		"reason":     intent.Reason,
		"path":       intent.Path,
	}).Info("Sign-in completed")

	return outcome
}

func (r *Router) fail(ctx context.Context, req Request, flow domain.SignInFlow, appErr *apperrors.AppError) Outcome {
	log := r.logger.WithFields(map[string]interface{}{
		"request_id": req.RequestID,
		"flow":       flow,
		"error_type": appErr.Type,
	})
	if appErr.Terminal() {
		log.Warn("Sign-in failed")
	} else {
		log.Info("Sign-in continued after advisory error")
	}

	r.record(ctx, &domain.SignInEvent{
		Flow:      flow,
		ErrorType: string(appErr.Type),
		RequestID: req.RequestID,
	})

	return Outcome{
		Kind:     OutcomeError,
		Location: ErrorURL(req.Origin, appErr.Message),
		Err:      appErr,
	}
}

// requestFlow is the flow a callback would have taken had it not failed first
func requestFlow(req Request) domain.SignInFlow {
	switch {
	case req.Code != "":
		return domain.FlowCodeExchange
	case req.AccessToken != "":
		return domain.FlowExistingSession
	default:
		return domain.FlowFragmentRelay
	}
}

func (r *Router) relay(req Request) Outcome {
	query := url.Values{}
	if role := domain.ParseRole(req.Role); role.Known() {
		query.Set("role", string(role))
	}
	if navigation.IsSafePath(req.Next) {
		query.Set("next", req.Next)
	}

	loading, relay := LoadingPagePath, RelayPath
	if len(query) > 0 {
		loading += "?" + query.Encode()
		relay += "?" + query.Encode()
	}

	return Outcome{
		Kind: OutcomeRelay,
		Relay: &RelayData{
			ErrorURL:     req.Origin + ErrorPagePath + "?error=",
			RelayURL:     relay,
			LoadingURL:   loading,
			FallbackPath: navigation.FallbackPath(domain.ParseRole(req.Role)),
		},
	}
}

func (r *Router) record(ctx context.Context, event *domain.SignInEvent) {
	event.OccurredAt = r.now().UTC()
	if err := r.recorder.Record(ctx, event); err != nil {
		r.logger.WithError(apperrors.NewAdvisoryError("failed to record sign-in event", err)).Warn("Sign-in audit write failed")
	}
}

// ConfigurationMessage is the user-facing text for a missing backend configuration.
// Only development names the missing variables.
func ConfigurationMessage(cfg *config.Config) string {
	if cfg.IsProduction() {
		return MsgUnavailable
	}
	return "Auth backend is not configured. Missing: " + strings.Join(cfg.MissingBackendVars(), ", ")
}

// BaseURL is the scheme and host the final redirect should use. Behind the production
// load balancer the forwarded host wins, then the platform URL, then the request origin.
func BaseURL(cfg *config.Config, req Request) string {
	if !cfg.IsProduction() {
		return req.Origin
	}

	if host := firstHeaderValue(req.ForwardedHost); host != "" {
		proto := firstHeaderValue(req.ForwardedProto)
		if proto != "http" && proto != "https" {
			proto = "https"
		}
		return proto + "://" + host
	}

	if cfg.SiteURL != "" {
		return cfg.SiteURL
	}

	return req.Origin
}

// ErrorURL builds the error page redirect for message
func ErrorURL(origin, message string) string {
	if message == "" {
		message = MsgGenericErrorPage
	}
	return origin + ErrorPagePath + "?error=" + url.QueryEscape(message)
}

// firstHeaderValue takes the client-most entry of a comma separated proxy header
func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSpace(v)
	if strings.ContainsAny(v, "/\\@ ") {
		return ""
	}
	return v
}

// LogOutcome writes one line describing o without tokens
func LogOutcome(log *logger.Logger, o Outcome) {
	fields := []zap.Field{zap.Stringer("outcome", o.Kind)}
	if o.Err != nil {
		fields = append(fields, zap.String("error_type", string(o.Err.Type)))
	}
	if o.Intent.Path != "" {
		fields = append(fields, zap.String("path", o.Intent.Path), zap.String("reason", string(o.Intent.Reason)))
	}
	log.Info("Callback handled", fields...)
}
