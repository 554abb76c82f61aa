// Package bootstrap finishes a sign-in whose credentials only the browser could see.
// It runs a linear state machine and reports every step to an Observer.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carebridge-auth/internal/config"
	"carebridge-auth/internal/domain"
	"carebridge-auth/internal/navigation"
	"carebridge-auth/internal/repository"
	"carebridge-auth/internal/service"
	"carebridge-auth/internal/service/rolesync"
	"carebridge-auth/internal/web"
	apperrors "carebridge-auth/pkg/errors"
	"carebridge-auth/pkg/logger"
)

// State is one step of the bootstrap
type State string

const (
	StateInit                 State = "INIT"
	StateReadingPayload       State = "READING_PAYLOAD"
	StateValidating           State = "VALIDATING"
	StateEstablishingSession  State = "ESTABLISHING_SESSION"
	StateResolvingDestination State = "RESOLVING_DESTINATION"
	StateRedirecting          State = "REDIRECTING"
	StateFailed               State = "FAILED"
)

// Progress is the percentage shown for s. FAILED always reports 0.
func (s State) Progress() int {
	switch s {
	case StateReadingPayload:
		return 10
	case StateValidating:
		return 30
	case StateEstablishingSession:
		return 50
	case StateResolvingDestination:
		return 80
	case StateRedirecting:
		return 100
	default:
		return 0
	}
}

// Status is the message shown while in s
func (s State) Status() string {
	switch s {
	case StateInit:
		return "Preparing your sign-in..."
	case StateReadingPayload:
		return "Reading your sign-in details..."
	case StateValidating:
		return "Checking your sign-in details..."
	case StateEstablishingSession:
		return "Establishing a secure session..."
	case StateResolvingDestination:
		return "Finding your workspace..."
	case StateRedirecting:
		return "Redirecting..."
	default:
		return ""
	}
}

// Terminal failure messages
const (
	MsgStorageUnavailable = "We cannot access secure storage in this browser. Please disable private mode and try again."
	MsgPayloadMissing     = "Your sign-in details are missing. Please restart the sign-in flow."
	MsgTokenMissing       = "Secure token missing. Please sign in again."
	MsgSessionFailed      = "We could not establish a secure session. Please sign in again."
	MsgUnexpected         = "Something went wrong. Please try again."
)

// Transition is reported to the Observer on every state change
type Transition struct {
	State    State  `json:"state"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// Observer receives transitions in order
type Observer interface {
	Transition(t Transition)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Transition)

func (f ObserverFunc) Transition(t Transition) { f(t) }

// Action is a recovery link offered after a failure
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Input is one bootstrap attempt
type Input struct {
	// RelayID names a payload stashed by the relay page
	RelayID string
	// Fragment is the raw location.hash as seen by the browser
	Fragment string
	// StorageUnavailable is set when the browser could not read its own session storage
	StorageUnavailable bool
	RoleHint           domain.Role
	Next               string
	RequestID          string
}

// Result is the outcome of Run
type Result struct {
	State       State
	Intent      domain.NavigationIntent
	Session     *domain.Session
	Err         *apperrors.AppError
	Transitions []Transition
	Actions     []Action
	RoleSync    *rolesync.Task
}

// Succeeded reports whether the run reached REDIRECTING
func (r Result) Succeeded() bool {
	return r.State == StateRedirecting
}

// Service runs bootstrap attempts
type Service struct {
	backend      service.AuthBackend
	store        service.PayloadStore
	recorder     service.SignInRecorder
	roles        *rolesync.Propagator
	supportEmail string
	logger       *logger.Logger
	now          func() time.Time
}

// NewService wires a bootstrap service. recorder and roles may be nil.
func NewService(cfg *config.Config, backend service.AuthBackend, store service.PayloadStore, recorder service.SignInRecorder, roles *rolesync.Propagator, log *logger.Logger) *Service {
	if recorder == nil {
		recorder = repository.NopRecorder{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		backend:      backend,
		store:        store,
		recorder:     recorder,
		roles:        roles,
		supportEmail: cfg.SupportEmail,
		logger:       log.Named("bootstrap"),
		now:          time.Now,
	}
}

// machine tracks one run and enforces that progress never goes backward
type machine struct {
	observer Observer
	result   *Result
	progress int
}

func (m *machine) enter(s State) {
	p := s.Progress()
	if s != StateFailed && p < m.progress {
		panic(fmt.Sprintf("bootstrap: progress would go back from %d to %d", m.progress, p))
	}
	if s != StateFailed {
		m.progress = p
	}

	msg := s.Status()
	if s == StateFailed && m.result.Err != nil {
		msg = m.result.Err.Message
	}

	t := Transition{State: s, Progress: p, Message: msg}
	m.result.State = s
	m.result.Transitions = append(m.result.Transitions, t)
	if m.observer != nil {
		m.observer.Transition(t)
	}
}

// Run drives one attempt to REDIRECTING or FAILED. It never panics and never returns a raw error.
func (s *Service) Run(ctx context.Context, in Input, obs Observer) (res Result) {
	m := &machine{observer: obs, result: &res}
	log := s.logger.WithField("request_id", in.RequestID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Bootstrap panicked", zap.Any("panic", r))
			s.fail(ctx, m, in, apperrors.NewInternalError(MsgUnexpected, fmt.Errorf("panic: %v", r)))
		}
	}()

	m.enter(StateInit)

	// Reading
	m.enter(StateReadingPayload)
	payload, appErr := s.readPayload(ctx, in, log)
	if appErr != nil {
		s.fail(ctx, m, in, appErr)
		return res
	}

	// Validating
	m.enter(StateValidating)
	log.Debug("Payload read", zap.Object("payload", payload))
	if payload.HasProviderError() {
		s.fail(ctx, m, in, apperrors.NewProviderError(payload.ProviderMessage()))
		return res
	}
	if payload.AccessToken == "" {
		s.fail(ctx, m, in, apperrors.NewExchangeError(MsgTokenMissing, nil))
		return res
	}

	// Establishing
	m.enter(StateEstablishingSession)
	session, err := s.backend.SetSession(ctx, payload.AccessToken, payload.RefreshToken)
	if err != nil || !session.Valid() {
		if err == nil {
			err = service.ErrEmptySession
		}
		log.WithError(err).Warn("Session establishment failed")
		s.fail(ctx, m, in, apperrors.NewExchangeError(MsgSessionFailed, err))
		return res
	}
	res.Session = session

	// Resolving
	m.enter(StateResolvingDestination)
	res.Intent = navigation.Resolve(session.User, in.RoleHint, in.Next)
	res.RoleSync = s.roles.Start(ctx, session, in.RoleHint)

	m.enter(StateRedirecting)

	s.record(ctx, &domain.SignInEvent{
		UserID:    session.User.ID,
		Flow:      domain.FlowFragmentRelay,
		Succeeded: true,
		Reason:    res.Intent.Reason,
		Path:      res.Intent.Path,
		RequestID: in.RequestID,
	})

	log.WithFields(map[string]interface{}{
		"user_id": session.User.ID,
		"reason":  res.Intent.Reason,
		"path":    res.Intent.Path,
	}).Info("Bootstrap completed")

	return res
}

// readPayload prefers the stashed payload and falls back to the fragment. The stashed
// entry is consumed by the read whatever happens next.
func (s *Service) readPayload(ctx context.Context, in Input, log *logger.Logger) (domain.AuthPayload, *apperrors.AppError) {
	if in.RelayID != "" && s.store != nil {
		raw, found, err := s.store.Take(ctx, in.RelayID)
		if err != nil {
			log.WithError(err).Error("Relay store unreadable")
			return domain.AuthPayload{}, apperrors.NewStorageError(MsgStorageUnavailable, err)
		}
		if found {
			if payload := domain.ParseAuthPayload(raw); !payload.Empty() {
				return payload, nil
			}
		}
	}

	if payload := domain.ParseAuthPayload(in.Fragment); !payload.Empty() {
		return payload, nil
	}

	if in.StorageUnavailable {
		return domain.AuthPayload{}, apperrors.NewStorageError(MsgStorageUnavailable, nil)
	}
	return domain.AuthPayload{}, apperrors.NewValidationError(MsgPayloadMissing, nil)
}

func (s *Service) fail(ctx context.Context, m *machine, in Input, appErr *apperrors.AppError) {
	m.result.Err = appErr
	m.result.Session = nil
	m.result.Intent = domain.NavigationIntent{}
	m.result.Actions = s.RecoveryActions()
	m.enter(StateFailed)

	s.record(ctx, &domain.SignInEvent{
		Flow:      domain.FlowFragmentRelay,
		ErrorType: string(appErr.Type),
		RequestID: in.RequestID,
	})
}

// RecoveryActions are the two ways out of a failed sign-in
func (s *Service) RecoveryActions() []Action {
	return []Action{
		{Label: "Return to sign in", URL: "/auth/sign-in"},
		{Label: "Contact support", URL: web.SupportURL(s.supportEmail)},
	}
}

func (s *Service) record(ctx context.Context, event *domain.SignInEvent) {
	event.OccurredAt = s.now().UTC()
	if err := s.recorder.Record(ctx, event); err != nil {
		s.logger.WithError(apperrors.NewAdvisoryError("failed to record sign-in event", err)).Warn("Sign-in audit write failed")
	}
}
