// Package rolesync copies a sign-up role hint onto the user's metadata without
// holding up the redirect that triggered it.
package rolesync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"carebridge-auth/internal/domain"
	apperrors "carebridge-auth/pkg/errors"
	"carebridge-auth/pkg/logger"
)

// DefaultTimeout bounds a single propagation once the triggering request has returned
const DefaultTimeout = 10 * time.Second

// MetadataUpdater is the slice of the auth backend this package needs
type MetadataUpdater interface {
	UpdateUser(ctx context.Context, accessToken string, data map[string]interface{}) (*domain.UserIdentity, error)
}

// Propagator starts detached role updates
type Propagator struct {
	backend MetadataUpdater
	timeout time.Duration
	logger  *logger.Logger
}

func NewPropagator(backend MetadataUpdater, timeout time.Duration, log *logger.Logger) *Propagator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Propagator{backend: backend, timeout: timeout, logger: log.Named("rolesync")}
}

// ShouldPropagate reports whether hint should be written for user: the hint must be a
// self-selectable role and the stored role must be empty or guest.
func ShouldPropagate(user *domain.UserIdentity, hint domain.Role) bool {
	if user == nil {
		return false
	}
	hint = domain.ParseRole(string(hint))
	if hint != domain.RolePatient && hint != domain.RoleCounselor {
		return false
	}
	return user.Role.Unassigned()
}

// Start writes role to the user's metadata in the background. The returned task may be
// ignored; its failure is logged and never reaches the caller's flow. Start returns nil
// when there is nothing to do.
func (p *Propagator) Start(ctx context.Context, session *domain.Session, hint domain.Role) *Task {
	if p == nil || !session.Valid() || !ShouldPropagate(session.User, hint) {
		return nil
	}

	role := domain.ParseRole(string(hint))
	accessToken := session.AccessToken
	userID := session.User.ID

	task := &Task{done: make(chan struct{})}

	// The update outlives the request that started it
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)

	go func() {
		defer close(task.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				task.err = apperrors.NewAdvisoryError("role propagation panicked", nil)
				p.logger.Error("Role propagation panicked", zap.Any("panic", r), zap.String("user_id", userID))
			}
		}()

		start := time.Now()
		_, err := p.backend.UpdateUser(detached, accessToken, map[string]interface{}{"role": string(role)})
		if err != nil {
			task.err = apperrors.NewAdvisoryError("failed to propagate role", err)
			p.logger.Warn("Role propagation failed",
				zap.String("user_id", userID),
				zap.String("role", string(role)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}

		p.logger.Info("Role propagated",
			zap.String("user_id", userID),
			zap.String("role", string(role)),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return task
}

// Task is the handle of one detached update
type Task struct {
	done chan struct{}
	err  error
}

// Done is closed when the update has finished
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the advisory error once Done is closed
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the update finishes or ctx ends
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
