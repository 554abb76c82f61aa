package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"carebridge-auth/internal/domain"
	"carebridge-auth/pkg/database"
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// SignInEventRepository writes the sign-in audit trail to Postgres
type SignInEventRepository struct {
	db  execer
	log *zap.Logger

	missingTableOnce sync.Once
}

func NewSignInEventRepository(db *database.PostgresDB, log *zap.Logger) *SignInEventRepository {
	return newSignInEventRepository(db.Pool, log)
}

func newSignInEventRepository(db execer, log *zap.Logger) *SignInEventRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &SignInEventRepository{db: db, log: log.Named("signin_events")}
}

// Record inserts event. A missing table is reported once and then ignored so a
// fresh database without migrations does not flood the logs.
func (r *SignInEventRepository) Record(ctx context.Context, event *domain.SignInEvent) error {
	if event == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sign_in_events (
			id, user_id, flow, succeeded, reason, path, error_type, request_id, occurred_at
		)
		VALUES ($1, NULLIF($2::text, '')::uuid, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)
	`

	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.UserID,
		string(event.Flow),
		event.Succeeded,
		string(event.Reason),
		event.Path,
		event.ErrorType,
		event.RequestID,
		event.OccurredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
			r.missingTableOnce.Do(func() {
				r.log.Warn("sign_in_events table is missing, run the migrate command")
			})
			return nil
		}
		return fmt.Errorf("failed to record sign-in event: %w", err)
	}

	return nil
}

// NopRecorder drops every event. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *domain.SignInEvent) error { return nil }
