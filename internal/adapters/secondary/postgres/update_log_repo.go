package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"qr-cipher-bot/internal/core/domain"
	ports "qr-cipher-bot/internal/core/ports/output"
)

//go:embed schema.sql
var schema string

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type updateLogRepo struct {
	db DB
}

func NewUpdateLogRepository(pool *pgxpool.Pool) ports.UpdateLog {
	return &updateLogRepo{db: pool}
}

// EnsureSchema creates the tables the repository uses if they are missing.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *updateLogRepo) MarkProcessed(ctx context.Context, u domain.ProcessedUpdate) (bool, error) {
	query := `
		INSERT INTO processed_update (update_id, chat_id, kind, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (update_id) DO NOTHING
	`
	processedAt := u.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	tag, err := r.db.Exec(ctx, query, int64(u.UpdateID), u.ChatID, string(u.Kind), processedAt)
	if err != nil {
		return false, fmt.Errorf("%w: mark processed: %v", domain.ErrUpdateLogUnavail, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *updateLogRepo) Forget(ctx context.Context, updateID int) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM processed_update WHERE update_id = $1`, int64(updateID)); err != nil {
		return fmt.Errorf("%w: forget: %v", domain.ErrUpdateLogUnavail, err)
	}
	return nil
}

// Prune deletes entries older than maxAge and returns how many were removed.
func Prune(ctx context.Context, db DB, maxAge time.Duration) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM processed_update WHERE processed_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("prune processed updates: %w", err)
	}
	return tag.RowsAffected(), nil
}
