package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qr-cipher-bot/internal/core/domain"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls []execCall
	tag   string
	err   error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag(f.tag), nil
}

func TestMarkProcessed_FirstSeen(t *testing.T) {
	db := &fakeDB{tag: "INSERT 0 1"}
	repo := &updateLogRepo{db: db}

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	first, err := repo.MarkProcessed(context.Background(), domain.ProcessedUpdate{
		UpdateID: 10, ChatID: 42, Kind: domain.UpdateKindText, ProcessedAt: at,
	})
	require.NoError(t, err)
	assert.True(t, first)

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "ON CONFLICT (update_id) DO NOTHING")
	assert.Equal(t, []any{int64(10), int64(42), "text", at}, db.calls[0].args)
}

func TestMarkProcessed_Duplicate(t *testing.T) {
	repo := &updateLogRepo{db: &fakeDB{tag: "INSERT 0 0"}}

	first, err := repo.MarkProcessed(context.Background(), domain.ProcessedUpdate{UpdateID: 10})
	require.NoError(t, err)
	assert.False(t, first)
}

func TestMarkProcessed_DBError(t *testing.T) {
	repo := &updateLogRepo{db: &fakeDB{err: errors.New("connection refused")}}

	_, err := repo.MarkProcessed(context.Background(), domain.ProcessedUpdate{UpdateID: 10})
	assert.ErrorIs(t, err, domain.ErrUpdateLogUnavail)
}

func TestForget(t *testing.T) {
	db := &fakeDB{tag: "DELETE 1"}
	repo := &updateLogRepo{db: db}

	require.NoError(t, repo.Forget(context.Background(), 10))
	assert.Equal(t, []any{int64(10)}, db.calls[0].args)
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{tag: "CREATE TABLE"}

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS processed_update")
}

func TestPrune(t *testing.T) {
	db := &fakeDB{tag: "DELETE 3"}

	n, err := Prune(context.Background(), db, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

// TestUpdateLog_Postgres runs against a real database when
// TEST_DATABASE_URL is set.
func TestUpdateLog_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, EnsureSchema(ctx, pool))
	repo := NewUpdateLogRepository(pool)

	id := int(time.Now().UnixNano() % 1_000_000_000)
	u := domain.ProcessedUpdate{UpdateID: id, ChatID: 1, Kind: domain.UpdateKindPhoto, ProcessedAt: time.Now()}

	first, err := repo.MarkProcessed(ctx, u)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkProcessed(ctx, u)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, repo.Forget(ctx, id))
}
