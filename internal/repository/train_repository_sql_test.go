package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/nimasrn/train-reservation/pkg/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// statementRecorder keeps the SQL gorm renders for the postgres dialect
// without a server behind it.
type statementRecorder struct {
	mu   sync.Mutex
	sqls []string
}

func (s *statementRecorder) record(tx *gorm.DB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sqls = append(s.sqls, tx.Statement.SQL.String())
}

func (s *statementRecorder) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sqls
	s.sqls = nil
	return out
}

func dryRunPostgres(t *testing.T) (*TrainRepository, *statementRecorder) {
	t.Helper()

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=reservation dbname=reservation sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	rec := &statementRecorder{}
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:record_query", rec.record))
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("test:record_update", rec.record))

	return NewTrainRepository(pg.New(db, db)), rec
}

func TestTrainRepository_GetForUpdateLocksRow(t *testing.T) {
	repo, rec := dryRunPostgres(t)
	ctx := context.Background()

	_, _ = repo.GetForUpdate(ctx, 7)
	sqls := rec.take()
	require.Len(t, sqls, 1)
	assert.Contains(t, sqls[0], "FOR UPDATE")
	assert.Contains(t, sqls[0], "id = $1")

	_, _ = repo.GetByID(ctx, 7)
	sqls = rec.take()
	require.Len(t, sqls, 1)
	assert.NotContains(t, sqls[0], "FOR UPDATE")
}

func TestTrainRepository_GuardedUpdateSQL(t *testing.T) {
	repo, rec := dryRunPostgres(t)
	ctx := context.Background()

	t.Run("decrement", func(t *testing.T) {
		_ = repo.DecrementAvailableSeats(ctx, 7)
		sqls := rec.take()
		require.NotEmpty(t, sqls)
		assert.Contains(t, sqls[0], "UPDATE")
		assert.Contains(t, sqls[0], "available_seats > 0")
		assert.Contains(t, sqls[0], "available_seats - 1")
	})

	t.Run("set capacity", func(t *testing.T) {
		_ = repo.SetCapacity(ctx, 7, 40)
		sqls := rec.take()
		require.NotEmpty(t, sqls)
		assert.Contains(t, sqls[0], "UPDATE")
		assert.Contains(t, sqls[0], "(total_seats - available_seats) <=")
	})
}
