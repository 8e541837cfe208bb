package repository

import (
	"testing"

	"github.com/nimasrn/train-reservation/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type TestDB struct {
	*pg.DB
	Raw *gorm.DB
}

// SetupTestDB opens an in-memory SQLite database with the trains and bookings
// schema. The pool is limited to one connection so every caller sees the same
// in-memory database and transactions serialize.
func SetupTestDB(t testing.TB) *TestDB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&TrainEntity{}, &BookingEntity{}))

	return &TestDB{
		DB:  pg.New(db, db),
		Raw: db,
	}
}
