package repositories_test

import (
	"testing"

	"dreamflow/internal/database"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:   "sqlite",
		DSN:      ":memory:",
		LogLevel: logger.Silent,
	}, nil)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := database.Migrate(pool.DB); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return pool.DB
}
