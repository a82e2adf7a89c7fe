// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/bloodbank/bloodbank-backend/pkg/db"
	"github.com/bloodbank/bloodbank-backend/pkg/migrate"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New returns a fresh, fully migrated database private to the test. A single
// connection is used so SQLite never reports lock contention between them.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:test_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := db.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.Up(context.Background(), sqlDB, db.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// NewClient wraps New in a *db.Client.
func NewClient(t testing.TB) *db.Client {
	t.Helper()
	return db.NewFromGorm(New(t), db.DialectSQLite)
}
