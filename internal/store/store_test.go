package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/showtrack/internal/database"
	"github.com/dukerupert/showtrack/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string, role model.Role) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), email, "Test User", role)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}
