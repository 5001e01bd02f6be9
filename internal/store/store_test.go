package store

import (
	"database/sql"
	"testing"

	"github.com/larderhq/larder/internal/database"
	"github.com/larderhq/larder/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// A single pooled connection keeps the in-memory database alive and
	// shared across concurrent queries.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(email, model.RoleFamily)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return u
}
