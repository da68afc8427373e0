// Package storagetest opens migrated in-memory databases for store tests.
package storagetest

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"gymroster/internal/adapters/storage"
)

func open(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// A second connection would see a different :memory: database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// OpenServerDB returns an in-memory database with the roster store schema.
func OpenServerDB(t testing.TB) *sql.DB {
	t.Helper()
	db := open(t)
	if err := storage.MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("MigrateDB: %v", err)
	}
	return db
}

// OpenDraftDB returns an in-memory database with the console draft schema.
func OpenDraftDB(t testing.TB) *sql.DB {
	t.Helper()
	db := open(t)
	if err := storage.MigrateDraftDB(db, ":memory:"); err != nil {
		t.Fatalf("MigrateDraftDB: %v", err)
	}
	return db
}
