package repository

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

// OpenTestDB opens a migrated SQLite catalog in a per-test temp directory.
// The connection is closed when the test finishes.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenDB(sqliteScheme + filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
