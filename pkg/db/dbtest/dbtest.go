// Package dbtest opens throwaway SQLite databases migrated with the storefront models.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-core/pkg/db/models"
)

// Models lists every table owned by the checkout core.
func Models() []any {
	return models.All()
}

// Open returns an isolated in-memory database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	return open(t, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
}

// OpenFile returns a file-backed database whose transactions take the write
// lock up front, so concurrent writers serialize instead of failing.
func OpenFile(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.db")
	return open(t, "file:"+path+"?_busy_timeout=10000&_txlock=immediate")
}

func open(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}
