package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the daemon-owned crmsync.db: a warm-start cache, not a source of truth.
type DB struct {
	*sql.DB
}

// Open connects to the SQLite file at path in WAL mode.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db %s: %w", path, err)
	}
	return &DB{db}, nil
}

// OpenCache opens and migrates the cache at path. A file that cannot be
// migrated, or is left dirty, holds nothing the CRM cannot resend, so it is
// deleted and rebuilt once; Rebuilt is set on the result when that happened.
func OpenCache(path string) (*DB, *MigrateResult, error) {
	db, result, err := openMigrated(path)
	if err == nil {
		return db, result, nil
	}
	if rmErr := removeCache(path); rmErr != nil {
		return nil, nil, errors.Join(err, rmErr)
	}
	db, result, rerr := openMigrated(path)
	if rerr != nil {
		return nil, nil, fmt.Errorf("rebuild cache after %v: %w", err, rerr)
	}
	result.Rebuilt = true
	return db, result, nil
}

func openMigrated(path string) (*DB, *MigrateResult, error) {
	db, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := db.Migrate()
	if err == nil && result.Dirty {
		err = fmt.Errorf("schema version %d is dirty", result.Version)
	}
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, result, nil
}

func removeCache(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}
