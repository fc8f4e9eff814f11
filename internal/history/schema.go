package history

import (
	"database/sql"
	"errors"
	"fmt"
)

// SchemaVersion is the version written to new databases.
const SchemaVersion = 1

const (
	createTablesSQL = `
	CREATE TABLE IF NOT EXISTS schema_versions (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS readings (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at INTEGER NOT NULL,
		source      TEXT    NOT NULL,
		peer        INTEGER NOT NULL,
		lpm         REAL    NOT NULL,
		stale       INTEGER NOT NULL CHECK (stale IN (0, 1))
	);
	CREATE INDEX IF NOT EXISTS readings_recorded_at ON readings (recorded_at);`

	insertReadingSQL = `
	INSERT INTO readings (recorded_at, source, peer, lpm, stale)
	VALUES (?, ?, ?, ?, ?)`

	recentReadingsSQL = `
	SELECT recorded_at, source, peer, lpm, stale
	FROM readings
	ORDER BY id DESC
	LIMIT ?`
)

// ErrSchemaMismatch means the database was written by an incompatible version.
var ErrSchemaMismatch = errors.New("history: schema version mismatch")

// initSchema creates the tables on a new database and checks the version of
// an existing one.
func initSchema(db *sql.DB) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if version != 0 {
		if version != SchemaVersion {
			return fmt.Errorf("%w: have %d, want %d", ErrSchemaMismatch, version, SchemaVersion)
		}
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	committed = true
	return nil
}

// schemaVersion returns 0 for a database without a version table.
func schemaVersion(db *sql.DB) (int, error) {
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM sqlite_master
			WHERE type='table' AND name='schema_versions'
		)`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check schema table: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
