// Package database opens the local SQLite database and applies the embedded
// migrations.
package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/TheTechChild/dnd-character-builder/schemas"
)

const (
	driverName     = "sqlite"
	migrationTable = "schema_migrations"
	migrationDir   = "migrations"
)

// Open opens the SQLite database at dbPath, creating its directory if needed.
func Open(dbPath string) (*sqlx.DB, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	cleanPath := filepath.Clean(dbPath)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("os.MkdirAll(%s) > %w", filepath.Dir(cleanPath), err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Open() > %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping() > %w", err)
	}
	return db, nil
}

// Migrate applies every embedded migration that has not been applied yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	return applyMigrations(ctx, db, schemas.Migrations, migrationDir)
}

func applyMigrations(ctx context.Context, db *sqlx.DB, migrations fs.FS, dir string) error {
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return fmt.Errorf("fs.ReadDir(%s) > %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("db.ExecContext(create %s) > %w", migrationTable, err)
	}

	for _, file := range files {
		var applied int
		if err := db.GetContext(ctx, &applied,
			"SELECT COUNT(*) FROM "+migrationTable+" WHERE name = ?", file); err != nil {
			return fmt.Errorf("db.GetContext(%s) > %w", file, err)
		}
		if applied > 0 {
			continue
		}

		content, err := fs.ReadFile(migrations, path.Join(dir, file))
		if err != nil {
			return fmt.Errorf("fs.ReadFile(%s) > %w", file, err)
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTxx() > %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("tx.ExecContext(%s) > %w", file, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
			file, time.Now().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("tx.ExecContext(record %s) > %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("tx.Commit() > %w", err)
		}
		slog.Default().Debug("applied migration", slog.String("file", file))
	}
	return nil
}
