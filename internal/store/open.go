// internal/store/open.go
//
// Database bootstrap for the SQL-backed store.
// Responsibilities:
//   - Resolve DATABASE_URL into a driver + DSN (SQLite by default, Postgres via pgx).
//   - Open SQLite with safe defaults (WAL, busy timeout, foreign keys).
//   - Apply embedded migrations for the dialect, recorded in _migrations.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/useless-store/scoreboard/assets"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// Target is a parsed DATABASE_URL.
type Target struct {
	Dialect string // "sqlite", "postgres" or "memory"
	DSN     string
}

// ParseURL maps a DATABASE_URL onto a backend.
//
//	sqlite://data/app.db, file:app.db, ./app.db  → SQLite file
//	postgres://..., postgresql://...             → Postgres
//	memory://                                    → in-memory store
func ParseURL(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return Target{}, errors.New("store: empty database url")
	case strings.HasPrefix(raw, "memory:"):
		return Target{Dialect: "memory"}, nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return Target{Dialect: dialectPostgres, DSN: raw}, nil
	case strings.HasPrefix(raw, "sqlite://"):
		return Target{Dialect: dialectSQLite, DSN: strings.TrimPrefix(raw, "sqlite://")}, nil
	case strings.HasPrefix(raw, "sqlite:"):
		return Target{Dialect: dialectSQLite, DSN: strings.TrimPrefix(raw, "sqlite:")}, nil
	case strings.HasPrefix(raw, "file:"):
		return Target{Dialect: dialectSQLite, DSN: strings.TrimPrefix(raw, "file:")}, nil
	case strings.Contains(raw, "://"):
		return Target{}, fmt.Errorf("store: unsupported database url scheme in %q", raw)
	default:
		return Target{Dialect: dialectSQLite, DSN: raw}, nil
	}
}

// Open connects to the database named by rawURL, applies migrations and returns a Store.
func Open(ctx context.Context, rawURL string) (Store, error) {
	t, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch t.Dialect {
	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return NewMemoryStore(), nil
	case dialectSQLite:
		db, err = openSQLite(t.DSN)
	case dialectPostgres:
		db, err = openPostgres(ctx, t.DSN)
	}
	if err != nil {
		return nil, err
	}

	if err := migrate(ctx, db, t.Dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("dialect", t.Dialect).Msg("store ready")
	return newSQLStore(db, t.Dialect), nil
}

// openSQLite opens (and creates if missing) a SQLite database file.
func openSQLite(path string) (*sql.DB, error) {
	file, _, _ := strings.Cut(path, "?")
	dir := filepath.Dir(file)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+"_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	// foreign_keys is per connection; the DSN flag covers pooled connections,
	// this covers the first one explicitly.
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// migrate applies the embedded scripts for dialect that are not yet in _migrations.
// Each script runs in its own transaction together with its bookkeeping row.
func migrate(ctx context.Context, db *sql.DB, dialect string) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	scripts, err := assets.Migrations(dialect)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	for _, m := range scripts {
		var done int
		err := db.QueryRowContext(ctx, rebind(dialect, `SELECT 1 FROM _migrations WHERE name=?`), m.Name).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", m.Name).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, rebind(dialect, `INSERT INTO _migrations(name) VALUES (?)`), m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.Name, err)
		}
		log.Info().Str("migration", m.Name).Msg("applied")
	}
	return nil
}
