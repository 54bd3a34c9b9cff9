package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Connect establishes a connection to the database and initializes the schema
func Connect(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite:
		if err := ensureDataDir(dsn); err != nil {
			return nil, err
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_busy_timeout=5000"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureDataDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	float := "REAL"
	if db.DriverName() == DriverPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
		float = "DOUBLE PRECISION"
	}

	statements := []struct {
		name string
		sql  string
	}{
		{"vocab_items", `
			CREATE TABLE IF NOT EXISTS vocab_items (
				id ` + pk + `,
				term TEXT NOT NULL,
				term_key TEXT NOT NULL UNIQUE,
				definition TEXT NOT NULL DEFAULT '',
				language TEXT NOT NULL DEFAULT '',
				example TEXT NOT NULL DEFAULT '',
				audio_url TEXT NOT NULL DEFAULT '',
				ease ` + float + ` NOT NULL DEFAULT 2.5,
				interval_ms BIGINT NOT NULL DEFAULT 0,
				proficiency INTEGER NOT NULL DEFAULT 0,
				next_review_at BIGINT,
				last_review_at BIGINT,
				mastered INTEGER NOT NULL DEFAULT 0,
				starred INTEGER NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)`},
		{"vocab_items index", `CREATE INDEX IF NOT EXISTS idx_vocab_items_next_review ON vocab_items(next_review_at)`},
		{"vocab_reviews", `
			CREATE TABLE IF NOT EXISTS vocab_reviews (
				id ` + pk + `,
				item_id BIGINT NOT NULL REFERENCES vocab_items(id) ON DELETE CASCADE,
				rating TEXT NOT NULL,
				interval_ms BIGINT NOT NULL,
				next_review_at BIGINT NOT NULL,
				created_at BIGINT NOT NULL
			)`},
		{"personas", `
			CREATE TABLE IF NOT EXISTS personas (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				persona TEXT NOT NULL DEFAULT '',
				greeting TEXT NOT NULL DEFAULT '',
				mood TEXT NOT NULL DEFAULT '',
				script TEXT NOT NULL DEFAULT '[]'
			)`},
		{"conversations", `
			CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				persona_id TEXT NOT NULL REFERENCES personas(id),
				title TEXT NOT NULL DEFAULT '',
				script_cursor INTEGER NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)`},
		{"messages", `
			CREATE TABLE IF NOT EXISTS messages (
				id ` + pk + `,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				sender TEXT NOT NULL,
				body TEXT NOT NULL DEFAULT '',
				kind TEXT NOT NULL DEFAULT 'text',
				payload TEXT NOT NULL DEFAULT '',
				quoted_body TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL
			)`},
		{"messages index", `CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`},
		{"user_settings", `
			CREATE TABLE IF NOT EXISTS user_settings (
				id TEXT PRIMARY KEY,
				nickname TEXT NOT NULL DEFAULT '',
				gender TEXT NOT NULL DEFAULT '',
				mbti TEXT NOT NULL DEFAULT '',
				zodiac TEXT NOT NULL DEFAULT '',
				birthday TEXT NOT NULL DEFAULT ''
			)`},
		{"persona_progress", `
			CREATE TABLE IF NOT EXISTS persona_progress (
				persona_id TEXT PRIMARY KEY,
				affection_points INTEGER NOT NULL DEFAULT 0,
				affection_level INTEGER NOT NULL DEFAULT 1
			)`},
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
