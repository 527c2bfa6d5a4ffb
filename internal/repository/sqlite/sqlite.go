// Package sqlite implements the repository interfaces on an embedded
// SQLite database.
//
// Users are stored as JSON documents in a single column, the way the
// primary document store keeps them, with the identity fields mirrored
// into indexed columns and a side table. That keeps the document shape
// identical across backends while still giving SQLite real indexes and
// UNIQUE constraints to enforce.
//
// modernc.org/sqlite is a pure Go translation of SQLite: no C compiler,
// no CGo, works everywhere Go works.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/tomatrack/tomatrack/internal/repository"
)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

var _ repository.Store = (*DB)(nil)

// New opens the database, applies the pragmas the server depends on and
// runs migrations.
//
// dbPath examples:
//   - "data/tomatrack.db" → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces a real connection so a bad path or permission problem
	// surfaces here instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are off by default in SQLite. The authorization side
	// table cascades on user deletion, so they must be on.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	// users.doc holds the full JSON document. Only fields that need an
	// index or a constraint get their own column.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			doc        TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// The legacy identity columns arrived with the v1 account import.
	// ALTER TABLE errors if the column exists, so they go through the
	// idempotent helper instead of the schema above.
	if err := db.addColumnIfNotExists("users", "legacy_provider",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding legacy_provider to users: %w", err)
	}
	if err := db.addColumnIfNotExists("users", "legacy_uid",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding legacy_uid to users: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_users_legacy
			ON users(legacy_provider, legacy_uid);
	`)
	if err != nil {
		return fmt.Errorf("creating legacy identity index: %w", err)
	}

	// One row per embedded authorization, kept in the same transaction as
	// the document write. The UNIQUE indexes are what turns identity and
	// token collisions into constraint failures instead of silent races.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_authorizations (
			user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider     TEXT NOT NULL,
			uid          TEXT NOT NULL,
			token_digest TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (user_id, provider)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_user_auth_identity
			ON user_authorizations(provider, uid);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_user_auth_token
			ON user_authorizations(token_digest) WHERE token_digest != '';
	`)
	if err != nil {
		return fmt.Errorf("creating user_authorizations table: %w", err)
	}

	// Tomatoes, projects and scores reference users weakly: no foreign
	// key, user_id goes NULL when the account is deleted.
	// completed_at is stored as unix nanoseconds so range scans compare
	// numerically.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tomatoes (
			id           TEXT PRIMARY KEY,
			user_id      TEXT,
			completed_at INTEGER NOT NULL,
			created_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tomatoes_user_completed
			ON tomatoes(user_id, completed_at);
	`)
	if err != nil {
		return fmt.Errorf("creating tomatoes table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id         TEXT PRIMARY KEY,
			user_id    TEXT,
			name       TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating projects table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS scores (
			id         TEXT PRIMARY KEY,
			user_id    TEXT,
			day        TEXT NOT NULL,
			tomatoes   INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_scores_day ON scores(day);
	`)
	if err != nil {
		return fmt.Errorf("creating scores table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already
// exist, making ALTER TABLE migrations safe to run repeatedly.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation matches the constraint failure text modernc.org/sqlite
// produces. database/sql gives us no portable error code to switch on.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// errMentionsTokenDigest distinguishes a token collision from an identity
// collision. SQLite names the failing column in the error text.
func errMentionsTokenDigest(err error) bool {
	return err != nil && strings.Contains(err.Error(), "token_digest")
}
