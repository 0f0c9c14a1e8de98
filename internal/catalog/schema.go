// Package catalog keeps a SQLite catalog of the archives in a library
// directory, their story text for search, and the journal of transactions
// run against them.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS packages (
	path         TEXT PRIMARY KEY,
	checksum     TEXT NOT NULL DEFAULT '',
	spreads      INTEGER NOT NULL DEFAULT 0,
	pages        INTEGER NOT NULL DEFAULT 0,
	stories      INTEGER NOT NULL DEFAULT 0,
	active_layer TEXT NOT NULL DEFAULT '',
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stories (
	package  TEXT NOT NULL,
	story_id TEXT NOT NULL,
	body     TEXT NOT NULL DEFAULT '',
	UNIQUE(package, story_id)
);

CREATE INDEX IF NOT EXISTS idx_stories_package ON stories(package);

CREATE TABLE IF NOT EXISTS transactions (
	id           TEXT PRIMARY KEY,
	archive      TEXT NOT NULL,
	dest         TEXT NOT NULL DEFAULT '',
	working_copy TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	ended_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_transactions_state ON transactions(state);
`

// DB wraps a sql.DB with catalog-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
