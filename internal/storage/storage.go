// Package storage is the SQLite-backed memory of the bot: users, chat
// history, scoped memories, settings, and detected highlights.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	platform TEXT NOT NULL,
	external_id TEXT NOT NULL,
	display_name TEXT,
	avatar_url TEXT,
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_platform_ext ON users(platform, external_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at);

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT 'global',
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_key_scope_user ON memories(key, scope, user_id);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS highlights (
	id TEXT PRIMARY KEY,
	ts INTEGER NOT NULL,
	reason TEXT NOT NULL
);
`

// Store wraps the SQLite handle. All methods are safe for concurrent use;
// the pool is pinned to a single connection since SQLite has one writer
// anyway (and :memory: databases would otherwise split per connection).
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the database at path and applies the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Vacuum reclaims free pages. Run rarely; it rewrites the whole file.
func (s *Store) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}
