package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for analysed module summaries.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the module tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS modules (
  id              INTEGER PRIMARY KEY,
  name            TEXT NOT NULL UNIQUE,
  path            TEXT,
  hash            TEXT NOT NULL,
  lua_version     TEXT NOT NULL DEFAULT '5.2',
  summary         BLOB NOT NULL,
  analyzed_at     TIMESTAMP
);

CREATE TABLE IF NOT EXISTS module_requires (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  required_name   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS module_deps (
  id              INTEGER PRIMARY KEY,
  module_id       INTEGER NOT NULL REFERENCES modules(id),
  dep_name        TEXT NOT NULL,
  dep_hash        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_modules_hash ON modules(hash);
CREATE INDEX IF NOT EXISTS idx_module_requires_module ON module_requires(module_id);
CREATE INDEX IF NOT EXISTS idx_module_requires_name ON module_requires(required_name);
CREATE INDEX IF NOT EXISTS idx_module_deps_module ON module_deps(module_id);
CREATE INDEX IF NOT EXISTS idx_module_deps_name ON module_deps(dep_name);
`

// DeleteModule transactionally removes a module with its require edges and
// dependency hashes.
func (s *Store) DeleteModule(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteModuleTx(tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteModuleTx(tx *sql.Tx, name string) error {
	if _, err := tx.Exec(
		"DELETE FROM module_deps WHERE module_id IN (SELECT id FROM modules WHERE name = ?)", name,
	); err != nil {
		return fmt.Errorf("delete module deps: %w", err)
	}
	if _, err := tx.Exec(
		"DELETE FROM module_requires WHERE module_id IN (SELECT id FROM modules WHERE name = ?)", name,
	); err != nil {
		return fmt.Errorf("delete module requires: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM modules WHERE name = ?", name); err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	return nil
}
