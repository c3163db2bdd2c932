package store

import (
	"database/sql"
	"fmt"
)

// GetMetadata returns the value stored under key, or "" if there is none.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key.
func (s *Store) SetMetadata(key, value string) error {
	if _, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	); err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

// ResetModules deletes every stored module with its require edges and
// dependency hashes.
func (s *Store) ResetModules() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM module_deps"); err != nil {
		return fmt.Errorf("reset module deps: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM module_requires"); err != nil {
		return fmt.Errorf("reset module requires: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM modules"); err != nil {
		return fmt.Errorf("reset modules: %w", err)
	}
	return tx.Commit()
}
