package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jward/luasense/internal/typedef"
)

// --- Module operations ---

// UpsertModule replaces any stored row for m.Name with m, its require
// edges and its dependency hashes.
func (s *Store) UpsertModule(m *Module) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := upsertModuleTx(tx, m)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit module: %w", err)
	}
	return id, nil
}

func upsertModuleTx(tx *sql.Tx, m *Module) (int64, error) {
	if err := deleteModuleTx(tx, m.Name); err != nil {
		return 0, err
	}
	if m.LuaVersion == "" {
		m.LuaVersion = "5.2"
	}
	if m.AnalyzedAt.IsZero() {
		m.AnalyzedAt = time.Now()
	}
	res, err := tx.Exec(
		"INSERT INTO modules (name, path, hash, lua_version, summary, analyzed_at) VALUES (?, ?, ?, ?, ?, ?)",
		m.Name, m.Path, m.Hash, m.LuaVersion, m.Summary, m.AnalyzedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert module: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	for _, req := range m.Requires {
		if _, err := tx.Exec(
			"INSERT INTO module_requires (module_id, required_name) VALUES (?, ?)", id, req,
		); err != nil {
			return 0, fmt.Errorf("insert module require %q: %w", req, err)
		}
	}
	for dep, hash := range m.Deps {
		if _, err := tx.Exec(
			"INSERT INTO module_deps (module_id, dep_name, dep_hash) VALUES (?, ?, ?)", id, dep, hash,
		); err != nil {
			return 0, fmt.Errorf("insert module dep %q: %w", dep, err)
		}
	}
	m.ID = id
	return id, nil
}

func (s *Store) scanModule(scanner interface{ Scan(...any) error }) (*Module, error) {
	m := &Module{}
	var path sql.NullString
	if err := scanner.Scan(&m.ID, &m.Name, &path, &m.Hash, &m.LuaVersion, &m.Summary, &m.AnalyzedAt); err != nil {
		return nil, err
	}
	m.Path = path.String
	return m, nil
}

const moduleColumns = "id, name, path, hash, lua_version, summary, analyzed_at"

// ModuleByName returns the stored module, or nil if there is none.
func (s *Store) ModuleByName(name string) (*Module, error) {
	m, err := s.scanModule(s.db.QueryRow(
		"SELECT "+moduleColumns+" FROM modules WHERE name = ?", name,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("module by name: %w", err)
	}
	if m.Requires, err = s.requiresOf(m.ID); err != nil {
		return nil, err
	}
	if m.Deps, err = s.depsOf(m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

// Modules returns every stored module ordered by name.
func (s *Store) Modules() ([]*Module, error) {
	rows, err := s.db.Query("SELECT " + moduleColumns + " FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}
	defer rows.Close()
	var out []*Module
	for rows.Next() {
		m, err := s.scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, m := range out {
		if m.Requires, err = s.requiresOf(m.ID); err != nil {
			return nil, err
		}
		if m.Deps, err = s.depsOf(m.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) requiresOf(moduleID int64) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT required_name FROM module_requires WHERE module_id = ? ORDER BY id", moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("module requires: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan module require: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) depsOf(moduleID int64) (map[string]string, error) {
	rows, err := s.db.Query(
		"SELECT dep_name, dep_hash FROM module_deps WHERE module_id = ?", moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("module deps: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, hash string
		if err := rows.Scan(&name, &hash); err != nil {
			return nil, fmt.Errorf("scan module dep: %w", err)
		}
		out[name] = hash
	}
	return out, rows.Err()
}

// Dependents returns the names of stored modules that require any of
// names, ordered by name.
func (s *Store) Dependents(names ...string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(
		"SELECT DISTINCT m.name FROM modules m JOIN module_requires r ON r.module_id = m.id"+
			" WHERE r.required_name IN ("+placeholderList(len(names))+") ORDER BY m.name",
		stringsToArgs(names)...,
	)
	if err != nil {
		return nil, fmt.Errorf("dependents: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// --- Summaries ---

// ModuleSummary returns the stored summary of name if it was produced from
// source with the given hash; nil when absent or stale. The caller checks
// the returned dependency hashes against the current sources.
func (s *Store) ModuleSummary(name, hash string) (*Summary, error) {
	m, err := s.ModuleByName(name)
	if err != nil || m == nil || m.Hash != hash {
		return nil, err
	}
	b, err := decodeSummary(m)
	if err != nil {
		return nil, err
	}
	return &Summary{Bundle: b, Deps: m.Deps}, nil
}

// PutModuleSummary encodes b into m.Summary and stores m. Modules that
// depend on m, directly or through other modules, are removed: their
// summaries were built against the old one.
func (s *Store) PutModuleSummary(m *Module, b *typedef.Bundle) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode summary %q: %w", m.Name, err)
	}
	m.Summary = data

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := invalidateDependentsTx(tx, m); err != nil {
		return err
	}
	if _, err := upsertModuleTx(tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

// invalidateDependentsTx drops every module that depends on m when m's
// stored hash differs from the new one. Dependents are followed through
// require edges and recorded dependency hashes until none remain.
func invalidateDependentsTx(tx *sql.Tx, m *Module) error {
	var old string
	err := tx.QueryRow("SELECT hash FROM modules WHERE name = ?", m.Name).Scan(&old)
	if err == sql.ErrNoRows || err == nil && old == m.Hash {
		return nil
	}
	if err != nil {
		return fmt.Errorf("module hash: %w", err)
	}

	seen := map[string]bool{m.Name: true}
	queue := []string{m.Name}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		stale, err := dependentsTx(tx, name)
		if err != nil {
			return err
		}
		for _, dep := range stale {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			queue = append(queue, dep)
			if err := deleteModuleTx(tx, dep); err != nil {
				return err
			}
		}
	}
	return nil
}

// dependentsTx returns the stored modules that require name or recorded a
// hash for it.
func dependentsTx(tx *sql.Tx, name string) ([]string, error) {
	rows, err := tx.Query(
		"SELECT m.name FROM modules m JOIN module_requires r ON r.module_id = m.id WHERE r.required_name = ?"+
			" UNION SELECT m.name FROM modules m JOIN module_deps d ON d.module_id = m.id WHERE d.dep_name = ?",
		name, name,
	)
	if err != nil {
		return nil, fmt.Errorf("dependents: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

func decodeSummary(m *Module) (*typedef.Bundle, error) {
	var b typedef.Bundle
	if err := json.Unmarshal(m.Summary, &b); err != nil {
		return nil, fmt.Errorf("decode summary %q: %w", m.Name, err)
	}
	return &b, nil
}
