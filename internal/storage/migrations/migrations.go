// Package migrations versions the buffer cache schema. Scripts are named
// NNN_description.sql and applied in ascending order, each in its own
// transaction.
package migrations

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Script is one schema step.
type Script struct {
	Version int
	Name    string
	SQL     string
}

// Status describes how far a database is behind the scripts.
type Status struct {
	Current int
	Pending []int
}

const versionTable = "schema_version"

// Scripts returns the embedded schema scripts in version order.
func Scripts() ([]Script, error) {
	return Load(FS, "scripts")
}

// Load reads the scripts in dir of fsys. A .sql file without a numeric
// prefix or a repeated version is an error.
func Load(fsys fs.FS, dir string) ([]Script, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string)
	var scripts []Script
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		prefix, _, _ := strings.Cut(entry.Name(), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", entry.Name())
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration %s: version %d already used by %s", entry.Name(), version, other)
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, Script{Version: version, Name: entry.Name(), SQL: string(body)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	return scripts, nil
}

// Apply runs every script newer than the recorded version.
func Apply(db *sql.DB, scripts []Script) error {
	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, s := range scripts {
		if s.Version <= current {
			continue
		}
		if err := apply(db, s); err != nil {
			return fmt.Errorf("migration %s: %w", s.Name, err)
		}
		current = s.Version
	}
	return nil
}

// Run applies the embedded scripts.
func Run(db *sql.DB) error {
	scripts, err := Scripts()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return Apply(db, scripts)
}

// Check reports the recorded version and the embedded scripts not yet applied.
func Check(db *sql.DB) (Status, error) {
	scripts, err := Scripts()
	if err != nil {
		return Status{}, err
	}
	current, err := currentVersion(db)
	if err != nil {
		return Status{}, err
	}

	st := Status{Current: current}
	for _, s := range scripts {
		if s.Version > current {
			st.Pending = append(st.Pending, s.Version)
		}
	}
	return st, nil
}

// currentVersion creates the version table on first use.
func currentVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return 0, fmt.Errorf("create %s: %w", versionTable, err)
	}

	var v int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM ` + versionTable).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func apply(db *sql.DB, s Script) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(s.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO `+versionTable+` (version, name) VALUES (?, ?)`, s.Version, s.Name); err != nil {
		return err
	}
	return tx.Commit()
}
