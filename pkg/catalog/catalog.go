// Package catalog persists a library of named expressions to SQLite.
//
// Authoring hosts keep user-written expressions around: templates, presets,
// per-asset overrides. The catalog stores each expression's source together
// with a snapshot of its validation outcome, including the full diagnostic
// list with source offsets, so a library browser can show problems without
// re-validating every entry.
//
// The store uses the pure-Go SQLite driver and is suitable for
// single-process production use. Use ":memory:" as the path for testing.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/sandrolain/vexpr/pkg/types"
)

// Sentinel errors returned by the store.
var (
	ErrNotFound    = errors.New("catalog: expression not found")
	ErrStoreClosed = errors.New("catalog: store is closed")
)

// Diagnostic is one stored validation problem.
type Diagnostic struct {
	Code    types.ErrorCode
	Message string
	Start   int
	End     int
}

// Entry is one stored expression with its validation snapshot.
type Entry struct {
	ID          string
	Name        string
	Source      string
	ReturnType  string
	Valid       bool
	Diagnostics []Diagnostic
	UpdatedAt   time.Time
}

// Store persists expressions to SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Open creates or opens an expression catalog at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS expressions (
			id          TEXT NOT NULL PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE,
			source      TEXT NOT NULL,
			return_type TEXT NOT NULL,
			valid       INTEGER NOT NULL,
			updated_at  TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create expressions table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS diagnostics (
			expr_id   TEXT NOT NULL REFERENCES expressions(id) ON DELETE CASCADE,
			position  INTEGER NOT NULL,
			code      TEXT NOT NULL,
			message   TEXT NOT NULL,
			start_off INTEGER NOT NULL,
			end_off   INTEGER NOT NULL,
			PRIMARY KEY (expr_id, position)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create diagnostics table: %w", err)
	}

	return &Store{db: db}, nil
}

// Save stores an expression under name, replacing any previous entry with
// the same name. The entry's ID is preserved across replacements; a new
// entry gets a fresh UUID. Returns the entry ID.
func (s *Store) Save(name, source, returnType string, valid bool, diags []Diagnostic) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRow(`SELECT id FROM expressions WHERE name = ?`, name).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
	case err != nil:
		return "", fmt.Errorf("look up expression: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO expressions (id, name, source, return_type, valid, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			source = excluded.source,
			return_type = excluded.return_type,
			valid = excluded.valid,
			updated_at = excluded.updated_at
	`, id, name, source, returnType, boolToInt(valid),
		time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("save expression: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM diagnostics WHERE expr_id = ?`, id); err != nil {
		return "", fmt.Errorf("clear diagnostics: %w", err)
	}
	for i, d := range diags {
		if _, err := tx.Exec(`
			INSERT INTO diagnostics (expr_id, position, code, message, start_off, end_off)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, i, string(d.Code), d.Message, d.Start, d.End); err != nil {
			return "", fmt.Errorf("save diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save: %w", err)
	}
	return id, nil
}

// Load retrieves the expression stored under name.
func (s *Store) Load(name string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	e := &Entry{Name: name}
	var valid int
	var updated string
	err := s.db.QueryRow(`
		SELECT id, source, return_type, valid, updated_at
		FROM expressions WHERE name = ?
	`, name).Scan(&e.ID, &e.Source, &e.ReturnType, &valid, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load expression: %w", err)
	}
	e.Valid = valid != 0
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

	rows, err := s.db.Query(`
		SELECT code, message, start_off, end_off FROM diagnostics
		WHERE expr_id = ? ORDER BY position
	`, e.ID)
	if err != nil {
		return nil, fmt.Errorf("load diagnostics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d Diagnostic
		var code string
		if err := rows.Scan(&code, &d.Message, &d.Start, &d.End); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Code = types.ErrorCode(code)
		e.Diagnostics = append(e.Diagnostics, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return e, nil
}

// List returns all stored expressions without their diagnostics, ordered
// by name.
func (s *Store) List() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT id, name, source, return_type, valid, updated_at
		FROM expressions ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list expressions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var valid int
		var updated string
		if err := rows.Scan(&e.ID, &e.Name, &e.Source, &e.ReturnType, &valid, &updated); err != nil {
			return nil, fmt.Errorf("scan expression: %w", err)
		}
		e.Valid = valid != 0
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expressions: %w", err)
	}
	return entries, nil
}

// Delete removes the expression stored under name.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	var id string
	err := s.db.QueryRow(`SELECT id FROM expressions WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("look up expression: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM diagnostics WHERE expr_id = ?`, id); err != nil {
		return fmt.Errorf("delete diagnostics: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM expressions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete expression: %w", err)
	}
	return nil
}

// Close closes the store. Further operations return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
