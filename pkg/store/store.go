// Package store keeps saved BASIC programs and user accounts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrProgramNotFound    = errors.New("program not found")
	ErrInvalidName        = errors.New("invalid program name")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrPasswordTooShort   = errors.New("password too short")
)

var programNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,32}$`)

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
}

// Open opens or creates the database at path and makes sure all tables
// exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &Store{conn: conn}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info(logger.AreaStore, "Database opened at %s", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (owner, name)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_login INTEGER
		)`,
	}
	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// ProgramRecord is one saved program.
type ProgramRecord struct {
	ID        string
	Owner     string
	Name      string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidProgramName reports whether name may be used with SAVE.
func ValidProgramName(name string) bool {
	return programNamePattern.MatchString(name)
}

// SaveProgram stores source under owner/name, replacing an existing
// program of that name.
func (s *Store) SaveProgram(ctx context.Context, owner, name, source string) (ProgramRecord, error) {
	if !ValidProgramName(name) {
		return ProgramRecord{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	now := time.Now()
	rec := ProgramRecord{ID: uuid.New().String(), Owner: owner, Name: name, Source: source, CreatedAt: now, UpdatedAt: now}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO programs (id, owner, name, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, name) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at
	`, rec.ID, owner, name, source, now.Unix(), now.Unix())
	if err != nil {
		return ProgramRecord{}, fmt.Errorf("error saving program: %w", err)
	}
	logger.Debug(logger.AreaStore, "Saved %s/%s (%d bytes)", owner, name, len(source))
	return s.LoadProgram(ctx, owner, name)
}

// LoadProgram returns the program owner/name.
func (s *Store) LoadProgram(ctx context.Context, owner, name string) (ProgramRecord, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, owner, name, source, created_at, updated_at FROM programs
		WHERE owner = ? AND name = ?
	`, owner, name)
	rec, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ProgramRecord{}, fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	return rec, err
}

// ListPrograms returns owner's programs sorted by name. Sources are not
// loaded.
func (s *Store) ListPrograms(ctx context.Context, owner string) ([]ProgramRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, owner, name, '', created_at, updated_at FROM programs
		WHERE owner = ? ORDER BY name
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("error listing programs: %w", err)
	}
	defer rows.Close()

	var records []ProgramRecord
	for rows.Next() {
		rec, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteProgram removes owner/name.
func (s *Store) DeleteProgram(ctx context.Context, owner, name string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM programs WHERE owner = ? AND name = ?`, owner, name)
	if err != nil {
		return fmt.Errorf("error deleting program: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProgram(row scanner) (ProgramRecord, error) {
	var rec ProgramRecord
	var created, updated int64
	if err := row.Scan(&rec.ID, &rec.Owner, &rec.Name, &rec.Source, &created, &updated); err != nil {
		return ProgramRecord{}, err
	}
	rec.CreatedAt = time.Unix(created, 0)
	rec.UpdatedAt = time.Unix(updated, 0)
	return rec, nil
}
