package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/antibyte/retrobasic/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

var usernamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,19}$`)

// CreateUser registers a new account with a bcrypt hashed password.
func (s *Store) CreateUser(ctx context.Context, username, password string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)
		ON CONFLICT (username) DO NOTHING
	`, username, string(hash), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserExists
	}
	logger.Info(logger.AreaStore, "User %s registered", username)
	return nil
}

// Authenticate checks a password and records the login time.
func (s *Store) Authenticate(ctx context.Context, username, password string) error {
	var storedHash string
	err := s.conn.QueryRowContext(ctx, `SELECT password FROM users WHERE username = ?`, username).Scan(&storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("error reading user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)); err != nil {
		logger.SecurityWarn("Failed login for %s", username)
		return ErrInvalidCredentials
	}
	if _, err := s.conn.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE username = ?`, time.Now().Unix(), username); err != nil {
		return fmt.Errorf("error updating last login: %w", err)
	}
	return nil
}

// UserExists reports whether username is registered.
func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error reading user: %w", err)
	}
	return n > 0, nil
}
