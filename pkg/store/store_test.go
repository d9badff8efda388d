package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProgramLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.SaveProgram(ctx, "alice", "loop", "10 PRINT 1\n")
	if err != nil {
		t.Fatalf("SaveProgram error: %v", err)
	}
	if first.ID == "" || first.Source != "10 PRINT 1\n" {
		t.Errorf("saved record = %+v", first)
	}

	second, err := s.SaveProgram(ctx, "alice", "loop", "10 PRINT 2\n")
	if err != nil {
		t.Fatalf("overwrite error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("overwrite changed id from %s to %s", first.ID, second.ID)
	}

	got, err := s.LoadProgram(ctx, "alice", "loop")
	if err != nil {
		t.Fatalf("LoadProgram error: %v", err)
	}
	if got.Source != "10 PRINT 2\n" {
		t.Errorf("source = %q", got.Source)
	}

	if _, err := s.LoadProgram(ctx, "bob", "loop"); !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("other owner load error = %v, want ErrProgramNotFound", err)
	}

	if _, err := s.SaveProgram(ctx, "alice", "alpha", "10 END\n"); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListPrograms(ctx, "alice")
	if err != nil {
		t.Fatalf("ListPrograms error: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "loop" {
		t.Errorf("list = %+v", list)
	}

	if err := s.DeleteProgram(ctx, "alice", "loop"); err != nil {
		t.Fatalf("DeleteProgram error: %v", err)
	}
	if err := s.DeleteProgram(ctx, "alice", "loop"); !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("second delete error = %v, want ErrProgramNotFound", err)
	}
}

func TestProgramNames(t *testing.T) {
	s := openTestStore(t)
	tests := []struct {
		name string
		ok   bool
	}{
		{"demo", true},
		{"demo-2.bas", true},
		{"", false},
		{"../etc", false},
		{"has space", false},
		{"abcdefghijklmnopqrstuvwxyz0123456789", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SaveProgram(context.Background(), "u", tt.name, "10 END")
			if tt.ok && err != nil {
				t.Errorf("SaveProgram(%q) error: %v", tt.name, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidName) {
				t.Errorf("SaveProgram(%q) error = %v, want ErrInvalidName", tt.name, err)
			}
		})
	}
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, "alice", "secret1"); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if err := s.CreateUser(ctx, "alice", "another1"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate error = %v, want ErrUserExists", err)
	}
	if err := s.CreateUser(ctx, "x", "secret1"); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("short name error = %v, want ErrInvalidUsername", err)
	}
	if err := s.CreateUser(ctx, "bobby", "123"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("short password error = %v, want ErrPasswordTooShort", err)
	}

	if err := s.Authenticate(ctx, "alice", "secret1"); err != nil {
		t.Errorf("Authenticate error: %v", err)
	}
	if err := s.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}
	if err := s.Authenticate(ctx, "nobody", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v", err)
	}

	exists, err := s.UserExists(ctx, "alice")
	if err != nil || !exists {
		t.Errorf("UserExists(alice) = %v, %v", exists, err)
	}
}
