package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "console.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "client_id", "abc-123"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "client_id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "abc-123" {
		t.Errorf("Get = %q, want %q", got, "abc-123")
	}

	// Overwrite
	if err := s.Put(ctx, "client_id", "def-456"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err = s.Get(ctx, "client_id")
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if got != "def-456" {
		t.Errorf("Get after overwrite = %q, want %q", got, "def-456")
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing key err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", "v"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get deleted key err = %v, want ErrNotFound", err)
	}
	// Deleting again is fine.
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete missing key: %v", err)
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "console.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(ctx, "sound.volume", "0.8"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, "sound.volume")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got != "0.8" {
		t.Errorf("Get after reopen = %q, want %q", got, "0.8")
	}
}
