package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// Shared conformance suite for local adapters.
func runStoreSuite(t *testing.T, s ObjectStore) {
	t.Helper()

	// Missing object
	_, err := s.Get("rooms/missing.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing object, got %v", err)
	}

	exists, err := s.Exists("rooms/missing.json")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("Missing object should not exist")
	}

	// Put then Get
	payload := []byte(`{"code":"alpha"}`)
	if err := s.Put("rooms/alpha.json", payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get("rooms/alpha.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get returned %q, want %q", got, payload)
	}

	exists, err = s.Exists("rooms/alpha.json")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("Stored object should exist")
	}

	// Replace
	replaced := []byte(`{"code":"alpha","title":"Sprint 12"}`)
	if err := s.Put("rooms/alpha.json", replaced); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	got, err = s.Get("rooms/alpha.json")
	if err != nil {
		t.Fatalf("Get after replace failed: %v", err)
	}
	if !bytes.Equal(got, replaced) {
		t.Errorf("Get after replace returned %q, want %q", got, replaced)
	}

	// Delete
	if err := s.Delete("rooms/alpha.json"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("rooms/alpha.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Second delete should return ErrNotFound, got %v", err)
	}
	_, err = s.Get("rooms/alpha.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete should return ErrNotFound, got %v", err)
	}
}

func TestFSStore(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create fs store: %v", err)
	}
	defer s.Close()

	runStoreSuite(t, s)
}

func TestFSStoreLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("Failed to create fs store: %v", err)
	}
	defer s.Close()

	if err := s.Put("rooms/beta.json", []byte("{}")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "rooms"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 file in rooms dir, got %d", len(entries))
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "objects.db"))
	if err != nil {
		t.Fatalf("Failed to create sqlite store: %v", err)
	}
	defer s.Close()

	runStoreSuite(t, s)
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create badger store: %v", err)
	}
	defer s.Close()

	runStoreSuite(t, s)
}

func TestValidCode(t *testing.T) {
	valid := []string{"alpha", "Sprint-12", "team_a", "X", "abc123"}
	for _, code := range valid {
		if !ValidCode(code) {
			t.Errorf("Expected %q to be valid", code)
		}
	}

	invalid := []string{"", "  ", "../etc", "a/b", "room code", "käse", "a.json"}
	for _, code := range invalid {
		if ValidCode(code) {
			t.Errorf("Expected %q to be invalid", code)
		}
	}
}
