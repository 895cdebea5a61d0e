// Package testutil provides shared test helpers for stores, output trees and messages.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/mailblog/internal/sqlbuilder"
	"github.com/starford/mailblog/internal/storage"
	"github.com/starford/mailblog/internal/store"
)

// TestStore creates a migrated temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "mailblog-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	ctx := context.Background()
	s, err := store.Open(ctx, sqlbuilder.SQLite, dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

// TestOutput creates a temporary output directory with a storage.Provider.
func TestOutput(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	out, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, out
}

// ReadFile returns the content of a file under root or fails the test.
func ReadFile(t *testing.T, root string, elem ...string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(append([]string{root}, elem...)...))
	if err != nil {
		t.Fatalf("read %v: %v", elem, err)
	}
	return string(data)
}

// PlainMessage returns a single-part text/plain message.
func PlainMessage(from, subject, date, body string) string {
	return "Date: " + date + "\r\n" +
		"From: " + from + "\r\n" +
		"To: world@blogs.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" + body
}
