// Package testutil provides shared test helpers for setting up workspaces and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/jeebs/internal/store"
	"github.com/starford/jeebs/internal/workspace"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "jeebs-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory with a workspace.FS.
func TestWorkspace(t *testing.T) (string, *workspace.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := workspace.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// ReadFile returns the content of rel under dir, or "" and false when absent.
func ReadFile(t *testing.T, dir, rel string) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return "", false
	}
	if err != nil {
		t.Fatal(err)
	}
	return string(data), true
}
