// Package testutil provides shared helpers for building filesystem
// fixtures in tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree materializes the given relative-path -> content map under
// root, creating parent directories as needed.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// MkdirAll creates the given relative directories under root.
func MkdirAll(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, rel := range dirs {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
	}
}
