// Package tempfs builds throwaway directory trees for tests.
package tempfs

import (
	"os"
	"path/filepath"
	"testing"
)

// New creates a temporary directory populated with files (slash separated
// paths relative to the root, mapped to their contents) and returns its
// symlink-free absolute path. The tree is removed when the test ends.
func New(t testing.TB, files map[string]string) string {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for p, content := range files {
		path := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	return root
}
