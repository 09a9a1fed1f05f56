package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// CatalogModels is a small library catalog used by end-to-end tests.
var CatalogModels = map[string]string{
	"people/authors.yaml": `
Author:
  properties:
    "@id": integer+
    name: string(100)!
    aliases: string[](40)
`,
	"catalog/books.yaml": `
Tag:
  properties:
    "@id": integer+
    name: string(50)!

Book:
  properties:
    "@id": integer+
    title: string(200)!
    year: integer
    author: "#Author.books"
    tags: "#Tag[]"
    inPrint:
      type: boolean
      default: true
`,
}

// WriteFile writes content below dir, creating parent directories.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// SetupTestProject creates a temporary project holding CatalogModels under
// models/ and a leaporm.yaml that targets a SQLite file inside the project.
func SetupTestProject(t testing.TB) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range CatalogModels {
		WriteFile(t, filepath.Join(dir, "models"), name, content)
	}
	WriteFile(t, dir, "leaporm.yaml", `
models_dir: models
state_path: .leaporm/state.db
target:
  type: sqlite
  database: data/library.db
`)
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatalf("failed to create data directory: %v", err)
	}
	return dir
}
