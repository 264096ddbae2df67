package db

import (
	"os"
	"path/filepath"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("%s - failed to write %s: %v", migrationsTestPrefix, name, err)
		}
	}
}

func TestLoadMigrations_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"003_third.sql":  "THIRD",
		"001_first.sql":  "FIRST",
		"002_second.sql": "SECOND",
		"README.md":      "# Migrations",
		"notes.txt":      "x",
	})
	// A directory with a .sql suffix is not a migration.
	if err := os.Mkdir(filepath.Join(dir, "old.sql"), 0o755); err != nil {
		t.Fatalf("%s - mkdir: %v", migrationsTestPrefix, err)
	}

	got, err := LoadMigrations(dir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	want := []Migration{
		{Name: "001_first.sql", SQL: "FIRST"},
		{Name: "002_second.sql", SQL: "SECOND"},
		{Name: "003_third.sql", SQL: "THIRD"},
	}
	if len(got) != len(want) {
		t.Fatalf("%s - expected %d migrations, got %d", migrationsTestPrefix, len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s - migration %d = %+v, want %+v", migrationsTestPrefix, i, got[i], want[i])
		}
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	got, err := LoadMigrations(t.TempDir())
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(got) != 0 {
		t.Errorf("%s - expected no migrations, got %d", migrationsTestPrefix, len(got))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := LoadMigrations(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Errorf("%s - expected error for missing directory", migrationsTestPrefix)
	}
}

func TestLoadMigrations_RepoSchema(t *testing.T) {
	got, err := LoadMigrations(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - load repo migrations: %v", migrationsTestPrefix, err)
	}
	if len(got) < 2 || got[0].Name != "001_bridge_call_log.sql" {
		t.Fatalf("%s - unexpected repo migrations: %+v", migrationsTestPrefix, got)
	}
}
