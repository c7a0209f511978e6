package migrate

import (
	"io/fs"
	"strings"
	"testing"
)

func TestNewRequiresPool(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestEmbeddedMigrationsCreateDevEnvs(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, migrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	data, err := fs.ReadFile(migrationFiles, migrationsDir+"/"+entries[0].Name())
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(data)
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "CREATE TABLE IF NOT EXISTS dev_envs", "ENUM ('dev', 'stage')"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}
