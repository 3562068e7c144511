package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenUsesDefaultsWithoutConfig(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(context.Background(), Options{Workspace: dir, LogLevel: "error"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Config.Server.BasePath != "/v1" {
		t.Fatalf("expected default config, got %+v", a.Config.Server)
	}
	if _, err := os.Stat(filepath.Join(dir, ".sprintlens", "sprintlens.db")); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
	if _, err := a.Engine.Repo.ListCompanies(context.Background()); err != nil {
		t.Fatalf("schema not migrated: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sprintlens.yml"), []byte("log:\n  level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), Options{Workspace: dir}); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestSetEnvValueKeepsOtherKeys(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(EnvPath(dir), []byte("OTHER=1\nSPRINTLENS_COMPANY=old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := SetEnvValue(dir, "SPRINTLENS_COMPANY", "c-new"); err != nil {
		t.Fatalf("set: %v", err)
	}
	t.Setenv("SPRINTLENS_COMPANY", "")
	os.Unsetenv("SPRINTLENS_COMPANY")
	t.Setenv("OTHER", "")
	os.Unsetenv("OTHER")
	if err := LoadEnv(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("SPRINTLENS_COMPANY"); got != "c-new" {
		t.Fatalf("expected c-new, got %q", got)
	}
	if got := os.Getenv("OTHER"); got != "1" {
		t.Fatalf("expected other key kept, got %q", got)
	}
}
