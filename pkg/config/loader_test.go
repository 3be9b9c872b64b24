package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoaderLoadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suppress.yaml")
	doc := "suppress:\n  threshold: 5\n  dimensions: [zip, age]\nledger_dsn: runs.db\naddr: \":8090\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	l, err := NewLoader(dir, Options{Service: "suppress", ExplicitPath: "suppress.yaml"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	bundle, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	suppressSec, ok := bundle.Merged["suppress"].(map[string]any)
	if !ok {
		t.Fatalf("expected merged[\"suppress\"] to be a mapping, got %T", bundle.Merged["suppress"])
	}
	if suppressSec["threshold"] == nil {
		t.Fatalf("expected threshold to be present in merged config")
	}
	if bundle.Merged["ledger_dsn"] != "runs.db" {
		t.Fatalf("expected ledger_dsn=runs.db, got %v", bundle.Merged["ledger_dsn"])
	}
}

func TestLoaderEnvOverridesApplyOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suppress.yaml")
	doc := "addr: \":8090\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	t.Setenv("SUPPRESS_ADDR", ":9999")

	l, err := NewLoader(dir, Options{
		Service:            "suppress",
		ExplicitPath:       "suppress.yaml",
		EnableEnvOverrides: true,
		EnvPrefix:          "SUPPRESS_",
	})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	bundle, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bundle.Merged["addr"] != ":9999" {
		t.Fatalf("expected env override to win, got %v", bundle.Merged["addr"])
	}
}

func TestLoaderRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suppress.yaml")
	if err := os.WriteFile(path, []byte("not: [valid"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	l, err := NewLoader(dir, Options{Service: "suppress", ExplicitPath: "suppress.yaml"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatalf("expected an error for malformed yaml")
	}
}
