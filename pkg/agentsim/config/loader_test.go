package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mocksnmp/agentsim/pkg/agentsim/config"
)

func tmpDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestPathsFromEnv_Default(t *testing.T) {
	t.Setenv("AGENTSIM_CONFIG_DIRECTORY_PATH", "")
	p := config.PathsFromEnv()
	if p.Root != "/etc/agentsim/config" {
		t.Errorf("Root = %q", p.Root)
	}
}

func TestPathsFromEnv_Override(t *testing.T) {
	t.Setenv("AGENTSIM_CONFIG_DIRECTORY_PATH", "/custom/config")
	p := config.PathsFromEnv()
	if p.Root != "/custom/config" {
		t.Errorf("Root = %q, want /custom/config", p.Root)
	}
}

const endpointsYAML = `
endpoints:
  - udp: "0.0.0.0:11611"
`

const contextsYAML = `
contexts:
  - name: ""
    store_ref: default
    communities: ["public"]
    record_file: /var/lib/agentsim/default.snmprec
`

const limitsYAML = `
pdu_max_bytes: 1200
max_repetitions_cap: 50
per_request_budget_ms: 1500
`

func TestLoad_MinimalTree(t *testing.T) {
	dir := tmpDir(t, map[string]string{
		"endpoints.yaml": endpointsYAML,
		"contexts.yaml":  contextsYAML,
		"limits.yaml":    limitsYAML,
	})

	cfg, err := config.Load(config.Paths{Root: dir}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].UDP != "0.0.0.0:11611" {
		t.Errorf("Endpoints = %+v", cfg.Endpoints)
	}
	if len(cfg.Contexts) != 1 || cfg.Contexts[0].StoreRef != "default" {
		t.Errorf("Contexts = %+v", cfg.Contexts)
	}
	if cfg.Limits.PDUMaxBytes != 1200 {
		t.Errorf("PDUMaxBytes = %d, want 1200", cfg.Limits.PDUMaxBytes)
	}
	if cfg.Limits.PerRequestBudgetMS != 1500 {
		t.Errorf("PerRequestBudgetMS = %d, want 1500", cfg.Limits.PerRequestBudgetMS)
	}
}

func TestLoad_MissingFilesUseDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(config.Paths{Root: dir}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Limits.PDUMaxBytes != 1472 {
		t.Errorf("default PDUMaxBytes = %d, want 1472", cfg.Limits.PDUMaxBytes)
	}
	if cfg.Limits.MaxRepetitionsCap != 1000 {
		t.Errorf("default MaxRepetitionsCap = %d, want 1000", cfg.Limits.MaxRepetitionsCap)
	}
	if len(cfg.Endpoints) != 0 {
		t.Errorf("Endpoints = %+v, want empty", cfg.Endpoints)
	}
}

func TestLoad_MalformedFileReturnsError(t *testing.T) {
	dir := tmpDir(t, map[string]string{
		"limits.yaml": "pdu_max_bytes: [not, a, scalar",
	})
	if _, err := config.Load(config.Paths{Root: dir}, nil); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
