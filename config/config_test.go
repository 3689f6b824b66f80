package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.JMT.HashAlgorithm != "keccak256" {
		t.Errorf("HashAlgorithm = %q, want keccak256", cfg.JMT.HashAlgorithm)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollkernel.yaml")
	content := `
datadir: /data/rollup
log_level: debug
storage:
  dir: /data/rollup/chaindata
  cache_size_mb: 512
jmt:
  hash_algorithm: sha256
sequencer:
  bond_amount: 42
kernel:
  policy: fifo
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DataDir != "/data/rollup" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Storage.CacheSizeMB != 512 {
		t.Errorf("CacheSizeMB = %d, want 512", cfg.Storage.CacheSizeMB)
	}
	if cfg.JMT.HashAlgorithm != "sha256" {
		t.Errorf("HashAlgorithm = %q, want sha256", cfg.JMT.HashAlgorithm)
	}
	if cfg.Sequencer.BondAmount != 42 {
		t.Errorf("BondAmount = %d, want 42", cfg.Sequencer.BondAmount)
	}
}

func TestLoadRejectsUnknownHashAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollkernel.yaml")
	os.WriteFile(path, []byte("jmt:\n  hash_algorithm: blake3\n"), 0644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown hash algorithm")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ROLLKERNEL_SEQUENCER_BOND_AMOUNT", "9999")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Sequencer.BondAmount != 9999 {
		t.Errorf("BondAmount = %d, want 9999 from env override", cfg.Sequencer.BondAmount)
	}
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty datadir")
	}
}
