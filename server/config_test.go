package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const testSecretHex = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func writeConfig(t *testing.T, cfg map[string]interface{}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(cfg); err != nil {
		t.Fatalf("encoding temp config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"bind_port":     7777,
		"shared_secret": testSecretHex,
	})

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SessionTimeoutSec != defaultSessionTimeoutSec {
		t.Fatalf("SessionTimeoutSec = %d, want %d", cfg.SessionTimeoutSec, defaultSessionTimeoutSec)
	}
	if cfg.BindAddress != "0.0.0.0" {
		t.Fatalf("BindAddress = %q, want 0.0.0.0", cfg.BindAddress)
	}
	if cfg.BindAddr() != "0.0.0.0:7777" {
		t.Fatalf("BindAddr() = %q", cfg.BindAddr())
	}
}

func TestLoadConfigRejectsBadSecret(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"bind_port":     7777,
		"shared_secret": "tooshort",
	})

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for short shared_secret")
	}
}

func TestLoadConfigRejectsMissingPort(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"shared_secret": testSecretHex,
	})

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing bind_port")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSessionTimeoutConversion(t *testing.T) {
	cfg := &Config{SessionTimeoutSec: 120}
	if got := cfg.SessionTimeout().Seconds(); got != 120 {
		t.Fatalf("SessionTimeout() = %v seconds, want 120", got)
	}
}
