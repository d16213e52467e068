//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestJSONFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldmatch", "config.json")

	b := openJSONFileBackend(path)
	if err := b.SetString("llm.model", "gpt-4o-mini"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 4200); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	reopened := openJSONFileBackend(path)
	if v, ok, err := reopened.GetString("llm.model"); err != nil || !ok || v != "gpt-4o-mini" {
		t.Errorf("GetString = %q, %v, %v", v, ok, err)
	}
	if v, ok, err := reopened.GetInt("server.port"); err != nil || !ok || v != 4200 {
		t.Errorf("GetInt = %d, %v, %v", v, ok, err)
	}

	if err := reopened.Delete("server.port"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := openJSONFileBackend(path).GetInt("server.port"); ok {
		t.Error("server.port still present after Delete")
	}
}

func TestJSONFileBackend_HandWrittenValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"server.port": "4300", "llm.requests_per_minute": 1.5, "llm.model": 7}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	b := openJSONFileBackend(path)
	if v, _, err := b.GetInt("server.port"); err != nil || v != 4300 {
		t.Errorf("quoted int = %d, %v", v, err)
	}
	if _, _, err := b.GetInt("llm.requests_per_minute"); err == nil {
		t.Error("expected error for fractional int")
	}
	if v, _, _ := b.GetString("llm.model"); v != "7" {
		t.Errorf("numeric string = %q, want 7", v)
	}
}

func TestJSONFileBackend_CorruptFileFallsBack(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadWith(openJSONFileBackend(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != defaults().Server.Port {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestSecretFile_RoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainGet(keychainService, "openai_api_key"); err == nil {
		t.Fatal("expected error before any secret is stored")
	}
	if err := keychainSet(keychainService, "openai_api_key", "sk-test"); err != nil {
		t.Fatalf("keychainSet: %v", err)
	}
	got, err := keychainGet(keychainService, "openai_api_key")
	if err != nil || string(got) != "sk-test" {
		t.Errorf("keychainGet = %q, %v", got, err)
	}
	if info, err := os.Stat(secretsFilePath()); err != nil || info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file stat = %v, %v", info, err)
	}
}
