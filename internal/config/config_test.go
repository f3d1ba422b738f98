package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  port: 9000
backend:
  baseUrl: http://backend:8000
  timeout: 30s
widget:
  inactivityTimeout: 2m
  embeds:
    - userId: acct
      apiKey: key
      agentId: a1
    - userId: acct
      agentId: a2
store:
  driver: sqlite
  sqlitePath: /tmp/history.db
log:
  level: debug
`

func TestParseAndDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.Server.Port != 9000 || cfg.Server.Name != "widget-gateway" {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", cfg.Backend.Timeout)
	}
	if cfg.Widget.InactivityTimeout != 2*time.Minute {
		t.Errorf("expected 2m inactivity timeout, got %s", cfg.Widget.InactivityTimeout)
	}
	if cfg.Widget.Greeting != "Hey there! How can I assist you today?" || cfg.Widget.DefaultPlatform != "zoho desk" {
		t.Errorf("unexpected widget defaults %+v", cfg.Widget)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.KeyPrefix != "chat_" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.Server.Port != 8090 || cfg.Backend.BaseURL != "http://localhost:8000" || cfg.Backend.Timeout != 60*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Widget.InactivityTimeout != 5*time.Minute || cfg.Store.Driver != "file" || cfg.Log.Level != "info" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestValidEmbeds(t *testing.T) {
	cfg, _ := Parse([]byte(sampleYAML))

	valid, errs := cfg.ValidEmbeds()
	if len(valid) != 1 || valid[0].AgentID != "a1" {
		t.Fatalf("expected only a1 to be valid, got %+v", valid)
	}
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
	var cfgErr *ConfigError
	if !errors.As(errs[0], &cfgErr) || cfgErr.Field != "apiKey" {
		t.Errorf("expected ConfigError on apiKey, got %v", errs[0])
	}
}

func TestEmbedValidateListsMissingFields(t *testing.T) {
	err := EmbedConfig{}.Validate()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "userId, apiKey, agentId" {
		t.Errorf("unexpected field list %q", cfgErr.Field)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg, _ := Parse(nil)
	cfg.ApplyDefaults()
	cfg.Store.Driver = "mongo"

	var cfgErr *ConfigError
	if err := cfg.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != "store.driver" {
		t.Fatalf("expected store.driver ConfigError, got %v", err)
	}
}

func TestApplyEnvOverridesEmbeds(t *testing.T) {
	t.Setenv(EnvUserID, "env-acct")
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvAgentIDs, "x1, x2,,")
	t.Setenv(EnvStore, "redis")

	cfg, _ := Parse([]byte(sampleYAML))
	cfg.ApplyEnv()

	if cfg.Store.Driver != "redis" {
		t.Errorf("expected store driver override, got %q", cfg.Store.Driver)
	}
	embeds := cfg.Widget.Embeds
	if len(embeds) != 2 {
		t.Fatalf("expected 2 embeds from env, got %+v", embeds)
	}
	for i, id := range []string{"x1", "x2"} {
		want := EmbedConfig{UserID: "env-acct", APIKey: "env-key", AgentID: id}
		if embeds[i] != want {
			t.Errorf("embed[%d] = %+v, want %+v", i, embeds[i], want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Backend.BaseURL != "http://backend:8000" || cfg.Log.Level != "debug" {
		t.Errorf("unexpected config %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
