package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Defaults()
	cfg.DefaultSession = "work"
	cfg.API.BaseURL = "https://crm.example"
	cfg.Polling.ChatsInterval = Duration{90 * time.Second}
	if err := Save(path, &cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" || loaded.API.BaseURL != "https://crm.example" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Polling.ChatsInterval.Duration != 90*time.Second {
		t.Errorf("chats_interval = %v, want 1m30s", loaded.Polling.ChatsInterval)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_session = "main"

[api]
base_url = "https://crm.example"
account = "shop"
token = "file-token"

[polling]
messages_interval = "20s"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Polling.MessagesInterval.Duration != 20*time.Second {
		t.Errorf("messages_interval = %v", cfg.Polling.MessagesInterval)
	}
	if cfg.Polling.ChatsInterval.Duration != 3*time.Minute {
		t.Errorf("chats_interval default = %v, want 3m", cfg.Polling.ChatsInterval)
	}
	if cfg.Messages.Window != 50 || cfg.Voice.CacheTTL.Duration != 10*time.Minute {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, "env-token")
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[api]\ntoken = \"file-token\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("token = %q, want env-token", cfg.API.Token)
	}
}

func TestBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[polling]\nchats_interval = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted an invalid duration")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Messages.Window != 50 {
		t.Errorf("window = %d, want default 50", cfg.Messages.Window)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv(TokenEnv, "")
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no base url", func(c *Config) { c.API.BaseURL = "" }},
		{"no account", func(c *Config) { c.API.Account = "" }},
		{"no token", func(c *Config) { c.API.Token = "" }},
		{"bad window", func(c *Config) { c.Messages.Window = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.API = API{BaseURL: "https://x", Account: "a", Token: "t"}
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Defaults()
	if err := Save(path, &cfg); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
