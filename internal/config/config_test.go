package config

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("OWNER_USER_ID", "42")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.State.Backend != BackendSQLite || !cfg.State.AutoMigrate {
		t.Fatalf("unexpected state defaults %+v", cfg.State)
	}
	if cfg.State.SaveTimeout != 5*time.Second || cfg.State.DefaultTheme != "light" {
		t.Fatalf("unexpected state defaults %+v", cfg.State)
	}
	if cfg.Crypto.Enabled() {
		t.Fatalf("crypto must be off without keys")
	}
	if cfg.Rate.PerHour != 60 {
		t.Fatalf("unexpected rate %d", cfg.Rate.PerHour)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "kangsantri.toml")
	body := strings.Join([]string{
		`owner_user_id = 7`,
		`[state]`,
		`backend = "redis"`,
		`save_timeout = "2s"`,
		`default_theme = "dark"`,
		`[rate]`,
		`per_hour = 5`,
		`[providers]`,
		`openrouter_base_url = "https://proxy.example/v1"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KANGSANTRI_CONFIG", path)
	t.Setenv("RATE_LIMIT_PER_HOUR", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OwnerUserID != 42 {
		t.Fatalf("env must override the file, got owner %d", cfg.OwnerUserID)
	}
	if cfg.State.Backend != BackendRedis || cfg.State.SaveTimeout != 2*time.Second || cfg.State.DefaultTheme != "dark" {
		t.Fatalf("file values not applied: %+v", cfg.State)
	}
	if cfg.Rate.PerHour != 0 {
		t.Fatalf("env must override rate, got %d", cfg.Rate.PerHour)
	}
	if cfg.Providers.OpenRouterBaseURL != "https://proxy.example/v1" {
		t.Fatalf("unexpected providers %+v", cfg.Providers)
	}
	if cfg.Redis.QueueStream != "kangsantri:jobs" {
		t.Fatalf("defaults must survive a partial file, got %q", cfg.Redis.QueueStream)
	}
}

func TestLoadBadFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[state\nbackend ="), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KANGSANTRI_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want error
	}{
		{"token", func(c *Config) { c.BotToken = "" }, ErrMissingBotToken},
		{"owner", func(c *Config) { c.OwnerUserID = 0 }, ErrMissingOwnerID},
		{"backend", func(c *Config) { c.State.Backend = "mongo" }, ErrInvalidBackend},
		{"dsn", func(c *Config) { c.State.DSN = "" }, ErrMissingStateDSN},
		{"theme", func(c *Config) { c.State.DefaultTheme = "blue" }, ErrInvalidTheme},
		{"webhook", func(c *Config) { c.DevPolling = false }, ErrMissingWebhookURL},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.BotToken = "t"
		cfg.OwnerUserID = 1
		tc.mut(cfg)
		if err := cfg.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	cfg := Default()
	cfg.BotToken = "t"
	cfg.OwnerUserID = 1
	cfg.State.Backend = BackendMemory
	cfg.State.DSN = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory backend needs no dsn: %v", err)
	}
}

func TestCryptoKeys(t *testing.T) {
	setBaseEnv(t)
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	t.Setenv("MASTER_KEY_B64", key)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Crypto.Enabled() || cfg.Crypto.CurrentKeyID != "default" {
		t.Fatalf("unexpected crypto %+v", cfg.Crypto)
	}

	t.Setenv("MASTER_KEY_B64", base64.StdEncoding.EncodeToString([]byte("short")))
	if _, err := Load(); err == nil {
		t.Fatalf("expected key length error")
	}
}

func TestCryptoKeysFromFile(t *testing.T) {
	cc, err := loadCryptoConfig(CryptoConfig{
		CurrentKeyID: "v2",
		MasterKeys: map[string]string{
			"v1": base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", 32))),
			"v2": base64.StdEncoding.EncodeToString([]byte(strings.Repeat("b", 32))),
		},
	})
	if err != nil {
		t.Fatalf("load crypto: %v", err)
	}
	if cc.CurrentKeyID != "v2" || len(cc.Keys) != 2 {
		t.Fatalf("unexpected crypto %+v", cc)
	}

	_, err = loadCryptoConfig(CryptoConfig{MasterKeys: map[string]string{
		"v1": base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", 32))),
		"v2": base64.StdEncoding.EncodeToString([]byte(strings.Repeat("b", 32))),
	}})
	if err == nil {
		t.Fatalf("expected an error when the current key is ambiguous")
	}
}
