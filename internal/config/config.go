package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"kangsantri/internal/state"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

var (
	ErrMissingBotToken   = errors.New("BOT_TOKEN is required")
	ErrMissingOwnerID    = errors.New("OWNER_USER_ID is required and must be > 0")
	ErrMissingStateDSN   = errors.New("STATE_DSN is required for sql backends")
	ErrInvalidBackend    = errors.New("STATE_BACKEND must be sqlite, postgres, redis or memory")
	ErrInvalidTheme      = errors.New("DEFAULT_THEME must be light or dark")
	ErrMissingWebhookURL = errors.New("WEBHOOK_URL is required when polling is off")
)

type Config struct {
	BotToken    string `toml:"bot_token"`
	OwnerUserID int64  `toml:"owner_user_id"`
	DevPolling  bool   `toml:"dev_polling"`

	Webhook   WebhookConfig   `toml:"webhook"`
	State     StateConfig     `toml:"state"`
	Redis     RedisConfig     `toml:"redis"`
	Worker    WorkerConfig    `toml:"worker"`
	HTTP      HTTPConfig      `toml:"http"`
	Rate      RateConfig      `toml:"rate"`
	Crypto    CryptoConfig    `toml:"crypto"`
	Providers ProvidersConfig `toml:"providers"`
	Log       LogConfig       `toml:"log"`
}

type WebhookConfig struct {
	ListenAddr     string        `toml:"listen_addr"`
	PublicURL      string        `toml:"public_url"`
	SecretPath     string        `toml:"secret_path"`
	SecretToken    string        `toml:"secret_token"`
	HealthPath     string        `toml:"health_path"`
	MetricsPath    string        `toml:"metrics_path"`
	WebhookTimeout time.Duration `toml:"timeout"`
}

type StateConfig struct {
	Backend      string        `toml:"backend"`
	DSN          string        `toml:"dsn"`
	AutoMigrate  bool          `toml:"auto_migrate"`
	KeyPrefix    string        `toml:"key_prefix"`
	SaveTimeout  time.Duration `toml:"save_timeout"`
	DefaultTheme string        `toml:"default_theme"`
}

type RedisConfig struct {
	Addr        string        `toml:"addr"`
	Password    string        `toml:"password"`
	DB          int           `toml:"db"`
	QueueStream string        `toml:"queue_stream"`
	QueueGroup  string        `toml:"queue_group"`
	QueueBlock  time.Duration `toml:"queue_block"`
	UpdateTTL   time.Duration `toml:"update_ttl"`
	WizardTTL   time.Duration `toml:"wizard_ttl"`
}

type WorkerConfig struct {
	Concurrency  int           `toml:"concurrency"`
	ConsumerName string        `toml:"consumer_name"`
	JobTimeout   time.Duration `toml:"job_timeout"`
}

type HTTPConfig struct {
	ClientTimeout time.Duration `toml:"client_timeout"`
}

type RateConfig struct {
	PerHour int64 `toml:"per_hour"`
}

// CryptoConfig holds the master keys for sealing stored API secrets. With no
// keys configured secrets are stored as given.
type CryptoConfig struct {
	CurrentKeyID string            `toml:"current_key_id"`
	MasterKeys   map[string]string `toml:"master_keys"`
	Keys         map[string][]byte `toml:"-"`
}

func (c CryptoConfig) Enabled() bool {
	return len(c.Keys) > 0
}

type ProvidersConfig struct {
	GeminiBaseURL     string `toml:"gemini_base_url"`
	OpenRouterBaseURL string `toml:"openrouter_base_url"`
	SiteURL           string `toml:"site_url"`
	SiteName          string `toml:"site_name"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func Default() *Config {
	return &Config{
		DevPolling: true,
		Webhook: WebhookConfig{
			ListenAddr:     ":8080",
			SecretPath:     "telegram",
			HealthPath:     "/healthz",
			MetricsPath:    "/metrics",
			WebhookTimeout: 8 * time.Second,
		},
		State: StateConfig{
			Backend:      BackendSQLite,
			DSN:          "file:kangsantri.db?_pragma=busy_timeout(5000)",
			AutoMigrate:  true,
			KeyPrefix:    "kangsantri:state:",
			SaveTimeout:  5 * time.Second,
			DefaultTheme: string(state.ThemeLight),
		},
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			QueueStream: "kangsantri:jobs",
			QueueGroup:  "kangsantri-workers",
			QueueBlock:  5 * time.Second,
			UpdateTTL:   6 * time.Hour,
			WizardTTL:   20 * time.Minute,
		},
		Worker: WorkerConfig{
			Concurrency:  2,
			ConsumerName: hostnameOr("worker"),
			JobTimeout:   2 * time.Minute,
		},
		HTTP: HTTPConfig{
			ClientTimeout: 90 * time.Second,
		},
		Rate: RateConfig{
			PerHour: 60,
		},
		Providers: ProvidersConfig{
			SiteURL:  "https://github.com/kangsantri",
			SiteName: "Kang Santri",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads defaults, then the TOML file named by KANGSANTRI_CONFIG if set,
// then environment variables, each layer overriding the previous one.
func Load() (*Config, error) {
	cfg := Default()
	if path := mustEnv("KANGSANTRI_CONFIG", ""); path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cc, err := loadCryptoConfig(cfg.Crypto)
	if err != nil {
		return nil, err
	}
	cfg.Crypto = cc
	return cfg, nil
}

func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.BotToken = mustEnv("BOT_TOKEN", cfg.BotToken)
	cfg.OwnerUserID = mustInt64("OWNER_USER_ID", cfg.OwnerUserID)
	cfg.DevPolling = mustBool("DEV_POLLING", cfg.DevPolling)

	w := &cfg.Webhook
	w.ListenAddr = mustEnv("WEBHOOK_LISTEN_ADDR", w.ListenAddr)
	w.PublicURL = mustEnv("WEBHOOK_URL", w.PublicURL)
	w.SecretPath = strings.Trim(mustEnv("WEBHOOK_SECRET_PATH", w.SecretPath), "/")
	w.SecretToken = mustEnv("WEBHOOK_SECRET_TOKEN", w.SecretToken)
	w.HealthPath = mustEnv("HEALTH_PATH", w.HealthPath)
	w.MetricsPath = mustEnv("METRICS_PATH", w.MetricsPath)
	w.WebhookTimeout = mustDuration("WEBHOOK_TIMEOUT", w.WebhookTimeout)

	s := &cfg.State
	s.Backend = strings.ToLower(mustEnv("STATE_BACKEND", s.Backend))
	s.DSN = mustEnv("STATE_DSN", s.DSN)
	s.AutoMigrate = mustBool("AUTO_MIGRATE", s.AutoMigrate)
	s.KeyPrefix = mustEnv("STATE_KEY_PREFIX", s.KeyPrefix)
	s.SaveTimeout = mustDuration("STATE_SAVE_TIMEOUT", s.SaveTimeout)
	s.DefaultTheme = strings.ToLower(mustEnv("DEFAULT_THEME", s.DefaultTheme))

	r := &cfg.Redis
	r.Addr = mustEnv("REDIS_ADDR", r.Addr)
	r.Password = mustEnv("REDIS_PASSWORD", r.Password)
	r.DB = mustInt("REDIS_DB", r.DB)
	r.QueueStream = mustEnv("QUEUE_STREAM", r.QueueStream)
	r.QueueGroup = mustEnv("QUEUE_GROUP", r.QueueGroup)
	r.QueueBlock = mustDuration("QUEUE_BLOCK", r.QueueBlock)
	r.UpdateTTL = mustDuration("UPDATE_DEDUPE_TTL", r.UpdateTTL)
	r.WizardTTL = mustDuration("WIZARD_TTL", r.WizardTTL)

	cfg.Worker.Concurrency = mustInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.ConsumerName = mustEnv("WORKER_CONSUMER_NAME", cfg.Worker.ConsumerName)
	cfg.Worker.JobTimeout = mustDuration("WORKER_JOB_TIMEOUT", cfg.Worker.JobTimeout)
	cfg.HTTP.ClientTimeout = mustDuration("HTTP_TIMEOUT", cfg.HTTP.ClientTimeout)
	cfg.Rate.PerHour = mustInt64("RATE_LIMIT_PER_HOUR", cfg.Rate.PerHour)

	p := &cfg.Providers
	p.GeminiBaseURL = mustEnv("GEMINI_BASE_URL", p.GeminiBaseURL)
	p.OpenRouterBaseURL = mustEnv("OPENROUTER_BASE_URL", p.OpenRouterBaseURL)
	p.SiteURL = mustEnv("OPENROUTER_SITE_URL", p.SiteURL)
	p.SiteName = mustEnv("OPENROUTER_SITE_NAME", p.SiteName)

	cfg.Log.Level = strings.ToLower(mustEnv("LOG_LEVEL", cfg.Log.Level))
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return ErrMissingBotToken
	}
	if c.OwnerUserID <= 0 {
		return ErrMissingOwnerID
	}
	switch c.State.Backend {
	case BackendSQLite, BackendPostgres:
		if c.State.DSN == "" {
			return ErrMissingStateDSN
		}
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidBackend, c.State.Backend)
	}
	if !state.Theme(c.State.DefaultTheme).Valid() {
		return ErrInvalidTheme
	}
	if !c.DevPolling && c.Webhook.PublicURL == "" {
		return ErrMissingWebhookURL
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1, got %d", c.Worker.Concurrency)
	}
	return nil
}

func loadCryptoConfig(fromFile CryptoConfig) (CryptoConfig, error) {
	keysB64 := map[string]string{}
	for id, val := range fromFile.MasterKeys {
		if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
			continue
		}
		keysB64[id] = val
	}

	if raw := mustEnv("MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			continue
		}
		k, v := parts[0], parts[1]
		if !strings.HasPrefix(k, "MASTER_KEY_") || !strings.HasSuffix(k, "_B64") {
			continue
		}
		if k == "MASTER_KEY_B64" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "MASTER_KEY_"), "_B64")
		if id == "" || v == "" {
			continue
		}
		keysB64[id] = v
	}

	current := mustEnv("MASTER_KEY_CURRENT_ID", fromFile.CurrentKeyID)
	if singleton := mustEnv("MASTER_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, nil
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		if len(keys) > 1 {
			return CryptoConfig{}, errors.New("MASTER_KEY_CURRENT_ID is required with more than one key")
		}
		for id := range keys {
			current = id
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{
		CurrentKeyID: current,
		Keys:         keys,
	}, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func hostnameOr(def string) string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return def
	}
	return h
}
