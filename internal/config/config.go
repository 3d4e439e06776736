// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port        int           `yaml:"port"`
	APIKey      string        `yaml:"api_key"`
	JWTSecret   string        `yaml:"jwt_secret"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	CORSOrigins []string      `yaml:"cors_origins"`
	// CreateRateLimit is the number of job submissions allowed per client IP per minute. 0 disables it.
	CreateRateLimit int `yaml:"create_rate_limit"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"` // postgres|sqlite|memory
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider"` // openai|gemini|multi|noop
	OpenAIKey       string        `yaml:"openai_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiURL       string        `yaml:"gemini_url"`
	DefaultModel    string        `yaml:"default_model"`
	Temperature     float64       `yaml:"temperature"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration `yaml:"timeout"`
}

type ImagesConfig struct {
	Provider   string        `yaml:"provider"` // pexels|noop
	PexelsKey  string        `yaml:"pexels_key"`
	BaseURL    string        `yaml:"base_url"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

type PipelineConfig struct {
	Workers            int           `yaml:"workers"`
	QueueSize          int           `yaml:"queue_size"`
	StoreRetryAttempts int           `yaml:"store_retry_attempts"`
	StoreRetryBase     time.Duration `yaml:"store_retry_base"`
	StatusCacheTTL     time.Duration `yaml:"status_cache_ttl"`
	// LockTTL bounds a Redis job lock; it must outlive one stage call.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

type JanitorConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	RetentionHours float64       `yaml:"retention_hours"`
}

type ReconcilerConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type TelegramConfig struct {
	Token        string  `yaml:"token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Admin      AdminConfig      `yaml:"admin"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	AI         AIConfig         `yaml:"ai"`
	Images     ImagesConfig     `yaml:"images"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Janitor    JanitorConfig    `yaml:"janitor"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Telegram   TelegramConfig   `yaml:"telegram"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev flags, then delegates to Load.
func LoadConfig() (*Config, error) {
	var configPath string
	var envPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file with secrets")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	// a missing .env is fine; real deployments inject env directly
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load env: %w", err)
		}
	}
	return Load(configPath, dev)
}

// Load reads the YAML file, overlays secrets from the environment, applies
// defaults and validates the result.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	envStr(&cfg.Store.URL, "DATABASE_URL")
	envStr(&cfg.Redis.URL, "REDIS_URL")
	envStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	envStr(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	envStr(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	envStr(&cfg.Images.PexelsKey, "PEXELS_API_KEY")
	envStr(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	envStr(&cfg.Admin.APIKey, "ADMIN_API_KEY")
	envStr(&cfg.Admin.JWTSecret, "ADMIN_JWT_SECRET")
	if v := os.Getenv("ADMIN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Admin.Port = p
		}
	}
}

func envStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 12 * time.Hour
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "jobs.db"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = 0.7
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 90 * time.Second
	}

	if cfg.Images.Provider == "" {
		cfg.Images.Provider = "pexels"
	}
	if cfg.Images.BaseURL == "" {
		cfg.Images.BaseURL = "https://api.pexels.com/v1"
	}
	if cfg.Images.MaxResults <= 0 || cfg.Images.MaxResults > 5 {
		cfg.Images.MaxResults = 5
	}
	if cfg.Images.Timeout <= 0 {
		cfg.Images.Timeout = 15 * time.Second
	}
	if cfg.Images.CacheTTL <= 0 {
		cfg.Images.CacheTTL = 6 * time.Hour
	}

	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = 64
	}
	if cfg.Pipeline.StoreRetryAttempts <= 0 {
		cfg.Pipeline.StoreRetryAttempts = 5
	}
	if cfg.Pipeline.StoreRetryBase <= 0 {
		cfg.Pipeline.StoreRetryBase = 200 * time.Millisecond
	}
	if cfg.Pipeline.StatusCacheTTL <= 0 {
		cfg.Pipeline.StatusCacheTTL = 2 * time.Second
	}

	if cfg.Pipeline.LockTTL <= 0 {
		cfg.Pipeline.LockTTL = stageBudget(cfg) + 30*time.Second
	}

	if cfg.Janitor.Interval <= 0 {
		cfg.Janitor.Interval = 15 * time.Minute
	}
	if cfg.Janitor.RetentionHours <= 0 {
		cfg.Janitor.RetentionHours = 1
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
}

// Validate performs minimal consistency checks.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.URL == "" {
			return errors.New("store.url is required for the postgres driver")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key (OPENAI_API_KEY) is required for the openai provider")
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key (GEMINI_API_KEY) is required for the gemini provider")
		}
	case "multi", "noop":
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	switch c.Images.Provider {
	case "pexels":
		if c.Images.PexelsKey == "" {
			return errors.New("images.pexels_key (PEXELS_API_KEY) is required for the pexels provider")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown images.provider %q", c.Images.Provider)
	}
	if c.Janitor.RetentionHours <= 0 {
		return errors.New("janitor.retention_hours must be positive")
	}
	if b := stageBudget(c); c.Pipeline.LockTTL <= b {
		return fmt.Errorf("pipeline.lock_ttl (%s) must exceed the longest stage timeout (%s)", c.Pipeline.LockTTL, b)
	}
	return nil
}

// stageBudget is the longest a single stage call may hold a job lock.
func stageBudget(c *Config) time.Duration {
	if c.Images.Timeout > c.AI.Timeout {
		return c.Images.Timeout
	}
	return c.AI.Timeout
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
