// Package config loads runtime configuration from an optional .env file, an
// optional YAML file, and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	defaultAddr        = "127.0.0.1:8080"
	defaultSQLitePath  = "./.rivalscope/rivalscope.db"
	defaultRedisAddr   = "127.0.0.1:6379"
	defaultRedisPrefix = "rivalscope"
	defaultOVHModel    = "Mistral-Nemo-Instruct-2407"
	defaultGeminiModel = "gemini-2.5-flash"
)

type Config struct {
	Addr      string          `yaml:"addr"`
	LogLevel  string          `yaml:"log_level"`
	PromptDir string          `yaml:"prompt_dir"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Research  ResearchConfig  `yaml:"research"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type StorageConfig struct {
	StateBackend  string      `yaml:"state_backend"`
	MemoryBackend string      `yaml:"memory_backend"`
	SQLitePath    string      `yaml:"sqlite_path"`
	Redis         RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	TTL      Duration `yaml:"ttl"`
}

type LLMConfig struct {
	Provider     string   `yaml:"provider"`
	OVHBaseURL   string   `yaml:"ovh_base_url"`
	OVHToken     string   `yaml:"ovh_token"`
	OVHModel     string   `yaml:"ovh_model"`
	GeminiAPIKey string   `yaml:"gemini_api_key"`
	GeminiModel  string   `yaml:"gemini_model"`
	Timeout      Duration `yaml:"timeout"`
	MaxAttempts  int      `yaml:"max_attempts"`
}

type SearchConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key"`
}

type ResearchConfig struct {
	Workers        int      `yaml:"workers"`
	CacheFreshness Duration `yaml:"cache_freshness"`
}

type TelemetryConfig struct {
	OTelEnabled bool `yaml:"otel_enabled"`
}

// Duration reads "24h"-style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(raw []byte) error {
	var s string
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func Default() Config {
	return Config{
		Addr:     defaultAddr,
		LogLevel: "info",
		Storage: StorageConfig{
			StateBackend:  "memory",
			MemoryBackend: "memory",
			SQLitePath:    defaultSQLitePath,
			Redis: RedisConfig{
				Addr:   defaultRedisAddr,
				Prefix: defaultRedisPrefix,
				TTL:    Duration(72 * time.Hour),
			},
		},
		LLM: LLMConfig{
			OVHModel:    defaultOVHModel,
			GeminiModel: defaultGeminiModel,
			Timeout:     Duration(60 * time.Second),
			MaxAttempts: 2,
		},
		Research: ResearchConfig{
			Workers:        4,
			CacheFreshness: Duration(24 * time.Hour),
		},
	}
}

// Load reads .env (if present), then the YAML file named by
// RIVALSCOPE_CONFIG (if set), then environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("RIVALSCOPE_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(newEnvOverlay()); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(env *envOverlay) error {
	env.setString("RIVALSCOPE_ADDR", &c.Addr)
	env.setString("LOG_LEVEL", &c.LogLevel)
	env.setString("RIVALSCOPE_PROMPT_DIR", &c.PromptDir)

	s := &c.Storage
	env.setString("RIVALSCOPE_STATE_BACKEND", &s.StateBackend)
	env.setString("RIVALSCOPE_MEMORY_BACKEND", &s.MemoryBackend)
	env.setString("RIVALSCOPE_SQLITE_PATH", &s.SQLitePath)
	env.setString("RIVALSCOPE_REDIS_ADDR", &s.Redis.Addr)
	env.setString("RIVALSCOPE_REDIS_PASSWORD", &s.Redis.Password)
	env.setInt("RIVALSCOPE_REDIS_DB", &s.Redis.DB)
	env.setString("RIVALSCOPE_REDIS_PREFIX", &s.Redis.Prefix)
	env.setDuration("RIVALSCOPE_REDIS_TTL", &s.Redis.TTL)

	l := &c.LLM
	env.setString("RIVALSCOPE_PROVIDER", &l.Provider)
	env.setString("OVH_LLM_BASE_URL", &l.OVHBaseURL)
	env.setString("OVH_AI_ENDPOINTS_ACCESS_TOKEN", &l.OVHToken)
	env.setString("OVH_LLM_MODEL", &l.OVHModel)
	env.setString("GEMINI_API_KEY", &l.GeminiAPIKey)
	env.setString("GEMINI_MODEL", &l.GeminiModel)
	env.setDuration("RIVALSCOPE_LLM_TIMEOUT", &l.Timeout)
	env.setInt("RIVALSCOPE_LLM_MAX_ATTEMPTS", &l.MaxAttempts)

	env.setString("TAVILY_API_KEY", &c.Search.TavilyAPIKey)
	env.setInt("RIVALSCOPE_RESEARCH_WORKERS", &c.Research.Workers)
	env.setDuration("RIVALSCOPE_CACHE_FRESHNESS", &c.Research.CacheFreshness)
	env.setBool("OTEL_ENABLED", &c.Telemetry.OTelEnabled)
	return env.err()
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("RIVALSCOPE_ADDR cannot be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Storage.StateBackend) {
	case "memory", "sqlite", "redis", "hybrid":
	default:
		return fmt.Errorf("RIVALSCOPE_STATE_BACKEND must be memory, sqlite, redis, or hybrid (got %q)", c.Storage.StateBackend)
	}
	switch strings.ToLower(c.Storage.MemoryBackend) {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("RIVALSCOPE_MEMORY_BACKEND must be memory, sqlite, or redis (got %q)", c.Storage.MemoryBackend)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "", "none", "openai", "ovh", "gemini":
	default:
		return fmt.Errorf("RIVALSCOPE_PROVIDER must be openai or gemini (got %q)", c.LLM.Provider)
	}
	if c.Research.Workers <= 0 {
		return fmt.Errorf("RIVALSCOPE_RESEARCH_WORKERS must be > 0")
	}
	if c.Research.CacheFreshness <= 0 {
		return fmt.Errorf("RIVALSCOPE_CACHE_FRESHNESS must be > 0")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("RIVALSCOPE_LLM_TIMEOUT must be > 0")
	}
	if c.LLM.MaxAttempts <= 0 {
		return fmt.Errorf("RIVALSCOPE_LLM_MAX_ATTEMPTS must be > 0")
	}
	return nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q is not a log level", c.LogLevel)
	}
	return lvl, nil
}
