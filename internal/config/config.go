package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "FIQH"

type Config struct {
	Port string

	// Local cache: "file", "sqlite" or "memory".
	CacheBackend string
	CachePath    string

	// Remote store: "none", "memory", "postgres", "mysql" or "firestore".
	RemoteBackend string
	DatabaseDSN   string
	RemoteTimeout time.Duration

	GCPProjectID string
	GCPLocation  string
	UseVertex    bool
	APIKey       string

	ModelName         string
	ThinkingModelName string
	TTSModelName      string
	UseMockLLM        bool // true = use mock generator and synthesizer
	HistoryLimit      int
	TTSRatePerSec     float64

	LogLevel string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("cache_backend", "file")
	v.SetDefault("cache_path", "")
	v.SetDefault("remote_backend", "none")
	v.SetDefault("database_dsn", "")
	v.SetDefault("remote_timeout", "10s")
	v.SetDefault("gcp_project", "")
	v.SetDefault("gcp_location", "us-central1")
	v.SetDefault("use_vertex", false)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("thinking_model_name", "gemini-2.5-pro")
	v.SetDefault("tts_model_name", "gemini-2.5-flash-preview-tts")
	v.SetDefault("history_limit", 10)
	v.SetDefault("tts_rate_per_sec", 2.0)
	v.SetDefault("log_level", "info")
	return v
}

// Load reads an optional .env file, then FIQH_* env vars, and builds the config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := newViper()

	cfg := &Config{
		Port: v.GetString("port"),

		CacheBackend: strings.ToLower(v.GetString("cache_backend")),
		CachePath:    v.GetString("cache_path"),

		RemoteBackend: strings.ToLower(v.GetString("remote_backend")),
		DatabaseDSN:   v.GetString("database_dsn"),
		RemoteTimeout: v.GetDuration("remote_timeout"),

		GCPProjectID: v.GetString("gcp_project"),
		GCPLocation:  v.GetString("gcp_location"),
		UseVertex:    v.GetBool("use_vertex"),
		APIKey:       v.GetString("gemini_api_key"),

		ModelName:         v.GetString("model_name"),
		ThinkingModelName: v.GetString("thinking_model_name"),
		TTSModelName:      v.GetString("tts_model_name"),
		HistoryLimit:      v.GetInt("history_limit"),
		TTSRatePerSec:     v.GetFloat64("tts_rate_per_sec"),

		LogLevel: v.GetString("log_level"),
	}

	// Without credentials the mock is the only thing that can answer.
	hasCredentials := cfg.APIKey != "" || cfg.UseVertex
	if v.IsSet("use_mock_llm") {
		cfg.UseMockLLM = v.GetBool("use_mock_llm")
	} else {
		cfg.UseMockLLM = !hasCredentials
	}

	if cfg.CachePath == "" {
		cfg.CachePath = defaultCachePath(cfg.CacheBackend)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend names and the settings each backend needs.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}

	switch c.RemoteBackend {
	case "none", "memory":
	case "postgres", "mysql":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("FIQH_DATABASE_DSN must be set for the %s remote backend", c.RemoteBackend)
		}
	case "firestore":
		if c.GCPProjectID == "" {
			return fmt.Errorf("FIQH_GCP_PROJECT must be set for the firestore remote backend")
		}
	default:
		return fmt.Errorf("unknown remote backend %q", c.RemoteBackend)
	}

	if c.UseVertex && c.GCPProjectID == "" {
		return fmt.Errorf("FIQH_GCP_PROJECT must be set when FIQH_USE_VERTEX is on")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("FIQH_HISTORY_LIMIT must not be negative")
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("FIQH_REMOTE_TIMEOUT must be positive")
	}
	return nil
}

func defaultCachePath(backend string) string {
	name := "cache.json"
	if backend == "sqlite" {
		name = "cache.db"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".fiqh-assistant", name)
}
