package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Download  DownloadConfig  `yaml:"download"`
	Source    SourceConfig    `yaml:"source"`
	Remux     RemuxConfig     `yaml:"remux"`
	Session   SessionConfig   `yaml:"session"`
	History   HistoryConfig   `yaml:"history"`
	Selection SelectionConfig `yaml:"selection"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9847"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"15m"`
	// RateLimit is requests per minute per client IP on /api/v1. Zero disables it.
	RateLimit int `yaml:"rate_limit" envconfig:"SERVER_RATE_LIMIT" default:"60"`
}

// StorageConfig holds the work root layout.
type StorageConfig struct {
	WorkRoot    string `yaml:"work_root" envconfig:"STORAGE_WORK_ROOT" default:"/data/media"`
	TitleMaxLen int    `yaml:"title_max_len" envconfig:"STORAGE_TITLE_MAX_LEN" default:"20"`
	// MinFreeFactor is how many times the estimated download size must be
	// free before a job starts.
	MinFreeFactor float64 `yaml:"min_free_factor" envconfig:"STORAGE_MIN_FREE_FACTOR" default:"2"`
}

// DownloadConfig holds stream fetch configuration.
type DownloadConfig struct {
	Timeout     time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"30s"`
	ReadTimeout time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT" default:"60s"`
	UserAgent   string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	Referer     string        `yaml:"referer" envconfig:"DOWNLOAD_REFERER"`
}

// SourceConfig points at the metadata collaborator.
type SourceConfig struct {
	BaseURL       string        `yaml:"base_url" envconfig:"SOURCE_BASE_URL"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"SOURCE_TIMEOUT" default:"20s"`
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"SOURCE_MAX_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"SOURCE_RETRY_DELAY" default:"1s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"SOURCE_MAX_RETRY_DELAY" default:"10s"`
}

// RemuxConfig holds ffmpeg settings.
type RemuxConfig struct {
	FFmpegPath   string `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	AudioCodec   string `yaml:"audio_codec" envconfig:"REMUX_AUDIO_CODEC" default:"aac"`
	AudioBitrate string `yaml:"audio_bitrate" envconfig:"REMUX_AUDIO_BITRATE" default:"128k"`
}

// SessionConfig selects where pending offers live between resolve and redeem.
type SessionConfig struct {
	Backend       string        `yaml:"backend" envconfig:"SESSION_BACKEND" default:"memory"`
	TTL           time.Duration `yaml:"ttl" envconfig:"SESSION_TTL" default:"30m"`
	RedisAddr     string        `yaml:"redis_addr" envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string        `yaml:"redis_prefix" envconfig:"REDIS_PREFIX" default:"mediagrab:session:"`
}

// HistoryConfig locates the job history database. An empty path keeps
// history in memory.
type HistoryConfig struct {
	SQLitePath string `yaml:"sqlite_path" envconfig:"HISTORY_SQLITE_PATH" default:"/data/media/history.db"`
}

// SelectionConfig tunes format selection.
type SelectionConfig struct {
	UnknownSize string `yaml:"unknown_size" envconfig:"SELECTION_UNKNOWN_SIZE" default:"skip"`
	// Profiles overrides or extends the built-in tier profiles.
	Profiles map[string][]TierConfig `yaml:"profiles"`
}

// TierConfig is one quality tier of a profile.
type TierConfig struct {
	Quality   string  `yaml:"quality"`
	CeilingMB float64 `yaml:"ceiling_mb"`
}

// SweeperConfig controls the background cleanup loop.
type SweeperConfig struct {
	Interval   time.Duration `yaml:"interval" envconfig:"SWEEPER_INTERVAL" default:"5m"`
	ScratchAge time.Duration `yaml:"scratch_age" envconfig:"SWEEPER_SCRATCH_AGE" default:"2h"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.Storage.WorkRoot == "" {
		return fmt.Errorf("STORAGE_WORK_ROOT is required")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("SOURCE_BASE_URL is required")
	}
	if c.Storage.TitleMaxLen <= 0 {
		return fmt.Errorf("STORAGE_TITLE_MAX_LEN must be positive")
	}
	switch strings.ToLower(c.Session.Backend) {
	case "memory", "redis":
	default:
		return fmt.Errorf("SESSION_BACKEND must be memory or redis, got %q", c.Session.Backend)
	}
	switch strings.ToLower(c.Selection.UnknownSize) {
	case "", "skip", "flag":
	default:
		return fmt.Errorf("SELECTION_UNKNOWN_SIZE must be skip or flag, got %q", c.Selection.UnknownSize)
	}
	for name, tiers := range c.Selection.Profiles {
		if len(tiers) == 0 {
			return fmt.Errorf("profile %q has no tiers", name)
		}
		for _, t := range tiers {
			if t.CeilingMB <= 0 {
				return fmt.Errorf("profile %q tier %q: ceiling_mb must be positive", name, t.Quality)
			}
		}
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
