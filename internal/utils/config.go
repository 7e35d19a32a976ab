package utils

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration, loaded once at startup.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Limits struct {
		MaxUploadBytes int `yaml:"max_upload_bytes"`
	} `yaml:"limits"`

	Convert struct {
		// Backend selects the conversion engine: "auto", "libreoffice" or "word".
		Backend         string `yaml:"backend"`
		LibreOfficePath string `yaml:"libreoffice_path"`
		TimeoutSecs     int    `yaml:"timeout_secs"`
		TempDir         string `yaml:"temp_dir"`
	} `yaml:"convert"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
	} `yaml:"cache"`

	RateLimiter struct {
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
		UserLimit         int           `yaml:"user_limit"`
		Interval          time.Duration `yaml:"interval"`
	} `yaml:"rate_limiter"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	var cfg Config
	cfg.Server.Host = ""
	cfg.Server.Port = ":5005"
	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 7
	cfg.Limits.MaxUploadBytes = 16 * 1024 * 1024
	cfg.Convert.Backend = "auto"
	cfg.Convert.TimeoutSecs = 120
	cfg.Convert.TempDir = os.TempDir()
	cfg.Cache.PDFCacheTTL = 24 * time.Hour
	cfg.RateLimiter.Interval = time.Minute
	return cfg
}

// LoadConfig reads the YAML config from CONFIG_PATH (or ./config.yaml) and
// fills in defaults for anything left unset. A missing file is not an error;
// the defaults describe a fully working local setup.
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	cfg := DefaultConfig()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(fmt.Sprintf("invalid config %s: %v", path, err))
		}
	}

	applyDefaults(&cfg)

	// PORT is the conventional container/platform override for the listen port.
	if p := os.Getenv("PORT"); p != "" {
		cfg.Server.Port = ":" + p
	}

	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":5005"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Limits.MaxUploadBytes <= 0 {
		cfg.Limits.MaxUploadBytes = 16 * 1024 * 1024
	}
	if cfg.Convert.Backend == "" {
		cfg.Convert.Backend = "auto"
	}
	if cfg.Convert.TimeoutSecs <= 0 {
		cfg.Convert.TimeoutSecs = 120
	}
	if cfg.Convert.TempDir == "" {
		cfg.Convert.TempDir = os.TempDir()
	}
	if cfg.Cache.PDFCacheTTL <= 0 {
		cfg.Cache.PDFCacheTTL = 24 * time.Hour
	}
	if cfg.RateLimiter.Interval <= 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
}
