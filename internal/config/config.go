// Package config loads readlog settings from defaults, an optional YAML
// file and READLOG_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Library  LibraryConfig  `mapstructure:"library"`
	Search   SearchConfig   `mapstructure:"search"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the store. Driver is memory, sqlite3 or mysql.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LibraryConfig struct {
	NotePolicy      string `mapstructure:"note_policy"`
	DefaultUser     string `mapstructure:"default_user"`
	DefaultPassword string `mapstructure:"default_password"`
}

type SearchConfig struct {
	Provider          string        `mapstructure:"provider"`
	FallbackProvider  string        `mapstructure:"fallback_provider"`
	GoogleAPIKey      string        `mapstructure:"google_api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Limit             int           `mapstructure:"limit"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

type OCRConfig struct {
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxImageBytes     int64         `mapstructure:"max_image_bytes"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig enables response caching when URL is set
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./data/readlog.db")

	v.SetDefault("library.note_policy", "orphan")
	v.SetDefault("library.default_user", "user")
	v.SetDefault("library.default_password", "password")

	v.SetDefault("search.provider", "openlibrary")
	v.SetDefault("search.fallback_provider", "")
	v.SetDefault("search.google_api_key", "")
	v.SetDefault("search.timeout", "8s")
	v.SetDefault("search.limit", 20)
	v.SetDefault("search.requests_per_second", 5)
	v.SetDefault("search.cache_ttl", "1h")

	v.SetDefault("ocr.provider", "google")
	v.SetDefault("ocr.api_key", "")
	v.SetDefault("ocr.model", "")
	v.SetDefault("ocr.timeout", "10s")
	v.SetDefault("ocr.max_image_bytes", 5<<20)
	v.SetDefault("ocr.requests_per_second", 2)
	v.SetDefault("ocr.cache_ttl", "24h")

	v.SetDefault("redis.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. path may be empty, in which case readlog.yaml
// is looked up in the working directory and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("READLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known provider variables
	if err := v.BindEnv("search.google_api_key", "READLOG_SEARCH_GOOGLE_API_KEY", "GOOGLE_BOOKS_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("ocr.api_key", "READLOG_OCR_API_KEY", "GOOGLE_CLOUD_VISION_API_KEY"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("readlog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown drivers, policies and providers
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "memory", "sqlite3", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn: required"))
	}

	switch c.Library.NotePolicy {
	case "", "orphan", "cascade", "restrict":
	default:
		errs = append(errs, fmt.Errorf("library.note_policy: unknown policy %q", c.Library.NotePolicy))
	}
	if c.Library.DefaultUser == "" {
		errs = append(errs, errors.New("library.default_user: required"))
	}

	for key, name := range map[string]string{
		"search.provider":          c.Search.Provider,
		"search.fallback_provider": c.Search.FallbackProvider,
	} {
		switch name {
		case "", "catalog", "openlibrary", "googlebooks":
		default:
			errs = append(errs, fmt.Errorf("%s: unknown provider %q", key, name))
		}
	}
	if c.Search.Provider != "" && c.Search.Provider == c.Search.FallbackProvider {
		errs = append(errs, errors.New("search.fallback_provider: must differ from search.provider"))
	}

	switch c.OCR.Provider {
	case "google", "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("ocr.provider: unknown provider %q", c.OCR.Provider))
	}
	if c.OCR.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("ocr.max_image_bytes: must be positive"))
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server.mode: unknown mode %q", c.Server.Mode))
	}

	return errors.Join(errs...)
}
