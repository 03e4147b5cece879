package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Catalog   CatalogConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Matching  MatchingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// CatalogConfig holds the catalog source configuration
type CatalogConfig struct {
	Source            string        `mapstructure:"source"` // "http" or "file"
	BaseURL           string        `mapstructure:"base_url"`
	FilePath          string        `mapstructure:"file_path"`
	PageSize          int           `mapstructure:"page_size"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// MatchingConfig holds product matching configuration
type MatchingConfig struct {
	SimilarityThreshold    float64  `mapstructure:"similarity_threshold"`
	SignificantTokens      int      `mapstructure:"significant_tokens"`
	QuantityTolerance      float64  `mapstructure:"quantity_tolerance"`
	StopWords              []string `mapstructure:"stop_words"`
	Brands                 []string `mapstructure:"brands"`
	UnrecognizedUnitPolicy string   `mapstructure:"unrecognized_unit_policy"` // "exclude" or "singleton"
	Workers                int      `mapstructure:"workers"`
	EstimateFactor         float64  `mapstructure:"estimate_factor"`
	EnableFuzzyMatching    bool     `mapstructure:"enable_fuzzy_matching"`
	FuzzyEditDistance      int      `mapstructure:"fuzzy_edit_distance"`
	EnableDebugLogging     bool     `mapstructure:"enable_debug_logging"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/chaniweb/")

	// Environment variable settings
	v.SetEnvPrefix("CHANIWEB")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads ./.env if present. Variables already set in the
// environment win over the file.
func loadEnvFile() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Catalog defaults
	v.SetDefault("catalog.source", "http")
	v.SetDefault("catalog.base_url", "http://localhost:8000")
	v.SetDefault("catalog.file_path", "")
	v.SetDefault("catalog.page_size", 100)
	v.SetDefault("catalog.refresh_interval", "10m")
	v.SetDefault("catalog.requests_per_second", 5)
	v.SetDefault("catalog.timeout", "30s")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "15m")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)

	// Matching defaults
	v.SetDefault("matching.similarity_threshold", 0.6)
	v.SetDefault("matching.significant_tokens", 4)
	v.SetDefault("matching.quantity_tolerance", 0.05)
	v.SetDefault("matching.stop_words", []string{})
	v.SetDefault("matching.brands", []string{})
	v.SetDefault("matching.unrecognized_unit_policy", "exclude")
	v.SetDefault("matching.workers", 4)
	v.SetDefault("matching.estimate_factor", 1.2)
	v.SetDefault("matching.enable_fuzzy_matching", true)
	v.SetDefault("matching.fuzzy_edit_distance", 1)
	v.SetDefault("matching.enable_debug_logging", false)
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Catalog.Source {
	case "http":
		if config.Catalog.BaseURL == "" {
			return fmt.Errorf("catalog base URL is required when source is 'http' (set CHANIWEB_CATALOG_BASE_URL)")
		}
	case "file":
		if config.Catalog.FilePath == "" {
			return fmt.Errorf("catalog file path is required when source is 'file' (set CHANIWEB_CATALOG_FILE_PATH)")
		}
	default:
		return fmt.Errorf("catalog source must be 'http' or 'file', got: %s", config.Catalog.Source)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	m := config.Matching
	if m.SimilarityThreshold <= 0 || m.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in (0, 1], got: %v", m.SimilarityThreshold)
	}

	if m.QuantityTolerance < 0 || m.QuantityTolerance >= 0.5 {
		return fmt.Errorf("quantity tolerance must be in [0, 0.5), got: %v", m.QuantityTolerance)
	}

	if m.UnrecognizedUnitPolicy != "exclude" && m.UnrecognizedUnitPolicy != "singleton" {
		return fmt.Errorf("unrecognized unit policy must be 'exclude' or 'singleton', got: %s", m.UnrecognizedUnitPolicy)
	}

	if m.EstimateFactor <= 0 {
		return fmt.Errorf("estimate factor must be positive, got: %v", m.EstimateFactor)
	}

	return nil
}

// envKeyReplacer maps nested keys like "cache.redis_url" onto CHANIWEB_CACHE_REDIS_URL
var envKeyReplacer = strings.NewReplacer(".", "_")
