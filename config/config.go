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

// dotenvFiles are loaded, when present, before the environment is read.
// Variables already set in the environment take precedence.
var dotenvFiles = []string{".env"}

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Normalizer NormalizerConfig `mapstructure:"normalizer"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BridgeConfig holds settings for the supervised product bridge process
type BridgeConfig struct {
	Interpreter        string        `mapstructure:"interpreter"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	HealthPath         string        `mapstructure:"health_path"`
	HealthMaxAttempts  int           `mapstructure:"health_max_attempts"`
	HealthInterval     time.Duration `mapstructure:"health_interval"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace"`
}

// GatewayConfig holds query gateway configuration
type GatewayConfig struct {
	Region              string        `mapstructure:"region"`
	SearchLimit         int           `mapstructure:"search_limit"`
	RecentLimit         int           `mapstructure:"recent_limit"`
	Workers             int           `mapstructure:"workers"`
	QueueSize           int           `mapstructure:"queue_size"`
	DrainTimeout        time.Duration `mapstructure:"drain_timeout"`
	ResultCacheTTL      time.Duration `mapstructure:"result_cache_ttl"`
	ResultCacheCapacity int           `mapstructure:"result_cache_capacity"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	CoalesceQueries     bool          `mapstructure:"coalesce_queries"`
}

// NormalizerConfig holds product normalization configuration
type NormalizerConfig struct {
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	FallbackBrand string        `mapstructure:"fallback_brand"`
	Source        string        `mapstructure:"source"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute, 0 disables
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadDotEnv(dotenvFiles...); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/smartsave/")

	// Environment variable settings, e.g. SMARTSAVE_BRIDGE_PORT
	v.SetEnvPrefix("SMARTSAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
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

func loadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading %s: %w", file, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})
	v.SetDefault("server.shutdown_timeout", "15s")

	// Bridge defaults
	v.SetDefault("bridge.interpreter", "python3")
	v.SetDefault("bridge.host", "127.0.0.1")
	v.SetDefault("bridge.port", 8765)
	v.SetDefault("bridge.health_path", "/health")
	v.SetDefault("bridge.health_max_attempts", 15)
	v.SetDefault("bridge.health_interval", "300ms")
	v.SetDefault("bridge.connect_timeout", "10s")
	v.SetDefault("bridge.read_timeout", "30s")
	v.SetDefault("bridge.min_request_interval", "500ms")
	v.SetDefault("bridge.shutdown_grace", "5s")

	// Gateway defaults
	v.SetDefault("gateway.region", "14010")
	v.SetDefault("gateway.search_limit", 25)
	v.SetDefault("gateway.recent_limit", 30)
	v.SetDefault("gateway.workers", 2)
	v.SetDefault("gateway.queue_size", 64)
	v.SetDefault("gateway.drain_timeout", "5s")
	v.SetDefault("gateway.result_cache_ttl", "15m")
	v.SetDefault("gateway.result_cache_capacity", 100)
	v.SetDefault("gateway.sweep_interval", "10m")
	v.SetDefault("gateway.coalesce_queries", true)

	// Normalizer defaults
	v.SetDefault("normalizer.cache_ttl", "1h")
	v.SetDefault("normalizer.sweep_interval", "30m")
	v.SetDefault("normalizer.fallback_brand", "Mercadona")
	v.SetDefault("normalizer.source", "Mercadona")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Bridge.Interpreter == "" {
		return fmt.Errorf("bridge interpreter is required (set SMARTSAVE_BRIDGE_INTERPRETER)")
	}

	if config.Bridge.Port < 1 || config.Bridge.Port > 65535 {
		return fmt.Errorf("bridge port must be between 1 and 65535, got: %d", config.Bridge.Port)
	}

	if config.Bridge.HealthMaxAttempts < 1 {
		return fmt.Errorf("bridge health_max_attempts must be at least 1, got: %d", config.Bridge.HealthMaxAttempts)
	}

	if config.Gateway.Workers < 1 {
		return fmt.Errorf("gateway workers must be at least 1, got: %d", config.Gateway.Workers)
	}

	if strings.TrimSpace(config.Gateway.Region) == "" {
		return fmt.Errorf("gateway region is required (set SMARTSAVE_GATEWAY_REGION)")
	}

	if config.Gateway.ResultCacheTTL <= 0 || config.Normalizer.CacheTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}

	if config.RateLimit.PerIP < 0 {
		return fmt.Errorf("ratelimit per_ip must not be negative, got: %d", config.RateLimit.PerIP)
	}

	return nil
}
