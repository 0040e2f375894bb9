package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. SIMDASH_SERVICE_URL.
const EnvPrefix = "SIMDASH"

// Config holds all configuration for our application
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Poll     PollConfig     `mapstructure:"poll"`
	Results  ResultsConfig  `mapstructure:"results"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServiceConfig points at the remote simulation service.
type ServiceConfig struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	CacheSize      int           `mapstructure:"cache_size"`
}

type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

// ResultsConfig selects the columns read from tabular results.
type ResultsConfig struct {
	TimestampColumn string `mapstructure:"timestamp_column"`
	ValueColumn     string `mapstructure:"value_column"`
}

// ServerConfig configures the status endpoints. A zero port disables it.
type ServerConfig struct {
	GRPCPort    int `mapstructure:"grpc_port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// ConnString builds a lib/pq connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ScheduleConfig describes a recurring simulation run.
type ScheduleConfig struct {
	Spec          string  `mapstructure:"spec"`
	BuildingModel string  `mapstructure:"building_model"`
	Weather       string  `mapstructure:"weather"`
	Length        float64 `mapstructure:"length"`
	Width         float64 `mapstructure:"width"`
	Height        float64 `mapstructure:"height"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
//
// $VAR references in the file are expanded first; SIMDASH_* variables then
// override individual keys (SIMDASH_POLL_INTERVAL overrides poll.interval).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// First unmarshal into a map to reject malformed YAML early
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
	}

	// Expand environment variables
	expandedData := os.ExpandEnv(string(data))

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewBufferString(expandedData)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Defaults only hold primitive values, decoding them cannot fail.
	_ = v.Unmarshal(&config)
	return &config
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.URL) == "" {
		return fmt.Errorf("service.url is required")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if c.Poll.MaxDuration < 0 {
		return fmt.Errorf("poll.max_duration must not be negative")
	}
	if c.Results.TimestampColumn == "" || c.Results.ValueColumn == "" {
		return fmt.Errorf("results.timestamp_column and results.value_column are required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.url", "http://localhost:8000")
	v.SetDefault("service.timeout", "45s")
	v.SetDefault("service.rate_limit", 2.0)
	v.SetDefault("service.rate_limit_burst", 4)
	v.SetDefault("service.cache_size", 64)

	v.SetDefault("poll.interval", "5s")
	v.SetDefault("poll.max_duration", "15m")

	v.SetDefault("results.timestamp_column", "Date/Time")
	v.SetDefault("results.value_column", "Zone Air Temperature")

	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.metrics_port", 0)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
