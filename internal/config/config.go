// Package config handles configuration loading for the COT monitor.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Nasdaq      NasdaqConfig      `mapstructure:"nasdaq"      yaml:"nasdaq"`
	Socrata     SocrataConfig     `mapstructure:"socrata"     yaml:"socrata"`
	Instruments InstrumentsConfig `mapstructure:"instruments" yaml:"instruments"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"    yaml:"analysis"`
	API         APIConfig         `mapstructure:"api"         yaml:"api"`
	Logging     LoggingConfig     `mapstructure:"logging"     yaml:"logging"`
}

// NasdaqConfig holds Nasdaq Data Link credentials and dataset choice.
type NasdaqConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Dataset string `mapstructure:"dataset" yaml:"dataset"` // "QDL/LFON" or "QDL/FON"
}

// SocrataConfig holds the optional CFTC open-data app token.
type SocrataConfig struct {
	AppToken string `mapstructure:"app_token" yaml:"app_token"`
}

// InstrumentsConfig locates the instrument catalog file.
type InstrumentsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AnalysisConfig holds derivation and fetch settings.
type AnalysisConfig struct {
	CacheTTL          int `mapstructure:"cache_ttl"          yaml:"cache_ttl"` // seconds
	ConcurrentFetches int `mapstructure:"concurrent_fetches" yaml:"concurrent_fetches"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.cotmonitor/config.yaml (home directory)
//  3. /etc/cotmonitor/config.yaml (system)
//
// Environment variables override config file values.
// Format: COTMONITOR_<SECTION>_<KEY>, e.g., COTMONITOR_NASDAQ_API_KEY
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".cotmonitor"))
	v.AddConfigPath("/etc/cotmonitor")

	v.SetEnvPrefix("COTMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file is optional; defaults plus env vars are enough.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("COTMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("nasdaq.dataset", "QDL/LFON")

	v.SetDefault("instruments.path", filepath.Join(homeDir(), ".cotmonitor", "instruments.json"))

	// Weekly data: cache through the workday.
	v.SetDefault("analysis.cache_ttl", 21600)
	v.SetDefault("analysis.concurrent_fetches", 4)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("COTMONITOR_NASDAQ_API_KEY"); key != "" {
		cfg.Nasdaq.APIKey = key
	}
	if token := os.Getenv("COTMONITOR_SOCRATA_APP_TOKEN"); token != "" {
		cfg.Socrata.AppToken = token
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
