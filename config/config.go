package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"turbinelens/emissions"
)

// Config holds all configuration for the application
type Config struct {
	// Databases
	AppDBPath       string
	AnalyticsDBPath string

	// API Server
	APIPort string
	APIHost string

	// Logging
	LogLevel string

	// Worker Pool
	WorkerPoolSize int

	// Cache
	CacheTTLHours int

	// Mix presets file
	PresetsPath string

	// Emission analytics defaults
	Emissions EmissionsConfig `mapstructure:"emissions"`

	// Analysis provider
	Provider ProviderConfig `mapstructure:"provider"`

	// Upload handling
	Ingestion IngestionConfig `mapstructure:"ingestion"`

	// Alert notifications
	Notifications NotificationConfig `mapstructure:"notifications"`

	// Sample turbine data settings
	SampleData SampleDataConfig `mapstructure:"sample_data"`

	// Preset Manager
	Presets *PresetManager

	// Scheduler
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Retention
	Retention RetentionConfig `mapstructure:"retention"`
}

// EmissionsConfig holds the inputs the mix calculator starts from
type EmissionsConfig struct {
	AnnualConsumptionMWh float64            `mapstructure:"annual_consumption_mwh" json:"annual_consumption_mwh"`
	CarbonPrice          float64            `mapstructure:"carbon_price" json:"carbon_price"`
	DefaultMix           map[string]float64 `mapstructure:"default_mix" json:"default_mix"`
}

// Mix returns the configured default mix. Unknown source names fall back to
// the built-in demo mix.
func (e EmissionsConfig) Mix() emissions.Mix {
	if len(e.DefaultMix) == 0 {
		return emissions.DefaultMix()
	}
	mix, err := emissions.MixFromMap(e.DefaultMix)
	if err != nil {
		return emissions.DefaultMix()
	}
	return mix
}

// ProviderConfig selects and tunes the analysis provider
type ProviderConfig struct {
	Mode            string `mapstructure:"mode" json:"mode"` // "mock" or "http"
	URL             string `mapstructure:"url" json:"url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	MockLatencyMs   int    `mapstructure:"mock_latency_ms" json:"mock_latency_ms"`
	BreakerFailures int    `mapstructure:"breaker_failures" json:"breaker_failures"`
	Cache           bool   `mapstructure:"cache" json:"cache"`
}

// Timeout bounds one provider call.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// MockLatency is the simulated processing delay of the mock provider.
func (p ProviderConfig) MockLatency() time.Duration {
	return time.Duration(p.MockLatencyMs) * time.Millisecond
}

// IngestionConfig holds upload limits
type IngestionConfig struct {
	MaxUploadMB int `mapstructure:"max_upload_mb" json:"max_upload_mb"`
}

// MaxUploadBytes is MaxUploadMB in bytes.
func (i IngestionConfig) MaxUploadBytes() int64 {
	return int64(i.MaxUploadMB) << 20
}

// NotificationConfig holds the alert notification rate limit
type NotificationConfig struct {
	PerMinute int `mapstructure:"per_minute" json:"per_minute"`
	Burst     int `mapstructure:"burst" json:"burst"`
}

// SampleDataConfig holds synthetic turbine data generation settings
type SampleDataConfig struct {
	Turbines        int     `mapstructure:"turbines"`
	RowsPerTurbine  int     `mapstructure:"rows_per_turbine"`
	FailureRate     float64 `mapstructure:"failure_rate"`
	IntervalMinutes int     `mapstructure:"interval_minutes"`
}

func setDefaults() {
	viper.SetDefault("emissions.annual_consumption_mwh", 10000.0)
	viper.SetDefault("emissions.carbon_price", 75.0)

	viper.SetDefault("provider.mode", "mock")
	viper.SetDefault("provider.timeout_seconds", 30)
	viper.SetDefault("provider.mock_latency_ms", 2000)
	viper.SetDefault("provider.breaker_failures", 3)
	viper.SetDefault("provider.cache", false)

	viper.SetDefault("ingestion.max_upload_mb", 32)

	viper.SetDefault("notifications.per_minute", 30)
	viper.SetDefault("notifications.burst", 5)

	viper.SetDefault("sample_data.turbines", 12)
	viper.SetDefault("sample_data.rows_per_turbine", 24)
	viper.SetDefault("sample_data.failure_rate", 0.08)
	viper.SetDefault("sample_data.interval_minutes", 60)

	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.interval_minutes", 60)
	viper.SetDefault("retention.ingestion_days", 30)
}

// LoadConfig loads configuration from .env and config.yaml
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, using environment variables")
	}

	// Load YAML configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..") // For when running from subdirectories
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		log.Warn().Msg("config.yaml not found, using defaults")
	}

	config := &Config{
		// Load from environment variables
		AppDBPath:       getEnv("APP_DB_PATH", "./data/app.db"),
		AnalyticsDBPath: getEnv("ANALYTICS_DB_PATH", "./data/analytics.duckdb"),
		APIPort:         getEnv("API_PORT", "8080"),
		APIHost:         getEnv("API_HOST", "0.0.0.0"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		WorkerPoolSize:  getEnvAsInt("WORKER_POOL_SIZE", 4),
		CacheTTLHours:   getEnvAsInt("CACHE_TTL_HOURS", 24),
		PresetsPath:     getEnv("PRESETS_PATH", "mix_presets.yaml"),
	}

	// Load from YAML. Unmarshal works on the merged settings so defaults fill
	// any key the file leaves out.
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(config.Emissions.DefaultMix) == 0 {
		config.Emissions.DefaultMix = emissions.DefaultMix().ToMap()
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	// Initialize Preset Manager
	config.Presets = NewPresetManager(config.PresetsPath)
	if err := config.Presets.Load(); err != nil {
		log.Warn().Err(err).Str("path", config.PresetsPath).Msg("failed to load mix presets")
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.Provider.Mode {
	case "mock":
	case "http":
		if c.Provider.URL == "" {
			return fmt.Errorf("provider.url is required when provider.mode is http")
		}
	default:
		return fmt.Errorf("unknown provider.mode %q", c.Provider.Mode)
	}
	if _, err := emissions.MixFromMap(c.Emissions.DefaultMix); err != nil {
		return fmt.Errorf("invalid emissions.default_mix: %w", err)
	}
	if c.AppDBPath == "" || c.AnalyticsDBPath == "" {
		return fmt.Errorf("APP_DB_PATH and ANALYTICS_DB_PATH are required")
	}
	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
