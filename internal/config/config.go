package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dvloznov/finance-importer/internal/cache"
	"github.com/dvloznov/finance-importer/internal/categorize"
	"github.com/dvloznov/finance-importer/internal/pipeline"
)

// Config holds all application configuration
type Config struct {
	LLM        LLMConfig
	Cache      CacheConfig
	Categorize CategorizeConfig
	Storage    StorageConfig
	Server     ServerConfig
	LogLevel   string
}

// LLMConfig holds settings for the generative delegate
type LLMConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	ChunkSize   int
}

// CacheConfig selects and tunes the categorization cache
type CacheConfig struct {
	Driver   string
	DSN      string
	TTL      time.Duration
	Capacity int
	// PruneSchedule is a cron expression; "off" disables scheduled pruning.
	PruneSchedule string
}

// CategorizeConfig holds categorization engine settings
type CategorizeConfig struct {
	RulesFile string
	BatchSize int
}

// StorageConfig names the Google Cloud resources used for input and delivery
type StorageConfig struct {
	Bucket     string
	GCSEnabled bool
	ProjectID  string
	Dataset    string
	Table      string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port     string
	APIToken string
}

// Load reads a .env file when present and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() *Config {
	return &Config{
		LLM: LLMConfig{
			APIKey:      getEnv("GEMINI_API_KEY", ""),
			Model:       getEnv("GEMINI_MODEL", pipeline.DefaultModelName),
			Temperature: getEnvAsFloat32("GEMINI_TEMPERATURE", pipeline.DefaultTemperature),
			Timeout:     getEnvAsDuration("DELEGATE_TIMEOUT", pipeline.DefaultDelegateTimeout),
			ChunkSize:   getEnvAsInt("DELEGATE_CHUNK_SIZE", pipeline.DefaultChunkSize),
		},
		Cache: CacheConfig{
			Driver:   strings.ToLower(getEnv("CACHE_DRIVER", cache.DriverMemory)),
			DSN:      getEnv("CACHE_DSN", ""),
			TTL:      getEnvAsDuration("CACHE_TTL", cache.DefaultTTL),
			Capacity: getEnvAsInt("CACHE_CAPACITY", cache.DefaultCapacity),

			PruneSchedule: getEnv("CACHE_PRUNE_SCHEDULE", ""),
		},
		Categorize: CategorizeConfig{
			RulesFile: getEnv("RULES_FILE", ""),
			BatchSize: getEnvAsInt("CATEGORIZE_BATCH_SIZE", categorize.DefaultBatchSize),
		},
		Storage: StorageConfig{
			Bucket:     getEnv("GCS_BUCKET", ""),
			GCSEnabled: getEnvAsBool("GCS_ENABLED", false),
			ProjectID:  getEnv("BQ_PROJECT", ""),
			Dataset:    getEnv("BQ_DATASET", "finance"),
			Table:      getEnv("BQ_TABLE", "expenses"),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			APIToken: getEnv("API_TOKEN", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case cache.DriverMemory, cache.DriverSQLite, cache.DriverRedis:
	case cache.DriverPostgres:
		if c.Cache.DSN == "" {
			return fmt.Errorf("config: CACHE_DSN is required for the %s cache driver", c.Cache.Driver)
		}
	default:
		return fmt.Errorf("config: unknown CACHE_DRIVER %q", c.Cache.Driver)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be positive")
	}
	if c.Categorize.BatchSize <= 0 {
		return fmt.Errorf("config: CATEGORIZE_BATCH_SIZE must be positive")
	}
	return nil
}

// StorageEnabled reports whether gs:// inputs and uploads should be served.
func (c *Config) StorageEnabled() bool {
	return c.Storage.GCSEnabled || c.Storage.Bucket != ""
}

// DeliveryEnabled reports whether a BigQuery destination is configured.
func (c *Config) DeliveryEnabled() bool {
	return c.Storage.ProjectID != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
