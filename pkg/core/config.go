package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a TempoMem client.
//
// It includes settings for:
//   - Storage backend (sqlite, postgres, mysql, inmem)
//   - Decay model (half-life, reinforcement boost, pruning thresholds)
//   - Graph service adapter (endpoint, timeouts, fallback behavior)
//   - Maintenance scheduling (optional)
//
// Example:
//
//	config := &core.Config{
//	    Storage: core.StorageConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./tempomem.db",
//	        },
//	    },
//	    Graph: core.GraphConfig{
//	        BaseURL:           "http://localhost:8000",
//	        TemporalWeighting: true,
//	        FallbackOnError:   true,
//	    },
//	}
type Config struct {
	// Storage contains storage backend configuration.
	Storage StorageConfig `json:"storage"`

	// Decay contains decay model configuration.
	Decay DecayConfig `json:"decay"`

	// Graph contains graph service adapter configuration.
	Graph GraphConfig `json:"graph"`

	// Maintenance contains scheduled maintenance configuration (optional).
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

// StorageConfig contains configuration for the storage backend.
//
// Supported providers: sqlite, postgres, mysql, inmem
type StorageConfig struct {
	// Provider is the storage backend name (sqlite, postgres, mysql, inmem).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, events_table, profiles_table
	// For Postgres/MySQL: host, port, user, password, db_name, plus tables
	Config map[string]interface{} `json:"config,omitempty"`
}

// DecayConfig contains configuration for the decay model. Zero fields take
// the decay package defaults.
type DecayConfig struct {
	// HalfLifeHours is the period over which an unreinforced weight halves.
	HalfLifeHours float64 `json:"half_life_hours,omitempty"`

	// ReinforcementBoost scales the logarithmic reinforcement bonus.
	ReinforcementBoost float64 `json:"reinforcement_boost,omitempty"`

	// MinWeight is the pruning floor for effective weights.
	MinWeight float64 `json:"min_weight,omitempty"`

	// MaxAgeHours is the hard age cap on stored events.
	MaxAgeHours float64 `json:"max_age_hours,omitempty"`
}

// GraphConfig contains configuration for the graph service adapter.
type GraphConfig struct {
	// BaseURL is the graph service endpoint.
	BaseURL string `json:"base_url"`

	// APIKey, when set, is sent as a bearer token.
	APIKey string `json:"api_key,omitempty"`

	// SearchTimeoutMS and WriteTimeoutMS bound upstream calls, in
	// milliseconds. Zero values take the graph package defaults.
	SearchTimeoutMS int `json:"search_timeout_ms,omitempty"`
	WriteTimeoutMS  int `json:"write_timeout_ms,omitempty"`

	// FallbackOnError makes searches degrade to empty results instead
	// of failing when the upstream is unreachable.
	FallbackOnError bool `json:"fallback_on_error,omitempty"`

	// TemporalWeighting enables re-ranking of search results by memory
	// weights.
	TemporalWeighting bool `json:"temporal_weighting,omitempty"`
}

// MaintenanceConfig contains configuration for scheduled maintenance.
type MaintenanceConfig struct {
	// Schedule is a cron expression. Defaults to "0 3 * * *"
	// (daily at 03:00).
	Schedule string `json:"schedule,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql, inmem)
//   - SQLITE_PATH, SQLITE_EVENTS_TABLE, SQLITE_PROFILES_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, etc.
//   - GRAPH_SERVICE_URL, GRAPH_API_KEY, GRAPH_FALLBACK
//   - GRAPH_SEARCH_TIMEOUT_MS, GRAPH_WRITE_TIMEOUT_MS, GRAPH_TEMPORAL_WEIGHTING
//   - DECAY_HALF_LIFE_HOURS, DECAY_REINFORCEMENT_BOOST, DECAY_MIN_WEIGHT,
//     DECAY_MAX_AGE_HOURS
//   - MAINTENANCE_SCHEDULE (to enable the maintenance scheduler)
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	// Use FindEnvFile to locate .env file (supports upward search)
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		// If not found, try loading from current directory (godotenv default behavior)
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	// Build different configurations based on provider
	storageConfig := make(map[string]interface{})

	switch provider {
	case "sqlite":
		storageConfig = map[string]interface{}{
			"db_path":        getEnvOrDefault("SQLITE_PATH", "./tempomem.db"),
			"events_table":   getEnvOrDefault("SQLITE_EVENTS_TABLE", "memory_events"),
			"profiles_table": getEnvOrDefault("SQLITE_PROFILES_TABLE", "user_profiles"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))

		storageConfig = map[string]interface{}{
			"host":           getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":           port,
			"user":           getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":       os.Getenv("POSTGRES_PASSWORD"),
			"db_name":        getEnvOrDefault("POSTGRES_DATABASE", "tempomem"),
			"events_table":   getEnvOrDefault("POSTGRES_EVENTS_TABLE", "memory_events"),
			"profiles_table": getEnvOrDefault("POSTGRES_PROFILES_TABLE", "user_profiles"),
			"ssl_mode":       getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))

		storageConfig = map[string]interface{}{
			"host":           getEnvOrDefault("MYSQL_HOST", "localhost"),
			"port":           port,
			"user":           getEnvOrDefault("MYSQL_USER", "root"),
			"password":       os.Getenv("MYSQL_PASSWORD"),
			"db_name":        getEnvOrDefault("MYSQL_DATABASE", "tempomem"),
			"events_table":   getEnvOrDefault("MYSQL_EVENTS_TABLE", "memory_events"),
			"profiles_table": getEnvOrDefault("MYSQL_PROFILES_TABLE", "user_profiles"),
		}
	}

	halfLife, _ := strconv.ParseFloat(getEnvOrDefault("DECAY_HALF_LIFE_HOURS", "0"), 64)
	boost, _ := strconv.ParseFloat(getEnvOrDefault("DECAY_REINFORCEMENT_BOOST", "0"), 64)
	minWeight, _ := strconv.ParseFloat(getEnvOrDefault("DECAY_MIN_WEIGHT", "0"), 64)
	maxAge, _ := strconv.ParseFloat(getEnvOrDefault("DECAY_MAX_AGE_HOURS", "0"), 64)

	searchTimeout, _ := strconv.Atoi(getEnvOrDefault("GRAPH_SEARCH_TIMEOUT_MS", "0"))
	writeTimeout, _ := strconv.Atoi(getEnvOrDefault("GRAPH_WRITE_TIMEOUT_MS", "0"))

	config := &Config{
		Storage: StorageConfig{
			Provider: provider,
			Config:   storageConfig,
		},
		Decay: DecayConfig{
			HalfLifeHours:      halfLife,
			ReinforcementBoost: boost,
			MinWeight:          minWeight,
			MaxAgeHours:        maxAge,
		},
		Graph: GraphConfig{
			BaseURL:           getEnvOrDefault("GRAPH_SERVICE_URL", "http://localhost:8000"),
			APIKey:            os.Getenv("GRAPH_API_KEY"),
			SearchTimeoutMS:   searchTimeout,
			WriteTimeoutMS:    writeTimeout,
			FallbackOnError:   os.Getenv("GRAPH_FALLBACK") == "true",
			TemporalWeighting: getEnvOrDefault("GRAPH_TEMPORAL_WEIGHTING", "true") == "true",
		},
	}

	// Scheduled maintenance (optional)
	if schedule := os.Getenv("MAINTENANCE_SCHEDULE"); schedule != "" {
		config.Maintenance = &MaintenanceConfig{Schedule: schedule}
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that all required fields are set and within range:
//   - Storage provider must be one of the supported backends
//   - Decay parameters must be non-negative
//   - Graph base URL must be set
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "sqlite", "postgres", "mysql", "inmem":
	default:
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.Decay.HalfLifeHours < 0 || c.Decay.ReinforcementBoost < 0 ||
		c.Decay.MinWeight < 0 || c.Decay.MaxAgeHours < 0 {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.Graph.BaseURL == "" {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	return nil
}

// searchTimeout returns the configured search timeout as a duration.
func (g GraphConfig) searchTimeout() time.Duration {
	return time.Duration(g.SearchTimeoutMS) * time.Millisecond
}

// writeTimeout returns the configured write timeout as a duration.
func (g GraphConfig) writeTimeout() time.Duration {
	return time.Duration(g.WriteTimeoutMS) * time.Millisecond
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	// Check project root directory (search upward)
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
