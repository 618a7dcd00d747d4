package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Storage backend: memory, sqlite or dynamodb
	StoreKind  string
	SQLitePath string

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	IndexName     string // GSI1 - for user-level path queries
	EventBusName  string

	// Oracle configuration
	OracleProvider string // openai or mock
	OracleAPIKey   string
	OracleBaseURL  string
	OracleModel    string
	OracleTimeout  int // seconds

	// Live tuning overlay; empty disables the file watcher
	TuningFile string

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Feature flags
	EnableMetrics bool
	EnableEvents  bool
	EnableCORS    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		StoreKind:  getEnv("STORE_KIND", "memory"),
		SQLitePath: getEnv("SQLITE_PATH", "brainflow.db"),

		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "brainflow")),
		IndexName:     getEnv("INDEX_NAME", "PathIndex"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "brainflow-events"),

		OracleProvider: getEnv("ORACLE_PROVIDER", "mock"),
		OracleAPIKey:   getEnv("ORACLE_API_KEY", getEnv("OPENAI_API_KEY", "")),
		OracleBaseURL:  getEnv("ORACLE_BASE_URL", "https://api.openai.com/v1"),
		OracleModel:    getEnv("ORACLE_MODEL", "gpt-4o-mini"),
		OracleTimeout:  getEnvInt("ORACLE_TIMEOUT_SECONDS", 60),

		TuningFile: getEnv("TUNING_FILE", ""),

		// Authentication
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "brainflow-backend"),

		// Logging and features
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableEvents:  getEnvBool("ENABLE_EVENTS", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig for backwards compatibility
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreKind {
	case "memory", "sqlite", "dynamodb":
	default:
		return fmt.Errorf("unknown STORE_KIND %q", c.StoreKind)
	}
	switch c.OracleProvider {
	case "openai", "mock":
	default:
		return fmt.Errorf("unknown ORACLE_PROVIDER %q", c.OracleProvider)
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.StoreKind == "dynamodb" && c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
		if c.EnableEvents && c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required when events are enabled")
		}
		if c.OracleProvider == "openai" && c.OracleAPIKey == "" {
			return fmt.Errorf("ORACLE_API_KEY is required for the openai provider")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
