package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config represents the entire application configuration
type Config struct {
	Env       string          `json:"env"`
	Port      int             `json:"port"`
	AppName   string          `json:"app_name"`
	Storage   StorageConfig   `json:"storage"`
	Dashboard DashboardConfig `json:"dashboard"`
	Auth      AuthConfig      `json:"auth"`
	MongoDB   MongoDBConfig   `json:"mongodb"`
	Redis     RedisConfig     `json:"redis"`
	RabbitMQ  RabbitMQConfig  `json:"rabbitmq"`
	S3        S3Config        `json:"s3"`
	Logging   LoggingConfig   `json:"logging"`
	CORS      CORSConfig      `json:"cors"`
}

// StorageConfig selects and configures the report store backend
type StorageConfig struct {
	Backend string `json:"backend"` // "file" (default) or "mongo"
	DataDir string `json:"data_dir"`
}

// DashboardConfig contains dashboard-facing behavior knobs
type DashboardConfig struct {
	StalenessSeconds    int `json:"staleness_seconds"`     // team considered inactive after this many seconds without a report
	SweepSeconds        int `json:"sweep_seconds"`         // interval of the background activity sweep, 0 disables it
	DefaultHistoryLimit int `json:"default_history_limit"` // history page size when the caller omits limit
}

// AuthConfig holds the optional shared ingest token; empty disables the check
type AuthConfig struct {
	IngestToken string `json:"ingest_token"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// RabbitMQConfig configures the optional report firehose exchange
type RabbitMQConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	VHost        string `json:"vhost"`
	ExchangeName string `json:"exchange_name"`
	RoutingKey   string `json:"routing_key"`
}

// S3Config configures the optional report archive bucket
type S3Config struct {
	Enabled   bool   `json:"enabled"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
}

// MongoDBConfig contains MongoDB connection details for the mongo store backend
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"` // Optional, seconds that preflight requests can be cached
}

// Default returns a configuration with every default applied, as used by
// tests and tooling that run without a config file.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Dashboard.StalenessSeconds == 0 {
		c.Dashboard.StalenessSeconds = 60
	}
	if c.Dashboard.DefaultHistoryLimit == 0 {
		c.Dashboard.DefaultHistoryLimit = 10
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Team-ID", "X-Team-Name"}
	}
}
