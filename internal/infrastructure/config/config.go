package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Teslemetry bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Teslemetry TeslemetryConfig `yaml:"teslemetry"`
	Bridge     BridgeConfig     `yaml:"bridge"`
}

// SiteConfig identifies the Gray Logic installation the bridge belongs to.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TeslemetryConfig contains the vendor cloud API settings.
type TeslemetryConfig struct {
	// BaseURL is the Teslemetry API root. Default: https://api.teslemetry.com
	BaseURL string `yaml:"base_url"`

	// AccessToken is the bearer token issued by Teslemetry.
	// Prefer GRAYLOGIC_TESLEMETRY_TOKEN over storing it in the file.
	AccessToken string `yaml:"access_token"`

	// RequestTimeout bounds a single API call, in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	Polling TeslemetryPollingConfig `yaml:"polling"`
}

// TeslemetryPollingConfig contains polling intervals in seconds.
type TeslemetryPollingConfig struct {
	SiteInfoInterval   int `yaml:"site_info_interval"`
	LiveStatusInterval int `yaml:"live_status_interval"`
}

// BridgeConfig contains settings for the MQTT-facing bridge.
type BridgeConfig struct {
	// ID names this bridge in health messages. Default: "teslemetry"
	ID string `yaml:"id"`

	// HealthInterval is the health publish period, in seconds.
	HealthInterval int `yaml:"health_interval"`

	// AutoProvisionSites creates an energy-site device for every site
	// found in the account that is not yet paired.
	AutoProvisionSites bool `yaml:"auto_provision_sites"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_TESLEMETRY_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/teslemetry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-teslemetry",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Teslemetry: TeslemetryConfig{
			BaseURL:        "https://api.teslemetry.com",
			RequestTimeout: 30,
			Polling: TeslemetryPollingConfig{
				SiteInfoInterval:   300,
				LiveStatusInterval: 30,
			},
		},
		Bridge: BridgeConfig{
			ID:                 "teslemetry",
			HealthInterval:     30,
			AutoProvisionSites: true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Teslemetry
	if v := os.Getenv("GRAYLOGIC_TESLEMETRY_TOKEN"); v != "" {
		cfg.Teslemetry.AccessToken = v
	}
	if v := os.Getenv("GRAYLOGIC_TESLEMETRY_BASE_URL"); v != "" {
		cfg.Teslemetry.BaseURL = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected so a single run reports every misconfiguration.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Teslemetry.AccessToken == "" {
		errs = append(errs, "teslemetry.access_token is required (set GRAYLOGIC_TESLEMETRY_TOKEN environment variable)")
	}
	if u, err := url.Parse(c.Teslemetry.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "teslemetry.base_url must be an absolute URL")
	}
	if c.Teslemetry.RequestTimeout < 1 {
		errs = append(errs, "teslemetry.request_timeout must be at least 1 second")
	}
	if c.Teslemetry.Polling.SiteInfoInterval < 1 {
		errs = append(errs, "teslemetry.polling.site_info_interval must be at least 1 second")
	}
	if c.Teslemetry.Polling.LiveStatusInterval < 1 {
		errs = append(errs, "teslemetry.polling.live_status_interval must be at least 1 second")
	}

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetRequestTimeout returns the Teslemetry per-request timeout.
func (c *TeslemetryConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetSiteInfoInterval returns the site info polling period.
func (c *TeslemetryConfig) GetSiteInfoInterval() time.Duration {
	return time.Duration(c.Polling.SiteInfoInterval) * time.Second
}

// GetLiveStatusInterval returns the live status polling period.
func (c *TeslemetryConfig) GetLiveStatusInterval() time.Duration {
	return time.Duration(c.Polling.LiveStatusInterval) * time.Second
}

// GetHealthInterval returns the bridge health publish period.
func (c *BridgeConfig) GetHealthInterval() time.Duration {
	return time.Duration(c.HealthInterval) * time.Second
}
