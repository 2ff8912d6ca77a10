package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testToken = "tslm-test-token"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
teslemetry:
  access_token: "`+testToken+`"
  polling:
    live_status_interval: 15
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Teslemetry.AccessToken != testToken {
		t.Errorf("Teslemetry.AccessToken = %q, want %q", cfg.Teslemetry.AccessToken, testToken)
	}
	if got := cfg.Teslemetry.GetLiveStatusInterval(); got != 15*time.Second {
		t.Errorf("GetLiveStatusInterval() = %v, want 15s", got)
	}
	// Unset keys keep their defaults.
	if got := cfg.Teslemetry.GetSiteInfoInterval(); got != 300*time.Second {
		t.Errorf("GetSiteInfoInterval() = %v, want 5m", got)
	}
	if cfg.Teslemetry.BaseURL != "https://api.teslemetry.com" {
		t.Errorf("Teslemetry.BaseURL = %q, want default", cfg.Teslemetry.BaseURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_TokenFromEnvironment(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
`)
	t.Setenv("GRAYLOGIC_TESLEMETRY_TOKEN", "from-env")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Teslemetry.AccessToken != "from-env" {
		t.Errorf("Teslemetry.AccessToken = %q, want %q", cfg.Teslemetry.AccessToken, "from-env")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
teslemetry:
  access_token: "x"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Teslemetry.AccessToken = testToken
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb.url"},
		{name: "missing token", mutate: func(c *Config) { c.Teslemetry.AccessToken = "" }, wantErr: "teslemetry.access_token"},
		{name: "relative base url", mutate: func(c *Config) { c.Teslemetry.BaseURL = "api.teslemetry.com" }, wantErr: "teslemetry.base_url"},
		{name: "zero live status interval", mutate: func(c *Config) { c.Teslemetry.Polling.LiveStatusInterval = 0 }, wantErr: "live_status_interval"},
		{name: "zero site info interval", mutate: func(c *Config) { c.Teslemetry.Polling.SiteInfoInterval = 0 }, wantErr: "site_info_interval"},
		{name: "missing bridge id", mutate: func(c *Config) { c.Bridge.ID = "" }, wantErr: "bridge.id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Site.ID = ""
	cfg.Teslemetry.AccessToken = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}
	for _, want := range []string{"site.id", "teslemetry.access_token"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Teslemetry: TeslemetryConfig{RequestTimeout: 12},
		Bridge:     BridgeConfig{HealthInterval: 20},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.Teslemetry.GetRequestTimeout().Seconds(); got != 12 {
		t.Errorf("GetRequestTimeout() = %v, want 12", got)
	}
	if got := cfg.Bridge.GetHealthInterval().Seconds(); got != 20 {
		t.Errorf("GetHealthInterval() = %v, want 20", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_TESLEMETRY_TOKEN", "tslm-token")
	t.Setenv("GRAYLOGIC_TESLEMETRY_BASE_URL", "http://localhost:9999")

	applyEnvOverrides(cfg)

	checks := []struct {
		field, got, want string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Teslemetry.AccessToken", cfg.Teslemetry.AccessToken, "tslm-token"},
		{"Teslemetry.BaseURL", cfg.Teslemetry.BaseURL, "http://localhost:9999"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
	if cfg.Bridge.ID != "teslemetry" {
		t.Errorf("defaultConfig Bridge.ID = %q, want %q", cfg.Bridge.ID, "teslemetry")
	}
}
