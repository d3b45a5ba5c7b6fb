package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
service:
  id: "test-hublink"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
engine:
  default_poll_interval_seconds: 20
  grace_period_seconds: 60
api:
  host: "0.0.0.0"
  port: 8090
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.ID != "test-hublink" {
		t.Errorf("Service.ID = %q, want %q", cfg.Service.ID, "test-hublink")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.Engine.DefaultPollIntervalSeconds != 20 {
		t.Errorf("Engine.DefaultPollIntervalSeconds = %d, want 20", cfg.Engine.DefaultPollIntervalSeconds)
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
service:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8090
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty service.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	// validEngine satisfies the minimum interval requirements
	validEngine := EngineConfig{
		DefaultPollIntervalSeconds: 30,
		GracePeriodSeconds:         45,
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   validEngine,
				API:      APIConfig{Port: 8090},
			},
			wantErr: false,
		},
		{
			name: "missing service ID",
			config: &Config{
				Service:  ServiceConfig{ID: ""},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   validEngine,
				API:      APIConfig{Port: 8090},
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: ""},
				Engine:   validEngine,
				API:      APIConfig{Port: 8090},
			},
			wantErr: true,
		},
		{
			name: "zero poll interval",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   EngineConfig{DefaultPollIntervalSeconds: 0, GracePeriodSeconds: 45},
				API:      APIConfig{Port: 8090},
			},
			wantErr: true,
		},
		{
			name: "zero grace period",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   EngineConfig{DefaultPollIntervalSeconds: 30, GracePeriodSeconds: 0},
				API:      APIConfig{Port: 8090},
			},
			wantErr: true,
		},
		{
			name: "invalid port low",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   validEngine,
				API:      APIConfig{Port: 0},
			},
			wantErr: true,
		},
		{
			name: "invalid port high",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   validEngine,
				API:      APIConfig{Port: 70000},
			},
			wantErr: true,
		},
		{
			name: "TLS enabled without cert",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   validEngine,
				API:      APIConfig{Port: 8090, TLS: TLSConfig{Enabled: true}},
			},
			wantErr: true,
		},
		{
			name: "invalid QoS",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   validEngine,
				API:      APIConfig{Port: 8090},
				MQTT:     MQTTConfig{Enabled: true, QoS: 3, Broker: MQTTBrokerConfig{Host: "localhost"}},
			},
			wantErr: true,
		},
		{
			name: "MQTT enabled without broker host",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   validEngine,
				API:      APIConfig{Port: 8090},
				MQTT:     MQTTConfig{Enabled: true, QoS: 1},
			},
			wantErr: true,
		},
		{
			name: "InfluxDB enabled without token",
			config: &Config{
				Service:  ServiceConfig{ID: "hublink-001"},
				Database: DatabaseConfig{Path: "/data/hublink.db"},
				Engine:   validEngine,
				API:      APIConfig{Port: 8090},
				InfluxDB: InfluxDBConfig{Enabled: true, URL: "http://localhost:8086"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DurationGetters(t *testing.T) {
	cfg := &Config{
		Engine: EngineConfig{
			DefaultPollIntervalSeconds: 20,
			GracePeriodSeconds:         90,
			StartupStaggerSeconds:      3,
			RequestTimeoutSeconds:      15,
		},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.DefaultPollInterval(); got != 20*time.Second {
		t.Errorf("DefaultPollInterval() = %v, want 20s", got)
	}

	if got := cfg.GracePeriod(); got != 90*time.Second {
		t.Errorf("GracePeriod() = %v, want 90s", got)
	}

	if got := cfg.StartupStagger(); got != 3*time.Second {
		t.Errorf("StartupStagger() = %v, want 3s", got)
	}

	if got := cfg.RequestTimeout(); got != 15*time.Second {
		t.Errorf("RequestTimeout() = %v, want 15s", got)
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
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("HUBLINK_DATABASE_PATH", "/custom/path.db")
	t.Setenv("HUBLINK_API_HOST", "192.168.1.1")
	t.Setenv("HUBLINK_API_PORT", "9999")
	t.Setenv("HUBLINK_API_KEY", "env-api-key")
	t.Setenv("HUBLINK_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HUBLINK_MQTT_USERNAME", "testuser")
	t.Setenv("HUBLINK_MQTT_PASSWORD", "testpass")
	t.Setenv("HUBLINK_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("HUBLINK_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999", cfg.API.Port)
	}

	if cfg.API.APIKey != "env-api-key" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "env-api-key")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Service.ID == "" {
		t.Error("defaultConfig should have non-empty Service.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.Engine.DefaultPollIntervalSeconds != 30 {
		t.Errorf("defaultConfig Engine.DefaultPollIntervalSeconds = %d, want 30", cfg.Engine.DefaultPollIntervalSeconds)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
}
