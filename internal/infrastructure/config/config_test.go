package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: "studio-a"
engine:
  binary: "/opt/sc/scsynth"
  udp_port: 57120
  output_channels: 8
  load_synthdefs: false
supervisor:
  graceful_timeout: 3s
  boot_on_start: true
database:
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
api:
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instance.ID != "studio-a" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "studio-a")
	}
	if cfg.Engine.Binary != "/opt/sc/scsynth" || cfg.Engine.UDPPort != 57120 || cfg.Engine.OutputChannels != 8 {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.Engine.LoadSynthDefs {
		t.Error("Engine.LoadSynthDefs = true, want false")
	}
	// Not in the file, so the default survives.
	if cfg.Engine.Host != "127.0.0.1" {
		t.Errorf("Engine.Host = %q, want default 127.0.0.1", cfg.Engine.Host)
	}
	if cfg.Supervisor.GracefulTimeout != 3*time.Second {
		t.Errorf("Supervisor.GracefulTimeout = %v, want 3s", cfg.Supervisor.GracefulTimeout)
	}
	if cfg.Supervisor.KillTimeout != 2*time.Second {
		t.Errorf("Supervisor.KillTimeout = %v, want 2s", cfg.Supervisor.KillTimeout)
	}
	if !cfg.Supervisor.BootOnStart {
		t.Error("Supervisor.BootOnStart = false, want true")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: ""
engine:
  udp_port: 0
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// Every problem is reported, not just the first.
	for _, want := range []string{"instance.id", "engine:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing instance ID", mutate: func(c *Config) { c.Instance.ID = "" }, wantErr: "instance.id is required"},
		{name: "wildcard in instance ID", mutate: func(c *Config) { c.Instance.ID = "a/#" }, wantErr: "instance.id must not"},
		{name: "missing engine binary", mutate: func(c *Config) { c.Engine.Binary = "" }, wantErr: "engine:"},
		{name: "negative timeout", mutate: func(c *Config) { c.Supervisor.KillTimeout = -time.Second }, wantErr: "supervisor timeouts"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "negative retention", mutate: func(c *Config) { c.Database.HistoryRetentionDays = -1 }, wantErr: "history_retention_days"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "mqtt without prefix", mutate: func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicPrefix = "" }, wantErr: "mqtt.topic_prefix"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "tls without files", mutate: func(c *Config) { c.API.TLS.Enabled = true }, wantErr: "api.tls"},
		{name: "influx without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb.url"},
		{name: "file logging without path", mutate: func(c *Config) { c.Logging.Output = "file" }, wantErr: "logging.file.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestAPITimeoutConfig(t *testing.T) {
	timeouts := APITimeoutConfig{Read: 30, Write: 45, Idle: 60}

	if got := timeouts.ReadTimeout(); got != 30*time.Second {
		t.Errorf("ReadTimeout() = %v, want 30s", got)
	}
	if got := timeouts.WriteTimeout(); got != 45*time.Second {
		t.Errorf("WriteTimeout() = %v, want 45s", got)
	}
	if got := timeouts.IdleTimeout(); got != time.Minute {
		t.Errorf("IdleTimeout() = %v, want 1m", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SYNTHD_INSTANCE_ID", "studio-b")
	t.Setenv("SYNTHD_ENGINE_BINARY", "/custom/scsynth")
	t.Setenv("SYNTHD_ENGINE_UDP_PORT", "57999")
	t.Setenv("SYNTHD_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SYNTHD_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SYNTHD_MQTT_USERNAME", "testuser")
	t.Setenv("SYNTHD_MQTT_PASSWORD", "testpass")
	t.Setenv("SYNTHD_API_HOST", "192.168.1.1")
	t.Setenv("SYNTHD_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SYNTHD_LOG_LEVEL", "debug")
	t.Setenv("SYNTHD_MQTT_ENABLED", "true")
	t.Setenv("SYNTHD_API_PORT", "9090")
	t.Setenv("SYNTHD_BOOT_ON_START", "1")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Instance.ID", cfg.Instance.ID, "studio-b"},
		{"Engine.Binary", cfg.Engine.Binary, "/custom/scsynth"},
		{"Engine.UDPPort", cfg.Engine.UDPPort, 57999},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
		{"MQTT.Enabled", cfg.MQTT.Enabled, true},
		{"API.Port", cfg.API.Port, 9090},
		{"Supervisor.BootOnStart", cfg.Supervisor.BootOnStart, true},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"SYNTHD_ENGINE_UDP_PORT", "fifty"},
		{"SYNTHD_MQTT_ENABLED", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.name, tt.value)

			err := applyEnvOverrides(defaultConfig())
			if err == nil || !strings.Contains(err.Error(), tt.name) {
				t.Errorf("applyEnvOverrides() error = %v, want it to name %s", err, tt.name)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if cfg.Engine.UDPPort != 57110 {
		t.Errorf("Engine.UDPPort = %d, want 57110", cfg.Engine.UDPPort)
	}
	if cfg.Supervisor.GracefulTimeout != 5*time.Second {
		t.Errorf("Supervisor.GracefulTimeout = %v, want 5s", cfg.Supervisor.GracefulTimeout)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want loopback", cfg.API.Host)
	}
}
