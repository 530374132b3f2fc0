package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/synthd/internal/scsynth"
)

// Config is synthd's configuration. Values come from built-in defaults,
// then the YAML file, then SYNTHD_* environment variables.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Engine     scsynth.Config   `yaml:"engine"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InstanceConfig names this daemon. ID is part of every MQTT topic and
// telemetry tag and should not change between restarts.
type InstanceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SupervisorConfig tunes the engine supervisor.
type SupervisorConfig struct {
	// BindAddress is the local address of the OSC socket.
	BindAddress string `yaml:"bind_address"`

	// GracefulTimeout is the wait between SIGTERM and SIGKILL.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	// KillTimeout is the wait after SIGKILL before the process is
	// abandoned.
	KillTimeout time.Duration `yaml:"kill_timeout"`

	// WatchdogInterval is the /proc poll period. Zero disables it.
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`

	MailboxSize uint64 `yaml:"mailbox_size"`
	BootOnStart bool   `yaml:"boot_on_start"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds

	// HistoryRetentionDays prunes older lifecycle events at startup.
	// Zero keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds paho's reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds http.Server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

func (t APITimeoutConfig) ReadTimeout() time.Duration  { return seconds(t.Read) }
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }
func (t APITimeoutConfig) IdleTimeout() time.Duration  { return seconds(t.Idle) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// CORSConfig lists what browsers may do cross-origin. Empty lists mean
// every origin and the default methods and headers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the event stream. Intervals are in seconds.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig applies when Output is "file".
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return finish(cfg)
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() (*Config, error) {
	return finish(defaultConfig())
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Instance: InstanceConfig{ID: "synthd-001", Name: "synthd"},
		Engine:   scsynth.DefaultConfig(),
		Supervisor: SupervisorConfig{
			BindAddress:      "127.0.0.1",
			GracefulTimeout:  5 * time.Second,
			KillTimeout:      2 * time.Second,
			WatchdogInterval: 10 * time.Second,
			MailboxSize:      256,
		},
		Database: DatabaseConfig{
			Path:                 "./data/synthd.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "synthd",
			Broker:      MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "synthd"},
			QoS:         1,
			Reconnect:   MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Host:     "127.0.0.1",
			Port:     8570,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{Bucket: "synthd", BatchSize: 100, FlushInterval: 10},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// Validate reports every problem in c, not just the first.
func (c *Config) Validate() error {
	var errs []error
	check := func(bad bool, msg string) {
		if bad {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Instance.ID == "", "instance.id is required")
	check(strings.ContainsAny(c.Instance.ID, "/+#"), "instance.id must not contain MQTT wildcards or '/'")
	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}

	s := c.Supervisor
	check(s.GracefulTimeout < 0 || s.KillTimeout < 0 || s.WatchdogInterval < 0, "supervisor timeouts must not be negative")

	check(c.Database.Path == "", "database.path is required")
	check(c.Database.HistoryRetentionDays < 0, "database.history_retention_days must not be negative")

	check(c.MQTT.QoS < 0 || c.MQTT.QoS > 2, "mqtt.qos must be 0, 1, or 2")
	check(c.MQTT.Enabled && c.MQTT.TopicPrefix == "", "mqtt.topic_prefix is required when mqtt is enabled")

	check(c.API.Port < 1 || c.API.Port > 65535, "api.port must be between 1 and 65535")
	check(c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == ""), "api.tls requires cert_file and key_file")

	check(c.InfluxDB.Enabled && c.InfluxDB.URL == "", "influxdb.url is required when influxdb is enabled")
	check(c.Logging.Output == "file" && c.Logging.File.Path == "", "logging.file.path is required when output is file")

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
}
