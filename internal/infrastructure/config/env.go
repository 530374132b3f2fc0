package config

import (
	"fmt"
	"os"
	"strconv"
)

// envPrefix starts every override variable.
const envPrefix = "SYNTHD_"

// envOverride binds one environment variable to a config field. set is
// only called when the variable is non-empty.
type envOverride struct {
	name string
	set  func(c *Config, v string) error
}

func str(field func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolean(field func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

var envOverrides = []envOverride{
	{"INSTANCE_ID", str(func(c *Config) *string { return &c.Instance.ID })},

	{"ENGINE_BINARY", str(func(c *Config) *string { return &c.Engine.Binary })},
	{"ENGINE_HOST", str(func(c *Config) *string { return &c.Engine.Host })},
	{"ENGINE_UDP_PORT", integer(func(c *Config) *int { return &c.Engine.UDPPort })},
	{"ENGINE_PASSWORD", str(func(c *Config) *string { return &c.Engine.Password })},
	{"BOOT_ON_START", boolean(func(c *Config) *bool { return &c.Supervisor.BootOnStart })},

	{"DATABASE_PATH", str(func(c *Config) *string { return &c.Database.Path })},

	{"MQTT_ENABLED", boolean(func(c *Config) *bool { return &c.MQTT.Enabled })},
	{"MQTT_HOST", str(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"MQTT_PORT", integer(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"MQTT_USERNAME", str(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"MQTT_PASSWORD", str(func(c *Config) *string { return &c.MQTT.Auth.Password })},

	{"API_HOST", str(func(c *Config) *string { return &c.API.Host })},
	{"API_PORT", integer(func(c *Config) *int { return &c.API.Port })},

	{"INFLUXDB_ENABLED", boolean(func(c *Config) *bool { return &c.InfluxDB.Enabled })},
	{"INFLUXDB_URL", str(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"INFLUXDB_TOKEN", str(func(c *Config) *string { return &c.InfluxDB.Token })},

	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
}

// applyEnvOverrides copies set SYNTHD_* variables into cfg.
func applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		v := os.Getenv(envPrefix + o.name)
		if v == "" {
			continue
		}
		if err := o.set(cfg, v); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, o.name, err)
		}
	}
	return nil
}
