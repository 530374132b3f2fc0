// Package config handles loading and validating synthd configuration.
//
// Loading order is defaults, then the YAML file, then SYNTHD_* environment
// variables, then validation. Validate reports every problem in one error so
// a broken file can be fixed in a single pass.
//
// Passwords and tokens (engine password, MQTT credentials, InfluxDB token)
// should come from the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/synthd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Engine.BuildArgs())
package config
