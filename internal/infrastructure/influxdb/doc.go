// Package influxdb writes synthd telemetry to InfluxDB v2.
//
// Two measurements are produced: synth_lifecycle, one point per supervisor
// update, and synth_counters, periodic samples of the supervisor's
// cumulative counters. Both carry an instance tag.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Instance.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	sup.OnUpdate(client.WriteLifecycle)
//
// The token should come from SYNTHD_INFLUXDB_TOKEN rather than the file.
package influxdb
