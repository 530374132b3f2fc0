package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/synthd/internal/supervisor"
)

// Measurement names.
const (
	MeasurementLifecycle = "synth_lifecycle"
	MeasurementCounters  = "synth_counters"
)

// LifecyclePoint turns a supervisor update into a point. Session is a tag
// so one boot's history can be selected cheaply.
func LifecyclePoint(instance string, u supervisor.Update) *write.Point {
	tags := map[string]string{
		"instance": instance,
		"kind":     string(u.Kind),
		"status":   string(u.Status),
	}
	if u.Session != "" {
		tags["session"] = u.Session
	}
	if u.Reason != "" {
		tags["reason"] = u.Reason
	}

	ts := u.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(MeasurementLifecycle, tags, map[string]any{
		"previous":   string(u.Previous),
		"pid":        int64(u.PID),
		"local_port": int64(u.LocalPort),
		"exit_code":  int64(u.ExitCode),
	}, ts)
}

// CountersPoint samples the supervisor's cumulative counters.
func CountersPoint(instance string, s supervisor.Snapshot, at time.Time) *write.Point {
	c := s.Counters
	return write.NewPoint(MeasurementCounters,
		map[string]string{
			"instance": instance,
			"status":   string(s.Status),
		},
		map[string]any{
			"boots":                  c.Boots,
			"boot_failures":          c.BootFailures,
			"crashes":                c.Crashes,
			"transport_failures":     c.TransportFailures,
			"transport_replacements": c.TransportReplacements,
			"sent":                   c.Sent,
			"send_errors":            c.SendErrors,
			"received":               c.Received,
			"stale_events":           c.StaleEvents,
			"uptime_seconds":         s.Uptime.Seconds(),
		},
		at,
	)
}

// WriteLifecycle queues a point for u. It has the signature of a
// supervisor update listener once bound to a client.
func (c *Client) WriteLifecycle(u supervisor.Update) {
	c.write(LifecyclePoint(c.instance, u))
}

// WriteCounters queues a counters sample taken from s.
func (c *Client) WriteCounters(s supervisor.Snapshot) {
	c.write(CountersPoint(c.instance, s, time.Now()))
}

func (c *Client) write(p *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil || c.closed {
		return
	}
	c.writeAPI.WritePoint(p)
}
