package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/synthd/internal/history"
	"github.com/nerrad567/synthd/internal/supervisor"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                 `json:"timestamp"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Runtime       RuntimeMetrics         `json:"runtime"`
	Engine        EngineMetrics          `json:"engine"`
	WebSocket     WSMetrics              `json:"websocket"`
	MQTT          *MQTTMetrics           `json:"mqtt,omitempty"`
	History       *history.RecorderStats `json:"history,omitempty"`
	Database      *DatabaseMetrics       `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// EngineMetrics summarises the supervisor.
type EngineMetrics struct {
	Status        supervisor.Status   `json:"status"`
	Session       string              `json:"session,omitempty"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	Counters      supervisor.Counters `json:"counters"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns daemon metrics as JSON. Prometheus scrapes /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.sup.Snapshot()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Engine: EngineMetrics{
			Status:        snap.Status,
			Session:       snap.Session,
			UptimeSeconds: snap.Uptime.Seconds(),
			Counters:      snap.Counters,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.recorder != nil {
		stats := s.recorder.Stats()
		metrics.History = &stats
	}
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// statuses lists every supervisor status for the state gauge.
var statuses = []supervisor.Status{
	supervisor.StatusStopped,
	supervisor.StatusRunning,
	supervisor.StatusErrored,
	supervisor.StatusCrashed,
}

// supervisorCollector exposes a supervisor snapshot to Prometheus at
// scrape time.
type supervisorCollector struct {
	sup Supervisor

	state    *prometheus.Desc
	uptime   *prometheus.Desc
	counters []counterDesc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(supervisor.Counters) uint64
}

func newSupervisorCollector(sup Supervisor) *supervisorCollector {
	counter := func(name, help string, value func(supervisor.Counters) uint64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName("synthd", "engine", name), help, nil, nil),
			value: value,
		}
	}

	return &supervisorCollector{
		sup: sup,
		state: prometheus.NewDesc("synthd_engine_state",
			"1 for the supervisor's current status, 0 otherwise.",
			[]string{"status"}, nil),
		uptime: prometheus.NewDesc("synthd_engine_uptime_seconds",
			"Seconds since the running engine was launched.", nil, nil),
		counters: []counterDesc{
			counter("boots_total", "Successful engine launches.",
				func(c supervisor.Counters) uint64 { return c.Boots }),
			counter("boot_failures_total", "Failed engine launches.",
				func(c supervisor.Counters) uint64 { return c.BootFailures }),
			counter("crashes_total", "Engine crashes.",
				func(c supervisor.Counters) uint64 { return c.Crashes }),
			counter("transport_failures_total", "Engine socket failures.",
				func(c supervisor.Counters) uint64 { return c.TransportFailures }),
			counter("transport_replacements_total", "Failed sockets replaced while running.",
				func(c supervisor.Counters) uint64 { return c.TransportReplacements }),
			counter("datagrams_sent_total", "Datagrams sent to the engine.",
				func(c supervisor.Counters) uint64 { return c.Sent }),
			counter("send_errors_total", "Sends that failed.",
				func(c supervisor.Counters) uint64 { return c.SendErrors }),
			counter("datagrams_received_total", "Datagrams received from the engine.",
				func(c supervisor.Counters) uint64 { return c.Received }),
			counter("stale_events_total", "Events from superseded sessions that were ignored.",
				func(c supervisor.Counters) uint64 { return c.StaleEvents }),
		},
	}
}

func (c *supervisorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.uptime
	for _, cd := range c.counters {
		ch <- cd.desc
	}
}

func (c *supervisorCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.sup.Snapshot()

	for _, st := range statuses {
		v := 0.0
		if snap.Status == st {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, string(st))
	}
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, snap.Uptime.Seconds())

	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(snap.Counters)))
	}
}
