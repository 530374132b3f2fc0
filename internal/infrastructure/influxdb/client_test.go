package influxdb_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/synthd/internal/infrastructure/config"
	"github.com/nerrad567/synthd/internal/infrastructure/influxdb"
	"github.com/nerrad567/synthd/internal/supervisor"
)

// testConfig points at a local development InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "synthd-dev-token",
		Org:           "synthd",
		Bucket:        "synthd",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip skips the test when no InfluxDB is running.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig(), "test")
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func lineProtocol(p *write.Point) string {
	return write.PointToLineProtocol(p, time.Nanosecond)
}

func TestLifecyclePoint(t *testing.T) {
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	u := supervisor.Update{
		Kind:     supervisor.UpdateStatus,
		Session:  "cs1abc",
		Status:   supervisor.StatusCrashed,
		Previous: supervisor.StatusRunning,
		Reason:   "exit_code",
		ExitCode: 3,
		Time:     ts,
	}

	line := lineProtocol(influxdb.LifecyclePoint("studio-a", u))

	for _, want := range []string{
		"synth_lifecycle,",
		"instance=studio-a",
		"kind=status",
		"reason=exit_code",
		"session=cs1abc",
		"status=crashed",
		"exit_code=3i",
		`previous="running"`,
		"pid=0i",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(line), "1790856000000000000") {
		t.Errorf("line %q does not end with the update time", line)
	}
}

func TestLifecyclePoint_OmitsEmptyTags(t *testing.T) {
	line := lineProtocol(influxdb.LifecyclePoint("studio-a", supervisor.Update{
		Kind:   supervisor.UpdateStatus,
		Status: supervisor.StatusStopped,
	}))
	if strings.Contains(line, "session=") || strings.Contains(line, "reason=") {
		t.Errorf("line %q has empty tags", line)
	}
}

func TestCountersPoint(t *testing.T) {
	snap := supervisor.Snapshot{
		Status: supervisor.StatusRunning,
		Uptime: 90 * time.Second,
		Counters: supervisor.Counters{
			Boots:   2,
			Crashes: 1,
			Sent:    40,
		},
	}

	line := lineProtocol(influxdb.CountersPoint("studio-a", snap, time.Now()))

	for _, want := range []string{"synth_counters,", "status=running", "boots=2u", "crashes=1u", "sent=40u", "uptime_seconds=90"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg, "test")
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(cfg, "test")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	client.Flush()
	client.WriteLifecycle(supervisor.Update{})
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestWriteLifecycle(t *testing.T) {
	client := connectOrSkip(t)

	var (
		mu       sync.Mutex
		writeErr error
	)
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteLifecycle(supervisor.Update{Kind: supervisor.UpdateStatus, Status: supervisor.StatusRunning, Time: time.Now()})
	client.WriteCounters(supervisor.Snapshot{Status: supervisor.StatusRunning})
	client.Flush()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("write error = %v", writeErr)
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
