// synthd supervises a SuperCollider scsynth server.
//
// It boots and watches one scsynth process and the UDP socket used to talk
// OSC to it, journals every lifecycle change to SQLite, and exposes the
// engine over an HTTP API, a WebSocket stream and (optionally) MQTT.
//
// Configuration is read from configs/config.yaml, or from the file named
// by SYNTHD_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/synthd/internal/api"
	"github.com/nerrad567/synthd/internal/bridge"
	"github.com/nerrad567/synthd/internal/history"
	"github.com/nerrad567/synthd/internal/infrastructure/config"
	"github.com/nerrad567/synthd/internal/infrastructure/database"
	"github.com/nerrad567/synthd/internal/infrastructure/influxdb"
	"github.com/nerrad567/synthd/internal/infrastructure/logging"
	"github.com/nerrad567/synthd/internal/infrastructure/mqtt"
	"github.com/nerrad567/synthd/internal/supervisor"
	"github.com/nerrad567/synthd/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// countersInterval is how often supervisor counters go to InfluxDB.
	countersInterval = 30 * time.Second

	// bootTimeout bounds the boot-on-start request.
	bootTimeout = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability. It returns nil
// on a clean shutdown.
//
// Deferred cleanups run in reverse order: API, bridge and MQTT, InfluxDB,
// then the supervisor (which stops the engine), then the history recorder
// so the final updates are journalled, then the database.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting synthd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	historyRepo := history.NewSQLiteRepository(db.DB)
	pruneHistory(ctx, historyRepo, cfg.Database.HistoryRetentionDays, log)

	recorder := history.NewRecorder(historyRepo, history.DefaultBuffer, log.Component("history"))
	defer func() {
		log.Info("flushing lifecycle history")
		recorder.Close()
	}()

	sup, err := newSupervisor(cfg, log)
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}
	defer func() {
		log.Info("stopping engine supervisor")
		if closeErr := sup.Close(); closeErr != nil {
			log.Error("error closing supervisor", "error", closeErr)
		}
	}()
	sup.OnUpdate(recorder.Record)

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB, cfg.Instance.ID)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sup.OnUpdate(influxClient.WriteLifecycle)

		countersCtx, stopCounters := context.WithCancel(ctx)
		defer stopCounters()
		go writeCounters(countersCtx, influxClient, sup)
	}

	// Connect to MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startMQTT(cfg, sup, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		br, bridgeErr := startBridge(cfg, sup, mqttClient, log)
		if bridgeErr != nil {
			return bridgeErr
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			if closeErr := br.Close(); closeErr != nil {
				log.Error("error closing MQTT bridge", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.Component("api"),
		Supervisor: sup,
		History:    historyRepo,
		Recorder:   recorder,
		Database:   db,
		Version:    version,
	}
	// A nil *mqtt.Client must not become a non-nil interface.
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server listening", "addr", server.Addr())

	if cfg.Supervisor.BootOnStart {
		bootEngine(ctx, sup, log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SYNTHD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SYNTHD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newSupervisor builds the engine supervisor from configuration. A binary
// that cannot be resolved is not fatal: the daemon still serves history and
// status, and Boot reports the launch failure.
func newSupervisor(cfg *config.Config, log *logging.Logger) (*supervisor.Supervisor, error) {
	binary, err := cfg.Engine.ResolveBinary()
	if err != nil {
		log.Warn("engine binary not found, boot will fail until it is installed",
			"binary", cfg.Engine.Binary,
			"error", err,
		)
		binary = cfg.Engine.Binary
	}

	host, port := cfg.Engine.Destination()

	sup, err := supervisor.New(supervisor.Config{
		Binary:           binary,
		Args:             cfg.Engine.BuildArgs(),
		Host:             host,
		Port:             port,
		BindAddress:      cfg.Supervisor.BindAddress,
		GracefulTimeout:  cfg.Supervisor.GracefulTimeout,
		KillTimeout:      cfg.Supervisor.KillTimeout,
		WatchdogInterval: cfg.Supervisor.WatchdogInterval,
		MailboxSize:      cfg.Supervisor.MailboxSize,
		Logger:           log.Component("supervisor"),
	})
	if err != nil {
		return nil, err
	}

	log.Info("engine supervisor ready",
		"binary", binary,
		"destination", fmt.Sprintf("%s:%d", host, port),
	)
	return sup, nil
}

// pruneHistory drops journal entries older than the retention period.
func pruneHistory(ctx context.Context, repo history.Repository, retentionDays int, log *logging.Logger) {
	if retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	n, err := repo.Prune(ctx, cutoff)
	if err != nil {
		log.Warn("pruning lifecycle history failed", "error", err)
		return
	}
	if n > 0 {
		log.Info("pruned lifecycle history", "deleted", n, "retention_days", retentionDays)
	}
}

// startMQTT connects to the broker and installs connection logging.
func startMQTT(cfg *config.Config, sup *supervisor.Supervisor, log *logging.Logger) (*mqtt.Client, error) {
	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Instance.ID)

	client, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err, "engine_status", sup.Snapshot().Status)
	})

	return client, nil
}

// startBridge connects the supervisor to the broker's command and status topics.
func startBridge(cfg *config.Config, sup *supervisor.Supervisor, client *mqtt.Client, log *logging.Logger) (*bridge.Bridge, error) {
	br, err := bridge.New(bridge.Options{
		Supervisor: sup,
		Broker:     client,
		Topics:     client.Topics(),
		QoS:        client.QoS(),
		Logger:     log.Component("bridge"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := br.Start(); err != nil {
		return nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	log.Info("MQTT bridge started", "commands", client.Topics().AllCommands())
	return br, nil
}

// bootEngine boots the engine once at startup. Failure is logged; the
// daemon keeps running so the engine can be booted later.
func bootEngine(ctx context.Context, sup *supervisor.Supervisor, log *logging.Logger) {
	bootCtx, cancel := context.WithTimeout(ctx, bootTimeout)
	defer cancel()

	if err := sup.Boot(bootCtx); err != nil {
		log.Error("boot on start failed", "error", err)
		return
	}
	snap := sup.Snapshot()
	log.Info("engine booted", "session", snap.Session, "pid", snap.PID)
}

// writeCounters sends supervisor counters to InfluxDB until ctx is done.
func writeCounters(ctx context.Context, client *influxdb.Client, sup *supervisor.Supervisor) {
	ticker := time.NewTicker(countersInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client.WriteCounters(sup.Snapshot())
		}
	}
}
