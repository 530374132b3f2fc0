package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/synthd/internal/history"
	"github.com/nerrad567/synthd/internal/infrastructure/config"
	"github.com/nerrad567/synthd/internal/infrastructure/logging"
	"github.com/nerrad567/synthd/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Supervisor is the engine control surface the API exposes.
type Supervisor interface {
	Boot(ctx context.Context) error
	Quit(ctx context.Context) error
	SendMessage(ctx context.Context, address string, args ...any) error
	Status(ctx context.Context) (supervisor.Snapshot, error)
	Snapshot() supervisor.Snapshot
	OnUpdate(l supervisor.UpdateListener)
	OnInbound(l supervisor.InboundListener)
}

// Database is what the health and metrics endpoints read from the store.
type Database interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
}

// Broker reports the MQTT connection state.
type Broker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Supervisor Supervisor

	// Optional collaborators. A nil History disables /history.
	History  history.Repository
	Recorder *history.Recorder
	Database Database
	MQTT     Broker

	// Registry receives the supervisor collector and is served on /metrics.
	// Default: a fresh registry.
	Registry *prometheus.Registry

	Version string
}

// Server is the HTTP API server for synthd.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	sup       Supervisor
	history   history.Repository
	recorder  *history.Recorder
	db        Database
	mqtt      Broker
	registry  *prometheus.Registry
	metrics   *httpMetrics
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies. The supervisor
// listeners that feed the WebSocket hub are registered here, so New must
// be called once per supervisor.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}
	if deps.WS.Path == "" {
		deps.WS.Path = "/ws"
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		sup:       deps.Supervisor,
		history:   deps.History,
		recorder:  deps.Recorder,
		db:        deps.Database,
		mqtt:      deps.MQTT,
		registry:  deps.Registry,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if err := s.registry.Register(newSupervisorCollector(s.sup)); err != nil {
		return nil, fmt.Errorf("registering supervisor metrics: %w", err)
	}
	metrics, err := newHTTPMetrics(s.registry)
	if err != nil {
		return nil, fmt.Errorf("registering http metrics: %w", err)
	}
	s.metrics = metrics

	s.sup.OnUpdate(s.broadcastUpdate)
	s.sup.OnInbound(s.broadcastReply)

	return s, nil
}

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns, so a port conflict is
// reported to the caller. Requests are served on a background goroutine
// until Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
