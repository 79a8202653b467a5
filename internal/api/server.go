package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/audit"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/correlation"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/config"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/logging"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/site"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a component whose liveness the health endpoint reports.
// The MQTT, database and InfluxDB clients satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionState reports whether the bus connection is up.
type ConnectionState interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Store   *site.Store
	Tracker *correlation.Tracker
	Version string

	// Audit backs /audit; without it the endpoint answers 503.
	Audit audit.Repository

	// Health lists the components reported by /health.
	Health map[string]HealthChecker

	// MQTT and DB are optional extras for /metrics.
	MQTT ConnectionState
	DB   *sql.DB

	// Hub, if set, is used instead of a server-owned hub.
	Hub *Hub
}

// Server is the read-only HTTP API of the skill.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	store     *site.Store
	tracker   *correlation.Tracker
	auditRepo audit.Repository
	health    map[string]HealthChecker
	mqtt      ConnectionState
	db        *sql.DB
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("site store is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("correlation tracker is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		store:     deps.Store,
		tracker:   deps.Tracker,
		auditRepo: deps.Audit,
		health:    deps.Health,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}

	// The skill needs the hub as its Notifier before the server starts, so
	// main may create it.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.hub.SetSnapshot(s.store.Sites)
	}

	return s, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		s.hub.SetSnapshot(s.store.Sites)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
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

// HealthCheck verifies the API server has been started.
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
