package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-teslemetry/internal/audit"
	bridge "github.com/nerrad567/gray-logic-teslemetry/internal/bridges/teslemetry"
	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each dependency check of the health endpoint.
const healthCheckTimeout = 3 * time.Second

// Bridge is the subset of the Teslemetry bridge the API drives.
// It is satisfied by *teslemetry.Bridge.
type Bridge interface {
	SetCapability(ctx context.Context, deviceID string, c device.Capability, value any) error
	ListPairingDevices(ctx context.Context) ([]bridge.PairingDevice, error)
	PairVehicle(ctx context.Context, vin string) (*device.Device, bool, error)
	RenameDevice(ctx context.Context, id, name string) error
	RemoveDevice(ctx context.Context, id string) error
}

// CommandLog lists recorded capability changes.
// It is satisfied by *audit.SQLiteRepository.
type CommandLog interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Bridge   Bridge

	// Metrics serves /metrics; optional.
	Metrics http.Handler

	// Commands serves the command log; optional.
	Commands CommandLog

	// Checks are run by the health endpoint, keyed by dependency name.
	Checks map[string]HealthCheck

	Version string
}

// Server is the HTTP API server.
//
// It is created with New and started with Start.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	registry *device.Registry
	bridge   Bridge
	metrics  http.Handler
	commands CommandLog
	checks   map[string]HealthCheck
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("device registry is required")
	}
	if deps.Bridge == nil {
		return nil, errors.New("bridge is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		registry: deps.Registry,
		bridge:   deps.Bridge,
		metrics:  deps.Metrics,
		commands: deps.Commands,
		checks:   deps.Checks,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close.
func (s *Server) Start(_ context.Context) error {
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

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
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
		return errors.New("api server not started")
	}
	return nil
}
