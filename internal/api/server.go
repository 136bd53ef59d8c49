package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/grote-beer/MySensors/internal/audit"
	"github.com/grote-beer/MySensors/internal/gateway"
	"github.com/grote-beer/MySensors/internal/infrastructure/config"
	"github.com/grote-beer/MySensors/internal/infrastructure/logging"
	"github.com/grote-beer/MySensors/internal/node"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	gracefulShutdownTimeout = 5 * time.Second

	readHeaderTimeout = 5 * time.Second
)

// NodeStore is the part of the node registry the API reads and prunes.
type NodeStore interface {
	List(ctx context.Context) ([]node.Node, error)
	Get(ctx context.Context, id uint8) (*node.Node, error)
	Forget(ctx context.Context, id uint8) error
}

// HealthChecker is a component whose health the /health endpoint reports.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger
	Nodes  NodeStore

	// Sender publishes injected messages. Usually the gateway runner.
	Sender gateway.Sender

	// Connected reports whether the gateway's broker session is up.
	Connected func() bool

	// Checks are probed by /health, keyed by component name.
	Checks map[string]HealthChecker

	// Audit records operator actions when set.
	Audit audit.Repository

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Version string
}

// Server is the status API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	nodes     NodeStore
	sender    gateway.Sender
	connected func() bool
	checks    map[string]HealthChecker
	audit     audit.Repository
	metrics   http.Handler
	version   string
	started   time.Time

	hub      *Hub
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called, but its hub exists
// right away so it can be registered with the runner first.
//
// Parameters:
//   - deps: Logger and Nodes are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Nodes == nil {
		return nil, fmt.Errorf("node store is required")
	}

	connected := deps.Connected
	if connected == nil {
		connected = func() bool { return false }
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		nodes:     deps.Nodes,
		sender:    deps.Sender,
		connected: connected,
		checks:    deps.Checks,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		version:   deps.Version,
		started:   time.Now(),
		hub:       NewHub(deps.Config.WebSocket, deps.Logger),
	}, nil
}

// Hub returns the WebSocket hub. Register it with the gateway runner as
// both observer and handler to feed the live stream.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// The listener is opened synchronously so a busy port is reported here;
// requests are then served in a background goroutine until Close.
//
// Parameters:
//   - ctx: Parent context of the hub; cancelling it disconnects clients
//
// Returns:
//   - error: If the listener cannot be opened
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("api: listening on %s: %w", s.cfg.Address, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// Returns:
//   - error: If shutdown encounters an error
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
