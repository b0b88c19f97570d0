package api

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	tallymcp "github.com/papercomputeco/tally/api/mcp"
	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/stream"
)

// Source supplies the current result and how much of the log it covers.
// *stream.Rollup satisfies it.
type Source interface {
	Latest() *analysis.Result
	Stats() stream.RollupStats
}

// Server is the API server for querying the rolling analysis.
type Server struct {
	config Config
	source Source
	logger *slog.Logger
	app    *fiber.App

	// done ends open event streams on shutdown.
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates a new API server. The source is injected so that the
// server can share a rollup with a running stream.
func NewServer(config Config, source Source, logger *slog.Logger) (*Server, error) {
	if source == nil {
		return nil, errors.New("analysis source is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	if config.EventInterval <= 0 {
		config.EventInterval = time.Second
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		source: source,
		logger: logger,
		app:    app,
		done:   make(chan struct{}),
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Get("/analysis", s.handleAnalysis)
	v1.Get("/summary", s.handleSummary)
	v1.Get("/sessions", s.handleListSessions)
	v1.Get("/sessions/:id", s.handleGetSession)
	v1.Get("/conversations/:id", s.handleGetConversation)
	v1.Get("/tools", s.handleTools)
	v1.Get("/costs", s.handleCosts)
	v1.Get("/temporal", s.handleTemporal)
	v1.Get("/events", s.handleEvents)

	if !config.DisableMCP {
		mcpServer, err := tallymcp.NewServer(tallymcp.Config{
			Source: source,
			Logger: logger.With("component", "mcp"),
		})
		if err != nil {
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"mcp", !s.config.DisableMCP,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Serve runs the API server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting API server",
		"listen", ln.Addr().String(),
		"mcp", !s.config.DisableMCP,
	)
	return s.app.Listener(ln)
}

// Shutdown closes open event streams and gracefully shuts down the API
// server.
func (s *Server) Shutdown() error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.app.Shutdown()
}
