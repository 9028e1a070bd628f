package api

import (
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

// Server is the API server for storing and querying documents.
type Server struct {
	config Config
	driver vector.Driver
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server over driver. The driver is injected so
// callers choose its wrappers; the server never closes it.
func NewServer(config Config, driver vector.Driver, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config: config,
		driver: driver,
		logger: logger.OrNop(log),
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := app.Group("/v1")
	v1.Post("/documents", s.handleAddDocuments)
	v1.Post("/query", s.handleQuery)
	v1.Post("/query/batch", s.handleQueryBatch)
	v1.Post("/retrieve", s.handleRetrieve)
	v1.Get("/stats", s.handleStats)

	return s
}

// App returns the underlying fiber app, for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"backend", s.config.Backend,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
