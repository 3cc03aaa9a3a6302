package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/platelab/labeler/internal/buildinfo"
	"github.com/platelab/labeler/internal/catalog"
	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/observability"
	"github.com/platelab/labeler/internal/preview"
	"github.com/platelab/labeler/internal/triage"

	mw "github.com/platelab/labeler/internal/api/middleware"
)

// Catalog lists images and counts them per category.
type Catalog interface {
	ListAll(ctx context.Context) ([]string, error)
	Counts(ctx context.Context) (catalog.Counts, error)
}

// Triage moves images between categories.
type Triage interface {
	MarkValid(p string, label *string) (triage.Result, error)
	MarkInvalid(p string) (triage.Result, error)
	MarkSkipped(p string) (triage.Result, error)
	UpdateLabel(p, label string) (triage.Result, error)
}

// Preview describes images and renders plate crops.
type Preview interface {
	Details(p string) (preview.Details, error)
	Crop(ctx context.Context, p string) ([]byte, error)
}

// FileServer streams files from the media root.
type FileServer interface {
	ServeRelativeFile(c echo.Context, relPath string) error
}

// Server is the labeler HTTP server.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	catalog Catalog
	triage  Triage
	preview Preview
	files   FileServer
	metrics *observability.Metrics
	build   *buildinfo.Context

	routes    []Route
	startTime time.Time
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(*Server)

// WithCatalog sets the image catalog.
func WithCatalog(c Catalog) ServerOption {
	return func(s *Server) {
		s.catalog = c
	}
}

// WithTriage sets the triage engine.
func WithTriage(t Triage) ServerOption {
	return func(s *Server) {
		s.triage = t
	}
}

// WithPreview sets the preview service.
func WithPreview(p Preview) ServerOption {
	return func(s *Server) {
		s.preview = p
	}
}

// WithFileServer sets the media root file server used for raw images.
func WithFileServer(f FileServer) ServerOption {
	return func(s *Server) {
		s.files = f
	}
}

// WithMetrics sets the metrics registry. /metrics is only exposed when
// Config.Metrics is also set.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBuildInfo sets the version reported by /health.
func WithBuildInfo(b *buildinfo.Context) ServerOption {
	return func(s *Server) {
		s.build = b
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// New creates a new HTTP server with the given configuration and options.
// It fails when a dependency is missing or the route table is inconsistent.
func New(config *Config, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, configError(fmt.Errorf("invalid server configuration: %w", err))
	}

	s := &Server{
		config:    config,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}

	if err := s.checkDependencies(); err != nil {
		return nil, err
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.HTTPErrorHandler = s.httpErrorHandler

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()

	s.routes = s.routeTable()
	if err := validateRoutes(s.routes); err != nil {
		return nil, configError(fmt.Errorf("failed to setup routes: %w", err))
	}
	s.registerRoutes(s.routes)

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Int("routes", len(s.routes)),
		logger.Bool("metrics", s.metricsEnabled()),
		logger.Bool("debug", config.Debug))

	return s, nil
}

func (s *Server) checkDependencies() error {
	var missing []string
	if s.catalog == nil {
		missing = append(missing, "catalog")
	}
	if s.triage == nil {
		missing = append(missing, "triage")
	}
	if s.preview == nil {
		missing = append(missing, "preview")
	}
	if s.files == nil {
		missing = append(missing, "file server")
	}
	if len(missing) > 0 {
		return configError(fmt.Errorf("server is missing dependencies: %v", missing))
	}
	return nil
}

func configError(err error) error {
	return errors.New(err).
		Component("api").
		Category(errors.CategoryConfiguration).
		Build()
}

func (s *Server) metricsEnabled() bool {
	return s.config.Metrics && s.metrics != nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/health" || c.Path() == "/metrics"
	}))

	if s.metrics != nil && s.metrics.HTTP != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.build.GetVersion(),
		"build_date":     s.build.GetBuildDate(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Run serves HTTP requests until ctx is cancelled, then shuts down gracefully.
// It returns early with the listener error if the server cannot start.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.startBlocking()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("Shutdown signal received, initiating graceful shutdown")
		if err := s.Shutdown(); err != nil {
			return err
		}
		return <-errCh
	}
}

// startBlocking begins serving HTTP requests and blocks until the server is shut down.
func (s *Server) startBlocking() error {
	addr := s.config.Address()

	s.log.Info("Starting HTTP server", logger.String("address", addr))

	err := s.echo.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(fmt.Errorf("server error: %w", err)).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", addr).
			Build()
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.log.Info("Server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Routes returns the registered route table.
func (s *Server) Routes() []Route {
	return s.routes
}
