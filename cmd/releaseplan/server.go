package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/releaseplan/internal/shell/api"
	"github.com/artpar/releaseplan/internal/shell/planning"
	"github.com/artpar/releaseplan/internal/shell/publish"
	"github.com/artpar/releaseplan/internal/shell/telemetry"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess      = 0
	ExitConfigError  = 1
	ExitSourceError  = 2
	ExitServerError  = 3
	ExitPublishError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the release planning API server.
type Server struct {
	config            *Config
	httpServer        *http.Server
	publisher         publish.Publisher
	shutdownTelemetry telemetry.ShutdownFunc
	logger            *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, &CommandError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, &CommandError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}

	var handlerOpts []api.Option
	handlerOpts = append(handlerOpts, api.WithVersion(Version))
	if kp, ok := publisher.(*publish.KafkaPublisher); ok {
		handlerOpts = append(handlerOpts, api.WithReadinessCheck("publisher", kp.Ping))
	}

	service := planning.NewService(logger,
		planning.WithOptions(cfg.Plan.Options()),
		planning.WithPublisher(publisher),
	)
	handler := api.NewHandler(service, logger, handlerOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:            cfg,
		httpServer:        httpServer,
		publisher:         publisher,
		shutdownTelemetry: shutdownTelemetry,
		logger:            logger,
	}, nil
}

// newPublisher returns the Kafka publisher when publishing is enabled and a
// no-op publisher otherwise.
func newPublisher(cfg *Config, logger *slog.Logger) (publish.Publisher, error) {
	if !cfg.Publish.Enabled {
		return publish.Nop{}, nil
	}
	p, err := publish.NewKafkaPublisher(cfg.Publish.KafkaConfig(), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("plan publishing enabled",
		"brokers", cfg.Publish.Brokers,
		"topic", cfg.Publish.Topic,
	)
	return p, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.close(ctx)
		return &CommandError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitServerError,
		}
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.close(context.Background())
		return &CommandError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.close(shutdownCtx)

	s.logger.Info("shutdown complete")
	return nil
}

// close releases the publisher and flushes telemetry.
func (s *Server) close(ctx context.Context) {
	if err := s.publisher.Close(); err != nil {
		s.logger.Error("publisher close error", "error", err)
	}
	if err := s.shutdownTelemetry(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", "error", err)
	}
}

// =============================================================================
// Command Error
// =============================================================================

// CommandError represents a failed command with its process exit code.
type CommandError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CommandError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
