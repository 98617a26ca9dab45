// Package api wires the services into an Echo HTTP server.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mapstream/mapstream/internal/catalog"
	"github.com/mapstream/mapstream/internal/config"
	"github.com/mapstream/mapstream/internal/download"
	"github.com/mapstream/mapstream/internal/prefetch"
	"github.com/mapstream/mapstream/internal/scheduler"
	"github.com/mapstream/mapstream/internal/websocket"
)

// Server handles HTTP requests for the MapStream API.
type Server struct {
	echo   *echo.Echo
	db     *sql.DB
	hub    *websocket.Hub
	logger zerolog.Logger
	cfg    *config.Config
	sched  *scheduler.Scheduler

	catalogService  *catalog.Service
	downloadService *download.Service
	prefetchService *prefetch.Service
}

// NewServer creates a new API server instance.
func NewServer(db *sql.DB, hub *websocket.Hub, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		db:     db,
		hub:    hub,
		logger: logger,
		cfg:    cfg,
	}

	s.catalogService = catalog.NewService(db, catalog.Config{
		ManifestURL:     cfg.Catalog.ManifestURL,
		MapsBaseURL:     cfg.Catalog.MapsBaseURL,
		PreviewsBaseURL: cfg.Catalog.PreviewsBaseURL,
		DownloadDir:     cfg.Downloads.Dir,
	}, hub, logger)

	s.downloadService = download.NewService(s.catalogService, hub, logger, download.Options{
		Concurrency: cfg.Downloads.Concurrency,
	})
	s.downloadService.SetOnComplete(func(id int64, path string) {
		if err := s.catalogService.MarkDownloaded(context.Background(), id, path); err != nil {
			logger.Warn().Err(err).Int64("id", id).Msg("failed to mark map downloaded")
		}
	})

	s.prefetchService = prefetch.NewService(
		cfg.Downloads.CacheDir,
		s.catalogService.ThumbnailURL,
		hub,
		logger,
		cfg.Downloads.ThumbnailConcurrency,
	)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Catalog returns the catalog service for external wiring (scheduler).
func (s *Server) Catalog() *catalog.Service {
	return s.catalogService
}

// Downloads returns the download service.
func (s *Server) Downloads() *download.Service {
	return s.downloadService
}

// Prefetch returns the thumbnail prefetch service.
func (s *Server) Prefetch() *prefetch.Service {
	return s.prefetchService
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins serving HTTP requests. The download directory is created
// up front: workers assume destination parents already exist.
func (s *Server) Start() error {
	if err := os.MkdirAll(s.cfg.Downloads.Dir, 0o755); err != nil {
		return err
	}

	addr := s.cfg.Server.Address()
	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and waits for in-flight
// downloads to settle.
func (s *Server) Shutdown(ctx context.Context) error {
	s.downloadService.Cancel()
	s.prefetchService.Cancel()
	s.downloadService.Wait()
	s.prefetchService.Wait()
	return s.echo.Shutdown(ctx)
}
