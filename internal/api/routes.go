package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mapstream/mapstream/internal/catalog"
	"github.com/mapstream/mapstream/internal/config"
	"github.com/mapstream/mapstream/internal/download"
)

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	v1 := s.echo.Group("/api/v1")

	catalog.NewHandlers(s.catalogService).RegisterRoutes(v1.Group("/maps"))
	download.NewHandlers(s.downloadService, s.catalogService).RegisterRoutes(v1.Group("/downloads"))

	v1.POST("/thumbnails/prefetch", s.handlePrefetch)
	v1.GET("/system/status", s.handleSystemStatus)

	s.echo.GET("/ws", s.hub.HandleWebSocket)
}

// handlePrefetch starts a thumbnail prefetch pass over the whole catalog.
// POST /api/v1/thumbnails/prefetch
func (s *Server) handlePrefetch(c echo.Context) error {
	names, err := s.catalogService.Names(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.prefetchService.Start(names)
	return c.JSON(http.StatusAccepted, map[string]int{"queued": len(names)})
}

// handleSystemStatus reports basic liveness information.
// GET /api/v1/system/status
func (s *Server) handleSystemStatus(c echo.Context) error {
	mapCount, err := s.catalogService.Count(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":   config.Version,
		"maps":      mapCount,
		"wsClients": s.hub.ClientCount(),
	})
}
