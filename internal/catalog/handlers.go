package catalog

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for catalog operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new catalog handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers catalog routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/refresh", h.Refresh)
	g.GET("/settings/:key", h.GetSetting)
	g.PUT("/settings/:key", h.SetSetting)
}

// List returns all catalog entries.
// GET /api/v1/maps
func (h *Handlers) List(c echo.Context) error {
	maps, err := h.service.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, maps)
}

// Refresh fetches the remote manifest and updates the catalog.
// POST /api/v1/maps/refresh
func (h *Handlers) Refresh(c echo.Context) error {
	result, err := h.service.Refresh(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// GetSetting returns one persisted setting value.
// GET /api/v1/maps/settings/:key
func (h *Handlers) GetSetting(c echo.Context) error {
	value, err := h.service.GetSetting(c.Request().Context(), c.Param("key"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"key": c.Param("key"), "value": value})
}

// SetSettingRequest is the body for updating a setting.
type SetSettingRequest struct {
	Value string `json:"value"`
}

// SetSetting stores one setting value.
// PUT /api/v1/maps/settings/:key
func (h *Handlers) SetSetting(c echo.Context) error {
	var req SetSettingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.service.SetSetting(c.Request().Context(), c.Param("key"), req.Value); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
