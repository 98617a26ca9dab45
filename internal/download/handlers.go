package download

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for download operations.
type Handlers struct {
	service *Service
	source  TaskSource
}

// NewHandlers creates a new download handlers instance.
func NewHandlers(service *Service, source TaskSource) *Handlers {
	return &Handlers{service: service, source: source}
}

// RegisterRoutes registers download routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Submit)
	g.GET("/status", h.Status)
	g.POST("/cancel", h.Cancel)
	g.POST("/retry", h.Retry)
	g.DELETE("", h.Clear)
}

// SubmitRequest is the body for starting a batch download.
type SubmitRequest struct {
	// IDs are the catalog ids to download, in display order.
	IDs []int64 `json:"ids"`
	// Redownload forces a fetch even when the destination file exists.
	Redownload bool `json:"redownload"`
}

// Submit starts a batch download.
// POST /api/v1/downloads
func (h *Handlers) Submit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tasks, err := h.source.TasksFor(c.Request().Context(), req.IDs, !req.Redownload)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.service.Submit(tasks)

	return c.JSON(http.StatusAccepted, map[string]int{"queued": len(tasks)})
}

// Status returns the current batch snapshot.
// GET /api/v1/downloads/status
func (h *Handlers) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Snapshot())
}

// Cancel raises the current batch's cancellation signal.
// POST /api/v1/downloads/cancel
func (h *Handlers) Cancel(c echo.Context) error {
	h.service.Cancel()
	return c.NoContent(http.StatusAccepted)
}

// Retry resubmits exactly the tasks whose last status is Failed.
// POST /api/v1/downloads/retry
func (h *Handlers) Retry(c echo.Context) error {
	if err := h.service.RetryFailed(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// Clear empties the status store after the batch view is dismissed.
// DELETE /api/v1/downloads
func (h *Handlers) Clear(c echo.Context) error {
	h.service.Clear()
	return c.NoContent(http.StatusNoContent)
}
