package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mapstream/mapstream/internal/scheduler"
)

// AttachScheduler exposes the background task registry over the API:
// listing registered tasks and triggering one outside its schedule,
// which is how the UI's manual "check for updates" action runs the
// catalog refresh on demand.
func (s *Server) AttachScheduler(sched *scheduler.Scheduler) {
	s.sched = sched

	v1 := s.echo.Group("/api/v1")
	v1.GET("/system/tasks", s.handleListTasks)
	v1.POST("/system/tasks/:id/run", s.handleRunTask)
}

// handleListTasks returns all registered background tasks.
// GET /api/v1/system/tasks
func (s *Server) handleListTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.ListTasks())
}

// handleRunTask triggers a task immediately.
// POST /api/v1/system/tasks/:id/run
func (s *Server) handleRunTask(c echo.Context) error {
	if err := s.sched.RunTaskNow(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
