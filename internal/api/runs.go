package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Qredence/handoff-bridge/internal/repository"
	"github.com/Qredence/handoff-bridge/pkg/models"
)

// handoffBody is the POST /v1/runs/{runID}/handoff payload.
type handoffBody struct {
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Reason    string `json:"reason"`
}

// handleRunStatus returns a run's status fields.
func (s *Server) handleRunStatus(c echo.Context) error {
	run, err := s.store.GetRun(c.Request().Context(), c.Param("runID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c)
		}
		return storeFailure(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// handleHandoff records an agent handoff in the run's audit trail.
func (s *Server) handleHandoff(c echo.Context) error {
	var body handoffBody
	if err := c.Bind(&body); err != nil {
		return invalidRequest(c, "malformed request body")
	}
	if body.FromAgent == "" || body.ToAgent == "" {
		return invalidRequest(c, "from_agent and to_agent are required")
	}

	err := s.runs.RecordHandoff(c.Request().Context(), c.Param("runID"), body.FromAgent, body.ToAgent, body.Reason)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c)
		}
		return storeFailure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "recorded"})
}

// handleListAudit lists a run's audit entries in creation order.
func (s *Server) handleListAudit(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("runID")
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c)
		}
		return storeFailure(c, err)
	}

	entries, err := s.store.ListAudit(ctx, runID)
	if err != nil {
		return storeFailure(c, err)
	}
	if entries == nil {
		entries = []*models.AuditLogEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}
