package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Qredence/handoff-bridge/internal/repository"
	"github.com/Qredence/handoff-bridge/pkg/models"
)

// createWorkflowBody is the POST /v1/workflows payload.
type createWorkflowBody struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// handleCreateWorkflow idempotently creates a workflow record and returns its
// persisted fields. An existing record is returned unchanged.
func (s *Server) handleCreateWorkflow(c echo.Context) error {
	var body createWorkflowBody
	if err := c.Bind(&body); err != nil {
		return invalidRequest(c, "malformed request body")
	}
	if body.ID == "" {
		body.ID = "wf_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	wf, err := s.runs.EnsureWorkflow(c.Request().Context(), body.ID, body.Name, body.Config)
	if err != nil {
		return storeFailure(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// handleGetWorkflow returns the workflow record for an entity id.
func (s *Server) handleGetWorkflow(c echo.Context) error {
	wf, err := s.store.GetWorkflow(c.Request().Context(), c.Param("entityID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c)
		}
		return storeFailure(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// handleListRuns lists the run records of a workflow.
func (s *Server) handleListRuns(c echo.Context) error {
	runs, err := s.store.ListRuns(c.Request().Context(), c.Param("entityID"))
	if err != nil {
		return storeFailure(c, err)
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	return c.JSON(http.StatusOK, runs)
}
