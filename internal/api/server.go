// Package api contains the HTTP handlers for the bridge's OpenAI-compatible
// surface.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Qredence/handoff-bridge/internal/logging"
	"github.com/Qredence/handoff-bridge/internal/registry"
	"github.com/Qredence/handoff-bridge/internal/repository"
	"github.com/Qredence/handoff-bridge/internal/services"
)

// Server holds the dependencies for the API server.
type Server struct {
	registry *registry.Registry
	runs     *services.RunService
	store    repository.Store
	logger   *logging.Logger
}

// NewServer creates a new Server.
func NewServer(reg *registry.Registry, runs *services.RunService, store repository.Store, logger *logging.Logger) *Server {
	return &Server{registry: reg, runs: runs, store: store, logger: logger}
}

// Register mounts all routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)

	v1 := e.Group("/v1")
	v1.POST("/responses", s.handleResponses)
	v1.POST("/workflows", s.handleCreateWorkflow)
	v1.GET("/workflows/:entityID", s.handleGetWorkflow)
	v1.GET("/workflows/:entityID/runs", s.handleListRuns)
	v1.POST("/workflows/:entityID/send_responses", s.handleSendResponses)
	v1.GET("/runs/:runID/status", s.handleRunStatus)
	v1.POST("/runs/:runID/handoff", s.handleHandoff)
	v1.GET("/runs/:runID/audit", s.handleListAudit)
}

// healthStatus is the health check response.
type healthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "handoff-bridge",
	})
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func notFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, errorBody{Error: "not_found"})
}

func invalidRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_request", Message: msg})
}

func storeFailure(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "store_failure", Message: err.Error()})
}
