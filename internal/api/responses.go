package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Qredence/handoff-bridge/internal/engine"
	"github.com/Qredence/handoff-bridge/internal/sse"
	"github.com/Qredence/handoff-bridge/internal/translate"
	"github.com/Qredence/handoff-bridge/pkg/models"
)

// openAIRequest is the accepted subset of the OpenAI responses payload.
type openAIRequest struct {
	Model        string `json:"model"`
	Input        any    `json:"input"`
	Stream       *bool  `json:"stream"`
	Conversation any    `json:"conversation"` // string | {"id": string}
}

// sendResponsesBody resumes a paused workflow.
type sendResponsesBody struct {
	Responses    map[string]any `json:"responses"`
	Conversation any            `json:"conversation"`
}

// conversationID extracts the conversation key from either accepted shape.
func conversationID(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case map[string]any:
		if id, ok := c["id"].(string); ok {
			return id
		}
	}
	return ""
}

// handleResponses starts (or continues) a workflow run and streams its
// translated events as SSE.
func (s *Server) handleResponses(c echo.Context) error {
	var req openAIRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c, "malformed request body")
	}
	if req.Model == "" {
		return invalidRequest(c, "model is required")
	}
	input, ok := req.Input.(string)
	if !ok {
		input = fmt.Sprintf("%v", req.Input)
	}

	ctx := c.Request().Context()
	wf, convKey, err := s.registry.GetOrCreate(ctx, req.Model, conversationID(req.Conversation))
	if err != nil {
		s.logger.Error("workflow creation failed", "entity_id", req.Model, "error", err)
		return c.JSON(http.StatusBadGateway, errorBody{Error: "factory_failure", Message: err.Error()})
	}
	if err := s.prepareRun(ctx, req.Model, convKey); err != nil {
		return storeFailure(c, err)
	}

	return s.streamEvents(c, convKey, wf.RunStream(ctx, input))
}

// handleSendResponses feeds collected responses back into the conversation's
// workflow and streams the continuation.
func (s *Server) handleSendResponses(c echo.Context) error {
	entityID := c.Param("entityID")
	var body sendResponsesBody
	if err := c.Bind(&body); err != nil {
		return invalidRequest(c, "malformed request body")
	}
	if len(body.Responses) == 0 {
		return invalidRequest(c, "responses map is required")
	}

	ctx := c.Request().Context()
	wf, convKey, err := s.registry.GetOrCreate(ctx, entityID, conversationID(body.Conversation))
	if err != nil {
		s.logger.Error("workflow creation failed", "entity_id", entityID, "error", err)
		return c.JSON(http.StatusBadGateway, errorBody{Error: "factory_failure", Message: err.Error()})
	}
	if err := s.prepareRun(ctx, entityID, convKey); err != nil {
		return storeFailure(c, err)
	}

	return s.streamEvents(c, convKey, wf.SendResponses(ctx, body.Responses))
}

// prepareRun ensures workflow and run records exist and marks the run running.
func (s *Server) prepareRun(ctx context.Context, entityID, convKey string) error {
	if _, err := s.runs.EnsureWorkflow(ctx, entityID, "", nil); err != nil {
		return err
	}
	if _, err := s.runs.EnsureRun(ctx, entityID, convKey); err != nil {
		return err
	}
	return s.runs.UpdateStatus(ctx, convKey, models.RunStatusRunning, "", "", false)
}

// streamEvents pumps translated workflow events to the client, records the
// terminal run status and always emits the [DONE] sentinel on normal
// exhaustion. A client disconnect stops the pump promptly; the run stays
// running (the session can be resumed) with the interruption audited.
func (s *Server) streamEvents(c echo.Context, convKey string, events <-chan engine.Event) error {
	out, err := sse.NewWriter(c.Response())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "streaming_unsupported"})
	}
	ctx := c.Request().Context()
	// Status updates must survive a dropped client connection.
	storeCtx := context.WithoutCancel(ctx)

	failed := false
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("client disconnected mid-stream", "conv_key", convKey)
			// The session stays resumable, so the run keeps its running
			// status; the interruption is recorded in the audit trail.
			if err := s.runs.UpdateStatus(storeCtx, convKey, models.RunStatusRunning, "", "client disconnected before stream completion", false); err != nil {
				s.logger.Error("disconnect status update failed", "conv_key", convKey, "error", err)
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				if !failed {
					if err := s.runs.UpdateStatus(storeCtx, convKey, models.RunStatusCompleted, "", "", true); err != nil {
						s.logger.Error("completion status update failed", "conv_key", convKey, "error", err)
					}
				}
				if err := out.Done(); err != nil {
					s.logger.Error("terminal sentinel write failed", "conv_key", convKey, "error", err)
				}
				return nil
			}
			if fe, isFailure := ev.(engine.FailedEvent); isFailure {
				failed = true
				if err := s.runs.UpdateStatus(storeCtx, convKey, models.RunStatusFailed, "", fe.Message, true); err != nil {
					s.logger.Error("failure status update failed", "conv_key", convKey, "error", err)
				}
			}
			wire, emit := translate.Translate(ev)
			if !emit {
				continue
			}
			if err := out.Send(wire); err != nil {
				s.logger.Error("sse write failed", "conv_key", convKey, "error", err)
				return nil
			}
		}
	}
}
