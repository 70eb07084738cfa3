// Package translate maps workflow engine events onto the OpenAI-style wire
// events the bridge streams to clients. The mapping is stateless and
// order-preserving; events the bridge does not understand produce nothing.
package translate

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Qredence/handoff-bridge/internal/engine"
)

// Wire event type discriminators.
const (
	TypeTraceComplete = "response.trace.complete"
	TypeOutputDelta   = "response.output_text.delta"
	TypeError         = "error"
)

// TraceEvent wraps a workflow's request-for-input as an informational trace.
type TraceEvent struct {
	Type           string    `json:"type"`
	Data           TraceData `json:"data"`
	ItemID         string    `json:"item_id"`
	OutputIndex    int       `json:"output_index"`
	SequenceNumber int       `json:"sequence_number"`
}

// TraceData is the trace envelope body.
type TraceData struct {
	TraceType string           `json:"trace_type"`
	EventType string           `json:"event_type"`
	Data      TraceInfoWrapper `json:"data"`
}

// TraceInfoWrapper nests the request info under its wire key.
type TraceInfoWrapper struct {
	RequestInfo RequestInfo `json:"request_info"`
}

// RequestInfo identifies the pending input request.
type RequestInfo struct {
	RequestID        string          `json:"request_id"`
	SourceExecutorID string          `json:"source_executor_id"`
	RequestType      string          `json:"request_type"`
	ResponseType     string          `json:"response_type"`
	Data             RequestInfoData `json:"data"`
}

// RequestInfoData carries the conversation so far and the prompt being asked.
type RequestInfoData struct {
	Conversation     []engine.ChatMessage `json:"conversation"`
	AwaitingAgentID  string               `json:"awaiting_agent_id"`
	Prompt           string               `json:"prompt"`
	SourceExecutorID string               `json:"source_executor_id"`
}

// DeltaEvent is a single assistant text delta.
type DeltaEvent struct {
	Type           string `json:"type"`
	Delta          string `json:"delta"`
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	ContentIndex   int    `json:"content_index"`
	SequenceNumber int    `json:"sequence_number"`
}

// ErrorEvent reports a workflow failure in-band.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Translate maps one engine event to its wire event. The second return is
// false when the event produces no wire output (status and unknown kinds).
func Translate(ev engine.Event) (any, bool) {
	switch e := ev.(type) {
	case engine.RequestInfoEvent:
		return traceFromRequestInfo(e), true
	case engine.OutputEvent:
		return deltaFromOutput(e), true
	case engine.FailedEvent:
		return ErrorEvent{Type: TypeError, Message: e.Message}, true
	default:
		return nil, false
	}
}

func traceFromRequestInfo(ev engine.RequestInfoEvent) TraceEvent {
	info := RequestInfo{
		RequestID:        ev.RequestID,
		SourceExecutorID: ev.SourceExecutorID,
		RequestType:      ev.RequestType,
		ResponseType:     ev.ResponseType,
	}
	info.Data.Conversation = []engine.ChatMessage{}
	if req := ev.Request; req != nil {
		info.SourceExecutorID = req.SourceExecutorID
		info.Data = RequestInfoData{
			Conversation:     req.Conversation,
			AwaitingAgentID:  req.AwaitingAgentID,
			Prompt:           req.Prompt,
			SourceExecutorID: req.SourceExecutorID,
		}
	}
	return TraceEvent{
		Type: TypeTraceComplete,
		Data: TraceData{
			TraceType: "workflow_info",
			EventType: "RequestInfoEvent",
			Data:      TraceInfoWrapper{RequestInfo: info},
		},
		ItemID: "item_" + shortID(),
	}
}

// deltaFromOutput joins every message with non-empty text into
// "<author-or-role>: <text>" lines. An empty conversation yields the literal
// placeholder instead of an empty delta.
func deltaFromOutput(ev engine.OutputEvent) DeltaEvent {
	var lines []string
	for _, m := range ev.Conversation {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		who := m.AuthorName
		if who == "" {
			who = m.Role
		}
		lines = append(lines, who+": "+m.Text)
	}
	text := strings.Join(lines, "\n")
	if len(lines) == 0 {
		text = "(no content)"
	}
	return DeltaEvent{
		Type:   TypeOutputDelta,
		Delta:  text,
		ItemID: "msg_" + shortID(),
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
