// Package engine defines the boundary to the external multi-agent workflow
// engine. The bridge treats a workflow as a black box that consumes an input
// (or a map of resumption responses) and yields an ordered sequence of typed
// events over a channel.
package engine

import "context"

// ChatMessage is one message of a workflow conversation.
type ChatMessage struct {
	Role       string `json:"role"`
	AuthorName string `json:"author_name,omitempty"`
	Text       string `json:"text"`
}

// UserInputRequest describes a workflow pausing for external input.
type UserInputRequest struct {
	Conversation     []ChatMessage
	Prompt           string
	AwaitingAgentID  string
	SourceExecutorID string
}

// Event is a single occurrence reported by a workflow instance. The concrete
// types below are the only variants the bridge understands; engines may emit
// others, which translate to nothing on the wire.
type Event interface {
	isEvent()
}

// RequestInfoEvent signals that the workflow is waiting for an external
// response, typically user input collected out of band.
type RequestInfoEvent struct {
	RequestID        string
	SourceExecutorID string
	RequestType      string
	ResponseType     string
	Request          *UserInputRequest
}

// OutputEvent carries the conversation produced by a completed workflow turn.
type OutputEvent struct {
	Conversation []ChatMessage
}

// FailedEvent reports an internal workflow failure. The stream may still be
// exhausted normally afterwards.
type FailedEvent struct {
	Message string
}

// StatusEvent reports a run-state change inside the engine. The bridge does
// not forward these.
type StatusEvent struct {
	State string
}

func (RequestInfoEvent) isEvent() {}
func (OutputEvent) isEvent()      {}
func (FailedEvent) isEvent()      {}
func (StatusEvent) isEvent()      {}

// Workflow is a live instance of a multi-agent workflow.
//
// Both stream operations return a channel that is closed once the underlying
// run segment is exhausted; failures are reported in-band as FailedEvent.
// Consumers stop early by cancelling ctx. Callers must not drive two
// concurrent streams against one instance; the bridge serializes creation per
// conversation key but relies on clients not to overlap run/resume calls.
type Workflow interface {
	// RunStream starts the workflow with an initial user input.
	RunStream(ctx context.Context, input string) <-chan Event
	// SendResponses resumes the workflow with responses keyed by request id.
	SendResponses(ctx context.Context, responses map[string]any) <-chan Event
}

// Factory produces a workflow instance for an entity id. Implementations may
// perform network I/O (building agents, fetching definitions) and must honor
// ctx cancellation.
type Factory interface {
	NewWorkflow(ctx context.Context, entityID string) (Workflow, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, entityID string) (Workflow, error)

// NewWorkflow calls f.
func (f FactoryFunc) NewWorkflow(ctx context.Context, entityID string) (Workflow, error) {
	return f(ctx, entityID)
}
