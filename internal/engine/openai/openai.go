// Package openai provides the default workflow factory: a multi-tier handoff
// workflow driven by the OpenAI Chat Completions API. A coordinator agent
// triages the conversation and transfers control to specialist agents via a
// transfer_to_agent function tool; after every turn that stops on the user,
// the workflow pauses and reports a request for external input.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Qredence/handoff-bridge/internal/engine"
	"github.com/Qredence/handoff-bridge/internal/tools"
)

const (
	transferToolName = "transfer_to_agent"
	// maxUserTurns terminates the workflow once the conversation holds more
	// than this many user messages.
	maxUserTurns = 4
	// maxToolRounds bounds tool-call loops within one agent turn.
	maxToolRounds = 4
)

// agentSpec declares one participant of the handoff workflow.
type agentSpec struct {
	name         string
	instructions string
	handoffs     []string
}

// defaultAgents mirrors the specialist-to-specialist handoff topology: a
// triage coordinator plus three specialists with a restricted handoff graph.
var defaultAgents = []agentSpec{
	{
		name:         "triage_agent",
		instructions: "You are the triage agent. Understand the customer's issue and transfer to the matching specialist.",
		handoffs:     []string{"replacement_agent", "delivery_agent", "billing_agent"},
	},
	{
		name:         "replacement_agent",
		instructions: "You are the replacement agent. Handle product replacement requests.",
		handoffs:     []string{"delivery_agent", "billing_agent"},
	},
	{
		name:         "delivery_agent",
		instructions: "You are the delivery agent. Handle delivery scheduling and tracking.",
		handoffs:     []string{"billing_agent"},
	},
	{
		name:         "billing_agent",
		instructions: "You are the billing agent. Handle billing and refund questions.",
	},
}

// chatClient is the narrow slice of the OpenAI SDK the workflow needs.
// Tests substitute a stub.
type chatClient interface {
	Complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type sdkClient struct {
	client openai.Client
}

func (c *sdkClient) Complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

// Options configure the factory.
type Options struct {
	Model   string
	BaseURL string
	Tools   *tools.Registry
}

// Factory builds handoff workflows backed by the Chat Completions API.
type Factory struct {
	client chatClient
	opts   Options
}

// NewFactory creates a Factory. The API key is taken from the environment by
// the SDK; BaseURL overrides the endpoint for compatible servers.
func NewFactory(optFns ...func(o *Options)) *Factory {
	opts := Options{Model: openai.ChatModelGPT4oMini}
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &Factory{client: &sdkClient{client: client}, opts: opts}
}

// NewWorkflow builds a workflow instance named after the entity id.
func (f *Factory) NewWorkflow(_ context.Context, entityID string) (engine.Workflow, error) {
	agents := make(map[string]agentSpec, len(defaultAgents))
	for _, a := range defaultAgents {
		agents[a.name] = a
	}
	return &workflow{
		entityID: entityID,
		client:   f.client,
		opts:     f.opts,
		agents:   agents,
		active:   defaultAgents[0].name,
	}, nil
}

// workflow is one live handoff conversation. State is guarded by mu; callers
// must not overlap RunStream/SendResponses invocations, the mutex only keeps
// misuse from corrupting the conversation.
type workflow struct {
	entityID string
	client   chatClient
	opts     Options
	agents   map[string]agentSpec

	mu           sync.Mutex
	conversation []engine.ChatMessage
	active       string
	pendingReqID string
}

// RunStream starts the workflow with the initial user input.
func (w *workflow) RunStream(ctx context.Context, input string) <-chan engine.Event {
	out := make(chan engine.Event, 16)
	go func() {
		defer close(out)
		w.mu.Lock()
		defer w.mu.Unlock()
		w.conversation = append(w.conversation, engine.ChatMessage{Role: "user", Text: input})
		w.advance(ctx, out)
	}()
	return out
}

// SendResponses resumes the workflow with responses keyed by request id.
// Values are stringified and appended as user messages.
func (w *workflow) SendResponses(ctx context.Context, responses map[string]any) <-chan engine.Event {
	out := make(chan engine.Event, 16)
	go func() {
		defer close(out)
		w.mu.Lock()
		defer w.mu.Unlock()
		for _, v := range responses {
			w.conversation = append(w.conversation, engine.ChatMessage{Role: "user", Text: fmt.Sprintf("%v", v)})
		}
		w.pendingReqID = ""
		w.advance(ctx, out)
	}()
	return out
}

// advance drives agent turns until the workflow terminates or stops on the
// user. Called with w.mu held.
func (w *workflow) advance(ctx context.Context, out chan<- engine.Event) {
	if w.terminated() {
		emit(ctx, out, engine.OutputEvent{Conversation: append([]engine.ChatMessage(nil), w.conversation...)})
		return
	}
	for {
		text, transfer, err := w.agentTurn(ctx)
		if err != nil {
			emit(ctx, out, engine.FailedEvent{Message: err.Error()})
			return
		}
		if text != "" {
			w.conversation = append(w.conversation, engine.ChatMessage{
				Role: "assistant", AuthorName: w.active, Text: text,
			})
		}
		if transfer != "" {
			from := w.active
			w.active = transfer
			emit(ctx, out, engine.StatusEvent{State: "handoff:" + from + ">" + transfer})
			continue
		}
		break
	}
	if w.terminated() {
		emit(ctx, out, engine.OutputEvent{Conversation: append([]engine.ChatMessage(nil), w.conversation...)})
		return
	}
	w.pendingReqID = "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	emit(ctx, out, engine.RequestInfoEvent{
		RequestID:        w.pendingReqID,
		SourceExecutorID: w.active,
		RequestType:      "HandoffUserInputRequest",
		ResponseType:     "str",
		Request: &engine.UserInputRequest{
			Conversation:     append([]engine.ChatMessage(nil), w.conversation...),
			Prompt:           "Please provide your next message.",
			AwaitingAgentID:  w.active,
			SourceExecutorID: w.active,
		},
	})
}

// terminated reports whether the conversation exceeded the user-turn budget.
func (w *workflow) terminated() bool {
	users := 0
	for _, m := range w.conversation {
		if m.Role == "user" {
			users++
		}
	}
	return users > maxUserTurns
}

// agentTurn runs one completion round for the active agent, executing
// registry tool calls inline. It returns the agent's final text and, if
// control was transferred, the target agent name.
func (w *workflow) agentTurn(ctx context.Context) (text, transfer string, err error) {
	spec := w.agents[w.active]
	messages := w.buildMessages(spec)

	for round := 0; round < maxToolRounds; round++ {
		resp, err := w.client.Complete(ctx, openai.ChatCompletionNewParams{
			Model:    w.opts.Model,
			Messages: messages,
			Tools:    w.buildTools(spec),
		})
		if err != nil {
			return "", "", fmt.Errorf("agent %s: %w", w.active, err)
		}
		if len(resp.Choices) == 0 {
			return "", "", fmt.Errorf("agent %s: no choices returned", w.active)
		}
		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return msg.Content, "", nil
		}

		messages = append(messages, msg.ToParam())
		for _, tc := range msg.ToolCalls {
			if tc.Function.Name == transferToolName {
				target, err := w.transferTarget(spec, tc.Function.Arguments)
				if err != nil {
					return "", "", err
				}
				return msg.Content, target, nil
			}
			messages = append(messages, openai.ToolMessage(w.runTool(ctx, tc.Function.Name, tc.Function.Arguments), tc.ID))
		}
	}
	return "", "", fmt.Errorf("agent %s: tool loop exceeded %d rounds", w.active, maxToolRounds)
}

func (w *workflow) buildMessages(spec agentSpec) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(spec.instructions)}
	for _, m := range w.conversation {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Text))
		default:
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}
	return messages
}

func (w *workflow) buildTools(spec agentSpec) []openai.ChatCompletionToolParam {
	var out []openai.ChatCompletionToolParam
	if len(spec.handoffs) > 0 {
		targets := make([]any, 0, len(spec.handoffs))
		for _, h := range spec.handoffs {
			targets = append(targets, h)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        transferToolName,
				Description: openai.String("Transfer the conversation to a better suited agent."),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"agent": map[string]any{"type": "string", "enum": targets, "description": "Target agent name"},
					},
					"required": []string{"agent"},
				},
			},
		})
	}
	if w.opts.Tools == nil {
		return out
	}
	for _, t := range w.opts.Tools.List() {
		schema := t.Schema()
		fn, _ := schema["function"].(map[string]any)
		params, _ := fn["parameters"].(map[string]any)
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return out
}

func (w *workflow) transferTarget(spec agentSpec, rawArgs string) (string, error) {
	var args struct {
		Agent string `json:"agent"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("agent %s: bad transfer arguments: %w", w.active, err)
	}
	for _, h := range spec.handoffs {
		if h == args.Agent {
			return args.Agent, nil
		}
	}
	return "", fmt.Errorf("agent %s may not transfer to %q", w.active, args.Agent)
}

func (w *workflow) runTool(ctx context.Context, name, rawArgs string) string {
	tool, ok := w.opts.Tools.Get(name)
	if !ok {
		return fmt.Sprintf(`{"success":false,"error":"unknown tool %s"}`, name)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return fmt.Sprintf(`{"success":false,"error":"bad arguments: %v"}`, err)
	}
	result := tool.Execute(ctx, args)
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"encode result: %v"}`, err)
	}
	return string(raw)
}

func emit(ctx context.Context, out chan<- engine.Event, ev engine.Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
