package workflowai

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"net/url"
	"reflect"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inercia/go-workflowai/pkg/partial"
	"github.com/inercia/go-workflowai/pkg/version"
)

// DefaultMaxTurns bounds the tool round trips of a call.
const DefaultMaxTurns = 10

// Agent runs inputs of type I and decodes outputs of type O.
type Agent[I, O any] struct {
	client   *Client
	id       string
	version  version.Reference
	tools    *toolRegistry
	defaults []RunOption

	mu       sync.Mutex
	schemaID int
}

type agentSettings struct {
	schemaID     int
	version      version.Reference
	instructions *string
	tools        []Tool
	defaults     []RunOption
}

// AgentOption configures an Agent.
type AgentOption func(*agentSettings)

// WithSchemaID sets the schema id of an agent already registered, which skips
// registration.
func WithSchemaID(id int) AgentOption {
	return func(s *agentSettings) { s.schemaID = id }
}

// WithAgentVersion sets the version runs use when the call gives none.
func WithAgentVersion(v version.Reference) AgentOption {
	return func(s *agentSettings) { s.version = v }
}

// WithInstructions sets the instructions of the agent's default properties.
func WithInstructions(instructions string) AgentOption {
	return func(s *agentSettings) { s.instructions = &instructions }
}

// WithTools gives the agent tools the model may call.
func WithTools(tools ...Tool) AgentOption {
	return func(s *agentSettings) { s.tools = append(s.tools, tools...) }
}

// WithRunDefaults sets options applied to every call before the call's own.
func WithRunDefaults(opts ...RunOption) AgentOption {
	return func(s *agentSettings) { s.defaults = append(s.defaults, opts...) }
}

// NewAgent creates an agent bound to client.
func NewAgent[I, O any](client *Client, id string, opts ...AgentOption) (*Agent[I, O], error) {
	if client == nil {
		return nil, fmt.Errorf("agent %s: client is nil", id)
	}
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}

	var s agentSettings
	for _, opt := range opts {
		opt(&s)
	}

	v := s.version
	if s.instructions != nil {
		if v.IsRemote() {
			return nil, fmt.Errorf("agent %s: instructions cannot be combined with remote version %s", id, v)
		}
		props, _ := v.Properties()
		props.Instructions = s.instructions
		v = version.FromProperties(props)
	}

	tools := newToolRegistry()
	for _, t := range s.tools {
		if err := tools.register(t); err != nil {
			return nil, fmt.Errorf("agent %s: %w", id, err)
		}
	}

	// Reject output types with unusable default tags up front
	if _, err := partial.DescriptorOf[O](); err != nil && isStructType[O]() {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}

	return &Agent[I, O]{
		client:   client,
		id:       id,
		version:  v,
		tools:    tools,
		defaults: s.defaults,
		schemaID: s.schemaID,
	}, nil
}

// ID returns the agent id.
func (a *Agent[I, O]) ID() string {
	return a.id
}

// SchemaID returns the registered schema id, or 0 before registration.
func (a *Agent[I, O]) SchemaID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.schemaID
}

// Version returns the agent's default version.
func (a *Agent[I, O]) Version() version.Reference {
	return a.version
}

// AddTool registers one more tool.
func (a *Agent[I, O]) AddTool(t Tool) error {
	return a.tools.register(t)
}

// Register sends the schemas of I and O to the service and records the schema id.
func (a *Agent[I, O]) Register(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.register(ctx)
}

func (a *Agent[I, O]) register(ctx context.Context) (int, error) {
	in, err := SchemaOf[I]()
	if err != nil {
		return 0, fmt.Errorf("agent %s: input schema: %w", a.id, err)
	}
	out, err := SchemaOf[O]()
	if err != nil {
		return 0, fmt.Errorf("agent %s: output schema: %w", a.id, err)
	}

	reg, err := a.client.Register(ctx, a.id, in, out)
	if err != nil {
		return 0, err
	}
	a.schemaID = reg.SchemaID
	return a.schemaID, nil
}

// ensureRegistered registers the agent once, whatever the number of callers.
func (a *Agent[I, O]) ensureRegistered(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.schemaID != 0 {
		return a.schemaID, nil
	}
	return a.register(ctx)
}

func (a *Agent[I, O]) params(opts []RunOption) *runParams {
	p := &runParams{
		useCache:       CacheWhenAvailable,
		retry:          a.client.retry,
		maxTurns:       DefaultMaxTurns,
		maxTurnsRaises: true,
	}
	for _, opt := range a.defaults {
		opt(p)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// resolveVersion reconciles the version of a call and declares the agent's
// tools on inline versions.
func (a *Agent[I, O]) resolveVersion(p *runParams) version.Reference {
	ref := version.Reconcile(version.Input{
		Call:         p.version,
		Model:        p.model,
		Agent:        a.version,
		Global:       a.client.defaultVersion,
		DefaultModel: a.client.config.DefaultModel,
	})

	if a.tools.len() == 0 {
		return ref
	}
	props, ok := ref.Properties()
	if !ok || props.EnabledTools != nil {
		return ref
	}
	props.EnabledTools = a.tools.definitions()
	return version.FromProperties(props)
}

func (a *Agent[I, O]) runPath(schemaID int) string {
	return fmt.Sprintf("/v1/_/agents/%s/schemas/%d/run", url.PathEscape(a.id), schemaID)
}

func (a *Agent[I, O]) replyPath(runID string) string {
	return fmt.Sprintf("/v1/_/agents/%s/runs/%s/reply", url.PathEscape(a.id), url.PathEscape(runID))
}

func (a *Agent[I, O]) newRunRequest(input I, p *runParams, stream bool) runRequest {
	return runRequest{
		TaskInput:     input,
		Version:       a.resolveVersion(p),
		UseCache:      p.useCache,
		Metadata:      p.metadata,
		Labels:        p.labels,
		PrivateFields: p.privateFields,
		Stream:        stream,
	}
}

func (a *Agent[I, O]) newReplyRequest(p *runParams, userMessage string, results []toolResult, stream bool) replyRequest {
	return replyRequest{
		UserResponse: userMessage,
		Version:      a.resolveVersion(p),
		Metadata:     p.metadata,
		ToolResults:  results,
		Stream:       stream,
	}
}

// Run executes the agent on input and returns the final run, calling tools as
// the model requests them.
func (a *Agent[I, O]) Run(ctx context.Context, input I, opts ...RunOption) (*Run[O], error) {
	p := a.params(opts)

	schemaID, err := a.ensureRegistered(ctx)
	if err != nil {
		return nil, err
	}

	var resp runResponse
	if err := a.client.post(ctx, hostRun, a.runPath(schemaID), a.newRunRequest(input, p, false), &resp, p.retry, false); err != nil {
		return nil, err
	}

	run, err := a.buildRun(&resp, true)
	if err != nil {
		return nil, err
	}
	return a.completeToolCalls(ctx, run, p)
}

// Reply continues the run identified by runID, optionally with a user message
// given through WithUserMessage.
func (a *Agent[I, O]) Reply(ctx context.Context, runID string, opts ...RunOption) (*Run[O], error) {
	if runID == "" {
		return nil, fmt.Errorf("agent %s: reply needs a run id", a.id)
	}
	p := a.params(opts)

	run, err := a.reply(ctx, runID, p, a.newReplyRequest(p, p.userMessage, nil, false))
	if err != nil {
		return nil, err
	}
	return a.completeToolCalls(ctx, run, p)
}

func (a *Agent[I, O]) reply(ctx context.Context, runID string, p *runParams, req replyRequest) (*Run[O], error) {
	var resp runResponse
	if err := a.client.post(ctx, hostRun, a.replyPath(runID), req, &resp, p.retry, true); err != nil {
		return nil, err
	}
	return a.buildRun(&resp, true)
}

// completeToolCalls answers tool call requests until the model stops asking or
// the turn limit is reached.
func (a *Agent[I, O]) completeToolCalls(ctx context.Context, run *Run[O], p *runParams) (*Run[O], error) {
	turns := 0
	for len(run.ToolCallRequests) > 0 {
		turns++
		if turns >= p.maxTurns {
			if !p.maxTurnsRaises {
				return run, nil
			}
			return nil, a.maxTurnsError(run, p)
		}

		results, err := a.runTools(ctx, run.ToolCallRequests)
		if err != nil {
			return nil, err
		}
		if run, err = a.reply(ctx, run.ID, p, a.newReplyRequest(p, "", results, false)); err != nil {
			return nil, err
		}
	}
	return run, nil
}

func (a *Agent[I, O]) maxTurnsError(run *Run[O], p *runParams) error {
	return newMaxTurnsReachedError(run.ID, p.maxTurns, slices.Clone(run.ToolCallRequests))
}

// callTool runs one tool, turning a panic into an error.
func (a *Agent[I, O]) callTool(ctx context.Context, req ToolCallRequest) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("tool %s panicked: %v", req.Name, r)
		}
	}()
	return a.tools.call(ctx, req.Name, req.Input)
}

// runTools executes the requested tools concurrently. Results keep the order of
// the requests; a failing tool reports its error in its result.
func (a *Agent[I, O]) runTools(ctx context.Context, requests []ToolCallRequest) ([]toolResult, error) {
	results := make([]toolResult, len(requests))

	var g errgroup.Group
	for i, req := range requests {
		g.Go(func() error {
			results[i].ID = req.ID
			out, err := a.callTool(ctx, req)
			if err != nil {
				a.client.logger.Warn("tool call failed",
					zap.String("agent", a.id),
					zap.String("tool", req.Name),
					zap.String("tool_call_id", req.ID),
					zap.Error(err))
				results[i].Error = err.Error()
				return nil
			}
			results[i].Output = out
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Stream executes the agent on input and yields a Run per server event, each
// with a more complete output. Tool calls requested by the last event are
// executed and the reply is streamed on the same sequence. Stopping the
// iteration closes the connection.
func (a *Agent[I, O]) Stream(ctx context.Context, input I, opts ...RunOption) iter.Seq2[*Run[O], error] {
	return func(yield func(*Run[O], error) bool) {
		p := a.params(opts)

		schemaID, err := a.ensureRegistered(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		last, ok := a.streamRuns(ctx, a.runPath(schemaID), a.newRunRequest(input, p, true), p, false, yield)
		if !ok {
			return
		}

		turns := 0
		for last != nil && len(last.ToolCallRequests) > 0 {
			turns++
			if turns >= p.maxTurns {
				if p.maxTurnsRaises {
					yield(nil, a.maxTurnsError(last, p))
				}
				return
			}

			results, err := a.runTools(ctx, last.ToolCallRequests)
			if err != nil {
				yield(nil, err)
				return
			}
			req := a.newReplyRequest(p, "", results, true)
			if last, ok = a.streamRuns(ctx, a.replyPath(last.ID), req, p, true, yield); !ok {
				return
			}
		}
	}
}

// streamRuns yields the runs of one streamed request and returns the last one.
// It reports false when the sequence ended, through an error or the consumer.
//
// An event whose output cannot be decoded is held back: it is dropped when a
// later event arrives and returned as an error when it was the last one. The
// last event is also checked for required fields unless it requests tools.
func (a *Agent[I, O]) streamRuns(ctx context.Context, path string, body any, p *runParams, reply bool, yield func(*Run[O], error) bool) (*Run[O], bool) {
	var (
		last     *Run[O]
		lastResp *runResponse
		held     error
	)

	for frame, err := range a.client.stream(ctx, path, body, p.retry, reply) {
		if err != nil {
			yield(nil, err)
			return nil, false
		}

		if held != nil {
			a.client.logger.Debug("client side validation error in stream",
				zap.String("agent", a.id),
				zap.Error(held))
			held = nil
		}

		resp := &runResponse{}
		if err := json.Unmarshal(frame, resp); err != nil {
			held = &Error{
				Kind:          KindValidation,
				Code:          "invalid_event",
				Message:       "stream event is not a run",
				PartialOutput: frame,
				Cause:         err,
			}
			continue
		}
		if resp.Error != nil {
			yield(nil, errorFromFrame(&errorEnvelope{Error: resp.Error, ID: resp.ID, TaskOutput: resp.TaskOutput}))
			return nil, false
		}

		lastResp = resp
		run, err := a.buildRun(resp, false)
		if err != nil {
			held = err
			continue
		}
		last = run
		if !yield(run, nil) {
			return nil, false
		}
	}

	if held != nil {
		yield(nil, held)
		return nil, false
	}
	if lastResp != nil && len(lastResp.ToolCallRequests) == 0 {
		if _, err := a.buildRun(lastResp, true); err != nil {
			yield(nil, err)
			return nil, false
		}
	}
	return last, true
}

// buildRun turns a response into a Run. Outputs are decoded tolerantly, and
// strictly when strict is set and no tool calls are pending.
func (a *Agent[I, O]) buildRun(resp *runResponse, strict bool) (*Run[O], error) {
	run := &Run[O]{
		ID:               resp.ID,
		AgentID:          a.id,
		SchemaID:         a.SchemaID(),
		DurationSeconds:  resp.DurationSeconds,
		CostUSD:          resp.CostUSD,
		Metadata:         maps.Clone(resp.Metadata),
		ToolCalls:        resp.ToolCalls,
		ToolCallRequests: resp.ToolCallRequests,
		agent:            a,
	}
	if resp.Version != nil {
		props := resp.Version.Properties
		run.Version = &props
	}

	if !resp.hasOutput() {
		if strict && len(resp.ToolCallRequests) == 0 && isStructType[O]() {
			var out O
			if err := partial.StrictInto([]byte("{}"), &out); err != nil {
				return nil, validationError(err, resp.ID, nil)
			}
		}
		return run, nil
	}

	decode := partial.Into
	if strict && len(resp.ToolCallRequests) == 0 {
		decode = partial.StrictInto
	}

	var out O
	if err := decode(resp.TaskOutput, &out); err != nil {
		return nil, validationError(err, resp.ID, resp.TaskOutput)
	}
	run.Output = &out
	return run, nil
}

// ListModels returns the models the agent can run with. The agent is
// registered first if needed.
func (a *Agent[I, O]) ListModels(ctx context.Context, opts ...ListModelsOption) ([]ModelInfo, error) {
	schemaID, err := a.ensureRegistered(ctx)
	if err != nil {
		return nil, err
	}

	var base []ListModelsOption
	if props, ok := a.version.Properties(); ok && props.Instructions != nil {
		base = append(base, WithModelInstructions(*props.Instructions))
	}
	if a.tools.len() > 0 {
		base = append(base, WithRequiresTools(true))
	}
	return a.client.ListModels(ctx, a.id, schemaID, append(base, opts...)...)
}

// FetchCompletions returns the LLM completions of a run of this agent.
func (a *Agent[I, O]) FetchCompletions(ctx context.Context, runID string) ([]Completion, error) {
	if runID == "" {
		return nil, fmt.Errorf("agent %s: fetching completions needs a run id", a.id)
	}
	return a.client.FetchCompletions(ctx, a.id, runID)
}

func (a *Agent[I, O]) webURL() string {
	return a.client.config.WebURL()
}

func isStructType[T any]() bool {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}
