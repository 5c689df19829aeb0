package workflowai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/inercia/go-workflowai/pkg/partial"
	"github.com/inercia/go-workflowai/pkg/version"
)

// Tool is a Go function the model may ask to call during a run.
type Tool struct {
	name         string
	description  string
	inputSchema  map[string]any
	outputSchema map[string]any
	call         func(ctx context.Context, input json.RawMessage) (any, error)
}

// NewTool wraps fn as a tool. The JSON schemas of In and Out are sent to the
// service; In is decoded from the model's arguments and the returned Out is sent
// back as the tool result.
//
//	type WeatherInput struct {
//		City string `json:"city" required:"true"`
//	}
//
//	weather, err := workflowai.NewTool("get_weather", "Current weather of a city",
//		func(ctx context.Context, in WeatherInput) (string, error) {
//			return lookup(ctx, in.City)
//		})
func NewTool[In, Out any](name, description string, fn func(context.Context, In) (Out, error)) (Tool, error) {
	if name == "" {
		return Tool{}, fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return Tool{}, fmt.Errorf("tool %s: function is nil", name)
	}

	in, err := SchemaOf[In]()
	if err != nil {
		return Tool{}, fmt.Errorf("tool %s: input schema: %w", name, err)
	}
	out, err := SchemaOf[Out]()
	if err != nil {
		return Tool{}, fmt.Errorf("tool %s: output schema: %w", name, err)
	}

	return Tool{
		name:         name,
		description:  description,
		inputSchema:  in,
		outputSchema: out,
		call: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var input In
			if len(raw) > 0 {
				if err := partial.StrictInto(raw, &input); err != nil {
					return nil, fmt.Errorf("invalid input: %w", err)
				}
			}
			return fn(ctx, input)
		},
	}, nil
}

// MustNewTool is NewTool that panics on error, for package-level tool variables.
func MustNewTool[In, Out any](name, description string, fn func(context.Context, In) (Out, error)) Tool {
	t, err := NewTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the name the model calls the tool by.
func (t Tool) Name() string { return t.name }

// Description returns the tool description.
func (t Tool) Description() string { return t.description }

// Definition returns the declaration sent to the service.
func (t Tool) Definition() version.ToolDefinition {
	return version.ToolDefinition{
		Name:         t.name,
		Description:  t.description,
		InputSchema:  t.inputSchema,
		OutputSchema: t.outputSchema,
	}
}

// Call runs the tool with raw JSON arguments.
func (t Tool) Call(ctx context.Context, input json.RawMessage) (any, error) {
	return t.call(ctx, input)
}

// toolRegistry holds the tools of an agent by name.
type toolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func newToolRegistry() *toolRegistry {
	return &toolRegistry{tools: make(map[string]Tool)}
}

func (r *toolRegistry) register(t Tool) error {
	if t.call == nil {
		return fmt.Errorf("tool %q was not built with NewTool", t.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.name]; exists {
		return fmt.Errorf("tool %q is already registered", t.name)
	}
	r.tools[t.name] = t
	return nil
}

func (r *toolRegistry) get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *toolRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// definitions returns the tool declarations sorted by name.
func (r *toolRegistry) definitions() []version.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]version.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *toolRegistry) call(ctx context.Context, name string, input json.RawMessage) (any, error) {
	t, ok := r.get(name)
	if !ok {
		return nil, fmt.Errorf("tool %q not found", name)
	}
	return t.Call(ctx, input)
}
