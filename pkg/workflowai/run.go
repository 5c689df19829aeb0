package workflowai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/inercia/go-workflowai/pkg/version"
)

// runner is the part of an agent a run needs to continue itself.
type runner[O any] interface {
	ID() string
	Reply(ctx context.Context, runID string, opts ...RunOption) (*Run[O], error)
	FetchCompletions(ctx context.Context, runID string) ([]Completion, error)
	webURL() string
}

// Run is the result of executing an agent once.
type Run[O any] struct {
	ID       string
	AgentID  string
	SchemaID int

	// Output is nil when the run produced none, for instance while it waits
	// for tool results.
	Output *O

	// Version holds the properties the run was executed with.
	Version *version.Properties

	DurationSeconds *float64
	CostUSD         *float64
	Metadata        map[string]any

	// ToolCalls lists the tools the service executed.
	ToolCalls []ToolCall
	// ToolCallRequests lists the tools the model is waiting on.
	ToolCallRequests []ToolCallRequest

	agent runner[O]
}

// Reply continues the conversation of the run, for instance with a user
// message given through WithUserMessage.
func (r *Run[O]) Reply(ctx context.Context, opts ...RunOption) (*Run[O], error) {
	if r.agent == nil {
		return nil, fmt.Errorf("run %s is not attached to an agent", r.ID)
	}
	return r.agent.Reply(ctx, r.ID, opts...)
}

// FetchCompletions returns the LLM completions performed during the run.
func (r *Run[O]) FetchCompletions(ctx context.Context) ([]Completion, error) {
	if r.agent == nil {
		return nil, fmt.Errorf("run %s is not attached to an agent", r.ID)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("run id is required to fetch completions")
	}
	return r.agent.FetchCompletions(ctx, r.ID)
}

// URL returns the page of the run in the web application.
func (r *Run[O]) URL() string {
	base := DefaultAppURL
	if r.agent != nil {
		base = r.agent.webURL()
	}
	return fmt.Sprintf("%s/_/agents/%s/runs/%s", base, url.PathEscape(r.AgentID), url.PathEscape(r.ID))
}

// Format renders the run for terminals: the output, or the pending tool call
// requests, followed by cost, latency and URL.
func (r *Run[O]) Format() string {
	var sb strings.Builder

	var body any = r.Output
	if len(r.ToolCallRequests) > 0 {
		sb.WriteString("\nTool Call Requests:\n")
		body = r.ToolCallRequests
	} else {
		sb.WriteString("\nOutput:\n")
	}

	separator := strings.Repeat("=", 50)
	sb.WriteString(separator + "\n")
	sb.WriteString(indentJSON(body))
	sb.WriteString("\n" + separator + "\n")

	if r.CostUSD != nil {
		fmt.Fprintf(&sb, "Cost: $ %.5f\n", *r.CostUSD)
	}
	if r.DurationSeconds != nil {
		fmt.Fprintf(&sb, "Latency: %.2fs\n", *r.DurationSeconds)
	}
	sb.WriteString("URL: " + r.URL())
	return sb.String()
}

func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
