package workflowai

import (
	"encoding/json"

	"github.com/inercia/go-workflowai/pkg/version"
)

// CacheUsage tells the service whether it may answer a run from its cache.
type CacheUsage string

const (
	// CacheWhenAvailable uses a cached output only for deterministic versions
	// (temperature 0). This is the default.
	CacheWhenAvailable CacheUsage = "when_available"
	// CacheNever always executes the run.
	CacheNever CacheUsage = "never"
	// CacheAlways returns a cached output whenever one exists.
	CacheAlways CacheUsage = "always"
)

// ToolCallRequest is the model asking for a tool to be executed.
type ToolCallRequest struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolCall summarizes a tool execution the service performed during a run.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	InputPreview  string `json:"input_preview"`
	OutputPreview string `json:"output_preview,omitempty"`
	Error         string `json:"error,omitempty"`
	Status        string `json:"status,omitempty"`
}

type runRequest struct {
	TaskInput     any               `json:"task_input"`
	Version       version.Reference `json:"version"`
	UseCache      CacheUsage        `json:"use_cache,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	Labels        []string          `json:"labels,omitempty"`
	PrivateFields []string          `json:"private_fields,omitempty"`
	Stream        bool              `json:"stream"`
}

type toolResult struct {
	ID     string `json:"id"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

type replyRequest struct {
	UserResponse string            `json:"user_response,omitempty"`
	Version      version.Reference `json:"version"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	ToolResults  []toolResult      `json:"tool_results,omitempty"`
	Stream       bool              `json:"stream"`
}

type runVersion struct {
	Properties version.Properties `json:"properties"`
}

type runResponse struct {
	ID               string            `json:"id"`
	TaskOutput       json.RawMessage   `json:"task_output"`
	Version          *runVersion       `json:"version,omitempty"`
	DurationSeconds  *float64          `json:"duration_seconds,omitempty"`
	CostUSD          *float64          `json:"cost_usd,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	ToolCalls        []ToolCall        `json:"tool_calls,omitempty"`
	ToolCallRequests []ToolCallRequest `json:"tool_call_requests,omitempty"`

	// Set on error events inside a stream.
	Error *errorDetails `json:"error,omitempty"`
}

func (r *runResponse) hasOutput() bool {
	return len(r.TaskOutput) > 0 && string(r.TaskOutput) != "null"
}

type createAgentRequest struct {
	ID           string         `json:"id"`
	InputSchema  map[string]any `json:"input_schema"`
	OutputSchema map[string]any `json:"output_schema"`
}

// Registration is the service's answer to an agent registration.
type Registration struct {
	ID        string `json:"id"`
	SchemaID  int    `json:"schema_id"`
	UID       int64  `json:"uid"`
	TenantUID int64  `json:"tenant_uid"`
}

type listModelsRequest struct {
	Instructions  string `json:"instructions,omitempty"`
	RequiresTools bool   `json:"requires_tools,omitempty"`
}

type listModelsResponse struct {
	Items []ModelInfo `json:"items"`
	Count int         `json:"count"`
}

type completionsResponse struct {
	Completions []Completion `json:"completions"`
}
