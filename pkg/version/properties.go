package version

import "maps"

// Properties configures a version inline. Nil fields are unset; a non-nil
// pointer to a zero value (such as a temperature of 0) is an explicit choice.
type Properties struct {
	Model        *string          `json:"model,omitempty"`
	Provider     *string          `json:"provider,omitempty"`
	Temperature  *float64         `json:"temperature,omitempty"`
	Instructions *string          `json:"instructions,omitempty"`
	MaxTokens    *int             `json:"max_tokens,omitempty"`
	EnabledTools []ToolDefinition `json:"enabled_tools,omitempty"`
}

// ToolDefinition declares a tool the model may call.
type ToolDefinition struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	InputSchema  map[string]any `json:"input_schema"`
	OutputSchema map[string]any `json:"output_schema"`
}

// Ptr returns a pointer to v, for filling optional properties.
func Ptr[T any](v T) *T {
	return &v
}

// Clone returns a copy of p that shares no pointers with it.
func (p Properties) Clone() Properties {
	out := Properties{
		Model:        clonePtr(p.Model),
		Provider:     clonePtr(p.Provider),
		Temperature:  clonePtr(p.Temperature),
		Instructions: clonePtr(p.Instructions),
		MaxTokens:    clonePtr(p.MaxTokens),
	}
	if p.EnabledTools != nil {
		out.EnabledTools = make([]ToolDefinition, len(p.EnabledTools))
		for i, t := range p.EnabledTools {
			t.InputSchema = maps.Clone(t.InputSchema)
			t.OutputSchema = maps.Clone(t.OutputSchema)
			out.EnabledTools[i] = t
		}
	}
	return out
}

// WithDefaults returns a copy of p where every unset field is taken from defaults.
// Fields already set in p are kept, including explicit zero values.
func (p Properties) WithDefaults(defaults Properties) Properties {
	out := p.Clone()
	d := defaults.Clone()
	if out.Model == nil {
		out.Model = d.Model
	}
	if out.Provider == nil {
		out.Provider = d.Provider
	}
	if out.Temperature == nil {
		out.Temperature = d.Temperature
	}
	if out.Instructions == nil {
		out.Instructions = d.Instructions
	}
	if out.MaxTokens == nil {
		out.MaxTokens = d.MaxTokens
	}
	if out.EnabledTools == nil {
		out.EnabledTools = d.EnabledTools
	}
	return out
}

// ModelName returns the model, or "" when unset.
func (p Properties) ModelName() string {
	if p.Model == nil {
		return ""
	}
	return *p.Model
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
