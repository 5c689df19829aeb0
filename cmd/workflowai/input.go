package main

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

func decodeInput(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	var input map[string]any
	if err := yaml.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return normalize(input).(map[string]any), nil
}

// normalize turns the map[any]any values YAML may produce for non-string keys
// into JSON-encodable maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}
