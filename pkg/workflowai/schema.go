package workflowai

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/swaggest/jsonschema-go"
)

// SchemaOf generates the JSON Schema of T using struct tags:
//
//	type Person struct {
//		Name string `json:"name" required:"true" description:"Full name"`
//		Age  int    `json:"age" minimum:"0" maximum:"150"`
//	}
//	schema, err := workflowai.SchemaOf[Person]()
//
// Nested types are inlined rather than referenced through definitions.
func SchemaOf[T any]() (map[string]any, error) {
	t := reflect.TypeFor[T]()
	var sample any
	if t.Kind() == reflect.Pointer {
		sample = reflect.New(t.Elem()).Interface()
	} else {
		sample = reflect.New(t).Elem().Interface()
	}
	return schemaFor(sample)
}

func schemaFor(sample any) (map[string]any, error) {
	reflector := jsonschema.Reflector{}

	schema, err := reflector.Reflect(sample, jsonschema.InlineRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to reflect %T to JSON schema: %w", sample, err)
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema to JSON: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema JSON to map: %w", err)
	}
	return out, nil
}
