// Package version describes which configuration of an agent a run executes with.
//
// A Reference is one of:
//   - an alias naming a deployed environment ("production", "staging", "dev"),
//   - an iteration number of a saved version,
//   - a Properties bag describing the configuration inline.
//
// Reconcile merges call-time, agent-level and process-wide choices into the
// single Reference sent with a run.
package version

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Well-known environment aliases.
const (
	Production = "production"
	Staging    = "staging"
	Dev        = "dev"
)

type refKind int

const (
	kindNone refKind = iota
	kindAlias
	kindIteration
	kindProperties
)

// Reference is a version descriptor. The zero value means "not set".
type Reference struct {
	kind       refKind
	alias      string
	iteration  int
	properties Properties
}

// Alias returns a Reference to a deployed environment.
func Alias(name string) Reference {
	return Reference{kind: kindAlias, alias: name}
}

// Iteration returns a Reference to a saved version number.
func Iteration(n int) Reference {
	return Reference{kind: kindIteration, iteration: n}
}

// FromProperties returns an inline Reference. The properties are copied.
func FromProperties(p Properties) Reference {
	return Reference{kind: kindProperties, properties: p.Clone()}
}

// IsZero reports whether the Reference is unset.
func (r Reference) IsZero() bool {
	return r.kind == kindNone
}

// IsRemote reports whether the Reference points at a version stored server-side.
func (r Reference) IsRemote() bool {
	return r.kind == kindAlias || r.kind == kindIteration
}

// Alias returns the alias name, if r is an alias.
func (r Reference) Alias() (string, bool) {
	return r.alias, r.kind == kindAlias
}

// Iteration returns the iteration number, if r is an iteration.
func (r Reference) Iteration() (int, bool) {
	return r.iteration, r.kind == kindIteration
}

// Properties returns a copy of the inline properties, if r is a properties bag.
func (r Reference) Properties() (Properties, bool) {
	if r.kind != kindProperties {
		return Properties{}, false
	}
	return r.properties.Clone(), true
}

func (r Reference) String() string {
	switch r.kind {
	case kindAlias:
		return r.alias
	case kindIteration:
		return strconv.Itoa(r.iteration)
	case kindProperties:
		b, _ := json.Marshal(r.properties)
		return string(b)
	}
	return ""
}

// MarshalJSON encodes the Reference as a string, an integer or an object.
func (r Reference) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindAlias:
		return json.Marshal(r.alias)
	case kindIteration:
		return json.Marshal(r.iteration)
	case kindProperties:
		return json.Marshal(r.properties)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes a string, an integer or an object.
func (r *Reference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = Reference{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Alias(s)
	case data[0] == '{':
		var p Properties
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*r = Reference{kind: kindProperties, properties: p}
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("version: expected alias, iteration or properties: %w", err)
		}
		*r = Iteration(n)
	}
	return nil
}
