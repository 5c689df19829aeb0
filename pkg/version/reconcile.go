package version

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultModel is used when a properties bag names no model.
const DefaultModel = "gemini-1.5-pro-latest"

// Input gathers everything that can influence the version of one call.
type Input struct {
	// Call is the version passed explicitly with the call, if any.
	Call Reference
	// Model is a call-time model override, if any.
	Model string
	// Agent is the version the agent was declared with, if any.
	Agent Reference
	// Global is the process-wide default. When unset, Production is used.
	Global Reference
	// DefaultModel fills properties bags without a model. When empty, no model is filled.
	DefaultModel string
}

// Reconcile resolves the version of a call.
//
// The first set of Call, Agent and Global is selected, falling back to the
// Production alias. A remote selection is returned verbatim unless a model
// override is present, in which case it is replaced by a bag holding only that
// model. A properties selection takes the model override, then the agent's
// properties for every field left unset, then DefaultModel if there is still
// no model.
func Reconcile(in Input) Reference {
	selected := in.Call
	if selected.IsZero() {
		selected = in.Agent
	}
	if selected.IsZero() {
		selected = in.Global
	}
	if selected.IsZero() {
		selected = Alias(Production)
	}

	props, ok := selected.Properties()
	if !ok {
		if in.Model == "" {
			return selected
		}
		// A remote version cannot be amended, so the override replaces it
		return FromProperties(Properties{Model: Ptr(in.Model)})
	}

	if in.Model != "" {
		props.Model = Ptr(in.Model)
	}
	if agent, ok := in.Agent.Properties(); ok {
		props = props.WithDefaults(agent)
	}
	if props.ModelName() == "" && in.DefaultModel != "" {
		props.Model = Ptr(in.DefaultModel)
	}
	return FromProperties(props)
}

// ParseDefault turns the configured process-wide default into a Reference.
//
// An empty value means Production. The known environment aliases are kept as
// aliases. A string made only of digits is read as an iteration number, so
// "12" selects iteration 12 and never an alias called "12". Anything else is
// logged and replaced by Production.
func ParseDefault(value string, logger *zap.Logger) Reference {
	value = strings.TrimSpace(value)
	switch value {
	case "":
		return Alias(Production)
	case Production, Staging, Dev:
		return Alias(value)
	}

	if isDigits(value) {
		if n, err := strconv.Atoi(value); err == nil {
			return Iteration(n)
		}
	}

	if logger != nil {
		logger.Warn("invalid default version, using production",
			zap.String("version", value))
	}
	return Alias(Production)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
