package workflowai

import (
	"maps"
	"slices"
	"time"

	"github.com/inercia/go-workflowai/pkg/version"
)

// runParams holds the per-call settings of a run or reply.
type runParams struct {
	version        version.Reference
	model          string
	useCache       CacheUsage
	metadata       map[string]any
	labels         []string
	privateFields  []string
	retry          RetryConfig
	maxTurns       int
	maxTurnsRaises bool
	userMessage    string
}

// RunOption configures a single call.
type RunOption func(*runParams)

// WithVersion selects the version of the call. It takes precedence over the
// agent's and the client's default versions.
func WithVersion(v version.Reference) RunOption {
	return func(p *runParams) { p.version = v }
}

// WithModel overrides the model of the selected version.
func WithModel(model string) RunOption {
	return func(p *runParams) { p.model = model }
}

// WithCache sets whether the service may answer from its cache.
func WithCache(c CacheUsage) RunOption {
	return func(p *runParams) { p.useCache = c }
}

// WithMetadata attaches metadata to the run. Later calls merge into earlier ones.
func WithMetadata(m map[string]any) RunOption {
	return func(p *runParams) {
		if p.metadata == nil {
			p.metadata = make(map[string]any, len(m))
		}
		maps.Copy(p.metadata, m)
	}
}

// WithLabels attaches labels to the run.
func WithLabels(labels ...string) RunOption {
	return func(p *runParams) { p.labels = append(slices.Clone(p.labels), labels...) }
}

// WithPrivateFields names input or output fields the service must not store.
func WithPrivateFields(fields ...string) RunOption {
	return func(p *runParams) { p.privateFields = append(slices.Clone(p.privateFields), fields...) }
}

// WithMaxRetryCount sets the total number of attempts of each request.
func WithMaxRetryCount(n int) RunOption {
	return func(p *runParams) { p.retry.MaxAttempts = n }
}

// WithMaxRetryDelay caps the wait between attempts.
func WithMaxRetryDelay(d time.Duration) RunOption {
	return func(p *runParams) { p.retry.MaxDelay = d }
}

// WithRunRetryConfig replaces the retry policy of the call.
func WithRunRetryConfig(c RetryConfig) RunOption {
	return func(p *runParams) { p.retry = c }
}

// WithMaxTurns bounds the number of tool round trips. With n turns at most n
// requests are sent.
func WithMaxTurns(n int) RunOption {
	return func(p *runParams) { p.maxTurns = n }
}

// WithMaxTurnsRaises sets whether reaching the turn limit is an error. When
// false the run still waiting on tools is returned.
func WithMaxTurnsRaises(raise bool) RunOption {
	return func(p *runParams) { p.maxTurnsRaises = raise }
}

// WithUserMessage sends a user message with a reply.
func WithUserMessage(msg string) RunOption {
	return func(p *runParams) { p.userMessage = msg }
}
