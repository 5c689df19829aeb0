package workflowai

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/inercia/go-workflowai/pkg/version"
)

// Client talks to the WorkflowAI service. It is safe for concurrent use; agents
// built on the same client share its connection pool.
type Client struct {
	config         Config
	api            *apiClient
	logger         *zap.Logger
	defaultVersion version.Reference
	retry          RetryConfig
}

type clientSettings struct {
	config         Config
	httpClient     *http.Client
	logger         *zap.Logger
	headers        http.Header
	defaultVersion version.Reference
	retry          RetryConfig
	middlewares    []Middleware
}

// Option configures a Client.
type Option func(*clientSettings)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(s *clientSettings) { s.config.APIKey = key }
}

// WithURL sets the run endpoint.
func WithURL(u string) Option {
	return func(s *clientSettings) { s.config.URL = u }
}

// WithAppURL sets the web application URL used in run URLs.
func WithAppURL(u string) Option {
	return func(s *clientSettings) { s.config.AppURL = u }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *clientSettings) { s.config.Timeout = d }
}

// WithDefaultModel sets the model used by versions that name none.
func WithDefaultModel(model string) Option {
	return func(s *clientSettings) { s.config.DefaultModel = model }
}

// WithDefaultVersion sets the process-wide default version, overriding the
// configured one.
func WithDefaultVersion(v version.Reference) Option {
	return func(s *clientSettings) { s.defaultVersion = v }
}

// WithHTTPClient sets the HTTP client. Its Timeout should be zero, since it
// would also bound streams.
func WithHTTPClient(c *http.Client) Option {
	return func(s *clientSettings) { s.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *clientSettings) { s.logger = logger }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(s *clientSettings) { s.headers.Add(key, value) }
}

// WithMiddleware adds middleware to the client's chain.
func WithMiddleware(m ...Middleware) Option {
	return func(s *clientSettings) { s.middlewares = append(s.middlewares, m...) }
}

// WithRetryConfig sets the default retry policy of runs.
func WithRetryConfig(c RetryConfig) Option {
	return func(s *clientSettings) { s.retry = c }
}

// NewClient builds a Client from cfg and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	s := &clientSettings{
		config:  cfg,
		headers: make(http.Header),
		retry:   DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.config = s.config.withDefaults()

	if _, err := url.ParseRequestURI(s.config.URL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", s.config.URL, err)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{}
	}
	if s.logger == nil {
		s.logger = newDefaultLogger()
	}
	if s.defaultVersion.IsZero() {
		s.defaultVersion = version.ParseDefault(s.config.DefaultVersion, s.logger)
	}

	return &Client{
		config: s.config,
		api: &apiClient{
			runURL:  s.config.RunURL(),
			apiURL:  s.config.APIURL(),
			apiKey:  s.config.APIKey,
			headers: s.headers,
			http:    s.httpClient,
			timeout: s.config.Timeout,
			logger:  s.logger,

			middleware: NewMiddlewareChain(s.middlewares...),
		},
		logger:         s.logger,
		defaultVersion: s.defaultVersion,
		retry:          s.retry.withDefaults(),
	}, nil
}

// NewClientFromEnv builds a Client from the WORKFLOWAI_* environment variables.
func NewClientFromEnv(opts ...Option) (*Client, error) {
	cfg, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	return NewClient(cfg, opts...)
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// DefaultVersion returns the process-wide default version.
func (c *Client) DefaultVersion() version.Reference {
	return c.defaultVersion
}

// Middleware returns the client's middleware chain. Changes apply to the
// requests sent afterwards.
func (c *Client) Middleware() *MiddlewareChain {
	return c.api.middleware
}

// Register creates the agent, or a new schema of it, from its input and output
// schemas. Registering identical schemas again returns the same schema id.
func (c *Client) Register(ctx context.Context, agentID string, inputSchema, outputSchema map[string]any) (*Registration, error) {
	req := createAgentRequest{ID: agentID, InputSchema: inputSchema, OutputSchema: outputSchema}

	var reg Registration
	if err := c.post(ctx, hostAPI, "/v1/_/agents", req, &reg, c.retry, false); err != nil {
		return nil, fmt.Errorf("registering agent %s: %w", agentID, err)
	}
	return &reg, nil
}

// ListModelsOption configures ListModels.
type ListModelsOption func(*listModelsRequest)

// WithModelInstructions lists models able to follow the given instructions.
func WithModelInstructions(instructions string) ListModelsOption {
	return func(r *listModelsRequest) { r.Instructions = instructions }
}

// WithRequiresTools lists only models that support tool calling.
func WithRequiresTools(requires bool) ListModelsOption {
	return func(r *listModelsRequest) { r.RequiresTools = requires }
}

// ListModels returns the models available for a schema of an agent.
func (c *Client) ListModels(ctx context.Context, agentID string, schemaID int, opts ...ListModelsOption) ([]ModelInfo, error) {
	var req listModelsRequest
	for _, opt := range opts {
		opt(&req)
	}

	var resp listModelsResponse
	path := fmt.Sprintf("/v1/_/agents/%s/schemas/%d/models", url.PathEscape(agentID), schemaID)
	if err := c.post(ctx, hostAPI, path, req, &resp, c.retry, false); err != nil {
		return nil, fmt.Errorf("listing models of %s: %w", agentID, err)
	}
	return resp.Items, nil
}

// FetchCompletions returns the LLM completions performed during a run.
func (c *Client) FetchCompletions(ctx context.Context, agentID, runID string) ([]Completion, error) {
	var resp completionsResponse
	path := fmt.Sprintf("/v1/_/agents/%s/runs/%s/completions", url.PathEscape(agentID), url.PathEscape(runID))

	r := newRetrier(c.retry, c.logger)
	for {
		err := c.api.do(ctx, http.MethodGet, hostAPI, path, nil, &resp)
		if err == nil {
			return resp.Completions, nil
		}
		if err = r.next(ctx, err, false); err != nil {
			return nil, fmt.Errorf("fetching completions of run %s: %w", runID, err)
		}
	}
}

// post sends a JSON request, retrying per retry.
func (c *Client) post(ctx context.Context, h host, path string, body, out any, retry RetryConfig, reply bool) error {
	r := newRetrier(retry, c.logger)
	for {
		err := c.api.do(ctx, http.MethodPost, h, path, body, out)
		if err == nil {
			return nil
		}
		if err = r.next(ctx, err, reply); err != nil {
			return err
		}
	}
}

// stream sends a streaming request and yields its frames. An attempt that fails
// before its first frame is retried per retry; later failures end the stream.
func (c *Client) stream(ctx context.Context, path string, body any, retry RetryConfig, reply bool) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		r := newRetrier(retry, c.logger)
		for {
			rc, err := c.api.openStream(ctx, hostRun, path, body)
			if err != nil {
				if err = r.next(ctx, err, reply); err != nil {
					yield(nil, err)
					return
				}
				continue
			}

			again, err := c.drain(ctx, rc, r, reply, yield)
			if err != nil {
				yield(nil, err)
				return
			}
			if !again {
				return
			}
		}
	}
}

// drain yields the frames of one attempt. It reports whether a fresh attempt
// should be made, or the error that ended the stream.
func (c *Client) drain(ctx context.Context, rc *streamBody, r *retrier, reply bool, yield func([]byte, error) bool) (bool, error) {
	defer rc.Close()

	yielded := false
	for frame, err := range c.api.frames(ctx, rc) {
		if err != nil {
			if yielded {
				return false, err
			}
			if err = r.next(ctx, err, reply); err != nil {
				return false, err
			}
			return true, nil
		}
		yielded = true
		if !yield(frame, nil) {
			return false, nil
		}
	}
	return false, nil
}
