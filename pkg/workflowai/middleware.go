package workflowai

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Exchange describes one HTTP attempt made by the client.
type Exchange struct {
	Method string
	Path   string
	// Header is sent with the request; middleware may amend it.
	Header http.Header
	Stream bool
}

// Outcome describes how an attempt ended. StatusCode is 0 when no response
// was received.
type Outcome struct {
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Middleware observes or amends the exchanges of a client with the service.
type Middleware interface {
	// Name identifies the middleware in the chain.
	Name() string

	// ProcessRequest runs before the request is sent. An error aborts the
	// attempt and is returned to the caller unretried.
	ProcessRequest(ctx context.Context, ex *Exchange) error

	// ProcessResponse runs once the response headers arrived or the attempt failed.
	ProcessResponse(ctx context.Context, ex *Exchange, out Outcome)

	// ProcessStreamEvent runs on each event of a streamed response.
	ProcessStreamEvent(ctx context.Context, ex *Exchange, event []byte)
}

// MiddlewareChain runs middleware in order on requests and in reverse order on
// responses.
type MiddlewareChain struct {
	mu          sync.RWMutex
	middlewares []Middleware
}

// NewMiddlewareChain creates a chain holding middlewares.
func NewMiddlewareChain(middlewares ...Middleware) *MiddlewareChain {
	chain := &MiddlewareChain{}
	for _, m := range middlewares {
		chain.Add(m)
	}
	return chain
}

// Add appends a middleware to the chain.
func (c *MiddlewareChain) Add(m Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
}

// Remove removes a middleware by name.
func (c *MiddlewareChain) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, m := range c.middlewares {
		if m.Name() == name {
			c.middlewares = append(c.middlewares[:i], c.middlewares[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns the names of the middleware in the chain.
func (c *MiddlewareChain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.middlewares))
	for i, m := range c.middlewares {
		names[i] = m.Name()
	}
	return names
}

func (c *MiddlewareChain) snapshot() []Middleware {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Middleware(nil), c.middlewares...)
}

func (c *MiddlewareChain) processRequest(ctx context.Context, ex *Exchange) error {
	for _, m := range c.snapshot() {
		if err := m.ProcessRequest(ctx, ex); err != nil {
			return fmt.Errorf("middleware %s failed: %w", m.Name(), err)
		}
	}
	return nil
}

func (c *MiddlewareChain) processResponse(ctx context.Context, ex *Exchange, out Outcome) {
	middlewares := c.snapshot()
	for i := len(middlewares) - 1; i >= 0; i-- {
		middlewares[i].ProcessResponse(ctx, ex, out)
	}
}

func (c *MiddlewareChain) processStreamEvent(ctx context.Context, ex *Exchange, event []byte) {
	for _, m := range c.snapshot() {
		m.ProcessStreamEvent(ctx, ex, event)
	}
}

// LoggingMiddleware logs every attempt at debug level.
type LoggingMiddleware struct {
	logger *zap.Logger
}

// NewLoggingMiddleware creates a LoggingMiddleware writing to logger.
func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) Name() string { return "logging" }

func (m *LoggingMiddleware) ProcessRequest(_ context.Context, ex *Exchange) error {
	m.logger.Debug("sending request",
		zap.String("method", ex.Method),
		zap.String("path", ex.Path),
		zap.Bool("stream", ex.Stream))
	return nil
}

func (m *LoggingMiddleware) ProcessResponse(_ context.Context, ex *Exchange, out Outcome) {
	fields := []zap.Field{
		zap.String("method", ex.Method),
		zap.String("path", ex.Path),
		zap.Int("status", out.StatusCode),
		zap.Duration("duration", out.Duration),
	}
	if out.Err != nil {
		m.logger.Debug("request failed", append(fields, zap.Error(out.Err))...)
		return
	}
	m.logger.Debug("received response", fields...)
}

func (m *LoggingMiddleware) ProcessStreamEvent(_ context.Context, ex *Exchange, event []byte) {
	m.logger.Debug("received event", zap.String("path", ex.Path), zap.Int("size", len(event)))
}
