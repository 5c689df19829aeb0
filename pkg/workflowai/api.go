package workflowai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/inercia/go-workflowai/pkg/sse"
)

// Version is reported to the service with every request.
const Version = "0.1.0"

type host int

const (
	hostRun host = iota
	hostAPI
)

// apiClient performs single HTTP attempts against the service.
type apiClient struct {
	runURL  string
	apiURL  string
	apiKey  string
	headers http.Header
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger

	middleware *MiddlewareChain
}

func (c *apiClient) url(h host, path string) string {
	if h == hostAPI {
		return c.apiURL + path
	}
	return c.runURL + path
}

func (c *apiClient) newRequest(ctx context.Context, method string, h host, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(h, path), reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	for k, values := range c.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("x-workflowai-source", "sdk")
	req.Header.Set("x-workflowai-language", "go")
	req.Header.Set("x-workflowai-version", Version)
	return req, nil
}

// do sends one request and decodes a JSON answer into out.
func (c *apiClient) do(ctx context.Context, method string, h host, path string, body, out any) error {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(attemptCtx, method, h, path, body)
	if err != nil {
		return err
	}
	ex := &Exchange{Method: method, Path: path, Header: req.Header}
	if err := c.middleware.processRequest(ctx, ex); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		err = transportError(ctx, err)
		c.middleware.processResponse(ctx, ex, Outcome{Duration: time.Since(start), Err: err})
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		err = transportError(ctx, err)
		c.middleware.processResponse(ctx, ex, Outcome{StatusCode: resp.StatusCode, Duration: time.Since(start), Err: err})
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := errorFromResponse(resp, data)
		c.middleware.processResponse(ctx, ex, Outcome{StatusCode: resp.StatusCode, Duration: time.Since(start), Err: apiErr})
		return apiErr
	}
	c.middleware.processResponse(ctx, ex, Outcome{StatusCode: resp.StatusCode, Duration: time.Since(start)})

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{
			Kind:       KindServer,
			Code:       "invalid_response",
			Message:    "could not decode response",
			StatusCode: resp.StatusCode,
			Details:    map[string]any{"raw": string(data)},
			Cause:      err,
		}
	}
	return nil
}

// openStream sends one streaming request. The timeout only covers the wait for
// response headers; once the body is open the caller's context governs it.
func (c *apiClient) openStream(ctx context.Context, h host, path string, body any) (*streamBody, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := c.newRequest(streamCtx, http.MethodPost, h, path, body)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	ex := &Exchange{Method: http.MethodPost, Path: path, Header: req.Header, Stream: true}
	if err := c.middleware.processRequest(ctx, ex); err != nil {
		cancel()
		return nil, err
	}

	start := time.Now()
	var timer *time.Timer
	if c.timeout > 0 {
		timer = time.AfterFunc(c.timeout, cancel)
	}
	resp, err := c.http.Do(req)
	if timer != nil && !timer.Stop() && err == nil {
		// The timeout fired as the headers arrived
		resp.Body.Close()
		err = context.DeadlineExceeded
	}
	if err != nil {
		cancel()
		err = transportError(ctx, err)
		c.middleware.processResponse(ctx, ex, Outcome{Duration: time.Since(start), Err: err})
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			err = transportError(ctx, readErr)
		} else {
			err = errorFromResponse(resp, data)
		}
		c.middleware.processResponse(ctx, ex, Outcome{StatusCode: resp.StatusCode, Duration: time.Since(start), Err: err})
		return nil, err
	}
	c.middleware.processResponse(ctx, ex, Outcome{StatusCode: resp.StatusCode, Duration: time.Since(start)})

	return &streamBody{ReadCloser: resp.Body, cancel: cancel, exchange: ex}, nil
}

// frames yields the frames of one open stream, converting read failures.
func (c *apiClient) frames(ctx context.Context, body *streamBody) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for frame, err := range sse.Frames(body, sse.WithLogger(c.logger)) {
			if err != nil {
				yield(nil, transportError(ctx, err))
				return
			}
			c.middleware.processStreamEvent(ctx, body.exchange, frame)
			if !yield(frame, nil) {
				return
			}
		}
	}
}

type streamBody struct {
	io.ReadCloser
	cancel   context.CancelFunc
	exchange *Exchange
}

func (b *streamBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

// transportError classifies a failed exchange. Cancellation of the caller's
// context is returned as is; anything else is a connection error.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return connectionError(err)
}
