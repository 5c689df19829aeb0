package mock

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Response is one scripted answer of the server.
type Response struct {
	// Method and Path restrict the requests the response answers. Path matches
	// the request path exactly or as a suffix. Empty values match anything.
	Method string
	Path   string

	Status  int
	Headers map[string]string

	// Body is written as JSON, unless it is a string or []byte.
	Body any
	// Events are written as server-sent events, one JSON document each.
	Events []any
	// Chunks are written verbatim, flushing after each one.
	Chunks []string
	// Drop closes the connection without answering.
	Drop bool

	// Reusable responses stay in the queue once used.
	Reusable bool
}

// Call is a request received by the server.
type Call struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// JSON decodes the request body into v.
func (c Call) JSON(v any) error {
	return json.Unmarshal(c.Body, v)
}

// Map returns the request body as a generic JSON object.
func (c Call) Map() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(c.Body, &m)
	return m
}

// Server is a fake WorkflowAI service.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	responses []Response
	calls     []Call
	latency   time.Duration
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Enqueue appends responses to the queue.
func (s *Server) Enqueue(responses ...Response) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
	return s
}

// WithLatency delays every answer.
func (s *Server) WithLatency(d time.Duration) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
	return s
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// LastCall returns the last request received, or nil.
func (s *Server) LastCall() *Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	c := s.calls[len(s.calls)-1]
	return &c
}

// CallCount returns the number of requests received.
func (s *Server) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Pending returns the number of scripted responses not used yet.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.responses {
		if !r.Reusable {
			n++
		}
	}
	return n
}

// Reset forgets calls and scripted responses.
func (s *Server) Reset() *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = nil
	s.calls = nil
	return s
}

// AssertCallCount reports whether exactly expected requests were received.
func (s *Server) AssertCallCount(expected int) bool {
	return s.CallCount() == expected
}

// AssertPathCalled reports whether a request was sent to a path ending with suffix.
func (s *Server) AssertPathCalled(suffix string) bool {
	for _, c := range s.Calls() {
		if strings.HasSuffix(c.Path, suffix) {
			return true
		}
	}
	return false
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	resp, ok := s.next(r)
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody("no_mock_response",
			fmt.Sprintf("no scripted response for %s %s", r.Method, r.URL.Path)))
		return
	}
	s.write(w, resp)
}

// next pops the first response matching r. Callers hold s.mu.
func (s *Server) next(r *http.Request) (Response, bool) {
	for i, resp := range s.responses {
		if resp.Method != "" && resp.Method != r.Method {
			continue
		}
		if resp.Path != "" && r.URL.Path != resp.Path && !strings.HasSuffix(r.URL.Path, resp.Path) {
			continue
		}
		if !resp.Reusable {
			s.responses = append(s.responses[:i:i], s.responses[i+1:]...)
		}
		return resp, true
	}
	return Response{}, false
}

func (s *Server) write(w http.ResponseWriter, resp Response) {
	if resp.Drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("mock: connection cannot be hijacked")
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	if resp.Events == nil && resp.Chunks == nil {
		writeJSON(w, status, resp.Body)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(status)
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	for _, ev := range resp.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			panic(fmt.Sprintf("mock: encoding event: %v", err))
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flush()
	}
	for _, chunk := range resp.Chunks {
		io.WriteString(w, chunk)
		flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	var data []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			panic(fmt.Sprintf("mock: encoding body: %v", err))
		}
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	w.Write(data)
}

func errorBody(code, message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "message": message}}
}

// NewRunID returns a fresh run id.
func NewRunID() string {
	return uuid.NewString()
}

// RunBody builds a run answer with a fresh id.
func RunBody(output any) map[string]any {
	return map[string]any{"id": NewRunID(), "task_output": output}
}

// OK answers with status 200 and body.
func OK(body any) Response {
	return Response{Status: http.StatusOK, Body: body}
}

// RunOutput answers a run with output.
func RunOutput(output any) Response {
	return OK(RunBody(output))
}

// ToolCallRequests answers a run with pending tool call requests. Each request
// is given as id, name and input.
func ToolCallRequests(runID string, requests ...map[string]any) Response {
	return OK(map[string]any{
		"id":                 runID,
		"task_output":        map[string]any{},
		"tool_call_requests": requests,
	})
}

// Error answers with status and an error envelope.
func Error(status int, code, message string) Response {
	return Response{Status: status, Body: errorBody(code, message)}
}

// RateLimited answers with 429 and a Retry-After header.
func RateLimited(retryAfter string) Response {
	r := Error(http.StatusTooManyRequests, "rate_limited", "too many requests")
	if retryAfter != "" {
		r.Headers = map[string]string{"Retry-After": retryAfter}
	}
	return r
}

// Stream answers with server-sent events.
func Stream(events ...any) Response {
	return Response{Status: http.StatusOK, Events: events}
}

// Disconnect closes the connection without answering.
func Disconnect() Response {
	return Response{Drop: true}
}
