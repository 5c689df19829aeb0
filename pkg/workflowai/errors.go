package workflowai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inercia/go-workflowai/pkg/partial"
)

// ErrorKind classifies failures by how callers should react to them.
type ErrorKind string

const (
	// KindConnection is a transport failure. Retried after a short fixed delay.
	KindConnection ErrorKind = "connection_error"
	// KindRateLimited is an HTTP 429. Retried after the server-provided delay.
	KindRateLimited ErrorKind = "rate_limited"
	// KindNotFound is an HTTP 404. Retried once on replies only.
	KindNotFound ErrorKind = "not_found"
	// KindValidation is an output that does not match the output type.
	KindValidation ErrorKind = "validation_error"
	// KindServer is any other non-2xx response.
	KindServer ErrorKind = "server_error"
	// KindMaxTurnsReached is a tool loop that never produced an answer.
	KindMaxTurnsReached ErrorKind = "max_turns_reached"
)

// Sentinels for errors.Is.
var (
	ErrConnection      = &Error{Kind: KindConnection}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrServer          = &Error{Kind: KindServer}
	ErrMaxTurnsReached = &Error{Kind: KindMaxTurnsReached}
)

// Error is the error returned by every client operation that reached, or tried
// to reach, the service.
type Error struct {
	Kind       ErrorKind      `json:"-"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`

	// RunID identifies the run the error belongs to, when known.
	RunID string `json:"-"`
	// PartialOutput is whatever output the run produced before failing.
	PartialOutput json.RawMessage `json:"-"`
	// RetryAfter is the delay requested by the server.
	RetryAfter time.Duration `json:"-"`
	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" && e.Code != msg {
		msg = e.Code + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return "workflowai: " + msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by kind, and by code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// MaxTurnsReachedError reports a tool loop stopped by the turn limit. It carries
// the pending tool call requests so the caller can resume by hand, and wraps an
// *Error of kind KindMaxTurnsReached.
type MaxTurnsReachedError struct {
	Err *Error

	RunID            string
	MaxTurns         int
	ToolCallRequests []ToolCallRequest
}

func newMaxTurnsReachedError(runID string, maxTurns int, requests []ToolCallRequest) *MaxTurnsReachedError {
	return &MaxTurnsReachedError{
		Err: &Error{
			Kind: KindMaxTurnsReached,
			Code: "max_turns_reached",
			Message: fmt.Sprintf("max turns (%d) reached with %d pending tool call requests on run %s",
				maxTurns, len(requests), runID),
			RunID: runID,
		},
		RunID:            runID,
		MaxTurns:         maxTurns,
		ToolCallRequests: requests,
	}
}

func (e *MaxTurnsReachedError) Error() string {
	return e.Err.Error()
}

func (e *MaxTurnsReachedError) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRateLimit reports whether err is a rate limiting error.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTemporary reports whether retrying err later may succeed.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrRateLimited)
}

type errorDetails struct {
	Message    string         `json:"message"`
	Code       string         `json:"code"`
	Details    map[string]any `json:"details"`
	StatusCode int            `json:"status_code"`
}

type errorEnvelope struct {
	Error      *errorDetails   `json:"error"`
	ID         string          `json:"id"`
	TaskOutput json.RawMessage `json:"task_output"`
}

// errorFromResponse builds the error for a non-2xx response.
func errorFromResponse(resp *http.Response, body []byte) *Error {
	e := &Error{StatusCode: resp.StatusCode}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case http.StatusNotFound:
		e.Kind = KindNotFound
	default:
		e.Kind = KindServer
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		e.Message = "Unknown error"
		e.Details = map[string]any{"raw": string(body)}
	} else {
		e.Message = env.Error.Message
		e.Code = env.Error.Code
		e.Details = env.Error.Details
		e.RunID = env.ID
		if len(env.TaskOutput) > 0 && string(env.TaskOutput) != "null" {
			e.PartialOutput = env.TaskOutput
		}
	}
	if e.Code == "" {
		e.Code = string(e.Kind)
	}
	return e
}

// errorFromFrame builds the error for an error event inside a stream.
func errorFromFrame(env *errorEnvelope) *Error {
	e := &Error{
		Kind:       KindServer,
		Code:       env.Error.Code,
		Message:    env.Error.Message,
		Details:    env.Error.Details,
		StatusCode: env.Error.StatusCode,
		RunID:      env.ID,
	}
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case http.StatusNotFound:
		e.Kind = KindNotFound
	}
	if len(env.TaskOutput) > 0 && string(env.TaskOutput) != "null" {
		e.PartialOutput = env.TaskOutput
	}
	if e.Code == "" {
		e.Code = string(e.Kind)
	}
	return e
}

// validationError wraps a decoding failure of a run output.
func validationError(err error, runID string, output json.RawMessage) *Error {
	e := &Error{
		Kind:          KindValidation,
		Code:          string(KindValidation),
		Message:       "output does not match the output type",
		RunID:         runID,
		PartialOutput: output,
		Cause:         err,
	}
	var verr *partial.ValidationError
	if errors.As(err, &verr) {
		e.Details = map[string]any{"field": verr.Field, "reason": verr.Reason}
		if len(verr.Value) > 0 {
			e.Details["value"] = string(verr.Value)
		}
	}
	return e
}

// connectionError wraps a transport failure.
func connectionError(err error) *Error {
	return &Error{
		Kind:    KindConnection,
		Code:    string(KindConnection),
		Message: "could not read response",
		Cause:   err,
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
