package workflowai

import (
	"context"
	"iter"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inercia/go-workflowai/pkg/mock"
)

func frame(id string, output map[string]any) map[string]any {
	return map[string]any{"id": id, "task_output": output}
}

func collect[O any](t *testing.T, seq iter.Seq2[*Run[O], error]) ([]*Run[O], error) {
	t.Helper()
	var runs []*Run[O]
	for run, err := range seq {
		if err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func TestAgentStream(t *testing.T) {
	srv := mock.NewServer(t)
	srv.Enqueue(mock.Stream(
		frame("run-1", map[string]any{}),
		frame("run-1", map[string]any{"message": "Hel"}),
		map[string]any{"id": "run-1", "task_output": map[string]any{"message": "Hello"}, "cost_usd": 0.01},
	))

	agent := newTestAgent(t, srv)
	runs, err := collect(t, agent.Stream(context.Background(), greetingInput{Name: "Ada"}))
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Empty(t, runs[0].Output.Message)
	assert.Equal(t, "Hel", runs[1].Output.Message)
	assert.Equal(t, "Hello", runs[2].Output.Message)
	assert.InDelta(t, 0.01, *runs[2].CostUSD, 1e-9)

	call := srv.LastCall()
	assert.Equal(t, "/v1/_/agents/greeter/schemas/1/run", call.Path)
	assert.Equal(t, true, call.Map()["stream"])
	assert.Equal(t, "text/event-stream", call.Header.Get("Accept"))
}

func TestAgentStreamChunked(t *testing.T) {
	srv := mock.NewServer(t)
	srv.Enqueue(mock.Response{Chunks: []string{
		`data: {"id":"run-1","task_output":{"mess`,
		`age":"Hi"}}`,
		"\n\ndata: ",
		`{"id":"run-1","task_output":{"message":"Hi there"}}`,
		"\n\n",
	}})

	runs, err := collect(t, newTestAgent(t, srv).Stream(context.Background(), greetingInput{Name: "Ada"}))
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "Hi", runs[0].Output.Message)
	assert.Equal(t, "Hi there", runs[1].Output.Message)
}

func TestAgentStreamValidation(t *testing.T) {
	t.Run("invalid intermediate frame is skipped", func(t *testing.T) {
		srv := mock.NewServer(t)
		srv.Enqueue(mock.Stream(
			frame("run-1", map[string]any{"message": "He"}),
			frame("run-1", map[string]any{"message": 1}),
			frame("run-1", map[string]any{"message": "Hello"}),
		))

		runs, err := collect(t, newTestAgent(t, srv).Stream(context.Background(), greetingInput{Name: "Ada"}))
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "Hello", runs[1].Output.Message)
	})

	t.Run("invalid last frame fails", func(t *testing.T) {
		srv := mock.NewServer(t)
		srv.Enqueue(mock.Stream(
			frame("run-1", map[string]any{"message": "He"}),
			frame("run-1", map[string]any{"message": 1}),
		))

		runs, err := collect(t, newTestAgent(t, srv).Stream(context.Background(), greetingInput{Name: "Ada"}))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Len(t, runs, 1)
	})

	t.Run("last frame missing a required field", func(t *testing.T) {
		srv := mock.NewServer(t)
		srv.Enqueue(mock.Stream(frame("run-1", map[string]any{})))

		runs, err := collect(t, newTestAgent(t, srv).Stream(context.Background(), greetingInput{Name: "Ada"}))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Len(t, runs, 1)
	})

	t.Run("error event", func(t *testing.T) {
		srv := mock.NewServer(t)
		srv.Enqueue(mock.Stream(
			frame("run-1", map[string]any{"message": "He"}),
			map[string]any{"id": "run-1", "error": map[string]any{
				"code": "provider_error", "message": "provider failed", "status_code": 502,
			}, "task_output": map[string]any{"message": "He"}},
		))

		runs, err := collect(t, newTestAgent(t, srv).Stream(context.Background(), greetingInput{Name: "Ada"}))
		require.Error(t, err)
		assert.Len(t, runs, 1)

		e, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, KindServer, e.Kind)
		assert.Equal(t, "provider_error", e.Code)
		assert.Equal(t, "run-1", e.RunID)
		assert.JSONEq(t, `{"message":"He"}`, string(e.PartialOutput))
	})
}

func TestAgentStreamRetries(t *testing.T) {
	t.Run("before the first frame", func(t *testing.T) {
		srv := mock.NewServer(t)
		srv.Enqueue(
			mock.RateLimited("0.01"),
			mock.Stream(frame("run-1", map[string]any{"message": "Hello"})),
		)

		runs, err := collect(t, newTestAgent(t, srv).Stream(context.Background(), greetingInput{Name: "Ada"}, WithMaxRetryCount(2)))
		require.NoError(t, err)
		assert.Len(t, runs, 1)
		assert.Equal(t, 2, srv.CallCount())
	})

	t.Run("status errors", func(t *testing.T) {
		srv := mock.NewServer(t)
		srv.Enqueue(mock.Error(http.StatusBadRequest, "bad_request", "no"))

		_, err := collect(t, newTestAgent(t, srv).Stream(context.Background(), greetingInput{Name: "Ada"}, WithMaxRetryCount(3)))
		assert.ErrorIs(t, err, ErrServer)
		assert.Equal(t, 1, srv.CallCount())
	})
}

func TestAgentStreamToolLoop(t *testing.T) {
	srv := mock.NewServer(t)
	srv.Enqueue(
		mock.Stream(map[string]any{
			"id":                 "run-1",
			"task_output":        map[string]any{},
			"tool_call_requests": []any{addRequest("c1", 2, 2)},
		}),
		mock.Stream(
			frame("run-1", map[string]any{"message": "4"}),
			frame("run-1", map[string]any{"message": "4!"}),
		),
	)

	agent := newTestAgent(t, srv, WithTools(addTool(t)))
	runs, err := collect(t, agent.Stream(context.Background(), greetingInput{Name: "Ada"}))
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Len(t, runs[0].ToolCallRequests, 1)
	assert.Equal(t, "4!", runs[2].Output.Message)

	call := srv.LastCall()
	assert.Equal(t, "/v1/_/agents/greeter/runs/run-1/reply", call.Path)
	assert.Equal(t, true, call.Map()["stream"])
	assert.Equal(t, []any{map[string]any{"id": "c1", "output": float64(4)}}, call.Map()["tool_results"])
}

func TestAgentStreamMaxTurns(t *testing.T) {
	srv := mock.NewServer(t)
	r := mock.Stream(map[string]any{
		"id":                 "run-1",
		"task_output":        map[string]any{},
		"tool_call_requests": []any{addRequest("c1", 2, 2)},
	})
	r.Reusable = true
	srv.Enqueue(r)

	agent := newTestAgent(t, srv, WithTools(addTool(t)))
	runs, err := collect(t, agent.Stream(context.Background(), greetingInput{Name: "Ada"}, WithMaxTurns(2)))
	assert.ErrorIs(t, err, ErrMaxTurnsReached)
	assert.Len(t, runs, 2)
	assert.Equal(t, 2, srv.CallCount())
}

func TestAgentStreamEarlyBreak(t *testing.T) {
	srv := mock.NewServer(t)
	srv.Enqueue(mock.Stream(
		frame("run-1", map[string]any{"message": "a"}),
		frame("run-1", map[string]any{"message": "ab"}),
		frame("run-1", map[string]any{"message": "abc"}),
	))

	count := 0
	for run, err := range newTestAgent(t, srv).Stream(context.Background(), greetingInput{Name: "Ada"}) {
		require.NoError(t, err)
		require.NotNil(t, run)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestAgentStreamOutputFunc(t *testing.T) {
	srv := mock.NewServer(t)
	srv.Enqueue(mock.Stream(
		frame("run-1", map[string]any{"message": "a"}),
		frame("run-1", map[string]any{"message": "ab"}),
	))

	var outputs []string
	stream := newTestAgent(t, srv).StreamOutputFunc()
	for out, err := range stream(context.Background(), greetingInput{Name: "Ada"}) {
		require.NoError(t, err)
		outputs = append(outputs, out.Message)
	}
	assert.Equal(t, []string{"a", "ab"}, outputs)
}
