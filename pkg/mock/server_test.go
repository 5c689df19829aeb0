package mock

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerAnswersInOrder(t *testing.T) {
	srv := NewServer(t)
	srv.Enqueue(
		OK(map[string]any{"n": 1}),
		Error(http.StatusBadRequest, "bad", "bad request"),
	)

	resp, err := http.Post(srv.URL+"/v1/x", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"n":1}`, string(body))

	resp, err = http.Post(srv.URL+"/v1/x", "application/json", nil)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":{"code":"bad","message":"bad request"}}`, string(body))

	assert.True(t, srv.AssertCallCount(2))
	assert.Equal(t, map[string]any{"a": float64(1)}, srv.Calls()[0].Map())
	assert.Zero(t, srv.Pending())
}

func TestServerMatchesMethodAndPath(t *testing.T) {
	srv := NewServer(t)
	srv.Enqueue(
		Response{Method: http.MethodGet, Path: "/completions", Body: `{"completions":[]}`},
		Response{Path: "/run", Body: `{"id":"r"}`, Reusable: true},
	)

	for range 2 {
		resp, err := http.Post(srv.URL+"/v1/_/agents/a/schemas/1/run", "application/json", nil)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.JSONEq(t, `{"id":"r"}`, string(body))
	}

	resp, err := http.Get(srv.URL + "/v1/_/agents/a/runs/r/completions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, srv.AssertPathCalled("/completions"))
	assert.Equal(t, 0, srv.Pending())
}

func TestServerWithoutScriptedResponse(t *testing.T) {
	srv := NewServer(t)

	resp, err := http.Get(srv.URL + "/nothing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServerStream(t *testing.T) {
	srv := NewServer(t)
	srv.Enqueue(Stream(map[string]any{"id": "1"}, map[string]any{"id": "2"}))

	resp, err := http.Post(srv.URL+"/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Text() != "" {
			lines = append(lines, sc.Text())
		}
	}
	assert.Equal(t, []string{`data: {"id":"1"}`, `data: {"id":"2"}`}, lines)
}

func TestServerDisconnect(t *testing.T) {
	srv := NewServer(t)
	srv.Enqueue(Disconnect())

	_, err := http.Get(srv.URL + "/run")
	assert.Error(t, err)
	assert.Equal(t, 1, srv.CallCount())
}

func TestServerReset(t *testing.T) {
	srv := NewServer(t)
	srv.Enqueue(OK(nil))
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	srv.Reset()
	assert.Nil(t, srv.LastCall())
	assert.Zero(t, srv.Pending())
}
