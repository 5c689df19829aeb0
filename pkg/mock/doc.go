// Package mock provides a fake WorkflowAI service for testing code built on the
// workflowai package.
//
// The server answers requests from a queue of scripted responses and records
// every call it receives, so tests can assert on what the client sent.
//
// Features:
// - JSON responses and error envelopes
// - Server-sent event streams, as whole events or raw chunks
// - Dropped connections
// - Latency simulation
// - Call logging and assertions
//
//	srv := mock.NewServer(t)
//	srv.Enqueue(mock.RunOutput(map[string]any{"message": "hello"}))
//	client, _ := workflowai.NewClient(workflowai.Config{URL: srv.URL})
package mock
