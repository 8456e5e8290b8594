package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/mcp-bridge/client"
	"github.com/felixgeelhaar/mcp-bridge/protocol"
)

// mockTransport answers each method with a canned result or error.
type mockTransport struct {
	results  map[string]any
	errs     map[string]*protocol.Error
	requests []*protocol.Request
	closed   bool
}

func (m *mockTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	m.requests = append(m.requests, req)
	if err, ok := m.errs[req.Method]; ok {
		return protocol.NewErrorResponse(req.ID, err), nil
	}
	result, ok := m.results[req.Method]
	if !ok {
		return protocol.NewErrorResponse(req.ID, protocol.NewMethodNotFound(req.Method)), nil
	}
	return protocol.NewResponse(req.ID, result), nil
}

func (m *mockTransport) Close() error {
	m.closed = true
	return nil
}

func TestClient_Initialize(t *testing.T) {
	t.Run("performs handshake", func(t *testing.T) {
		transport := &mockTransport{results: map[string]any{
			protocol.MethodInitialize: map[string]any{
				"protocolVersion": "2024-11-05",
				"serverInfo":      map[string]any{"name": "rust-docs", "version": "1.0.0"},
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"instructions":    "look things up",
			},
		}}

		c := client.New(transport, client.WithClientInfo("test-client", "9.9.9"))
		info, err := c.Initialize(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Name != "rust-docs" || info.Version != "1.0.0" || !info.Tools {
			t.Errorf("info = %+v", info)
		}
		if info.Instructions != "look things up" {
			t.Errorf("Instructions = %q", info.Instructions)
		}
		if c.ServerInfo() != info {
			t.Error("ServerInfo not cached")
		}

		var params struct {
			ClientInfo struct {
				Name string `json:"name"`
			} `json:"clientInfo"`
		}
		if err := json.Unmarshal(transport.requests[0].Params, &params); err != nil {
			t.Fatal(err)
		}
		if params.ClientInfo.Name != "test-client" {
			t.Errorf("clientInfo.name = %q", params.ClientInfo.Name)
		}
	})

	t.Run("returns protocol errors", func(t *testing.T) {
		transport := &mockTransport{errs: map[string]*protocol.Error{
			protocol.MethodInitialize: protocol.NewInvalidRequest("unsupported version"),
		}}

		_, err := client.New(transport).Initialize(context.Background())
		var rpcErr *protocol.Error
		if !errors.As(err, &rpcErr) || rpcErr.Code != protocol.CodeInvalidRequest {
			t.Errorf("err = %v", err)
		}
	})
}

func TestClient_ListTools(t *testing.T) {
	transport := &mockTransport{results: map[string]any{
		protocol.MethodToolsList: map[string]any{"tools": []map[string]any{
			{"name": "lookup_crate", "description": "d", "inputSchema": map[string]any{"type": "object"}},
			{"name": "search_crates", "description": "d", "inputSchema": map[string]any{"type": "object"}},
		}},
	}}

	tools, err := client.New(transport).ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 2 || tools[0].Name != "lookup_crate" || tools[1].InputSchema["type"] != "object" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestClient_CallTool(t *testing.T) {
	t.Run("text result", func(t *testing.T) {
		transport := &mockTransport{results: map[string]any{
			protocol.MethodToolsCall: map[string]any{
				"content": []map[string]any{{"type": "text", "text": "docs"}},
			},
		}}

		result, err := client.New(transport).CallTool(context.Background(), "lookup_crate", map[string]any{"crate_name": "serde"})
		if err != nil {
			t.Fatal(err)
		}
		if result.IsError || result.Text() != "docs" {
			t.Errorf("result = %+v", result)
		}

		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(transport.requests[0].Params, &params); err != nil {
			t.Fatal(err)
		}
		if params.Name != "lookup_crate" || params.Arguments["crate_name"] != "serde" {
			t.Errorf("params = %+v", params)
		}
	})

	t.Run("tool failure is a result", func(t *testing.T) {
		transport := &mockTransport{results: map[string]any{
			protocol.MethodToolsCall: map[string]any{
				"content": []map[string]any{{"type": "text", "text": "upstream down"}},
				"isError": true,
			},
		}}

		result, err := client.New(transport).CallTool(context.Background(), "lookup_crate", nil)
		if err != nil {
			t.Fatal(err)
		}
		if !result.IsError {
			t.Error("IsError not set")
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		transport := &mockTransport{errs: map[string]*protocol.Error{
			protocol.MethodToolsCall: protocol.NewNotFound("Tool x not found"),
		}}

		_, err := client.New(transport).CallTool(context.Background(), "x", nil)
		if !errors.Is(err, protocol.NewNotFound("")) {
			t.Errorf("err = %v", err)
		}
	})
}

type slowTransport struct{}

func (slowTransport) Send(ctx context.Context, _ *protocol.Request) (*protocol.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowTransport) Close() error { return nil }

func TestClient_Timeout(t *testing.T) {
	c := client.New(slowTransport{}, client.WithTimeout(20*time.Millisecond))
	if err := c.Ping(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestClient_Close(t *testing.T) {
	transport := &mockTransport{}
	if err := client.New(transport).Close(); err != nil {
		t.Fatal(err)
	}
	if !transport.closed {
		t.Error("transport not closed")
	}
}
