package signalgate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// rpcRequest mirrors the JSON-RPC envelope for test assertions.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// newRPCServer returns a test server that dispatches POSTs to handle and
// assigns the given session ID on every response.
func newRPCServer(t *testing.T, sessionID string, handle func(req rpcRequest) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Mcp-Session-Id", sessionID)
		if req.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch v := handle(req).(type) {
		case *RPCError:
			resp["error"] = v
		default:
			resp["result"] = v
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Mcp-Session-Id", "sess-1")
		if req.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"protocolVersion": "2025-06-18",
				"serverInfo":      map[string]any{"name": "signalgate", "version": "9.9.9"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithEndpoint("/"), WithAPIKey("secret"))
	info, err := c.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if info.Name != "signalgate" || info.Version != "9.9.9" {
		t.Errorf("ServerInfo = %+v, want signalgate 9.9.9", info)
	}
	if info.ProtocolVersion != "2025-06-18" {
		t.Errorf("ProtocolVersion = %q", info.ProtocolVersion)
	}
	if c.SessionID() != "sess-1" {
		t.Errorf("SessionID() = %q, want sess-1", c.SessionID())
	}
	if sawAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", sawAuth)
	}
}

func TestSessionIDReusedAcrossCalls(t *testing.T) {
	t.Parallel()

	var sessionHeaders []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionHeaders = append(sessionHeaders, r.Header.Get("Mcp-Session-Id"))
		w.Header().Set("Mcp-Session-Id", "sess-42")
		w.Header().Set("Content-Type", "application/json")
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithEndpoint("/"))
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("first Ping() error = %v", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("second Ping() error = %v", err)
	}

	if sessionHeaders[0] != "" {
		t.Errorf("first request carried session %q, want none", sessionHeaders[0])
	}
	if sessionHeaders[1] != "sess-42" {
		t.Errorf("second request session = %q, want sess-42", sessionHeaders[1])
	}
}

func TestListTools(t *testing.T) {
	t.Parallel()

	srv := newRPCServer(t, "s", func(req rpcRequest) any {
		if req.Method != "tools/list" {
			t.Errorf("method = %q, want tools/list", req.Method)
		}
		return map[string]any{"tools": []map[string]any{
			{"name": "list_monitored_services", "description": "list services", "inputSchema": map[string]any{"type": "object"}},
			{"name": "list_alarms", "description": "list alarms", "inputSchema": map[string]any{"type": "object"}},
		}}
	})
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithEndpoint("/"))
	tools, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "list_monitored_services" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestCallTool(t *testing.T) {
	t.Parallel()

	srv := newRPCServer(t, "s", func(req rpcRequest) any {
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		_ = json.Unmarshal(req.Params, &params)
		if params.Name != "get_service" || params.Arguments["name"] != "checkout-api" {
			t.Errorf("params = %+v", params)
		}
		return map[string]any{"content": []map[string]any{
			{"type": "text", "text": `{"name":"checkout-api","healthy":true}`},
		}}
	})
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithEndpoint("/"))
	result, err := c.CallTool(context.Background(), "get_service", map[string]any{"name": "checkout-api"})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if err := result.Err(); err != nil {
		t.Fatalf("result.Err() = %v", err)
	}

	var svc struct {
		Name    string `json:"name"`
		Healthy bool   `json:"healthy"`
	}
	if err := result.Decode(&svc); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if svc.Name != "checkout-api" || !svc.Healthy {
		t.Errorf("decoded = %+v", svc)
	}
}

func TestCallTool_ToolFailure(t *testing.T) {
	t.Parallel()

	srv := newRPCServer(t, "s", func(req rpcRequest) any {
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": `service "ghost" not found`}},
			"isError": true,
		}
	})
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithEndpoint("/"))
	result, err := c.CallTool(context.Background(), "get_service", map[string]any{"name": "ghost"})
	if err != nil {
		t.Fatalf("CallTool() error = %v, want nil for tool-level failure", err)
	}

	var toolErr *ToolError
	if err := result.Err(); !errors.As(err, &toolErr) {
		t.Fatalf("result.Err() = %v, want *ToolError", err)
	}
}

func TestRPCErrorSurfaced(t *testing.T) {
	t.Parallel()

	srv := newRPCServer(t, "s", func(req rpcRequest) any {
		return &RPCError{Code: -32601, Message: "Method not found: bogus"}
	})
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithEndpoint("/"))
	err := c.call(context.Background(), "bogus", nil, nil)

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("Code = %d, want -32601", rpcErr.Code)
	}
}

func TestHTTPErrorSurfaced(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithEndpoint("/"))
	err := c.Ping(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", apiErr.Status)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	var gotMethod, gotSession string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req rpcRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.Header().Set("Mcp-Session-Id", "sess-del")
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{}})
			return
		}
		gotMethod = r.Method
		gotSession = r.Header.Get("Mcp-Session-Id")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "session terminated"})
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithEndpoint("/"))
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
	if gotSession != "sess-del" {
		t.Errorf("session header = %q, want sess-del", gotSession)
	}
	if c.SessionID() != "" {
		t.Errorf("SessionID() = %q after Close, want empty", c.SessionID())
	}
}

func TestClose_WithoutSession(t *testing.T) {
	t.Parallel()

	c := NewClient(WithServerAddr("http://127.0.0.1:0"))
	if err := c.Close(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Close() error = %v, want ErrNoSession", err)
	}
}
