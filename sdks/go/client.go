package signalgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// protocolVersion is the MCP protocol revision this SDK speaks.
const protocolVersion = "2025-06-18"

const (
	sessionIDHeader   = "Mcp-Session-Id"
	protoHeader       = "MCP-Protocol-Version"
	lastEventIDHeader = "Last-Event-ID"
)

// Client is the SignalGate SDK client. It holds one transport session:
// the session ID assigned on the first request is attached to every
// subsequent request until Close.
type Client struct {
	serverAddr string
	endpoint   string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	sessionID   string
	lastEventID uint64
	nextID      int64
}

// NewClient creates a new SignalGate SDK client.
// It reads configuration from SIGNALGATE_* environment variables by default.
// Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: os.Getenv("SIGNALGATE_SERVER_ADDR"),
		apiKey:     os.Getenv("SIGNALGATE_API_KEY"),
		endpoint:   envOrDefault("SIGNALGATE_ENDPOINT", "/mcp"),
		timeout:    parseDurationEnv("SIGNALGATE_TIMEOUT", 30*time.Second),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// SessionID returns the transport session ID assigned by the server,
// or the empty string before the first request.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Initialize performs the MCP initialize handshake and sends the
// notifications/initialized notification. It returns the server identity.
func (c *Client) Initialize(ctx context.Context) (*ServerInfo, error) {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "signalgate-sdk-go",
			"version": "0.1.0",
		},
	}

	var result struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ServerInfo      ServerInfo `json:"serverInfo"`
	}
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return nil, err
	}

	if err := c.Notify(ctx, "notifications/initialized", nil); err != nil {
		return nil, err
	}

	info := result.ServerInfo
	info.ProtocolVersion = result.ProtocolVersion
	return &info, nil
}

// Ping checks that the server is responsive on this session.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", map[string]any{}, nil)
}

// ListTools returns the tools advertised by the server.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool by name. Tool-level failures are reported on
// the returned ToolResult (IsError), not as an error; the error return
// covers transport and protocol failures only.
func (c *Client) CallTool(ctx context.Context, name string, args any) (*ToolResult, error) {
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}

	var result ToolResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Notify sends a JSON-RPC notification (no response expected).
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	body := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
	}
	if params != nil {
		body["params"] = params
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return newAPIError(resp)
	}
	return nil
}

// Close terminates the session on the server. The client can be reused
// afterwards; the next request starts a fresh session.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.sessionID = ""
	c.lastEventID = 0
	c.mu.Unlock()

	if sessionID == "" {
		return ErrNoSession
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(sessionIDHeader, sessionID)
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp)
	}
	return nil
}

// call performs one JSON-RPC request and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		body["params"] = params
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var rpc struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	// Error responses carry a JSON-RPC body on 4xx/5xx too; prefer it
	// over a bare HTTP error when it decodes.
	if err := json.Unmarshal(respBody, &rpc); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Body: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if rpc.Error != nil {
		return rpc.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && rpc.Result != nil {
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

// post sends one JSON body to the transport endpoint and records the
// session ID the server assigns.
func (c *Client) post(ctx context.Context, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(protoHeader, protocolVersion)
	c.setAuth(req)

	c.mu.Lock()
	if c.sessionID != "" {
		req.Header.Set(sessionIDHeader, c.sessionID)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if sid := resp.Header.Get(sessionIDHeader); sid != "" {
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
	}
	return resp, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) url() string {
	return strings.TrimRight(c.serverAddr, "/") + c.endpoint
}

// Helper functions for env var parsing.

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
