// Package signalgate provides a Go SDK for the SignalGate MCP server.
//
// SignalGate exposes application monitoring data (services, metrics, SLOs,
// alarms) over the MCP streamable HTTP transport. This SDK wraps the
// transport's session lifecycle: JSON-RPC requests go over POST, server
// events arrive on an SSE stream, and DELETE terminates the session. It
// uses only the Go standard library with zero external dependencies.
//
// Quick start:
//
//	// Set SIGNALGATE_SERVER_ADDR and SIGNALGATE_API_KEY env vars, then:
//	client := signalgate.NewClient()
//
//	info, err := client.Initialize(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := client.CallTool(ctx, "list_monitored_services", map[string]any{
//	    "filter": `environment == "production"`,
//	})
package signalgate

import "encoding/json"

// ServerInfo is the server identity returned by the initialize handshake.
type ServerInfo struct {
	// Name is the server's reported name.
	Name string `json:"name"`

	// Version is the server's reported version.
	Version string `json:"version"`

	// ProtocolVersion is the negotiated MCP protocol version.
	ProtocolVersion string `json:"-"`
}

// Tool describes one tool advertised by tools/list.
type Tool struct {
	// Name is the tool identifier passed to CallTool.
	Name string `json:"name"`

	// Description is the human-readable tool description.
	Description string `json:"description"`

	// InputSchema is the JSON Schema for the tool's arguments.
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Content is one entry of a tool result.
type Content struct {
	// Type is the content type, "text" for all signalgate tools.
	Type string `json:"type"`

	// Text is the content payload. SignalGate tools emit JSON documents.
	Text string `json:"text"`
}

// ToolResult is the outcome of a tools/call invocation.
// A tool-level failure sets IsError; it is not a transport error.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text returns the concatenated text content of the result.
func (r *ToolResult) Text() string {
	var out string
	for _, c := range r.Content {
		out += c.Text
	}
	return out
}

// Decode unmarshals the result's text content into v.
// SignalGate tools return their payload as a single JSON document.
func (r *ToolResult) Decode(v any) error {
	return json.Unmarshal([]byte(r.Text()), v)
}

// Err returns a *ToolError if the tool reported a failure, nil otherwise.
func (r *ToolResult) Err() error {
	if !r.IsError {
		return nil
	}
	return &ToolError{Message: r.Text()}
}

// Event is one server-sent event from the session stream.
type Event struct {
	// ID is the per-session event counter. Zero for the handshake events,
	// which are not counted.
	ID uint64

	// Type is the SSE event name: "session", "endpoint", or "message".
	Type string

	// Data is the raw event payload.
	Data []byte
}
