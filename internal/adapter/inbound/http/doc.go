// Package http implements the MCP Streamable HTTP transport: GET opens a
// Server-Sent Events stream, POST delivers one JSON-RPC message, DELETE
// terminates a session. Sessions correlate the stream with POSTs via the
// Mcp-Session-Id header; a bounded replay buffer backs Last-Event-ID
// resumption.
package http
