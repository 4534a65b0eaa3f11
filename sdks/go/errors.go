package signalgate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNoSession is returned by Close when no session has been established.
var ErrNoSession = errors.New("no active session")

// RPCError is a JSON-RPC error returned by the server.
type RPCError struct {
	// Code is the JSON-RPC error code (e.g. -32601 for method not found).
	Code int `json:"code"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Data carries optional error details.
	Data json.RawMessage `json:"data,omitempty"`
}

// Error returns the error message.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// APIError is an HTTP-level failure without a JSON-RPC error body.
type APIError struct {
	// Status is the HTTP status code.
	Status int
	// Body is the raw response body.
	Body string
}

// Error returns the error message.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// ToolError is a tool-level failure reported inside a tools/call result.
type ToolError struct {
	// Message is the failure description emitted by the tool.
	Message string
}

// Error returns the error message.
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool failed: %s", e.Message)
}

// newAPIError reads the response body into an APIError.
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Status: resp.StatusCode, Body: string(body)}
}
