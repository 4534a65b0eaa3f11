// Package service implements the application services behind the inbound
// ports: JSON-RPC method dispatch and the monitoring tool set.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalgate/signalgate/internal/domain/telemetry"
	"github.com/signalgate/signalgate/internal/domain/tool"
	"github.com/signalgate/signalgate/internal/port/inbound"
	"github.com/signalgate/signalgate/pkg/mcp"
)

// ServerName is reported in the initialize handshake and on /info.
const ServerName = "signalgate"

// MCPService routes JSON-RPC methods to their implementations. It is the
// message-handler capability the streamable HTTP transport invokes.
type MCPService struct {
	tools   *tool.Registry
	logger  *slog.Logger
	tracer  trace.Tracer
	version string
}

// NewMCPService builds the service with the monitoring tool set wired to
// the given telemetry store and filter evaluator.
func NewMCPService(store telemetry.Store, filter telemetry.FilterEvaluator, logger *slog.Logger, version string) *MCPService {
	if logger == nil {
		logger = slog.Default()
	}

	registry := tool.NewRegistry()
	registerMonitoringTools(registry, store, filter)

	return &MCPService{
		tools:   registry,
		logger:  logger,
		tracer:  otel.Tracer("signalgate/service"),
		version: version,
	}
}

// Handle processes one JSON-RPC message. Notifications yield (nil, nil).
// Protocol-level failures (unknown method, bad params) are returned as
// JSON-RPC error responses with a nil error; only infrastructure failures
// use the error return.
func (s *MCPService) Handle(ctx context.Context, msg *mcp.Message) (*mcp.Response, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.handle",
		trace.WithAttributes(attribute.String("rpc.method", msg.Method())))
	defer span.End()

	if !msg.IsRequest() {
		return mcp.NewError(msg.RawID(), mcp.CodeInvalidRequest, "Invalid Request: expected a JSON-RPC request"), nil
	}

	if msg.IsNotification() {
		s.logger.Debug("notification received", "method", msg.Method())
		return nil, nil
	}

	id := msg.RawID()

	switch msg.Method() {
	case "initialize":
		return mcp.NewResult(id, map[string]any{
			"protocolVersion": mcp.ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    ServerName,
				"version": s.version,
			},
		}), nil

	case "ping":
		return mcp.NewResult(id, map[string]any{}), nil

	case "tools/list":
		return mcp.NewResult(id, s.listTools()), nil

	case "tools/call":
		return s.callTool(ctx, id, msg.Params())

	default:
		s.logger.Warn("unknown method", "method", msg.Method())
		return mcp.NewError(id, mcp.CodeMethodNotFound,
			fmt.Sprintf("Method not found: %s", msg.Method())), nil
	}
}

// listTools builds the tools/list result.
func (s *MCPService) listTools() map[string]any {
	tools := s.tools.List()
	entries := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		entries = append(entries, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}
	return map[string]any{"tools": entries}
}

// callParams is the expected shape of tools/call params.
type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// callTool dispatches a tools/call request to the registry.
// Tool execution failures are reported inside the result with isError set,
// per MCP convention; only invalid requests become JSON-RPC errors.
func (s *MCPService) callTool(ctx context.Context, id json.RawMessage, params json.RawMessage) (*mcp.Response, error) {
	var call callParams
	if err := json.Unmarshal(params, &call); err != nil || call.Name == "" {
		return mcp.NewError(id, mcp.CodeInvalidParams, "Invalid params: tools/call requires a tool name"), nil
	}

	t := s.tools.Get(call.Name)
	if t == nil {
		return mcp.NewError(id, mcp.CodeInvalidParams,
			fmt.Sprintf("Invalid params: unknown tool %q", call.Name)), nil
	}

	ctx, span := s.tracer.Start(ctx, "tool.call",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	result, err := t.Handler(ctx, call.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		return mcp.NewResult(id, toolErrorResult(err)), nil
	}

	payload, err := toolTextResult(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result of tool %q: %w", call.Name, err)
	}
	return mcp.NewResult(id, payload), nil
}

// toolContent is one entry of an MCP tool result.
type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolResult is the MCP tools/call result envelope.
type toolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// toolTextResult renders a tool's return value as a single text content block.
func toolTextResult(v any) (toolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolResult{}, err
	}
	return toolResult{Content: []toolContent{{Type: "text", Text: string(data)}}}, nil
}

// toolErrorResult renders a tool failure per MCP convention.
func toolErrorResult(err error) toolResult {
	return toolResult{
		Content: []toolContent{{Type: "text", Text: err.Error()}},
		IsError: true,
	}
}

// Compile-time check that MCPService implements the MessageHandler port.
var _ inbound.MessageHandler = (*MCPService)(nil)
