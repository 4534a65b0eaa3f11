// Package inbound defines the ports driven by transport adapters.
package inbound

import (
	"context"

	"github.com/signalgate/signalgate/pkg/mcp"
)

// MessageHandler processes one inbound JSON-RPC message and produces its
// response. This is the capability the streamable HTTP transport consumes;
// it is deliberately opaque to the transport (the handler may perform
// further I/O of its own).
//
// A nil response with a nil error means the message was a notification and
// no response should be delivered. Implementations must not panic; errors
// are reported through the error return and mapped by the transport to
// JSON-RPC -32603.
type MessageHandler interface {
	Handle(ctx context.Context, msg *mcp.Message) (*mcp.Response, error)
}
