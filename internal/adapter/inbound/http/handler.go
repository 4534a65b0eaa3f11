package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/signalgate/signalgate/internal/domain/session"
	"github.com/signalgate/signalgate/internal/port/inbound"
	"github.com/signalgate/signalgate/pkg/mcp"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// MCPSessionIDHeader carries the session identifier on every transport call.
const MCPSessionIDHeader = "Mcp-Session-Id"

// MCPProtocolVersionHeader carries the protocol version.
const MCPProtocolVersionHeader = "MCP-Protocol-Version"

// lastEventIDHeader is the standard SSE resumption header.
const lastEventIDHeader = "Last-Event-ID"

// streamableHandler serves the transport endpoint. It owns method dispatch;
// session state lives in the registry, message semantics in the handler.
type streamableHandler struct {
	handler  inbound.MessageHandler
	sessions session.Registry
	logger   *slog.Logger
	metrics  *Metrics

	// endpoint is the mount path, announced in the legacy handshake event.
	endpoint string
	// handlerTimeout bounds one message-handler invocation.
	handlerTimeout time.Duration
	// keepaliveInterval is how long the SSE loop waits on an idle queue
	// before emitting a keepalive comment.
	keepaliveInterval time.Duration
	// legacyEndpointEvent enables the "endpoint" handshake event for old
	// clients that discover the POST path from the stream.
	legacyEndpointEvent bool
}

func (h *streamableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	case http.MethodOptions:
		h.handleOptions(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost processes one inbound JSON-RPC message: resolve or create the
// session, invoke the message handler (bounded), enqueue the response for
// any attached stream, and return it synchronously.
//
// Without an Mcp-Session-Id header the call runs in stateless mode: a
// session is synthesized, used, and deleted before the response is written.
func (h *streamableHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	if h.handler == nil {
		writeRPCError(w, http.StatusInternalServerError, nil, mcp.CodeInternalError, "Internal error: no message handler configured")
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
			writeRPCError(w, http.StatusBadRequest, nil, mcp.CodeParseError, "Parse error: content type must be application/json")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeRPCError(w, http.StatusBadRequest, nil, mcp.CodeParseError, "Parse error: request body too large (max 1MB)")
			return
		}
		writeRPCError(w, http.StatusBadRequest, nil, mcp.CodeParseError, "Parse error: failed to read request body")
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		writeRPCError(w, http.StatusBadRequest, nil, mcp.CodeParseError, "Parse error: invalid JSON")
		return
	}

	// Session resolution. An unknown supplied id seeds a new session
	// (deliberate leniency: a POST may arrive before the GET handshake).
	sessionID := r.Header.Get(MCPSessionIDHeader)
	stateless := sessionID == ""
	sess, created := h.sessions.GetOrCreate(r.Context(), sessionID, stateless)
	if created {
		logger.Debug("session created", "session_id", sess.ID, "stateless", stateless)
	}
	w.Header().Set(MCPSessionIDHeader, sess.ID)
	w.Header().Set(MCPProtocolVersionHeader, mcp.ProtocolVersion)

	msg, err := mcp.WrapMessage(body)
	if err != nil {
		h.cleanupStateless(sess)
		writeRPCError(w, http.StatusBadRequest, nil, mcp.CodeParseError, fmt.Sprintf("Parse error: %v", err))
		return
	}
	if !msg.IsRequest() {
		h.cleanupStateless(sess)
		writeRPCError(w, http.StatusBadRequest, nil, mcp.CodeInvalidRequest, "Invalid Request: expected a JSON-RPC request")
		return
	}

	resp, err := h.invokeBounded(r.Context(), msg)
	if err != nil {
		h.cleanupStateless(sess)
		switch {
		case errors.Is(err, errHandlerTimeout):
			h.metrics.HandlerTimeouts.Inc()
			logger.Warn("message handler timed out", "session_id", sess.ID, "method", msg.Method(), "timeout", h.handlerTimeout)
			writeRPCError(w, http.StatusInternalServerError, msg.RawID(), mcp.CodeInternalError, "Internal error: timeout")
		case errors.Is(err, context.Canceled):
			// Client went away; nobody is reading the response.
		default:
			logger.Error("message handler failed", "session_id", sess.ID, "method", msg.Method(), "error", err)
			writeRPCError(w, http.StatusInternalServerError, msg.RawID(), mcp.CodeInternalError, fmt.Sprintf("Internal error: %v", err))
		}
		return
	}

	// Notifications produce no response body.
	if resp == nil {
		h.cleanupStateless(sess)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	payload, err := resp.Encode()
	if err != nil {
		h.cleanupStateless(sess)
		logger.Error("failed to encode response", "session_id", sess.ID, "error", err)
		writeRPCError(w, http.StatusInternalServerError, msg.RawID(), mcp.CodeInternalError, "Internal error")
		return
	}

	if !stateless {
		// An attached SSE stream observes the same response; the HTTP body
		// below may reach the caller first.
		sess.Enqueue(payload)
	}

	// Stateless lifetime is exactly one POST: created, used, deleted,
	// before the response is returned.
	h.cleanupStateless(sess)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// errHandlerTimeout marks a message-handler deadline expiry.
var errHandlerTimeout = errors.New("handler deadline exceeded")

// invokeBounded runs the message handler with a deadline so a slow
// downstream call cannot pin the request forever.
func (h *streamableHandler) invokeBounded(ctx context.Context, msg *mcp.Message) (*mcp.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, h.handlerTimeout)
	defer cancel()

	type outcome struct {
		resp *mcp.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := h.handler.Handle(ctx, msg)
		done <- outcome{resp, err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errHandlerTimeout
		}
		return nil, context.Canceled
	}
}

// cleanupStateless tears down a stateless session. No-op otherwise.
func (h *streamableHandler) cleanupStateless(sess *session.Session) {
	if !sess.Stateless {
		return
	}
	sess.CloseQueue()
	_ = h.sessions.Delete(context.Background(), sess.ID)
}

// handleGet opens the SSE stream for a session: handshake, optional replay
// from Last-Event-ID, then the live queue-drain loop with keepalives.
//
// At most one stream should consume a given session's queue at a time.
func (h *streamableHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	sess, created := h.sessions.GetOrCreate(r.Context(), r.Header.Get(MCPSessionIDHeader), false)
	if created {
		logger.Debug("session created", "session_id", sess.ID)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Tell buffering reverse proxies (nginx) to pass events through.
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(MCPSessionIDHeader, sess.ID)
	w.Header().Set(MCPProtocolVersionHeader, mcp.ProtocolVersion)
	w.WriteHeader(http.StatusOK)

	if h.legacyEndpointEvent {
		_, _ = fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", h.endpoint)
	}
	_, _ = fmt.Fprintf(w, "event: session\ndata: {\"sessionId\":%q}\n\n", sess.ID)
	flusher.Flush()

	// Resumption: replay buffered events past the client's last-seen id
	// before going live. Replayed frames keep their original ids.
	if lastSeen := parseLastEventID(r.Header.Get(lastEventIDHeader)); lastSeen > 0 {
		events := sess.Replay(lastSeen)
		logger.Debug("replaying buffered events", "session_id", sess.ID, "after_id", lastSeen, "count", len(events))
		for _, ev := range events {
			writeEvent(w, ev)
			h.metrics.SSEEventsTotal.Inc()
		}
		if len(events) > 0 {
			flusher.Flush()
		}
	}

	queue := sess.Queue()
	ctx := r.Context()
	for {
		payload, outcome := queue.Dequeue(ctx, h.keepaliveInterval)
		switch outcome {
		case session.DequeueMessage:
			writeEvent(w, sess.Record(payload))
			flusher.Flush()
			h.metrics.SSEEventsTotal.Inc()
		case session.DequeueTimeout:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
			h.metrics.KeepalivesTotal.Inc()
		case session.DequeueClosed:
			logger.Debug("session stream closed", "session_id", sess.ID)
			return
		case session.DequeueCanceled:
			logger.Debug("client disconnected from stream", "session_id", sess.ID)
			return
		}
	}
}

// writeEvent emits one SSE message frame.
func writeEvent(w io.Writer, ev session.Event) {
	_, _ = fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", ev.ID, ev.Payload)
}

// parseLastEventID parses the Last-Event-ID header; 0 means none.
func parseLastEventID(raw string) uint64 {
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// handleDelete terminates a session: push the close signal first so a
// concurrently-reading stream observes it, then remove from the registry.
func (h *streamableHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	sessionID := r.Header.Get(MCPSessionIDHeader)
	if sessionID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	sess.CloseQueue()
	_ = h.sessions.Delete(r.Context(), sessionID)
	logger.Info("session terminated", "session_id", sessionID)

	w.Header().Set(MCPSessionIDHeader, sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "session terminated"})
}

// handleOptions answers CORS preflight requests.
func (h *streamableHandler) handleOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, Mcp-Session-Id, MCP-Protocol-Version, Last-Event-ID")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// writeRPCError writes a JSON-RPC error envelope with the given HTTP status.
func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	payload, err := mcp.NewError(id, code, message).Encode()
	if err != nil {
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeJSON writes a JSON body with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
