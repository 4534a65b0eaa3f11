package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalgate/signalgate/internal/adapter/outbound/memory"
	"github.com/signalgate/signalgate/internal/domain/session"
	"github.com/signalgate/signalgate/pkg/mcp"
)

// echoHandler is a stub message handler that answers every request with a
// fixed result, honoring context cancellation.
type echoHandler struct {
	delay time.Duration
	err   error
}

func (e *echoHandler) Handle(ctx context.Context, msg *mcp.Message) (*mcp.Response, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	if msg.IsNotification() {
		return nil, nil
	}
	return mcp.NewResult(msg.RawID(), map[string]string{"echo": msg.Method()}), nil
}

// newStreamHandler builds a transport handler over a fresh registry.
func newStreamHandler(t *testing.T, mh *echoHandler) (*streamableHandler, *memory.SessionRegistry) {
	t.Helper()

	registry := memory.NewSessionRegistry()
	h := &streamableHandler{
		handler:           mh,
		sessions:          registry,
		logger:            slog.Default(),
		metrics:           NewMetrics(prometheus.NewRegistry()),
		endpoint:          DefaultEndpoint,
		handlerTimeout:    DefaultHandlerTimeout,
		keepaliveInterval: DefaultKeepaliveInterval,
	}
	return h, registry
}

func postRequest(body string, sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(MCPSessionIDHeader, sessionID)
	}
	return req
}

func decodeRPC(t *testing.T, body []byte) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("response body is not JSON: %v\nbody: %s", err, body)
	}
	return m
}

func TestPost_AutoCreatesSession(t *testing.T) {
	t.Parallel()

	h, registry := newStreamHandler(t, &echoHandler{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postRequest(`{"jsonrpc":"2.0","id":7,"method":"ping"}`, "fresh-session"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get(MCPSessionIDHeader); got != "fresh-session" {
		t.Errorf("session header = %q, want fresh-session", got)
	}

	resp := decodeRPC(t, rec.Body.Bytes())
	if string(resp["id"]) != "7" {
		t.Errorf("response id = %s, want 7", resp["id"])
	}
	if resp["result"] == nil {
		t.Errorf("response missing result: %s", rec.Body)
	}

	// The previously-unseen id seeded a real session.
	sess, err := registry.Get(context.Background(), "fresh-session")
	if err != nil {
		t.Fatalf("session was not created: %v", err)
	}
	// The response was also enqueued for an attached stream.
	if got := sess.Queue().Len(); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
}

func TestPost_StatelessSessionDeletedBeforeResponse(t *testing.T) {
	t.Parallel()

	h, registry := newStreamHandler(t, &echoHandler{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postRequest(`{"jsonrpc":"2.0","id":1,"method":"ping"}`, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body)
	}

	sid := rec.Header().Get(MCPSessionIDHeader)
	if sid == "" {
		t.Fatal("stateless POST did not return a generated session id")
	}
	if _, err := registry.Get(context.Background(), sid); err != session.ErrNotFound {
		t.Errorf("stateless session still present after POST (err=%v)", err)
	}
	if registry.Len() != 0 {
		t.Errorf("registry len = %d, want 0", registry.Len())
	}
}

func TestPost_MalformedJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"truncated object", `{"jsonrpc":"2.0",`},
		{"empty body", ""},
		{"garbage", "not json at all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newStreamHandler(t, &echoHandler{})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, postRequest(tt.body, "s1"))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			resp := decodeRPC(t, rec.Body.Bytes())
			if string(resp["id"]) != "null" {
				t.Errorf("id = %s, want null", resp["id"])
			}
			var errObj struct {
				Code int `json:"code"`
			}
			if err := json.Unmarshal(resp["error"], &errObj); err != nil || errObj.Code != mcp.CodeParseError {
				t.Errorf("error = %s, want code -32700", resp["error"])
			}
		})
	}
}

func TestPost_Notification(t *testing.T) {
	t.Parallel()

	h, _ := newStreamHandler(t, &echoHandler{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postRequest(`{"jsonrpc":"2.0","method":"notifications/initialized"}`, "s1"))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body)
	}
}

func TestPost_HandlerError(t *testing.T) {
	t.Parallel()

	h, registry := newStreamHandler(t, &echoHandler{err: fmt.Errorf("downstream exploded")})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postRequest(`{"jsonrpc":"2.0","id":3,"method":"ping"}`, "keep-me"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	resp := decodeRPC(t, rec.Body.Bytes())
	var errObj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp["error"], &errObj); err != nil {
		t.Fatalf("error member missing: %s", rec.Body)
	}
	if errObj.Code != mcp.CodeInternalError {
		t.Errorf("code = %d, want -32603", errObj.Code)
	}
	if !strings.Contains(errObj.Message, "downstream exploded") {
		t.Errorf("message %q does not include the failure description", errObj.Message)
	}

	// The session survives a handler failure so the client can retry.
	if _, err := registry.Get(context.Background(), "keep-me"); err != nil {
		t.Errorf("session was deleted on handler error: %v", err)
	}
}

func TestPost_HandlerTimeout(t *testing.T) {
	t.Parallel()

	h, _ := newStreamHandler(t, &echoHandler{delay: time.Second})
	h.handlerTimeout = 30 * time.Millisecond

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postRequest(`{"jsonrpc":"2.0","id":1,"method":"ping"}`, "s1"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	resp := decodeRPC(t, rec.Body.Bytes())
	var errObj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp["error"], &errObj); err != nil {
		t.Fatalf("error member missing: %s", rec.Body)
	}
	if errObj.Code != mcp.CodeInternalError || errObj.Message != "Internal error: timeout" {
		t.Errorf("error = %+v, want -32603 'Internal error: timeout'", errObj)
	}
}

func TestPost_NoHandlerConfigured(t *testing.T) {
	t.Parallel()

	h, _ := newStreamHandler(t, &echoHandler{})
	h.handler = nil

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postRequest(`{"jsonrpc":"2.0","id":1,"method":"ping"}`, "s1"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestDelete_UnknownSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sessionID string
	}{
		{"missing header", ""},
		{"unknown id", "never-seen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newStreamHandler(t, &echoHandler{})
			req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
			if tt.sessionID != "" {
				req.Header.Set(MCPSessionIDHeader, tt.sessionID)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", rec.Code)
			}
		})
	}
}

func TestDelete_TerminatesSession(t *testing.T) {
	t.Parallel()

	h, registry := newStreamHandler(t, &echoHandler{})
	sess, _ := registry.GetOrCreate(context.Background(), "doomed", false)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(MCPSessionIDHeader, "doomed")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "session terminated" {
		t.Errorf("body = %s, want session terminated confirmation", rec.Body)
	}

	// Close signal pushed before removal, so a draining stream unwinds.
	if !sess.Queue().Closed() {
		t.Error("queue was not closed")
	}
	if _, err := registry.Get(context.Background(), "doomed"); err != session.ErrNotFound {
		t.Errorf("session still registered after DELETE (err=%v)", err)
	}

	// The same id now starts over as a brand new session.
	fresh, created := registry.GetOrCreate(context.Background(), "doomed", false)
	if !created || fresh.Queue().Closed() {
		t.Error("reused id did not produce a fresh session")
	}
}

func TestGet_HandshakeAndOrderedEvents(t *testing.T) {
	t.Parallel()

	h, registry := newStreamHandler(t, &echoHandler{})
	sess, _ := registry.GetOrCreate(context.Background(), "stream-1", false)
	for i := 1; i <= 3; i++ {
		sess.Enqueue(json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
	}
	sess.CloseQueue()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(MCPSessionIDHeader, "stream-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if got := rec.Header().Get(MCPSessionIDHeader); got != "stream-1" {
		t.Errorf("session header = %q, want stream-1", got)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("X-Accel-Buffering = %q, want no", got)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `event: session`) || !strings.Contains(body, `"sessionId":"stream-1"`) {
		t.Errorf("handshake event missing:\n%s", body)
	}

	// Events carry strictly increasing ids in enqueue order.
	wantOrder := []string{
		"id: 1\nevent: message\ndata: {\"n\":1}\n\n",
		"id: 2\nevent: message\ndata: {\"n\":2}\n\n",
		"id: 3\nevent: message\ndata: {\"n\":3}\n\n",
	}
	pos := 0
	for _, frame := range wantOrder {
		idx := strings.Index(body[pos:], frame)
		if idx < 0 {
			t.Fatalf("frame %q not found after offset %d:\n%s", frame, pos, body)
		}
		pos += idx + len(frame)
	}
}

func TestGet_GeneratesSessionWhenAbsent(t *testing.T) {
	t.Parallel()

	h, registry := newStreamHandler(t, &echoHandler{})

	// Cancel the stream shortly after it opens.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	sid := rec.Header().Get(MCPSessionIDHeader)
	if sid == "" {
		t.Fatal("no generated session id in response headers")
	}
	if _, err := registry.Get(context.Background(), sid); err != nil {
		t.Errorf("generated session not registered: %v", err)
	}
}

func TestGet_KeepaliveOnIdle(t *testing.T) {
	t.Parallel()

	h, _ := newStreamHandler(t, &echoHandler{})
	h.keepaliveInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil).WithContext(ctx)
	req.Header.Set(MCPSessionIDHeader, "idle")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), ": keepalive\n\n") {
		t.Errorf("idle stream emitted no keepalive:\n%s", rec.Body)
	}
}

func TestGet_ReplayAfterLastEventID(t *testing.T) {
	t.Parallel()

	h, registry := newStreamHandler(t, &echoHandler{})
	sess, _ := registry.GetOrCreate(context.Background(), "resume", false)
	for i := 1; i <= 10; i++ {
		sess.Record(json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
	}
	sess.CloseQueue()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(MCPSessionIDHeader, "resume")
	req.Header.Set(lastEventIDHeader, "7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{"id: 8\n", "id: 9\n", "id: 10\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("replayed frame %q missing:\n%s", want, body)
		}
	}
	for _, absent := range []string{"id: 7\n", "id: 1\n"} {
		if strings.Contains(body, absent) {
			t.Errorf("frame %q should not be replayed:\n%s", absent, body)
		}
	}
}

func TestGet_LegacyEndpointEvent(t *testing.T) {
	t.Parallel()

	h, registry := newStreamHandler(t, &echoHandler{})
	h.legacyEndpointEvent = true
	sess, _ := registry.GetOrCreate(context.Background(), "legacy", false)
	sess.CloseQueue()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(MCPSessionIDHeader, "legacy")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event: endpoint\ndata: /mcp\n\n") {
		t.Errorf("legacy endpoint event missing:\n%s", body)
	}
	// The endpoint event precedes the session event.
	if strings.Index(body, "event: endpoint") > strings.Index(body, "event: session") {
		t.Errorf("endpoint event must come first:\n%s", body)
	}
}

func TestOptions_Preflight(t *testing.T) {
	t.Parallel()

	h, _ := newStreamHandler(t, &echoHandler{})
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if allow := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(allow, "DELETE") {
		t.Errorf("Allow-Methods = %q, want DELETE included", allow)
	}
}

func TestUnsupportedMethod(t *testing.T) {
	t.Parallel()

	h, _ := newStreamHandler(t, &echoHandler{})
	req := httptest.NewRequest(http.MethodPut, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
