package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalgate/signalgate/internal/domain/session"
	"github.com/signalgate/signalgate/internal/port/inbound"
)

// Transport defaults.
const (
	DefaultEndpoint          = "/mcp"
	DefaultHandlerTimeout    = 30 * time.Second
	DefaultKeepaliveInterval = 30 * time.Second
)

// HTTPTransport is the inbound adapter serving the MCP Streamable HTTP
// transport plus the operational endpoints (/health, /info, /metrics).
type HTTPTransport struct {
	handler  inbound.MessageHandler
	sessions session.Registry
	server   *http.Server

	addr                string
	endpoint            string
	allowedOrigins      []string
	apiKeys             []string
	certFile            string
	keyFile             string
	handlerTimeout      time.Duration
	keepaliveInterval   time.Duration
	legacyEndpointEvent bool
	version             string

	logger        *slog.Logger
	metrics       *Metrics
	healthChecker *HealthChecker
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithEndpoint sets the transport mount path. Default is "/mcp".
func WithEndpoint(endpoint string) Option {
	return func(t *HTTPTransport) {
		t.endpoint = endpoint
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithAllowedOrigins sets the allowed origins for DNS rebinding protection.
// If empty, all requests with an Origin header are blocked (local-only mode).
// Example: []string{"https://example.com", "http://localhost:3000"}
func WithAllowedOrigins(origins []string) Option {
	return func(t *HTTPTransport) {
		t.allowedOrigins = origins
	}
}

// WithAPIKeys sets the configured API keys for the authentication gate.
// Entries may be Argon2id or SHA-256 hashes, plaintext values, or "*".
// Empty disables the gate.
func WithAPIKeys(keys []string) Option {
	return func(t *HTTPTransport) {
		t.apiKeys = keys
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithHandlerTimeout bounds one message-handler invocation on the POST path.
func WithHandlerTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.handlerTimeout = d
		}
	}
}

// WithKeepaliveInterval sets the idle interval between SSE keepalive comments.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.keepaliveInterval = d
		}
	}
}

// WithLegacyEndpointEvent enables the "endpoint" handshake event for old
// clients that discover the POST path from the SSE stream.
func WithLegacyEndpointEvent(enabled bool) Option {
	return func(t *HTTPTransport) {
		t.legacyEndpointEvent = enabled
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// WithVersion sets the version string reported on /info.
func WithVersion(version string) Option {
	return func(t *HTTPTransport) {
		t.version = version
	}
}

// NewHTTPTransport creates the transport adapter over the given message
// handler and session registry.
func NewHTTPTransport(handler inbound.MessageHandler, sessions session.Registry, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		handler:           handler,
		sessions:          sessions,
		addr:              "127.0.0.1:8080",
		endpoint:          DefaultEndpoint,
		allowedOrigins:    []string{},
		handlerTimeout:    DefaultHandlerTimeout,
		keepaliveInterval: DefaultKeepaliveInterval,
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// SendMessage enqueues a server-initiated payload for a session, to be
// delivered over its SSE stream. Returns session.ErrNotFound for unknown ids.
func (t *HTTPTransport) SendMessage(ctx context.Context, sessionID string, payload json.RawMessage) error {
	sess, err := t.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Enqueue(payload)
	return nil
}

// Handler builds the full HTTP handler: routes plus middleware chain.
// Exposed separately from Start so tests can drive it with httptest.
func (t *HTTPTransport) Handler(reg *prometheus.Registry) http.Handler {
	t.metrics = NewMetrics(reg)
	RegisterActiveSessions(reg, t.sessions.Len)

	// Middleware order (outermost first):
	// 1. MetricsMiddleware - record duration and status (outermost to capture full duration)
	// 2. RequestID - extract/generate request ID and enrich logger
	// 3. RealIP - extract client IP from proxy headers
	// 4. OriginCheck - DNS rebinding protection
	// 5. APIKeyGate - authentication
	// 6. streamableHandler - the transport itself
	var mcpHandler http.Handler = &streamableHandler{
		handler:             t.handler,
		sessions:            t.sessions,
		logger:              t.logger,
		metrics:             t.metrics,
		endpoint:            t.endpoint,
		handlerTimeout:      t.handlerTimeout,
		keepaliveInterval:   t.keepaliveInterval,
		legacyEndpointEvent: t.legacyEndpointEvent,
	}
	mcpHandler = APIKeyGate(t.apiKeys, t.logger)(mcpHandler)
	mcpHandler = OriginCheck(t.allowedOrigins)(mcpHandler)
	mcpHandler = RealIPMiddleware(mcpHandler)
	mcpHandler = RequestIDMiddleware(t.logger)(mcpHandler)
	mcpHandler = MetricsMiddleware(t.metrics)(mcpHandler)

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		}))
	}
	mux.Handle("/info", t.infoHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	// Favicon handler to prevent browser error noise
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.Handle(t.endpoint, mcpHandler)
	mux.Handle(t.endpoint+"/", mcpHandler)

	return mux
}

// infoHandler reports server identity for client discovery.
func (t *HTTPTransport) infoHandler() http.Handler {
	authMode := "none"
	if len(t.apiKeys) > 0 {
		authMode = "api-key"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":      "signalgate",
			"version":   t.version,
			"transport": "streamable-http",
			"auth":      authMode,
			"endpoints": map[string]string{
				"mcp":     t.endpoint,
				"health":  "/health",
				"info":    "/info",
				"metrics": "/metrics",
			},
		})
	})
}

// Start begins accepting HTTP connections and processing MCP messages.
// It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: t.Handler(reg),
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)

	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr, "endpoint", t.endpoint)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr, "endpoint", t.endpoint)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close every session queue first so SSE loops observe the close
	// signal and unwind before the server stops accepting writes.
	t.sessions.CloseAll()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
