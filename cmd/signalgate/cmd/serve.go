package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalgate/signalgate/internal/adapter/inbound/http"
	"github.com/signalgate/signalgate/internal/adapter/outbound/cel"
	"github.com/signalgate/signalgate/internal/adapter/outbound/memory"
	"github.com/signalgate/signalgate/internal/adapter/outbound/sqlite"
	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/observe"
	"github.com/signalgate/signalgate/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the SignalGate MCP server.

The server exposes the MCP streamable HTTP transport on the configured
address: GET opens an SSE event stream, POST submits JSON-RPC messages,
DELETE terminates a session.

Examples:
  # Start with config file settings
  signalgate serve

  # Start with demo data and debug logging
  signalgate serve --dev

  # Start with a specific config file
  signalgate --config /path/to/signalgate.yaml serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, in-memory demo data)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override dev mode from CLI flag
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	// Logger goes to stderr; stdout is reserved for trace export when enabled.
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("signalgate stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := observe.SetupTracing(cfg.Trace.Enabled, Version, nil)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()

	store, err := sqlite.Open(cfg.Telemetry.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open telemetry store: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info("telemetry store opened", "path", cfg.Telemetry.DBPath)

	if cfg.Telemetry.SeedDemo {
		if err := store.SeedDemo(ctx); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
		logger.Info("demo telemetry seeded")
	}

	filter, err := cel.NewFilterEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create filter evaluator: %w", err)
	}

	mcpService := service.NewMCPService(store, filter, logger, Version)
	sessions := memory.NewSessionRegistry()

	transportOpts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithEndpoint(cfg.Transport.Endpoint),
		http.WithLogger(logger),
		http.WithVersion(Version),
		http.WithHandlerTimeout(cfg.Transport.HandlerTimeoutDuration()),
		http.WithKeepaliveInterval(cfg.Transport.KeepaliveIntervalDuration()),
		http.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		http.WithAPIKeys(cfg.Auth.APIKeys),
		http.WithLegacyEndpointEvent(cfg.Transport.LegacyEndpointEvent),
		http.WithHealthChecker(http.NewHealthChecker(sessions, store, Version)),
	}
	if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
		transportOpts = append(transportOpts, http.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}

	transport := http.NewHTTPTransport(mcpService, sessions, transportOpts...)

	logger.Info("signalgate starting",
		"version", Version,
		"addr", cfg.Server.HTTPAddr,
		"endpoint", cfg.Transport.Endpoint,
		"dev_mode", cfg.DevMode,
		"auth", len(cfg.Auth.APIKeys) > 0,
		"tls", cfg.Server.TLSCertFile != "",
		"trace", cfg.Trace.Enabled,
	)

	return transport.Start(ctx)
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
