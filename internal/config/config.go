// Package config provides the configuration schema and loading for signalgate.
package config

import (
	"time"
)

// Config is the top-level configuration for the signalgate server.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Transport configures the streamable HTTP transport behavior.
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`

	// Auth configures the API key gate in front of the transport.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Telemetry configures the backing telemetry store.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Trace configures optional OpenTelemetry span export.
	Trace TraceConfig `yaml:"trace" mapstructure:"trace"`

	// DevMode enables development features (debug logging, demo data).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file" validate:"omitempty,file"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file" validate:"omitempty,file"`

	// AllowedOrigins lists the Origin header values accepted on the
	// transport. Empty blocks all browser cross-origin requests
	// (local-only mode).
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,url"`
}

// TransportConfig configures the streamable HTTP transport.
type TransportConfig struct {
	// Endpoint is the mount path for the transport. Defaults to "/mcp".
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,startswith=/"`

	// HandlerTimeout bounds one message-handler invocation (e.g., "30s").
	// Defaults to "30s".
	HandlerTimeout string `yaml:"handler_timeout" mapstructure:"handler_timeout" validate:"omitempty,duration"`

	// KeepaliveInterval is the idle interval between SSE keepalive
	// comments (e.g., "30s"). Defaults to "30s".
	KeepaliveInterval string `yaml:"keepalive_interval" mapstructure:"keepalive_interval" validate:"omitempty,duration"`

	// LegacyEndpointEvent enables the "endpoint" handshake event for old
	// clients that discover the POST path from the SSE stream.
	LegacyEndpointEvent bool `yaml:"legacy_endpoint_event" mapstructure:"legacy_endpoint_event"`
}

// AuthConfig configures the API key gate.
type AuthConfig struct {
	// APIKeys lists accepted keys. Entries may be Argon2id hashes (PHC
	// format, from `signalgate hash-key`), SHA-256 hashes ("sha256:" prefix
	// or bare hex), plaintext values, or "*" to accept any non-empty key.
	// Empty disables authentication.
	APIKeys []string `yaml:"api_keys" mapstructure:"api_keys"`
}

// TelemetryConfig configures the telemetry store.
type TelemetryConfig struct {
	// DBPath is the SQLite database path. ":memory:" keeps everything
	// in-process. Defaults to "signalgate.db".
	DBPath string `yaml:"db_path" mapstructure:"db_path" validate:"required"`

	// SeedDemo populates the store with demo services, metrics, SLOs and
	// alarms on startup. Defaults to true in dev mode.
	SeedDemo bool `yaml:"seed_demo" mapstructure:"seed_demo"`
}

// TraceConfig configures OpenTelemetry tracing.
type TraceConfig struct {
	// Enabled turns on the stdout span exporter.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only by default. Users who need network access
	// must explicitly set http_addr: ":8080" or "0.0.0.0:8080".
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Transport.Endpoint == "" {
		c.Transport.Endpoint = "/mcp"
	}
	if c.Transport.HandlerTimeout == "" {
		c.Transport.HandlerTimeout = "30s"
	}
	if c.Transport.KeepaliveInterval == "" {
		c.Transport.KeepaliveInterval = "30s"
	}

	if c.Telemetry.DBPath == "" {
		c.Telemetry.DBPath = "signalgate.db"
	}
}

// SetDevDefaults applies permissive defaults for development mode.
// Applied after SetDefaults and before validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"
	c.Telemetry.SeedDemo = true
	if c.Telemetry.DBPath == "signalgate.db" {
		c.Telemetry.DBPath = ":memory:"
	}
}

// HandlerTimeout returns the parsed handler timeout.
// Falls back to 30s on malformed values (validation rejects those earlier).
func (c *TransportConfig) HandlerTimeoutDuration() time.Duration {
	return parseDurationOr(c.HandlerTimeout, 30*time.Second)
}

// KeepaliveIntervalDuration returns the parsed keepalive interval.
func (c *TransportConfig) KeepaliveIntervalDuration() time.Duration {
	return parseDurationOr(c.KeepaliveInterval, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
