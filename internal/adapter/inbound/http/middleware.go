package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/signalgate/signalgate/internal/ctxkey"
	"github.com/signalgate/signalgate/internal/domain/auth"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key for the enriched logger.
// Uses shared key type from ctxkey package to allow cross-package access without import cycles.
var LoggerKey = ctxkey.LoggerKey{}

// clientIPContextKey is the type for the client IP context key.
type clientIPContextKey struct{}

// ClientIPKey is the context key for the client's real IP address.
var ClientIPKey = clientIPContextKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using RequestIDKey.
// An enriched logger with request_id field is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			// Set response header for correlation
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// OriginCheck validates the Origin header against an allowlist.
// This prevents DNS rebinding attacks against a locally-bound server.
// If allowedOrigins is empty, all requests with an Origin header are blocked
// (local-only mode). Requests without an Origin header are allowed
// (same-origin or non-browser).
func OriginCheck(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; !ok {
				http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyGate authenticates requests before they reach the transport.
// Keys are presented as "Authorization: Bearer <key>" or "X-API-Key: <key>".
//
// Configured key entries may be Argon2id hashes (PHC format), SHA-256 hashes
// ("sha256:" prefix or bare hex), plaintext values (exact match), or the
// literal "*" which accepts any non-empty key (pass-through mode, mirroring
// setups where the key is validated upstream).
//
// With no configured keys the gate is disabled and requests pass through.
func APIKeyGate(configuredKeys []string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(configuredKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := extractAPIKey(r)
			if presented == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized: missing API key"})
				return
			}

			if !keyMatches(presented, configuredKeys) {
				logger.Warn("rejected API key", "key_fingerprint", auth.Fingerprint(presented), "remote_ip", ClientIPFromContext(r.Context()))
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized: invalid API key"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKey pulls the key from the Authorization or X-API-Key header.
func extractAPIKey(r *http.Request) string {
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimPrefix(v, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// keyMatches verifies the presented key against every configured entry.
func keyMatches(presented string, configured []string) bool {
	for _, entry := range configured {
		if entry == "*" {
			return true
		}
		if ok, err := auth.VerifyKey(presented, entry); err == nil && ok {
			return true
		}
		// Unrecognized hash formats are treated as plaintext entries.
		if auth.DetectHashType(entry) == "unknown" && subtleEqual(presented, entry) {
			return true
		}
	}
	return false
}

// subtleEqual compares two strings in constant time via their hashes, so
// plaintext key comparison doesn't leak length or prefix timing.
func subtleEqual(a, b string) bool {
	return auth.HashKey(a) == auth.HashKey(b)
}

// RealIPMiddleware extracts the client's real IP address.
// It checks X-Forwarded-For and X-Real-IP headers (for reverse proxy support),
// falling back to r.RemoteAddr if no proxy headers are present.
// Only the first IP in X-Forwarded-For is trusted to avoid spoofing.
// The IP is stored in context using ClientIPKey.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), ClientIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromContext retrieves the client IP stored by RealIPMiddleware.
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	// X-Forwarded-For: client, proxy1, proxy2 — trust only the first entry.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is in "host:port" format, extract host
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
