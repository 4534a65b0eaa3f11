package telemetry

import (
	"context"
	"errors"
)

// ErrServiceNotFound is returned when a service doesn't exist in the store.
var ErrServiceNotFound = errors.New("service not found")

// Store provides telemetry persistence.
// This interface is defined in the domain to avoid circular imports.
// Implementation: SQLite (internal/adapter/outbound/sqlite).
type Store interface {
	// ListServices returns all monitored services, ordered by name.
	ListServices(ctx context.Context) ([]Service, error)

	// GetService retrieves one service by name.
	// Returns ErrServiceNotFound if it doesn't exist.
	GetService(ctx context.Context, name string) (*Service, error)

	// QueryMetrics returns samples matching the query, newest first.
	QueryMetrics(ctx context.Context, q MetricQuery) ([]MetricSample, error)

	// PutSample ingests one metric sample and refreshes the service's
	// last-seen timestamp.
	PutSample(ctx context.Context, sample MetricSample) error

	// ListSLOs returns all SLOs, ordered by name.
	ListSLOs(ctx context.Context) ([]SLO, error)

	// ListAlarms returns all alarms, ordered by name.
	ListAlarms(ctx context.Context) ([]Alarm, error)

	// Close releases the underlying database handle.
	Close() error
}

// FilterEvaluator evaluates client-supplied filter expressions against
// telemetry entities. Implementation: CEL (internal/adapter/outbound/cel).
type FilterEvaluator interface {
	// MatchService reports whether the service satisfies the expression.
	MatchService(ctx context.Context, expr string, svc Service) (bool, error)

	// MatchAlarm reports whether the alarm satisfies the expression.
	MatchAlarm(ctx context.Context, expr string, alarm Alarm) (bool, error)
}
