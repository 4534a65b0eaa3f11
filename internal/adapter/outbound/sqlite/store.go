// Package sqlite provides the SQLite-backed telemetry store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalgate/signalgate/internal/domain/telemetry"
)

// schema is applied on open. Timestamps are stored as RFC 3339 text so the
// pure-Go driver round-trips them without locale surprises.
const schema = `
CREATE TABLE IF NOT EXISTS services (
	name        TEXT PRIMARY KEY,
	environment TEXT NOT NULL,
	platform    TEXT NOT NULL,
	healthy     INTEGER NOT NULL,
	last_seen   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metrics (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	metric  TEXT NOT NULL,
	ts      TEXT NOT NULL,
	value   REAL NOT NULL,
	unit    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metrics_lookup ON metrics(service, metric, ts);

CREATE TABLE IF NOT EXISTS slos (
	name       TEXT PRIMARY KEY,
	service    TEXT NOT NULL,
	metric     TEXT NOT NULL,
	threshold  REAL NOT NULL,
	goal       REAL NOT NULL,
	attainment REAL NOT NULL,
	breached   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS alarms (
	name       TEXT PRIMARY KEY,
	service    TEXT NOT NULL,
	state      TEXT NOT NULL,
	severity   TEXT NOT NULL,
	reason     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store implements telemetry.Store on top of modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the telemetry database at path and
// applies the schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry db: %w", err)
	}

	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent tool calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply telemetry schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListServices returns all monitored services, ordered by name.
func (s *Store) ListServices(ctx context.Context) ([]telemetry.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, environment, platform, healthy, last_seen FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []telemetry.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}

// GetService retrieves one service by name.
func (s *Store) GetService(ctx context.Context, name string) (*telemetry.Service, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, environment, platform, healthy, last_seen FROM services WHERE name = ?`, name)

	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telemetry.ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// UpsertService inserts or replaces a service row.
func (s *Store) UpsertService(ctx context.Context, svc telemetry.Service) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (name, environment, platform, healthy, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			environment = excluded.environment,
			platform    = excluded.platform,
			healthy     = excluded.healthy,
			last_seen   = excluded.last_seen`,
		svc.Name, svc.Environment, svc.Platform, boolToInt(svc.Healthy), formatTime(svc.LastSeen))
	if err != nil {
		return fmt.Errorf("failed to upsert service %q: %w", svc.Name, err)
	}
	return nil
}

// QueryMetrics returns samples matching the query, newest first.
func (s *Store) QueryMetrics(ctx context.Context, q telemetry.MetricQuery) ([]telemetry.MetricSample, error) {
	query := `SELECT service, metric, ts, value, unit FROM metrics WHERE service = ? AND metric = ?`
	args := []any{q.Service, q.Metric}

	if !q.Since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, formatTime(q.Since))
	}
	query += ` ORDER BY ts DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []telemetry.MetricSample
	for rows.Next() {
		var sample telemetry.MetricSample
		var ts string
		if err := rows.Scan(&sample.Service, &sample.Metric, &ts, &sample.Value, &sample.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan metric sample: %w", err)
		}
		sample.Timestamp, err = parseTime(ts)
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

// PutSample ingests one metric sample. The owning service row is created on
// first contact and its last-seen timestamp refreshed otherwise.
func (s *Store) PutSample(ctx context.Context, sample telemetry.MetricSample) error {
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ingest tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO services (name, environment, platform, healthy, last_seen)
		VALUES (?, 'unknown', 'unknown', 1, ?)
		ON CONFLICT(name) DO UPDATE SET last_seen = excluded.last_seen`,
		sample.Service, formatTime(ts)); err != nil {
		return fmt.Errorf("failed to refresh service %q: %w", sample.Service, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO metrics (service, metric, ts, value, unit) VALUES (?, ?, ?, ?, ?)`,
		sample.Service, sample.Metric, formatTime(ts), sample.Value, sample.Unit); err != nil {
		return fmt.Errorf("failed to insert metric sample: %w", err)
	}

	return tx.Commit()
}

// ListSLOs returns all SLOs, ordered by name.
func (s *Store) ListSLOs(ctx context.Context) ([]telemetry.SLO, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, service, metric, threshold, goal, attainment, breached FROM slos ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list slos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []telemetry.SLO
	for rows.Next() {
		var slo telemetry.SLO
		var breached int
		if err := rows.Scan(&slo.Name, &slo.Service, &slo.Metric,
			&slo.Threshold, &slo.Goal, &slo.Attainment, &breached); err != nil {
			return nil, fmt.Errorf("failed to scan slo: %w", err)
		}
		slo.Breached = breached != 0
		out = append(out, slo)
	}
	return out, rows.Err()
}

// PutSLO inserts or replaces an SLO row.
func (s *Store) PutSLO(ctx context.Context, slo telemetry.SLO) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slos (name, service, metric, threshold, goal, attainment, breached)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			service    = excluded.service,
			metric     = excluded.metric,
			threshold  = excluded.threshold,
			goal       = excluded.goal,
			attainment = excluded.attainment,
			breached   = excluded.breached`,
		slo.Name, slo.Service, slo.Metric, slo.Threshold, slo.Goal, slo.Attainment, boolToInt(slo.Breached))
	if err != nil {
		return fmt.Errorf("failed to upsert slo %q: %w", slo.Name, err)
	}
	return nil
}

// ListAlarms returns all alarms, ordered by name.
func (s *Store) ListAlarms(ctx context.Context) ([]telemetry.Alarm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, service, state, severity, reason, updated_at FROM alarms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alarms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []telemetry.Alarm
	for rows.Next() {
		var alarm telemetry.Alarm
		var updated string
		if err := rows.Scan(&alarm.Name, &alarm.Service, &alarm.State,
			&alarm.Severity, &alarm.Reason, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan alarm: %w", err)
		}
		alarm.UpdatedAt, err = parseTime(updated)
		if err != nil {
			return nil, err
		}
		out = append(out, alarm)
	}
	return out, rows.Err()
}

// PutAlarm inserts or replaces an alarm row.
func (s *Store) PutAlarm(ctx context.Context, alarm telemetry.Alarm) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alarms (name, service, state, severity, reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			service    = excluded.service,
			state      = excluded.state,
			severity   = excluded.severity,
			reason     = excluded.reason,
			updated_at = excluded.updated_at`,
		alarm.Name, alarm.Service, alarm.State, alarm.Severity, alarm.Reason, formatTime(alarm.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert alarm %q: %w", alarm.Name, err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanService(row scanner) (*telemetry.Service, error) {
	var svc telemetry.Service
	var healthy int
	var lastSeen string
	if err := row.Scan(&svc.Name, &svc.Environment, &svc.Platform, &healthy, &lastSeen); err != nil {
		return nil, err
	}
	svc.Healthy = healthy != 0

	ts, err := parseTime(lastSeen)
	if err != nil {
		return nil, err
	}
	svc.LastSeen = ts
	return &svc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface verification.
var _ telemetry.Store = (*Store)(nil)
