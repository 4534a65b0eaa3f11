package sqlite

import (
	"context"
	"time"

	"github.com/signalgate/signalgate/internal/domain/telemetry"
)

// SeedDemo populates the store with a small demo topology so a fresh
// install has something to query. Idempotent: rows are upserted by name.
func (s *Store) SeedDemo(ctx context.Context) error {
	now := time.Now().UTC()

	services := []telemetry.Service{
		{Name: "checkout-api", Environment: "production", Platform: "eks", Healthy: true, LastSeen: now},
		{Name: "payments-worker", Environment: "production", Platform: "ec2", Healthy: false, LastSeen: now.Add(-10 * time.Minute)},
		{Name: "search-indexer", Environment: "staging", Platform: "lambda", Healthy: true, LastSeen: now.Add(-2 * time.Minute)},
	}
	for _, svc := range services {
		if err := s.UpsertService(ctx, svc); err != nil {
			return err
		}
	}

	samples := []telemetry.MetricSample{
		{Service: "checkout-api", Metric: "latency_p99_ms", Timestamp: now.Add(-3 * time.Minute), Value: 182.4, Unit: "ms"},
		{Service: "checkout-api", Metric: "latency_p99_ms", Timestamp: now.Add(-2 * time.Minute), Value: 175.1, Unit: "ms"},
		{Service: "checkout-api", Metric: "error_rate", Timestamp: now.Add(-2 * time.Minute), Value: 0.004, Unit: "ratio"},
		{Service: "payments-worker", Metric: "error_rate", Timestamp: now.Add(-11 * time.Minute), Value: 0.062, Unit: "ratio"},
	}
	for _, sample := range samples {
		if err := s.PutSample(ctx, sample); err != nil {
			return err
		}
	}

	slos := []telemetry.SLO{
		{Name: "checkout-latency", Service: "checkout-api", Metric: "latency_p99_ms", Threshold: 250, Goal: 99.9, Attainment: 99.94, Breached: false},
		{Name: "payments-errors", Service: "payments-worker", Metric: "error_rate", Threshold: 0.01, Goal: 99.5, Attainment: 98.7, Breached: true},
	}
	for _, slo := range slos {
		if err := s.PutSLO(ctx, slo); err != nil {
			return err
		}
	}

	alarms := []telemetry.Alarm{
		{Name: "payments-error-rate-high", Service: "payments-worker", State: telemetry.AlarmStateAlarm, Severity: "critical", Reason: "error_rate 0.062 > 0.01 for 10m", UpdatedAt: now.Add(-9 * time.Minute)},
		{Name: "checkout-latency-p99", Service: "checkout-api", State: telemetry.AlarmStateOK, Severity: "warning", Reason: "latency_p99_ms within threshold", UpdatedAt: now.Add(-1 * time.Minute)},
	}
	for _, alarm := range alarms {
		if err := s.PutAlarm(ctx, alarm); err != nil {
			return err
		}
	}

	return nil
}
