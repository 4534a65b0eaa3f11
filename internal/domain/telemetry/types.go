// Package telemetry defines the monitoring data model served by the
// signalgate tools: monitored services, metric samples, SLOs, and alarms.
package telemetry

import "time"

// Service is one monitored application service.
type Service struct {
	// Name uniquely identifies the service.
	Name string `json:"name"`
	// Environment is the deployment environment (e.g. "production", "staging").
	Environment string `json:"environment"`
	// Platform is the compute platform the service runs on (e.g. "eks", "ec2", "lambda").
	Platform string `json:"platform"`
	// Healthy is the latest health evaluation.
	Healthy bool `json:"healthy"`
	// LastSeen is when telemetry was last received for this service (UTC).
	LastSeen time.Time `json:"last_seen"`
}

// MetricSample is a single data point for a service metric.
type MetricSample struct {
	Service   string    `json:"service"`
	Metric    string    `json:"metric"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

// SLO is a service level objective with its current attainment.
type SLO struct {
	Name      string  `json:"name"`
	Service   string  `json:"service"`
	Metric    string  `json:"metric"`
	Threshold float64 `json:"threshold"`
	// Goal is the target attainment percentage (e.g. 99.9).
	Goal float64 `json:"goal"`
	// Attainment is the measured attainment percentage.
	Attainment float64 `json:"attainment"`
	Breached   bool    `json:"breached"`
}

// Alarm states, mirroring the upstream monitoring system's vocabulary.
const (
	AlarmStateOK               = "OK"
	AlarmStateAlarm            = "ALARM"
	AlarmStateInsufficientData = "INSUFFICIENT_DATA"
)

// Alarm is a threshold alarm attached to a service metric.
type Alarm struct {
	Name      string    `json:"name"`
	Service   string    `json:"service"`
	State     string    `json:"state"`
	Severity  string    `json:"severity"`
	Reason    string    `json:"reason"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetricQuery selects metric samples for one service metric.
type MetricQuery struct {
	Service string
	Metric  string
	// Since bounds the query window; zero means no lower bound.
	Since time.Time
	// Limit caps the number of returned samples; zero means no cap.
	Limit int
}
