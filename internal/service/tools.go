package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalgate/signalgate/internal/domain/telemetry"
	"github.com/signalgate/signalgate/internal/domain/tool"
)

// defaultMetricWindow bounds query_service_metrics when no window is given.
const defaultMetricWindow = 60 * time.Minute

// defaultMetricLimit caps returned samples when no limit is given.
const defaultMetricLimit = 100

// registerMonitoringTools wires the application-monitoring tool set against
// the telemetry store and the CEL filter evaluator.
func registerMonitoringTools(r *tool.Registry, store telemetry.Store, filter telemetry.FilterEvaluator) {
	r.MustRegister(&tool.Tool{
		Name:        "list_monitored_services",
		Description: "List monitored application services. Accepts an optional CEL filter over name, environment, platform and healthy.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"filter": {"type": "string", "description": "CEL expression, e.g. environment == \"production\" && !healthy"}
			}
		}`),
		Handler: listServicesTool(store, filter),
	})

	r.MustRegister(&tool.Tool{
		Name:        "get_service",
		Description: "Get one monitored service by name, including health and last-seen time.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string"}
			},
			"required": ["name"]
		}`),
		Handler: getServiceTool(store),
	})

	r.MustRegister(&tool.Tool{
		Name:        "query_service_metrics",
		Description: "Query recent metric samples for a service metric, newest first.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"service": {"type": "string"},
				"metric": {"type": "string"},
				"minutes": {"type": "integer", "description": "Lookback window in minutes (default 60)"},
				"limit": {"type": "integer", "description": "Maximum samples to return (default 100)"}
			},
			"required": ["service", "metric"]
		}`),
		Handler: queryMetricsTool(store),
	})

	r.MustRegister(&tool.Tool{
		Name:        "ingest_metric",
		Description: "Ingest one metric sample for a service. Creates the service on first contact.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"service": {"type": "string"},
				"metric": {"type": "string"},
				"value": {"type": "number"},
				"unit": {"type": "string"}
			},
			"required": ["service", "metric", "value"]
		}`),
		Handler: ingestMetricTool(store),
	})

	r.MustRegister(&tool.Tool{
		Name:        "list_slos",
		Description: "List service level objectives with goal, attainment and breach status.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			slos, err := store.ListSLOs(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"slos": emptyAsList(slos)}, nil
		},
	})

	r.MustRegister(&tool.Tool{
		Name:        "list_alarms",
		Description: "List alarms. Accepts an optional state (OK, ALARM, INSUFFICIENT_DATA) and an optional CEL filter over name, service, state and severity.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"state": {"type": "string", "enum": ["OK", "ALARM", "INSUFFICIENT_DATA"]},
				"filter": {"type": "string", "description": "CEL expression, e.g. severity == \"critical\""}
			}
		}`),
		Handler: listAlarmsTool(store, filter),
	})
}

func listServicesTool(store telemetry.Store, filter telemetry.FilterEvaluator) tool.Handler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var params struct {
			Filter string `json:"filter"`
		}
		if err := unmarshalArgs(args, &params); err != nil {
			return nil, err
		}

		services, err := store.ListServices(ctx)
		if err != nil {
			return nil, err
		}

		if params.Filter != "" {
			filtered := services[:0]
			for _, svc := range services {
				ok, err := filter.MatchService(ctx, params.Filter, svc)
				if err != nil {
					return nil, err
				}
				if ok {
					filtered = append(filtered, svc)
				}
			}
			services = filtered
		}

		return map[string]any{"services": emptyAsList(services)}, nil
	}
}

func getServiceTool(store telemetry.Store) tool.Handler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var params struct {
			Name string `json:"name"`
		}
		if err := unmarshalArgs(args, &params); err != nil {
			return nil, err
		}
		if params.Name == "" {
			return nil, fmt.Errorf("argument 'name' is required")
		}

		svc, err := store.GetService(ctx, params.Name)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}
}

func queryMetricsTool(store telemetry.Store) tool.Handler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var params struct {
			Service string `json:"service"`
			Metric  string `json:"metric"`
			Minutes int    `json:"minutes"`
			Limit   int    `json:"limit"`
		}
		if err := unmarshalArgs(args, &params); err != nil {
			return nil, err
		}
		if params.Service == "" || params.Metric == "" {
			return nil, fmt.Errorf("arguments 'service' and 'metric' are required")
		}

		window := defaultMetricWindow
		if params.Minutes > 0 {
			window = time.Duration(params.Minutes) * time.Minute
		}
		limit := defaultMetricLimit
		if params.Limit > 0 {
			limit = params.Limit
		}

		samples, err := store.QueryMetrics(ctx, telemetry.MetricQuery{
			Service: params.Service,
			Metric:  params.Metric,
			Since:   time.Now().UTC().Add(-window),
			Limit:   limit,
		})
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"service": params.Service,
			"metric":  params.Metric,
			"samples": emptyAsList(samples),
		}, nil
	}
}

func ingestMetricTool(store telemetry.Store) tool.Handler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var params struct {
			Service string   `json:"service"`
			Metric  string   `json:"metric"`
			Value   *float64 `json:"value"`
			Unit    string   `json:"unit"`
		}
		if err := unmarshalArgs(args, &params); err != nil {
			return nil, err
		}
		if params.Service == "" || params.Metric == "" || params.Value == nil {
			return nil, fmt.Errorf("arguments 'service', 'metric' and 'value' are required")
		}

		sample := telemetry.MetricSample{
			Service:   params.Service,
			Metric:    params.Metric,
			Timestamp: time.Now().UTC(),
			Value:     *params.Value,
			Unit:      params.Unit,
		}
		if err := store.PutSample(ctx, sample); err != nil {
			return nil, err
		}

		return map[string]any{"status": "accepted", "service": params.Service, "metric": params.Metric}, nil
	}
}

func listAlarmsTool(store telemetry.Store, filter telemetry.FilterEvaluator) tool.Handler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var params struct {
			State  string `json:"state"`
			Filter string `json:"filter"`
		}
		if err := unmarshalArgs(args, &params); err != nil {
			return nil, err
		}

		alarms, err := store.ListAlarms(ctx)
		if err != nil {
			return nil, err
		}

		filtered := alarms[:0]
		for _, alarm := range alarms {
			if params.State != "" && alarm.State != params.State {
				continue
			}
			if params.Filter != "" {
				ok, err := filter.MatchAlarm(ctx, params.Filter, alarm)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			filtered = append(filtered, alarm)
		}

		return map[string]any{"alarms": emptyAsList(filtered)}, nil
	}
}

// unmarshalArgs decodes tool arguments, treating absent arguments as empty.
func unmarshalArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// emptyAsList keeps empty slices rendering as [] instead of null.
func emptyAsList[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
